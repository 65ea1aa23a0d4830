package main

import (
	"context"
	"embed"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/ph.report/internal/api"
	"github.com/banshee-data/ph.report/internal/buttons"
	"github.com/banshee-data/ph.report/internal/config"
	"github.com/banshee-data/ph.report/internal/db"
	"github.com/banshee-data/ph.report/internal/feedback"
	"github.com/banshee-data/ph.report/internal/gpio"
	"github.com/banshee-data/ph.report/internal/refdata"
	"github.com/banshee-data/ph.report/internal/sensor"
	"github.com/banshee-data/ph.report/internal/timeutil"
	"github.com/banshee-data/ph.report/internal/version"
)

var (
	//go:embed static/*
	staticFiles embed.FS
	devMode     = flag.Bool("dev", false, "Run in dev mode (replay fixture edge stream, no hardware)")
	listen      = flag.String("listen", ":8080", "Listen address")
	serialPort  = flag.String("serial", "/dev/ttyACM0", "Line controller serial port")
	dbFile      = flag.String("db", "ph_readings.db", "Path to the sqlite database")
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the tuning config JSON")
	migrations  = flag.String("migrations", "migrations", "Path to the migrations directory")
)

func main() {
	flag.Parse()

	// Subcommands run and exit before the daemon starts.
	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		db.RunMigrateCommand(args[1:], *dbFile, *migrations)
		return
	}

	log.Printf("ph.report %s starting", version.String())

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		log.Printf("using built-in tuning defaults: %v", err)
		cfg = config.EmptyTuningConfig()
	}

	var ctl gpio.LineController
	if *devMode {
		data, err := os.ReadFile("fixtures.txt")
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		ctl = gpio.NewMockLineMux(data, time.Second)
	} else {
		ctl, err = gpio.NewRealLineMux(*serialPort, cfg.GetPort())
		if err != nil {
			log.Fatalf("failed to open line controller port: %v", err)
		}
	}
	defer ctl.Close()

	store, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	clock := timeutil.RealClock{}
	tables := refdata.NewStore(cfg.GetTablesDir())

	s, err := sensor.New(ctl, tables, clock, cfg.GetSensorPins())
	if err != nil {
		log.Fatalf("failed to initialise sensor: %v", err)
	}
	s.SetRecorder(store)
	s.SetUpdateInterval(cfg.GetUpdateInterval())
	s.SetSampleSize(cfg.GetSampleSize())
	if err := s.SetFrequency(cfg.GetFrequency()); err != nil {
		log.Fatalf("failed to set frequency divider: %v", err)
	}
	defer s.Shutdown()

	chime, err := feedback.NewChime(ctl, clock, cfg.GetChimePin())
	if err != nil {
		log.Fatalf("failed to initialise chime: %v", err)
	}
	defer chime.Close()

	player := feedback.NewPlayer(cfg.GetAudioDir(), cfg.GetAudioPlayer())

	btns, err := buttons.New(ctl, clock, s, chime, player, buttons.Config{
		NarrowLine: cfg.GetNarrowPin(),
		WideLine:   cfg.GetWidePin(),
		Steady:     cfg.GetButtonSteady(),
		Active:     cfg.GetButtonActive(),
	})
	if err != nil {
		log.Fatalf("failed to initialise buttons: %v", err)
	}

	// Wait group for the edge-feed monitor, the sensor sequencer, the
	// button dispatcher, and the HTTP server.
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the line controller port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctl.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor line controller: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// sensor sequencing goroutine: services queued read requests
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("sensor run loop failed: %v", err)
		}
		log.Print("sensor routine terminated")
	}()

	// button dispatch goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := btns.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("button loop failed: %v", err)
		}
		log.Print("buttons routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the API handlers
		apiMux := api.NewServer(s, store).ServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", apiMux))

		// read static files from the embedded filesystem in production or
		// from the local ./static in dev for easier iteration
		var staticHandler http.Handler
		if *devMode {
			staticHandler = http.FileServer(http.Dir("./static"))
		} else {
			staticHandler = http.FileServer(http.FS(staticFiles))
		}
		mux.Handle("/", staticHandler)

		server := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// announce readiness
	if err := chime.Long(); err != nil {
		log.Printf("startup chime failed: %v", err)
	}

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
