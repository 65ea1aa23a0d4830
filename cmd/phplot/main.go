// phplot renders per-channel frequency history from a readings database to a
// PNG, for offline inspection of exposure tuning and reference-table drift.
//
// Usage:
//
//	phplot -db ph_readings.db -out hertz.png -limit 500
package main

import (
	"flag"
	"image/color"
	"log"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/ph.report/internal/db"
)

var (
	dbFile  = flag.String("db", "ph_readings.db", "Path to the sqlite database")
	outFile = flag.String("out", "hertz.png", "Output PNG path")
	limit   = flag.Int("limit", 500, "Number of most recent readings to plot")
)

func main() {
	flag.Parse()

	store, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	rows, err := store.Readings(*limit)
	if err != nil {
		log.Fatalf("failed to query readings: %v", err)
	}
	if len(rows) == 0 {
		log.Fatal("no readings recorded")
	}

	p := plot.New()
	p.Title.Text = "Per-channel frequency"
	p.X.Label.Text = "Reading"
	p.Y.Label.Text = "Hz"

	// Rows arrive newest first; plot oldest to newest.
	redPts := make(plotter.XYs, 0, len(rows))
	greenPts := make(plotter.XYs, 0, len(rows))
	bluePts := make(plotter.XYs, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		x := float64(len(rows) - 1 - i)
		redPts = append(redPts, plotter.XY{X: x, Y: rows[i].RedHz})
		greenPts = append(greenPts, plotter.XY{X: x, Y: rows[i].GreenHz})
		bluePts = append(bluePts, plotter.XY{X: x, Y: rows[i].BlueHz})
	}

	for _, series := range []struct {
		name string
		pts  plotter.XYs
		col  color.RGBA
	}{
		{"red", redPts, color.RGBA{R: 214, G: 39, B: 40, A: 255}},
		{"green", greenPts, color.RGBA{R: 44, G: 160, B: 44, A: 255}},
		{"blue", bluePts, color.RGBA{R: 31, G: 119, B: 180, A: 255}},
	} {
		line, err := plotter.NewLine(series.pts)
		if err != nil {
			log.Fatalf("failed to build %s series: %v", series.name, err)
		}
		line.Color = series.col
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(series.name, line)
	}

	if err := p.Save(10*vg.Inch, 5*vg.Inch, *outFile); err != nil {
		log.Fatalf("failed to save plot: %v", err)
	}
	log.Printf("wrote %s (%d readings)", *outFile, len(rows))
}
