// Package api exposes the daemon's HTTP surface: triggering readings,
// inspecting the live triplet, tuning parameters, and browsing history.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/ph.report/internal/db"
	"github.com/banshee-data/ph.report/internal/httputil"
	"github.com/banshee-data/ph.report/internal/sensor"
)

// readTimeout bounds how long a synchronous /read request waits for the
// sequencer. Rotations are short; the queue in front of them is what can
// take time.
const readTimeout = 60 * time.Second

// SensorController is the slice of the sensor surface the API drives.
type SensorController interface {
	RequestRead(table string, callback func(sensor.Result)) uuid.UUID
	Hertz() sensor.Reading

	GetUpdateInterval() time.Duration
	SetUpdateInterval(time.Duration)
	GetSampleSize() int
	SetSampleSize(int)
	GetFrequency() sensor.FreqScale
	SetFrequency(sensor.FreqScale) error
}

// ReadingStore is the slice of the database the API reads from.
type ReadingStore interface {
	Readings(limit int) ([]db.ReadingRow, error)
}

type Server struct {
	sensor SensorController
	store  ReadingStore
}

func NewServer(s SensorController, store ReadingStore) *Server {
	return &Server{sensor: s, store: store}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/hertz", s.handleHertz)
	mux.HandleFunc("/read", s.handleRead)
	mux.HandleFunc("/params", s.handleParams)
	mux.HandleFunc("/readings", s.handleReadings)
	mux.HandleFunc("/charts/hertz", s.handleHertzChart)
	return mux
}

// handleHertz returns the latest committed triplet.
func (s *Server) handleHertz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.sensor.Hertz())
}

type readResponse struct {
	ID      string         `json:"id"`
	Table   string         `json:"table"`
	Label   string         `json:"label,omitempty"`
	Matched bool           `json:"matched"`
	Angle   float64        `json:"angle_radians,omitempty"`
	Sample  sensor.Reading `json:"sample"`
}

// handleRead queues a reading and blocks until its result arrives.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	table := r.FormValue("table")
	if table == "" {
		table = "narrow"
	}

	results := make(chan sensor.Result, 1)
	s.sensor.RequestRead(table, func(res sensor.Result) {
		results <- res
	})

	select {
	case res := <-results:
		if res.Err != nil {
			httputil.InternalServerError(w, res.Err.Error())
			return
		}
		httputil.WriteJSONOK(w, readResponse{
			ID:      res.ID.String(),
			Table:   res.Table,
			Label:   res.Label,
			Matched: res.Matched,
			Angle:   res.Angle,
			Sample:  res.Sample,
		})
	case <-r.Context().Done():
		// Client went away; the sequencer will still service the request.
	case <-time.After(readTimeout):
		httputil.WriteJSONError(w, http.StatusGatewayTimeout, "reading timed out")
	}
}

// params mirrors the tuning config schema. Pointer fields so a POST can
// update any subset; the sensor's setters clamp out-of-range values and the
// response echoes the effective values.
type params struct {
	UpdateInterval *string `json:"update_interval,omitempty"`
	SampleSize     *int    `json:"sample_size,omitempty"`
	Frequency      *int    `json:"frequency,omitempty"`
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeParams(w)

	case http.MethodPost:
		var p params
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			httputil.BadRequest(w, "invalid params JSON: "+err.Error())
			return
		}

		if p.UpdateInterval != nil {
			d, err := time.ParseDuration(*p.UpdateInterval)
			if err != nil {
				httputil.BadRequest(w, "invalid update_interval: "+err.Error())
				return
			}
			s.sensor.SetUpdateInterval(d)
		}
		if p.SampleSize != nil {
			s.sensor.SetSampleSize(*p.SampleSize)
		}
		if p.Frequency != nil {
			if *p.Frequency < 0 {
				httputil.BadRequest(w, "frequency must be non-negative")
				return
			}
			if err := s.sensor.SetFrequency(sensor.FreqScale(*p.Frequency)); err != nil {
				httputil.InternalServerError(w, err.Error())
				return
			}
		}

		s.writeParams(w)

	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) writeParams(w http.ResponseWriter) {
	interval := s.sensor.GetUpdateInterval().String()
	samples := s.sensor.GetSampleSize()
	frequency := int(s.sensor.GetFrequency())
	httputil.WriteJSONOK(w, params{
		UpdateInterval: &interval,
		SampleSize:     &samples,
		Frequency:      &frequency,
	})
}

// handleReadings returns stored sessions, newest first.
func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 10000 {
			httputil.BadRequest(w, "limit must be an integer between 1 and 10000")
			return
		}
		limit = n
	}

	rows, err := s.store.Readings(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, rows)
}
