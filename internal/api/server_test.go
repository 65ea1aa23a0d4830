package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/ph.report/internal/db"
	"github.com/banshee-data/ph.report/internal/sensor"
)

// fakeSensor implements SensorController with canned data and the same
// silent-clamp semantics as the real sensor.
type fakeSensor struct {
	interval time.Duration
	samples  int
	freq     sensor.FreqScale

	reading sensor.Reading
	result  sensor.Result

	lastTable string
}

func newFakeSensor() *fakeSensor {
	return &fakeSensor{
		interval: time.Second,
		samples:  20,
		freq:     sensor.Freq20,
	}
}

func (f *fakeSensor) RequestRead(table string, callback func(sensor.Result)) uuid.UUID {
	f.lastTable = table
	res := f.result
	res.Table = table
	callback(res)
	return res.ID
}

func (f *fakeSensor) Hertz() sensor.Reading { return f.reading }

func (f *fakeSensor) GetUpdateInterval() time.Duration { return f.interval }
func (f *fakeSensor) SetUpdateInterval(d time.Duration) {
	if d < 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	f.interval = d
}
func (f *fakeSensor) GetSampleSize() int { return f.samples }
func (f *fakeSensor) SetSampleSize(n int) {
	if n > 100 {
		n = 100
	}
	f.samples = n
}
func (f *fakeSensor) GetFrequency() sensor.FreqScale { return f.freq }
func (f *fakeSensor) SetFrequency(v sensor.FreqScale) error {
	if v > sensor.Freq100 {
		v = sensor.Freq100
	}
	f.freq = v
	return nil
}

type fakeStore struct {
	rows []db.ReadingRow
	err  error
}

func (f *fakeStore) Readings(limit int) ([]db.ReadingRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.rows) {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

func newTestServer(fs *fakeSensor, store *fakeStore) *httptest.Server {
	return httptest.NewServer(NewServer(fs, store).ServeMux())
}

func TestHandleHertz(t *testing.T) {
	fs := newFakeSensor()
	fs.reading = sensor.Reading{Hertz: [3]float64{100, 200, 300}, Tally: [3]int64{10, 20, 30}}
	srv := newTestServer(fs, &fakeStore{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/hertz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got sensor.Reading
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got != fs.reading {
		t.Errorf("reading = %+v, want %+v", got, fs.reading)
	}
}

func TestHandleHertzMethodNotAllowed(t *testing.T) {
	srv := newTestServer(newFakeSensor(), &fakeStore{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/hertz", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestHandleRead(t *testing.T) {
	fs := newFakeSensor()
	fs.result = sensor.Result{
		ID:      uuid.New(),
		Label:   "7.0",
		Matched: true,
		Angle:   0.01,
		Sample:  sensor.Reading{Hertz: [3]float64{100, 100, 100}},
	}
	srv := newTestServer(fs, &fakeStore{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/read?table=wide", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got readResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Table != "wide" || fs.lastTable != "wide" {
		t.Errorf("table = %q (sensor saw %q), want wide", got.Table, fs.lastTable)
	}
	if !got.Matched || got.Label != "7.0" {
		t.Errorf("response = %+v, want a 7.0 match", got)
	}
	if got.ID != fs.result.ID.String() {
		t.Errorf("id = %q, want %q", got.ID, fs.result.ID)
	}
}

func TestHandleReadDefaultsToNarrowTable(t *testing.T) {
	fs := newFakeSensor()
	srv := newTestServer(fs, &fakeStore{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/read", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if fs.lastTable != "narrow" {
		t.Errorf("sensor saw table %q, want narrow", fs.lastTable)
	}
}

func TestHandleReadSensorError(t *testing.T) {
	fs := newFakeSensor()
	fs.result = sensor.Result{ID: uuid.New(), Err: errors.New("rotation failed")}
	srv := newTestServer(fs, &fakeStore{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/read", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestHandleParamsRoundTrip(t *testing.T) {
	fs := newFakeSensor()
	srv := newTestServer(fs, &fakeStore{})
	defer srv.Close()

	body := `{"update_interval": "250ms", "sample_size": 500, "frequency": 1}`
	resp, err := http.Post(srv.URL+"/params", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got params
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if *got.UpdateInterval != "250ms" {
		t.Errorf("update_interval = %q, want 250ms", *got.UpdateInterval)
	}
	// The response reports the clamped effective value, not the requested one.
	if *got.SampleSize != 100 {
		t.Errorf("sample_size = %d, want the clamped 100", *got.SampleSize)
	}
	if *got.Frequency != 1 {
		t.Errorf("frequency = %d, want 1", *got.Frequency)
	}
}

func TestHandleParamsPartialUpdate(t *testing.T) {
	fs := newFakeSensor()
	srv := newTestServer(fs, &fakeStore{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/params", "application/json", strings.NewReader(`{"sample_size": 30}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if fs.samples != 30 {
		t.Errorf("sample size = %d, want 30", fs.samples)
	}
	if fs.interval != time.Second {
		t.Errorf("interval = %v, want untouched 1s", fs.interval)
	}
	if fs.freq != sensor.Freq20 {
		t.Errorf("frequency = %v, want untouched Freq20", fs.freq)
	}
}

func TestHandleParamsRejectsBadInput(t *testing.T) {
	srv := newTestServer(newFakeSensor(), &fakeStore{})
	defer srv.Close()

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{`},
		{"bad duration", `{"update_interval": "fast"}`},
		{"negative frequency", `{"frequency": -2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/params", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestHandleReadings(t *testing.T) {
	store := &fakeStore{rows: []db.ReadingRow{
		{ID: "b", Label: "7.0", Matched: true},
		{ID: "a", Label: "6.5", Matched: true},
	}}
	srv := newTestServer(newFakeSensor(), store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readings?limit=2")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got []db.ReadingRow
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "b" {
		t.Errorf("rows = %+v, want the two stored rows newest first", got)
	}
}

func TestHandleReadingsBadLimit(t *testing.T) {
	srv := newTestServer(newFakeSensor(), &fakeStore{})
	defer srv.Close()

	for _, limit := range []string{"0", "-5", "10001", "many"} {
		resp, err := http.Get(srv.URL + "/readings?limit=" + limit)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", limit, resp.StatusCode)
		}
	}
}

func TestHandleReadingsStoreError(t *testing.T) {
	srv := newTestServer(newFakeSensor(), &fakeStore{err: errors.New("disk gone")})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readings")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestHandleHertzChart(t *testing.T) {
	store := &fakeStore{rows: []db.ReadingRow{
		{ID: "a", RedHz: 100, GreenHz: 200, BlueHz: 300, Timestamp: time.Now()},
	}}
	srv := newTestServer(newFakeSensor(), store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/charts/hertz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q, want text/html", ct)
	}
}

func TestHandleHertzChartEmpty(t *testing.T) {
	srv := newTestServer(newFakeSensor(), &fakeStore{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/charts/hertz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
