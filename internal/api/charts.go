package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/ph.report/internal/httputil"
)

// handleHertzChart renders per-channel Hertz history as an HTML line chart.
// This is a debugging endpoint to eyeball drift and exposure tuning without
// pulling the data into a spreadsheet.
// Query params:
//   - limit (optional; default 200) number of most recent readings
func (s *Server) handleHertzChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 10000 {
			limit = n
		}
	}

	rows, err := s.store.Readings(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if len(rows) == 0 {
		httputil.NotFound(w, "no readings recorded yet")
		return
	}

	// Rows arrive newest first; plot oldest to newest.
	xAxis := make([]string, 0, len(rows))
	red := make([]opts.LineData, 0, len(rows))
	green := make([]opts.LineData, 0, len(rows))
	blue := make([]opts.LineData, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		xAxis = append(xAxis, row.Timestamp.Format("15:04:05"))
		red = append(red, opts.LineData{Value: row.RedHz})
		green = append(green, opts.LineData{Value: row.GreenHz})
		blue = append(blue, opts.LineData{Value: row.BlueHz})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Channel Hertz History", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Per-channel frequency", Subtitle: fmt.Sprintf("last %d readings", len(rows))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Hz"}),
	)

	line.SetXAxis(xAxis).
		AddSeries("red", red, charts.WithLineStyleOpts(opts.LineStyle{Color: "#d62728"})).
		AddSeries("green", green, charts.WithLineStyleOpts(opts.LineStyle{Color: "#2ca02c"})).
		AddSeries("blue", blue, charts.WithLineStyleOpts(opts.LineStyle{Color: "#1f77b4"}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
