package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// resultsChart renders a quick HTML chart of stored sprint times using
// go-echarts. This is a coaching/debugging view, not part of the JSON API.
// Query params:
//   - limit (optional; default 50) most recent runs to plot
func (s *Server) resultsChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "results store not configured")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	rows, err := s.db.ListResults(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get results: %v", err))
		return
	}
	if len(rows) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "no results recorded yet")
		return
	}

	// ListResults returns newest first; plot oldest to newest left to right.
	x := make([]string, 0, len(rows))
	elapsed := make([]opts.LineData, 0, len(rows))
	speed := make([]opts.BarData, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		x = append(x, row.RecordedAt.Format("01-02 15:04"))
		elapsed = append(elapsed, opts.LineData{Value: row.ElapsedSeconds})
		speed = append(speed, opts.BarData{Value: row.SpeedKmh})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sprint Times", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "30m Sprint Times", Subtitle: fmt.Sprintf("last %d runs", len(rows))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Elapsed (s)"}),
	)
	line.SetXAxis(x).AddSeries("elapsed", elapsed,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Average Speed", Subtitle: "km/h over the full course"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Speed (km/h)"}),
	)
	bar.SetXAxis(x).AddSeries("speed", speed)

	page := components.NewPage()
	page.AddCharts(line, bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
