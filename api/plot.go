package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// handlePlot renders a scatter of the confirmed marks over the ring
// boundaries of the active target as an HTML chart page. Debugging and
// session-review aid; the regular UI overlays marks on the video stream
// instead.
func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := s.engine.Status()
	if !st.Calibrated {
		s.writeJSONError(w, http.StatusNotFound, "not calibrated yet")
		return
	}

	marks := make([]opts.ScatterData, 0, len(st.Marks))
	for _, m := range st.Marks {
		// Flip Y so the plot matches the image orientation.
		marks = append(marks, opts.ScatterData{
			Value: []interface{}{m.X, -m.Y, m.Ring}, Name: fmt.Sprintf("ring %d", m.Ring),
		})
	}

	// Ring boundaries as sampled ellipse outlines.
	rings := make([]opts.ScatterData, 0, len(st.RingBounds)*72)
	for _, rect := range st.RingBounds {
		cx, cy := rect.Center()
		rx := float64(rect.Width()) / 2
		ry := float64(rect.Height()) / 2
		for i := 0; i < 72; i++ {
			a := 2 * math.Pi * float64(i) / 72
			rings = append(rings, opts.ScatterData{
				Value: []interface{}{float64(cx) + rx*math.Cos(a), -(float64(cy) + ry*math.Sin(a))},
			})
		}
	}

	values := make([]int, 0, len(st.RingBounds))
	for v := range st.RingBounds {
		values = append(values, v)
	}
	sort.Ints(values)

	pad := float64(st.CropBounds.Width())
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Spotter Session", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Confirmed marks",
			Subtitle: fmt.Sprintf("target=%s marks=%d rings=%d", st.TargetName, len(st.Marks), len(values)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: pad, Name: "X (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: 0, Name: "Y (px)", NameLocation: "middle", NameGap: 30}),
	)

	scatter.AddSeries("rings", rings, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))
	scatter.AddSeries("marks", marks, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
