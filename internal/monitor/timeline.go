package monitor

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/emgfes/internal/db"
)

// RenderTimeline writes an HTML page charting an archived session: one
// scatter series per class over session time, and the window count of each
// class as a bar chart. classNames fixes the order and the y axis; labels
// not in it are appended after.
func RenderTimeline(w io.Writer, s db.SessionSummary, points []db.TimelinePoint, classNames []string) error {
	order := append([]string(nil), classNames...)
	seen := make(map[string]bool, len(order))
	for _, n := range order {
		seen[n] = true
	}
	var extra []string
	for _, p := range points {
		if !seen[p.Label] {
			seen[p.Label] = true
			extra = append(extra, p.Label)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	var start float64
	if len(points) > 0 {
		start = points[0].Timestamp
	}
	byLabel := make(map[string][]opts.ScatterData, len(order))
	counts := make(map[string]int, len(order))
	for _, p := range points {
		byLabel[p.Label] = append(byLabel[p.Label], opts.ScatterData{
			Value: []interface{}{p.Timestamp - start, p.LabelIndex},
		})
		counts[p.Label]++
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Session " + s.ID, Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Movement timeline",
			Subtitle: fmt.Sprintf("%s, %d windows", s.FilePath, len(points)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "5%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Class", Min: -0.5, Max: float64(len(order)) - 0.5}),
	)
	for _, name := range order {
		scatter.AddSeries(name, byLabel[name], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	}

	bars := make([]opts.BarData, len(order))
	for i, name := range order {
		bars[i] = opts.BarData{Value: counts[name]}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: "Windows per class"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(order).
		AddSeries("windows", bars, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))

	page := components.NewPage()
	page.AddCharts(scatter, bar)
	return page.Render(w)
}
