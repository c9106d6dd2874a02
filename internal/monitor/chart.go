package monitor

import (
	"bytes"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/pulse.report/internal/plotter"
	"github.com/banshee-data/pulse.report/internal/recording"
)

// echartsAssetsPrefix serves the echarts bundle from the public CDN.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// refreshSeconds is how often the live page reloads itself.
const refreshSeconds = 1

// renderProfileChart draws the latest profile, with the last fitted curve
// overlaid when it was fitted on a profile of the same width.
func renderProfileChart(snap Snapshot, status recording.Status, unit string) ([]byte, error) {
	n := len(snap.Profile)
	xs := make([]int, n)
	data := make([]opts.LineData, n)
	for i, v := range snap.Profile {
		xs[i] = i
		data[i] = opts.LineData{Value: v}
	}

	subtitle := fmt.Sprintf("state=%s", status.State)
	if status.Root != "" {
		subtitle += fmt.Sprintf(" session=%s next=%05d", status.Root, status.NextIndex)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Live Intensity Profile", Width: "100%", Height: "520px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Live Intensity Profile", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Horizontal Pixel Position", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Intensity", Min: 0, Max: 255}),
	)
	line.SetXAxis(xs).AddSeries("Intensity Profile", data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	if o := snap.Outcome; o != nil && o.Fitted && n > 0 {
		curve := o.Result.Curve(n)
		fitData := make([]opts.LineData, n)
		for i, v := range curve {
			fitData[i] = opts.LineData{Value: v}
		}
		line.AddSeries(plotter.FitLabel(o.Result, unit), fitData,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: "red", Type: "dashed"}),
		)
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, err
	}
	meta := fmt.Sprintf(`<head><meta http-equiv="refresh" content="%d">`, refreshSeconds)
	return bytes.Replace(buf.Bytes(), []byte("<head>"), []byte(meta), 1), nil
}
