package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/suite"
)

// kernelChart plots min, mean and max pass time of every row of k.
func kernelChart(k suite.KernelSummary) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    k.Name,
			Subtitle: fmt.Sprintf("size %d, %d reps, checksums %s", k.ProblemSize, k.Reps, verdict(k.Valid)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: 30, Interval: "0"}}),
	)

	labels := make([]string, 0, len(k.Rows))
	var minData, avgData, maxData []opts.BarData
	for _, r := range k.Rows {
		if r.Status != kernel.StatusOK {
			continue
		}
		labels = append(labels, r.Variant+" "+r.Tuning)
		minData = append(minData, opts.BarData{Value: ms(r.MinTime)})
		avgData = append(avgData, opts.BarData{Value: ms(r.AvgTime)})
		maxData = append(maxData, opts.BarData{Value: ms(r.MaxTime)})
	}
	bar.SetXAxis(labels).
		AddSeries("min", minData).
		AddSeries("avg", avgData).
		AddSeries("max", maxData)
	return bar
}

// Chart builds a page with one bar chart per kernel.
func Chart(sum *suite.Summary) *components.Page {
	page := components.NewPage()
	page.PageTitle = "perfsuite " + sumTitle(sum)
	for _, k := range sum.Kernels {
		page.AddCharts(kernelChart(k))
	}
	return page
}

func sumTitle(sum *suite.Summary) string {
	return sum.Started.UTC().Format("2006-01-02 15:04:05")
}

// RenderChart writes the chart page as HTML.
func RenderChart(w io.Writer, sum *suite.Summary) error {
	return Chart(sum).Render(w)
}
