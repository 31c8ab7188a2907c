// Package report renders a per-run QC chart page for the confound engine:
// FD and DVARS timecourses with censored frames marked, the crop window
// bounds, and the CompCor variance-explained profile, written as a
// standalone HTML file.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/SpinePrep/SpinePrep/pkg/confounds"
)

const lineWidth = 2

// Write renders the QC page for one processed run to an HTML file,
// creating parent directories as needed.
func Write(path, runLabel string, res *confounds.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Confound QC: %s", runLabel)
	page.AddCharts(
		seriesChart("Framewise Displacement", "FD (mm)", res.FD, res.Censor.Censor),
		seriesChart("DVARS", "DVARS (a.u.)", res.DVARS, res.Censor.Censor),
	)
	if len(res.AVarExplained) > 0 {
		page.AddCharts(varianceChart("aCompCor variance explained", res.AVarExplained))
	}
	if len(res.TVarExplained) > 0 {
		page.AddCharts(varianceChart("tCompCor variance explained", res.TVarExplained))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("failed to render QC report: %w", err)
	}
	return nil
}

// seriesChart plots one metric timecourse with censored frames overlaid
// as point markers.
func seriesChart(title, yLabel string, series []float64, censorVec []int) *charts.Line {
	labels := make([]string, len(series))
	data := make([]opts.LineData, len(series))
	censored := make([]opts.LineData, len(series))

	for t, v := range series {
		labels[t] = strconv.Itoa(t)
		data[t] = opts.LineData{Value: v}
		if t < len(censorVec) && censorVec[t] == 1 {
			censored[t] = opts.LineData{Value: v, Symbol: "circle"}
		} else {
			censored[t] = opts.LineData{Value: "-"}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Volume"}),
		charts.WithYAxisOpts(opts.YAxis{Name: yLabel}),
	)
	line.SetXAxis(labels)
	line.AddSeries(title, data,
		charts.WithLineStyleOpts(opts.LineStyle{Width: lineWidth}),
	)
	line.AddSeries("Censored", censored,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#c23531"}),
		charts.WithLineStyleOpts(opts.LineStyle{Width: 0, Opacity: opts.Float(0)}),
	)

	return line
}

// varianceChart plots the variance-explained profile of a component set.
func varianceChart(title string, varExplained []float64) *charts.Bar {
	labels := make([]string, len(varExplained))
	data := make([]opts.BarData, len(varExplained))
	for k, v := range varExplained {
		labels[k] = fmt.Sprintf("PC%02d", k+1)
		data[k] = opts.BarData{Value: v}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Variance ratio"}),
	)
	bar.SetXAxis(labels)
	bar.AddSeries("Variance explained", data)

	return bar
}
