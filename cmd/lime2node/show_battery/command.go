package showbattery

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"
	"math"
	"os"
	"strconv"

	"github.com/f18m/lime2node"
	"github.com/go-analyze/charts"
	"github.com/mattn/go-sixel"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	var cpath string
	var resolution int

	cmd := &cobra.Command{
		Use:   "show-battery",
		Short: "Show the battery voltage and percentage curves over the ADC range",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := lime2node.LoadOrDefault(cpath)
			if err != nil {
				return err
			}
			model := cfg.Battery

			//
			// Compute points
			//

			voltage := charts.LineSeries{Name: "Voltage (V)"}
			percentage := charts.LineSeries{Name: "Percentage (%)"}
			labels := make([]string, 0, math.MaxUint8+1)
			var maxY float64

			for adc := range math.MaxUint8 + 1 {
				r := model.Reading(uint8(adc))
				voltage.Values = append(voltage.Values, r.Voltage)
				percentage.Values = append(percentage.Values, r.Percentage)
				labels = append(labels, strconv.Itoa(adc))
				maxY = max(maxY, r.Voltage, r.Percentage)
			}

			//
			// Render chart
			//

			opt := charts.NewLineChartOptionWithSeries(charts.LineSeriesList{voltage, percentage})
			opt.Theme = charts.GetTheme(charts.ThemeVividDark)
			opt.Padding = charts.NewBox(20, 20, 20, 20)
			opt.Title.Text = fmt.Sprintf("Battery: %.3f V/ADC + %.3f V (max %.1f V)", model.AngularCoeff, model.VoltageOffset, model.MaxVoltage)
			opt.Title.FontStyle.FontSize = 16
			opt.Title.Offset = charts.OffsetLeft
			opt.Legend = charts.LegendOption{
				Show:     lime2node.ToPtr(true),
				Offset:   charts.OffsetCenter,
				Vertical: lime2node.ToPtr(true),
				Padding:  charts.NewBox(0, 0, 0, 20),
			}
			opt.Symbol = charts.SymbolNone
			opt.LineStrokeWidth = 2
			opt.XAxis.Show = lime2node.ToPtr(true)
			opt.XAxis.Title = "ADC counts"
			opt.XAxis.Labels = labels
			opt.XAxis.LabelCount = 16
			opt.YAxis = []charts.YAxisOption{
				{
					Show:                   lime2node.ToPtr(true),
					Min:                    lime2node.ToPtr(float64(0)),
					Max:                    lime2node.ToPtr(math.Ceil(maxY/10) * 10),
					RangeValuePaddingScale: lime2node.ToPtr(float64(0)),
					Unit:                   10,
				},
			}
			p := charts.NewPainter(charts.PainterOptions{
				OutputFormat: charts.ChartOutputPNG,
				Width:        resolution,
				Height:       int(float64(resolution) / (16.0 / 9.0)),
			})

			if err = p.LineChart(opt); err != nil {
				return fmt.Errorf("battery: %w", err)
			}

			mPNG, err := p.Bytes()
			if err != nil {
				return fmt.Errorf("battery: %w", err)
			}

			m, _, err := image.Decode(bytes.NewReader(mPNG))
			if err != nil {
				return fmt.Errorf("battery: %w", err)
			}

			codec := sixel.NewEncoder(os.Stdout)
			if err = codec.Encode(m); err != nil {
				return fmt.Errorf("battery: %w", err)
			}

			fmt.Printf("ADC 0: %s\n", model.Reading(0))
			fmt.Printf("ADC %d: %s\n", math.MaxUint8, model.Reading(math.MaxUint8))
			return nil
		},
	}
	cmd.Flags().StringVarP(&cpath, "config", "c", lime2node.DefaultConfigPath, "Configfile path")
	cmd.Flags().IntVarP(&resolution, "resolution", "r", 1000, "The width size in pixel of the graph")

	return cmd
}
