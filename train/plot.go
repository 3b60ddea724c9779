package train

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotHistory draws the loss and MAE curves of h into a PNG (or any extension gonum/plot
// supports) at path.
func PlotHistory(h History, path string) error {
	if len(h.Epochs) == 0 {
		return fmt.Errorf("plot %s: empty history", path)
	}
	p := plot.New()
	p.Title.Text = "training history"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "value"
	p.Legend.Top = true

	series := func(f func(Epoch) float64) plotter.XYs {
		pts := make(plotter.XYs, len(h.Epochs))
		for i, e := range h.Epochs {
			pts[i].X = float64(e.Epoch)
			pts[i].Y = f(e)
		}
		return pts
	}
	err := plotutil.AddLines(p,
		"loss", series(func(e Epoch) float64 { return e.Loss }),
		"val_loss", series(func(e Epoch) float64 { return e.ValLoss }),
		"mae", series(func(e Epoch) float64 { return e.MAE }),
		"val_mae", series(func(e Epoch) float64 { return e.ValMAE }),
	)
	if err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
