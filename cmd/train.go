package cmd

import (
	"fmt"

	"BoardKP/monitor"
	"BoardKP/train"

	"github.com/spf13/cobra"
)

func (a *app) trainCmd() *cobra.Command {
	def := train.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the keypoint head on a frozen backbone and export the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := train.Options{
				Data:      a.v.GetString("data"),
				Out:       a.v.GetString("out"),
				Backbone:  a.v.GetString("backbone"),
				Epochs:    a.v.GetInt("epochs"),
				Batch:     a.v.GetInt("batch"),
				LR:        a.v.GetFloat64("lr"),
				Img:       a.v.GetInt("img"),
				Seed:      a.v.GetInt64("seed"),
				Workers:   a.v.GetInt("workers"),
				AugCopies: a.v.GetInt("aug-copies"),
				Version:   a.v.GetString("version"),
				OnEpoch: func(e train.Epoch) {
					monitor.RecordEpoch(e.Epoch, e.Loss, e.ValMAE)
				},
			}
			if err := check(opts); err != nil {
				return err
			}
			res, err := train.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Trained on %d / validated on %d samples, best val_mae %.4f at epoch %d\n",
				res.Train, res.Val, res.History.BestValMAE, res.History.BestEpoch)
			fmt.Fprintf(w, "Saved: %s\n", res.Bundle)
			fmt.Fprintf(w, "Saved model: %s\n", res.SavedModel)
			return nil
		},
	}
	f := cmd.Flags()
	f.String("data", "", "dataset root written by export-kp or export-kp-yolo")
	f.String("out", "runs/board_kp", "output directory")
	f.String("backbone", "", "frozen ONNX backbone")
	f.Int("epochs", def.Epochs, "maximum epochs")
	f.Int("batch", def.Batch, "batch size")
	f.Float64("lr", def.LR, "Adam learning rate")
	f.Int("img", def.Img, "square input size")
	f.Int64("seed", def.Seed, "random seed")
	f.Int("workers", 0, "feature extraction workers, 0 uses every CPU")
	f.Int("aug-copies", def.AugCopies, "augmented copies per training image, 0 disables augmentation")
	f.String("version", "", "model version (default: today)")
	return cmd
}
