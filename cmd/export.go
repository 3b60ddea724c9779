package cmd

import (
	"fmt"
	"path/filepath"

	"BoardKP/exporter"
	"BoardKP/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func indexFlags(cmd *cobra.Command, train float64) {
	f := cmd.Flags()
	f.String("index", "", "path to index.json")
	f.String("images-dir", "", "directory with sample images")
	f.String("out", "", "output directory")
	f.Float64("train", train, "train split ratio")
	f.Int64("seed", 42, "random seed")
}

func (a *app) indexOptions() exporter.IndexOptions {
	return exporter.IndexOptions{
		Index:     a.v.GetString("index"),
		ImagesDir: a.v.GetString("images-dir"),
		Out:       a.v.GetString("out"),
		Train:     a.v.GetFloat64("train"),
		Seed:      a.v.GetInt64("seed"),
	}
}

func (a *app) exportYoloCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-yolo",
		Short: "Export dart-tip annotations from index.json as a YOLO dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.indexOptions()
			if err := check(opts); err != nil {
				return err
			}
			counts, err := exporter.ExportYolo(opts)
			if err != nil {
				return err
			}
			logger.Log().Info("export-yolo done", zap.Int("train", counts.Train), zap.Int("val", counts.Val))
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d train / %d val samples\n", counts.Train, counts.Val)
			fmt.Fprintf(cmd.OutOrStdout(), "Dataset YAML: %s\n", filepath.Join(opts.Out, exporter.DartTipManifest))
			return nil
		},
	}
	indexFlags(cmd, 0.8)
	return cmd
}

func (a *app) exportKpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-kp",
		Short: "Export calibration points from index.json as a keypoint dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.indexOptions()
			if err := check(opts); err != nil {
				return err
			}
			counts, err := exporter.ExportKeypoints(opts)
			if err != nil {
				return err
			}
			logger.Log().Info("export-kp done", zap.Int("train", counts.Train), zap.Int("val", counts.Val))
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d train / %d val samples\n", counts.Train, counts.Val)
			fmt.Fprintf(cmd.OutOrStdout(), "Dataset root: %s\n", opts.Out)
			return nil
		},
	}
	indexFlags(cmd, 0.85)
	return cmd
}

func (a *app) exportKpYoloCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-kp-yolo",
		Short: "Convert a YOLO dataset with calibration classes into a keypoint dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			classes, err := exporter.ParseClassList(a.v.GetString("cal-classes"))
			if err != nil {
				return err
			}
			opts := exporter.FromYoloOptions{
				Data:       a.v.GetString("data"),
				Out:        a.v.GetString("out"),
				CalClasses: classes,
			}
			if err := check(opts); err != nil {
				return err
			}
			results, err := exporter.ExportKeypointsFromYolo(opts)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Converted splits:")
			for _, r := range results {
				logger.Log().Info("split converted", zap.String("split", r.Split), zap.Int("samples", r.Kept))
				fmt.Fprintf(w, "  %s: %d samples\n", r.Split, r.Kept)
			}
			fmt.Fprintf(w, "Output: %s\n", opts.Out)
			return nil
		},
	}
	f := cmd.Flags()
	f.String("data", "", "YOLO dataset root (train/valid/test) with labels")
	f.String("out", "", "output dataset root")
	f.String("cal-classes", "1,2,3,4", "comma-separated class indices of the calibration points")
	return cmd
}
