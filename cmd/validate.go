package cmd

import (
	"errors"
	"fmt"

	"BoardKP/engine"
	iface "BoardKP/interface"

	"github.com/spf13/cobra"
)

type validateOptions struct {
	Model string `validate:"required"`
	Image string `validate:"required"`
	Img   int    `validate:"gt=0"`
}

func (a *app) validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run one image through an exported model and print the keypoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := validateOptions{
				Model: a.v.GetString("model"),
				Image: a.v.GetString("image"),
				Img:   a.v.GetInt("img"),
			}
			if err := check(opts); err != nil {
				return err
			}
			backend, err := engine.Open(opts.Model)
			if err != nil {
				return err
			}
			defer backend.Destroy()
			if a.explicit("img") {
				backend.SetInputSize(opts.Img)
			}

			img, err := engine.ReadImage(opts.Image)
			if err != nil {
				return err
			}
			defer img.Close()
			res := backend.Predict(img)
			if !res.Success {
				return fmt.Errorf("predict: %v", res.Data)
			}
			kps, ok := res.Data.([]iface.Keypoint)
			if !ok {
				return errors.New("predict: unexpected result")
			}
			for _, kp := range kps {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %.4f, %.4f\n", kp.Role, kp.Pos.X, kp.Pos.Y)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.String("model", "", "path to a .kpm bundle, saved model directory or .tflite file")
	f.String("image", "", "image path")
	f.Int("img", engine.DefaultInputSize, "input size override")
	return cmd
}
