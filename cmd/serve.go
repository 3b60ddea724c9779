package cmd

import (
	"BoardKP/engine"
	"BoardKP/server"

	"github.com/spf13/cobra"
)

type serveOptions struct {
	Model string `validate:"required"`
	Addr  string `validate:"required"`
	Queue int    `validate:"gt=0"`
}

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve keypoint predictions over HTTP and websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := serveOptions{
				Model: a.v.GetString("model"),
				Addr:  a.v.GetString("addr"),
				Queue: a.v.GetInt("queue"),
			}
			if err := check(opts); err != nil {
				return err
			}
			backend, err := engine.Open(opts.Model)
			if err != nil {
				return err
			}
			defer backend.Destroy()
			srv := server.New(backend, opts.Queue)
			defer srv.Close()
			return srv.ListenAndServe(cmd.Context(), opts.Addr)
		},
	}
	f := cmd.Flags()
	f.String("model", "", "path to a .kpm bundle, saved model directory or .tflite file")
	f.String("addr", ":8080", "listen address")
	f.Int("queue", 4, "requests allowed to wait for the model")
	return cmd
}
