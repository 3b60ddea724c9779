package cmd

import (
	"fmt"
	"os"

	"BoardKP/roboflow"

	"github.com/spf13/cobra"
)

// APIKeyEnv is read when no key is given by flag or BOARDKP_API_KEY.
const APIKeyEnv = "ROBOFLOW_API_KEY"

func (a *app) downloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download a dataset version from the hosting service",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := a.v.GetString("api-key")
			if key == "" {
				key = os.Getenv(APIKeyEnv)
			}
			if key == "" {
				return fmt.Errorf("%w: pass --api-key or set %s", roboflow.ErrMissingAPIKey, APIKeyEnv)
			}
			ds := roboflow.Dataset{
				Workspace: a.v.GetString("workspace"),
				Project:   a.v.GetString("project"),
				Version:   a.v.GetInt("version"),
				Format:    a.v.GetString("format"),
			}
			if err := check(ds); err != nil {
				return err
			}
			out := a.v.GetString("out")
			if out == "" {
				return fmt.Errorf("invalid options: out: failed %q", "required")
			}
			client, err := roboflow.NewClient(key, a.v.GetString("base-url"))
			if err != nil {
				return err
			}
			dir, err := client.Download(cmd.Context(), ds, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Downloaded to: %s\n", dir)
			return nil
		},
	}
	f := cmd.Flags()
	f.String("workspace", "", "workspace slug")
	f.String("project", "", "project slug")
	f.Int("version", 0, "dataset version")
	f.String("format", roboflow.DefaultFormat, "export format (yolov8, yolo, ...)")
	f.String("out", "", "output directory")
	f.String("api-key", "", "API key (or env "+APIKeyEnv+")")
	f.String("base-url", roboflow.DefaultBaseURL, "export API base URL")
	return cmd
}
