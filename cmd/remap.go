package cmd

import (
	"fmt"
	"sort"

	"BoardKP/remap"

	"github.com/spf13/cobra"
)

func (a *app) remapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remap",
		Short:   "Rename and merge YOLO classes",
		Example: `  boardkp remap --in raw --out merged --map tip:dart_tip,dart:dart_tip`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := remap.Options{
				Src: a.v.GetString("in"),
				Dst: a.v.GetString("out"),
				Map: a.v.GetString("map"),
			}
			if err := check(opts); err != nil {
				return err
			}
			stats, err := remap.Run(opts)
			if err != nil {
				return err
			}
			splits := make([]string, 0, len(stats))
			for s := range stats {
				splits = append(splits, s)
			}
			sort.Strings(splits)
			for _, s := range splits {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d files\n", s, stats[s])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Done. New dataset: %s\n", opts.Dst)
			return nil
		},
	}
	f := cmd.Flags()
	f.String("in", "", "input dataset root")
	f.String("out", "", "output dataset root")
	f.String("map", "", "class map like 'tip:dart_tip,dart:dart_tip' (old_name:new_name)")
	return cmd
}
