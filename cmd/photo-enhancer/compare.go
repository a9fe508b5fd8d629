package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	photoenhancer "github.com/menta2k/photo-enhancer"
	"github.com/menta2k/photo-enhancer/pkg/compare"
	"github.com/menta2k/photo-enhancer/pkg/processing"
)

var (
	compareOutFlag      string
	comparePositionFlag float64
)

var compareCmd = &cobra.Command{
	Use:   "compare <original> <enhanced>",
	Short: "Render a before/after split view",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		before, err := processing.LoadFile(args[0])
		if err != nil {
			return err
		}
		after, err := processing.LoadFile(args[1])
		if err != nil {
			return err
		}

		view, err := compare.Render(before, after, comparePositionFlag)
		if err != nil {
			return err
		}
		data, err := processing.EncodeJPEG(view, cfg.Enhance.Quality)
		if err != nil {
			return err
		}
		if err := os.WriteFile(compareOutFlag, data, 0644); err != nil {
			return err
		}
		fmt.Printf("Comparison written to %s\n", compareOutFlag)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("photo-enhancer %s\n", photoenhancer.GetVersion())
	},
}

func init() {
	compareCmd.Flags().StringVarP(&compareOutFlag, "out", "o", "compare.jpg", "output file")
	compareCmd.Flags().Float64Var(&comparePositionFlag, "position", 0.5, "split position from 0 (all enhanced) to 1 (all original)")
}
