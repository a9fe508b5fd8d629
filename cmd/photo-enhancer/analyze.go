package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	photoenhancer "github.com/menta2k/photo-enhancer"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Print the adjustments the model picks for one photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		vc, err := visionClient(cmd.Context(), false)
		if err != nil {
			return err
		}

		pe := photoenhancer.New(photoenhancer.Config{
			Vision:          vc,
			Model:           cfg.Vision.Model,
			AnalyzerOptions: analyzerOptions(),
		})
		res := pe.Analyze(cmd.Context(), data, mimetype.Detect(data).String())

		out := struct {
			Source string `json:"source"`
			Reason string `json:"reason,omitempty"`
			Params any    `json:"params"`
		}{Source: string(res.Source), Params: res.Params}
		if res.Reason != nil {
			out.Reason = res.Reason.Error()
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		return nil
	},
}
