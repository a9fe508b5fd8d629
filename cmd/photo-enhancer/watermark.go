package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/menta2k/photo-enhancer/internal/utils"
	"github.com/menta2k/photo-enhancer/pkg/types"
)

var watermarkCmd = &cobra.Command{
	Use:   "watermark",
	Short: "Manage the logo stamped on enhanced photos",
}

var watermarkSetCmd = &cobra.Command{
	Use:   "set <logo>",
	Short: "Save a PNG, JPEG or WebP logo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logo, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		ws, err := watermarkSettings()
		if err != nil {
			return err
		}
		if err := ws.SetLogo(logo); err != nil {
			return err
		}
		fmt.Printf("Watermark logo saved (%s)\n", utils.FormatFileSize(int64(len(logo))))
		return nil
	},
}

var watermarkShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current watermark settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := watermarkSettings()
		if err != nil {
			return err
		}
		wm, err := ws.Load()
		if err != nil {
			return err
		}
		if wm.Enabled() {
			fmt.Printf("Logo:     %s, %s\n", wm.LogoMIME, utils.FormatFileSize(int64(len(wm.Logo))))
		} else {
			fmt.Println("Logo:     none (watermarking disabled)")
		}
		fmt.Printf("Position: %s\n", wm.Position)
		fmt.Printf("Opacity:  %d%%\n", wm.Opacity)
		return nil
	},
}

var watermarkPositionCmd = &cobra.Command{
	Use:   "position <bottom-left|bottom-right>",
	Short: "Choose the logo corner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pos, err := types.ParsePosition(args[0])
		if err != nil {
			return err
		}
		ws, err := watermarkSettings()
		if err != nil {
			return err
		}
		return ws.SetPosition(pos)
	},
}

var watermarkOpacityCmd = &cobra.Command{
	Use:   "opacity <30-100>",
	Short: "Set the logo opacity in percent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opacity, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("opacity must be a whole number: %w", err)
		}
		ws, err := watermarkSettings()
		if err != nil {
			return err
		}
		return ws.SetOpacity(opacity)
	},
}

var watermarkClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the logo and reset the settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := watermarkSettings()
		if err != nil {
			return err
		}
		if err := ws.Clear(); err != nil {
			return err
		}
		fmt.Println("Watermark removed")
		return nil
	},
}

func init() {
	watermarkCmd.AddCommand(watermarkSetCmd, watermarkShowCmd, watermarkPositionCmd, watermarkOpacityCmd, watermarkClearCmd)
}
