package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/menta2k/photo-enhancer/internal/credentials"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the vision API key in the OS keyring",
}

var keySetCmd = &cobra.Command{
	Use:   "set [key]",
	Short: "Store the API key (read from stdin when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			fmt.Print("API key: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read key: %w", err)
			}
			key = strings.TrimSpace(line)
		}

		if err := credentials.Store(key); err != nil {
			return err
		}
		fmt.Println("API key saved")
		return nil
	},
}

var keyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show where the API key comes from",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, source, err := credentials.Resolve(cfg.Vision.APIKey)
		if errors.Is(err, credentials.ErrNoAPIKey) {
			fmt.Println("No API key configured")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s (from %s)\n", credentials.Mask(key), source)
		return nil
	},
}

var keyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := credentials.Clear(); err != nil {
			return err
		}
		fmt.Println("API key removed")
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keySetCmd, keyShowCmd, keyClearCmd)
}
