package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"

	"github.com/maybe-raven/kokoro-tui/tts"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Edit the kokoro-tui config file",
	Long:    "\nEdit the kokoro-tui config file. We'll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created. A running daemon picks the changes up on save.",
	Example: "  kokoro-tui config\n  kokoro-tui config --config path/to/config.json",
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		path := configFile
		if path == "" {
			var err error
			if path, err = tts.ConfigPath(); err != nil {
				return err
			}
		}
		if err := ensureConfigFile(path); err != nil {
			return err
		}

		c, err := editor.Cmd("kokoro-tui", path)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", path)
		return nil
	},
}

func ensureConfigFile(path string) error {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return tts.DefaultConfig().SaveTo(path)
	}
	if err != nil {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
