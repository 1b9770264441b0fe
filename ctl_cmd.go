package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/maybe-raven/kokoro-tui/internal/ctrl"
)

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Control playback in the running daemon",
}

var seekCmd = &cobra.Command{
	Use:     "seek SECONDS",
	Short:   "Seek relative to the current position",
	Example: "  kokoro-tui ctl seek 5\n  kokoro-tui ctl seek -- -2.5",
	Args:    cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		secs, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid seek offset %q", args[0])
		}
		return post(ctrl.Message{Cmd: ctrl.CmdSeek, Value: secs})
	},
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Switch to the next track",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		return post(ctrl.Message{Cmd: ctrl.CmdTrack, Value: 1})
	},
}

var prevCmd = &cobra.Command{
	Use:   "prev",
	Short: "Switch to the previous track",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		return post(ctrl.Message{Cmd: ctrl.CmdTrack, Value: -1})
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle between play and pause",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		return post(ctrl.Message{Cmd: ctrl.CmdToggle})
	},
}

var saveCmd = &cobra.Command{
	Use:   "save [PATH]",
	Short: "Save the current track as a WAV file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		var path string
		if len(args) > 0 {
			path = args[0]
		}
		return post(ctrl.Message{Cmd: ctrl.CmdSave, Content: path})
	},
}

var regenCmd = &cobra.Command{
	Use:   "regen",
	Short: "Regenerate the current track with the current config",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		return post(ctrl.Message{Cmd: ctrl.CmdRegen})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard the track history",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		return post(ctrl.Message{Cmd: ctrl.CmdClear})
	},
}

func init() {
	ctlCmd.AddCommand(seekCmd, nextCmd, prevCmd, toggleCmd, saveCmd, regenCmd, clearCmd)
}
