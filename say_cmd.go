package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/maybe-raven/kokoro-tui/internal/ctrl"
)

var (
	sayAppend    bool
	sayClipboard bool

	sayCmd = &cobra.Command{
		Use:     "say [TEXT...]",
		Short:   "Post text to the running daemon",
		Long:    "\nPost text to the running daemon for synthesis. Reads from stdin when no arguments are given and stdin is a pipe.",
		Example: "  kokoro-tui say \"hello there\"\n  git log -1 --format=%s | kokoro-tui say\n  kokoro-tui say -a \"and one more thing\"",
		RunE: func(_ *cobra.Command, args []string) error {
			text, err := gatherText(args)
			if err != nil {
				return err
			}
			if text == "" {
				return fmt.Errorf("nothing to say")
			}
			return post(ctrl.Message{Cmd: ctrl.CmdSay, Append: sayAppend, Content: text})
		},
	}
)

func gatherText(args []string) (string, error) {
	if sayClipboard {
		text, err := clipboard.ReadAll()
		if err != nil {
			return "", fmt.Errorf("reading clipboard: %w", err)
		}
		return text, nil
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if yes, err := stdinIsPipe(); err != nil {
		return "", err
	} else if yes {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(b), nil
	}
	return "", nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to stat stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func post(msg ctrl.Message) error {
	path, err := ctrl.SocketPath()
	if err != nil {
		return err
	}
	if err := ctrl.Send(path, msg); err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	return nil
}

func init() {
	sayCmd.Flags().BoolVarP(&sayAppend, "append", "a", false, "extend the current track instead of starting a new one")
	sayCmd.Flags().BoolVarP(&sayClipboard, "clipboard", "b", false, "speak the clipboard contents")
}
