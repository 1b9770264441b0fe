// Package main provides the entry point for the kokoro-tui daemon and its
// control subcommands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"

	"github.com/maybe-raven/kokoro-tui/internal/ctrl"
	"github.com/maybe-raven/kokoro-tui/tts"
	"github.com/maybe-raven/kokoro-tui/tts/audio"
	"github.com/maybe-raven/kokoro-tui/tts/engines"
	"github.com/maybe-raven/kokoro-tui/tts/engines/kokoro"
	"github.com/maybe-raven/kokoro-tui/tts/engines/mock"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile    string
	debug         bool
	engineName    string
	fromClipboard bool

	rootCmd = &cobra.Command{
		Use:           "kokoro-tui",
		Short:         "Stream neural text to speech from your terminal",
		Long:          "\nRun the speech daemon: it synthesizes whatever you post with `kokoro-tui say` and plays it back as the audio arrives.",
		SilenceErrors: false,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          runDaemon,
	}
)

func runDaemon(*cobra.Command, []string) error {
	closer, err := setupLog()
	if err != nil {
		return err
	}
	defer closer() //nolint:errcheck
	logger := log.Default()

	cfgPath := configFile
	if cfgPath == "" {
		if cfgPath, err = tts.ConfigPath(); err != nil {
			return err
		}
	}
	cfg := tts.LoadConfigFile(cfgPath)

	var factory engines.Factory
	switch engineName {
	case "kokoro":
		factory = kokoro.Factory(cfg.Command, logger)
	case "mock":
		factory = mock.Factory
	default:
		return fmt.Errorf("unknown engine %q (want kokoro or mock)", engineName)
	}

	device, err := audio.OpenOtoDevice(tts.SampleRate)
	if err != nil {
		return fmt.Errorf("opening audio device: %w", err)
	}
	defer device.Close()

	synth := tts.NewSynthesizer(cfg, factory, logger)
	player := audio.NewPlayer(device, audio.DefaultConfig(), logger)
	session := tts.NewSession(synth, player, logger)

	watcher, err := tts.WatchConfig(cfgPath, logger, synth.UpdateConfig)
	if err != nil {
		logger.Warn("config hot reload unavailable", "err", err)
	} else {
		defer watcher.Close() //nolint:errcheck
	}

	socket, err := ctrl.SocketPath()
	if err != nil {
		return err
	}
	server, err := ctrl.Listen(socket, dispatcher(session, player, logger), logger)
	if err != nil {
		return err
	}
	logger.Info("listening", "socket", server.Addr(), "engine", engineName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reportSaves(ctx, player, logger)

	if fromClipboard {
		if text, err := clipboard.ReadAll(); err != nil {
			logger.Warn("reading clipboard failed", "err", err)
		} else if text != "" {
			session.NewText(text)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	_ = server.Close()
	session.Close()
	player.Stop()
	player.Join()
	return nil
}

// dispatcher translates control messages into worker operations. Track and
// regenerate commands resolve the active track through a snapshot so the
// relative step applies to what the listener is actually hearing.
func dispatcher(session *tts.Session, player *audio.Player, logger *log.Logger) ctrl.Handler {
	snapshot := func() (audio.Snapshot, bool) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		snap, err := player.Snapshot(ctx)
		if err != nil {
			logger.Warn("querying player failed", "err", err)
			return audio.Snapshot{}, false
		}
		return snap, true
	}

	return func(msg ctrl.Message) {
		switch msg.Cmd {
		case "", ctrl.CmdSay:
			if msg.Content == "" {
				return
			}
			if msg.Append {
				session.AppendText(msg.Content)
			} else {
				session.NewText(msg.Content)
			}
		case ctrl.CmdSeek:
			player.SeekSecs(msg.Value)
		case ctrl.CmdTrack:
			if snap, ok := snapshot(); ok {
				player.ChangeTrack(snap.TrackIndex + int(msg.Value))
			}
		case ctrl.CmdSave:
			path := msg.Content
			if path == "" {
				path = fmt.Sprintf("kokoro-%s.wav", time.Now().Format("20060102-150405"))
			}
			player.Save(path)
		case ctrl.CmdClear:
			session.ClearHistory()
		case ctrl.CmdToggle:
			player.TogglePP()
		case ctrl.CmdRegen:
			if snap, ok := snapshot(); ok && snap.TrackIndex >= 0 {
				if err := session.Regenerate(snap.TrackIndex); err != nil {
					logger.Warn("regenerate failed", "err", err)
				}
			}
		default:
			logger.Warn("unknown control command", "cmd", msg.Cmd)
		}
	}
}

func reportSaves(ctx context.Context, player *audio.Player, logger *log.Logger) {
	for {
		res, err := player.Output(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, audio.ErrStopped) {
				logger.Warn("reading save results failed", "err", err)
			}
			return
		}
		if res.Err != nil {
			fmt.Fprintln(os.Stderr, "save failed:", res.Err)
		} else {
			fmt.Println("saved:", res.Path)
		}
	}
}

// setupLog routes logging to a file under the user data dir when --debug is
// set, and keeps the terminal quiet otherwise.
func setupLog() (func() error, error) {
	if !debug {
		log.SetLevel(log.InfoLevel)
		return func() error { return nil }, nil
	}

	scope := gap.NewScope(gap.User, "kokoro-tui")
	path, err := scope.DataPath("debug.log")
	if err != nil {
		return nil, fmt.Errorf("resolve log path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           log.DebugLevel,
	})
	log.SetDefault(logger)
	return f.Close, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is the user config dir)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "write debug logs to the user data dir")
	rootCmd.Flags().StringVarP(&engineName, "engine", "e", "kokoro", "synthesis engine (kokoro/mock)")
	rootCmd.Flags().BoolVarP(&fromClipboard, "clipboard", "b", false, "speak the clipboard contents on startup")

	rootCmd.AddCommand(sayCmd, ctlCmd, configCmd)
}
