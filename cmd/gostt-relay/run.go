package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/gostt-relay/internal/audio"
	"github.com/chaz8081/gostt-relay/internal/backend"
	"github.com/chaz8081/gostt-relay/internal/config"
	"github.com/chaz8081/gostt-relay/internal/dispatch"
	"github.com/chaz8081/gostt-relay/internal/hotkey"
	"github.com/chaz8081/gostt-relay/internal/inject"
	"github.com/chaz8081/gostt-relay/internal/lock"
	"github.com/chaz8081/gostt-relay/internal/rpc"
	"github.com/chaz8081/gostt-relay/internal/session"
)

var errHookStopped = errors.New("hotkey source stopped")

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Listen for the hotkey and relay recordings to the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			printBanner(cmd.OutOrStdout(), cfg)
			return run(cmd.Context(), cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	lk, err := lock.Acquire(cfg.LockFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := lk.Release(); err != nil {
			slog.Warn("[Main] releasing lock", "error", err)
		}
	}()

	toggleKey, err := hotkey.KeyCode(cfg.Hotkey.ToggleKey)
	if err != nil {
		return err
	}
	cancelKey, err := hotkey.KeyCode(cfg.Hotkey.CancelKey)
	if err != nil {
		return err
	}

	mic, err := audio.NewMalgoMicrophone()
	if err != nil {
		return fmt.Errorf("%w\n\nEnsure microphone access is granted to this terminal", err)
	}
	defer mic.Close()

	rec, err := audio.NewRecorder(mic, audio.Format{
		SampleRate: int(cfg.Audio.SampleRate),
		Channels:   int(cfg.Audio.Channels),
		BitDepth:   16,
	})
	if err != nil {
		return err
	}
	defer rec.Close()
	rec.SetMaxDuration(cfg.Audio.MaxDuration.D())

	opts, err := backend.OptionsFromConfig(cfg.Backend)
	if err != nil {
		return err
	}
	sup := backend.New(opts, nil)
	defer func() {
		if err := sup.Stop(); err != nil {
			slog.Warn("[Main] stopping backend", "error", err)
		}
	}()

	inj, err := inject.New(cfg.Inject)
	if err != nil {
		return err
	}

	// Requests carry no deadline of their own; shutdown cancels them.
	client := rpc.NewClient(sup, 0)
	ctrl := session.NewController(rec, client, inj, nil, session.Options{
		MinDuration: cfg.Audio.MinDuration.D(),
	})

	g, gctx := errgroup.WithContext(ctx)
	d := dispatch.New(64)
	ctrl.Bind(gctx, d)
	listener := hotkey.NewListener(
		hotkey.NewHookSource(cfg.Hotkey.HookTimeout.D()),
		hotkey.NewDebouncer(toggleKey, cancelKey, cfg.Hotkey.Debounce.D()),
		d,
		hotkey.Handlers{Toggle: ctrl.Toggle, Cancel: ctrl.Cancel, Active: ctrl.Active},
	)

	g.Go(func() error {
		return d.Run(gctx)
	})
	g.Go(func() error {
		if err := listener.Run(gctx); err != nil {
			return err
		}
		if gctx.Err() == nil {
			return errHookStopped
		}
		return nil
	})
	g.Go(func() error {
		if err := sup.Start(gctx); err != nil && gctx.Err() == nil {
			slog.Warn("[Main] backend not ready, will retry", "error", err)
		}
		return sup.Run(gctx)
	})
	g.Go(func() error {
		err := backend.WatchEndpoint(gctx, cfg.Backend.SocketPath, func(op fsnotify.Op) {
			if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
				sup.Nudge()
			}
		})
		if err != nil {
			// polling still covers it
			slog.Warn("[Main] endpoint watcher unavailable", "error", err)
		}
		return nil
	})

	slog.Info("[Main] ready", "toggle", cfg.Hotkey.ToggleKey, "cancel", cfg.Hotkey.CancelKey)

	err = g.Wait()
	if rec.IsRecording() {
		rec.Cancel()
	}
	ctrl.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		slog.Info("[Main] shutting down")
		return nil
	}
	return err
}

// printBanner displays the startup configuration summary.
func printBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "=== gostt-relay ===")
	fmt.Fprintf(w, "  Hotkey:  %s (cancel: %s)\n", cfg.Hotkey.ToggleKey, cfg.Hotkey.CancelKey)
	fmt.Fprintf(w, "  Audio:   %dHz, %dch\n", cfg.Audio.SampleRate, cfg.Audio.Channels)
	fmt.Fprintf(w, "  Backend: %s\n", cfg.Backend.Command)
	fmt.Fprintf(w, "  Socket:  %s\n", cfg.Backend.SocketPath)
	fmt.Fprintf(w, "  Inject:  %s\n", cfg.Inject.Method)
	fmt.Fprintf(w, "  Log:     %s\n", cfg.LogLevel)
	fmt.Fprintln(w, "===================")
}
