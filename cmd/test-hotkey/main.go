// Command test-hotkey is a manual test for the global hotkey listener.
// Run it, then tap the toggle key alone to see debounced signals.
// Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-hotkey [--toggle alt] [--cancel esc] [--debounce 1s]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/gostt-relay/internal/dispatch"
	"github.com/chaz8081/gostt-relay/internal/hotkey"
)

func main() {
	toggleName := flag.String("toggle", "alt", "toggle key name")
	cancelName := flag.String("cancel", "esc", "cancel key name")
	debounce := flag.Duration("debounce", time.Second, "minimum time between toggles")
	flag.Parse()

	toggleKey, err := hotkey.KeyCode(*toggleName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cancelKey, err := hotkey.KeyCode(*cancelName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("Tap %q alone to toggle, %q to cancel while active.\n", *toggleName, *cancelName)
	fmt.Println("Press Ctrl+C to exit.")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// only touched on the dispatch goroutine
	active := false
	d := dispatch.New(64)
	listener := hotkey.NewListener(
		hotkey.NewHookSource(2*time.Second),
		hotkey.NewDebouncer(toggleKey, cancelKey, *debounce),
		d,
		hotkey.Handlers{
			Toggle: func(at time.Time) {
				active = !active
				if active {
					fmt.Printf("%s >>> TOGGLE (recording)\n", at.Format(time.TimeOnly))
				} else {
					fmt.Printf("%s <<< TOGGLE (stopped)\n", at.Format(time.TimeOnly))
				}
			},
			Cancel: func(at time.Time) {
				active = false
				fmt.Printf("%s xxx CANCEL\n", at.Format(time.TimeOnly))
			},
			Active: func() bool { return active },
		},
	)

	go d.Run(ctx)
	if err := listener.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("\nDone.")
	// Exit directly to avoid gohook's C cleanup crash.
	os.Exit(0)
}
