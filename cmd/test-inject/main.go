// Command test-inject is a manual test for text injection.
// It waits 3 seconds, then pastes or types test text.
// Focus a text editor before the countdown finishes; with the paste method
// the previous clipboard content should come back shortly afterwards.
//
// Usage:
//
//	go run ./cmd/test-inject [--method paste|type] [--text "..."]
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chaz8081/gostt-relay/internal/config"
	"github.com/chaz8081/gostt-relay/internal/inject"
)

func main() {
	method := flag.String("method", "paste", "inject method: paste or type")
	text := flag.String("text", "Hello from gostt-relay!", "text to inject")
	restore := flag.Duration("restore", 500*time.Millisecond, "delay before the clipboard is restored")
	flag.Parse()

	cfg := config.Default().Inject
	cfg.Method = *method
	cfg.RestoreDelay = config.Duration(*restore)

	inj, err := inject.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Will inject %q using %q method in 3 seconds...\n", *text, *method)
	fmt.Println("Focus a text editor now!")

	for i := 3; i > 0; i-- {
		fmt.Printf("%d...\n", i)
		time.Sleep(time.Second)
	}

	if err := inj.Inject(*text); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nDone!")
}
