package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-relay/internal/audio"
	"github.com/chaz8081/gostt-relay/internal/backend"
	"github.com/chaz8081/gostt-relay/internal/rpc"
)

type sendFlags struct {
	raw     bool
	noSpawn bool
	timeout time.Duration
}

func newSendCmd(flags *rootFlags) *cobra.Command {
	var sf sendFlags

	cmd := &cobra.Command{
		Use:   "send FILE",
		Short: "Transcribe an audio file through the backend and print the text",
		Long: `send reads a WAV file, or raw 16 kHz mono s16le PCM with --raw, sends it to
the backend and prints the recognized text. Use "-" to read standard input.
The backend is started if it is not already running and stopped again
afterwards unless it was already running.`,
		Example: `  gostt-relay send hello.wav
  arecord -f S16_LE -r 16000 -c 1 -t raw -d 3 | gostt-relay send --raw -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}

			wav, err := readAudio(cmd.InOrStdin(), args[0], sf.raw)
			if err != nil {
				return err
			}

			var ep rpc.Endpointer = rpc.StaticEndpoint(cfg.Backend.SocketPath)
			if !sf.noSpawn {
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
				ep = sup
			}

			text, err := rpc.NewClient(ep, sf.timeout).Transcribe(cmd.Context(), wav)
			if err != nil {
				return err
			}
			if text == "" {
				slog.Info("[Main] no speech recognized")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&sf.raw, "raw", false, "input is raw 16 kHz mono s16le PCM")
	cmd.Flags().BoolVar(&sf.noSpawn, "no-spawn", false, "only use an already running backend")
	cmd.Flags().DurationVar(&sf.timeout, "timeout", 0, "request timeout (0 waits indefinitely)")
	return cmd
}

// readAudio loads name, or stdin for "-", and returns a WAV container.
func readAudio(stdin io.Reader, name string, raw bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}

	if raw {
		if len(data)%audio.DefaultFormat.BytesPerFrame() != 0 {
			return nil, fmt.Errorf("raw PCM length %d is not a whole number of frames", len(data))
		}
		return audio.EncodeWAV(&audio.Buffer{Format: audio.DefaultFormat, Data: data})
	}

	buf, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	slog.Debug("[Main] loaded audio", "duration", buf.Duration(), "rate", buf.Format.SampleRate)
	return data, nil
}
