package backend

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/chaz8081/gostt-relay/internal/config"
)

// SocketPlaceholder is replaced by the endpoint path in command arguments.
const SocketPlaceholder = "{socket}"

// ParseCommand splits a shell-style command line into argv and substitutes
// the endpoint path for every SocketPlaceholder.
func ParseCommand(line, socketPath string) ([]string, error) {
	p := shellwords.NewParser()
	args, err := p.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("backend: parse command %q: %w", line, err)
	}
	if len(args) == 0 {
		return nil, errors.New("backend: empty command")
	}
	for i, a := range args {
		args[i] = strings.ReplaceAll(a, SocketPlaceholder, socketPath)
	}
	return args, nil
}

// OptionsFromConfig builds supervisor options from the backend config
// section.
func OptionsFromConfig(c config.BackendConfig) (Options, error) {
	args, err := ParseCommand(c.Command, c.SocketPath)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Command:       args,
		Dir:           c.Dir,
		Env:           c.Env,
		SocketPath:    c.SocketPath,
		StartAttempts: c.StartAttempts,
		StartInterval: c.StartInterval.D(),
		ProbeInterval: c.ProbeInterval.D(),
		ProbeTimeout:  time.Second,
		StopTimeout:   c.StopTimeout.D(),
		MaxRestarts:   c.MaxRestarts,
	}, nil
}
