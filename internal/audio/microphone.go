package audio

import (
	"errors"
	"fmt"

	"github.com/gen2brain/malgo"
)

var (
	// ErrDeviceUnavailable means no capture device could be opened.
	ErrDeviceUnavailable = errors.New("audio: capture device unavailable")
	// ErrPermissionDenied means the OS refused microphone access.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")
)

// Microphone opens capture streams. Each successful Open acquires the device
// until the returned Stream is closed.
type Microphone interface {
	Open(f Format, onData func(pcm []byte)) (Stream, error)
}

// Stream is an open capture device.
type Stream interface {
	Close() error
}

// MalgoMicrophone captures from the default input device through miniaudio.
type MalgoMicrophone struct {
	ctx *malgo.AllocatedContext
}

// NewMalgoMicrophone initializes the audio backend. Call Close when done.
func NewMalgoMicrophone() (*MalgoMicrophone, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", classify(err))
	}
	return &MalgoMicrophone{ctx: ctx}, nil
}

// Open starts a 16-bit capture stream in format f.
func (m *MalgoMicrophone) Open(f Format, onData func(pcm []byte)) (Stream, error) {
	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatS16
	deviceCfg.Capture.Channels = uint32(f.Channels)
	deviceCfg.SampleRate = uint32(f.SampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pSample []byte, _ uint32) {
			onData(pSample)
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("initializing capture device: %w", classify(err))
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("starting capture device: %w", classify(err))
	}
	return &malgoStream{device: device}, nil
}

// Close releases the audio backend.
func (m *MalgoMicrophone) Close() error {
	if m.ctx == nil {
		return nil
	}
	if err := m.ctx.Uninit(); err != nil {
		return fmt.Errorf("uninitializing audio context: %w", err)
	}
	m.ctx.Free()
	m.ctx = nil
	return nil
}

type malgoStream struct {
	device *malgo.Device
}

func (s *malgoStream) Close() error {
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	return nil
}

// classify maps miniaudio results onto the package sentinels so callers can
// use errors.Is without depending on malgo.
func classify(err error) error {
	switch {
	case errors.Is(err, malgo.ErrAccessDenied):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case errors.Is(err, malgo.ErrNoDevice),
		errors.Is(err, malgo.ErrDoesNotExist),
		errors.Is(err, malgo.ErrUnavailable),
		errors.Is(err, malgo.ErrFailedToOpenBackendDevice),
		errors.Is(err, malgo.ErrDeviceTypeNotSupported):
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	default:
		return err
	}
}
