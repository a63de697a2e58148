// Package recorder owns the single audio capture session of the app. Only
// the Manager may start, stop or release the capture device.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrPermissionDenied indicates the user refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrDeviceUnavailable indicates the capture device could not be reached.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrDeviceBusy indicates another client already holds the capture device.
	ErrDeviceBusy = errors.New("capture device busy")
)

// State is the lifecycle state of the recording session.
type State int32

const (
	StateIdle State = iota
	StateArmed
	StateCapturing
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateCapturing:
		return "capturing"
	case StateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// Device is the platform audio input.
type Device interface {
	RequestPermission(ctx context.Context) (bool, error)
	Begin(ctx context.Context) (Capture, error)
}

// Capture is a live capture handle returned by Device.Begin. Finish and
// Discard must release the underlying resource even when they fail.
type Capture interface {
	ID() string
	Finish(ctx context.Context) (string, error)
	Discard(ctx context.Context) error
}

// Handle identifies a started recording session.
type Handle struct {
	ID        string
	StartedAt time.Time
}

// Hooks are feedback callbacks (haptics, animation). They are optional.
type Hooks struct {
	OnStart  func()
	OnStop   func()
	OnCancel func()
}

// Manager owns at most one recording session at a time.
type Manager struct {
	mu      sync.Mutex
	device  Device
	capture Capture
	state   atomic.Int32
	hooks   Hooks
	log     *slog.Logger
	now     func() time.Time
}

// NewManager creates a Manager for the given device.
func NewManager(device Device, hooks Hooks, log *slog.Logger) *Manager {
	return &Manager{
		device: device,
		hooks:  hooks,
		log:    log,
		now:    time.Now,
	}
}

// State returns the current lifecycle state without blocking on device calls.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

// Start begins a new capture. Any previous session is released first.
func (m *Manager) Start(ctx context.Context) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.capture != nil {
		m.log.Warn("releasing stale capture before start", "capture_id", m.capture.ID())
		if err := m.capture.Discard(ctx); err != nil {
			m.log.Debug("discard stale capture", "error", err)
		}
		m.capture = nil
	}
	m.setState(StateArmed)

	granted, err := m.device.RequestPermission(ctx)
	if err != nil {
		m.setState(StateIdle)
		return Handle{}, fmt.Errorf("request permission: %w", err)
	}
	if !granted {
		m.setState(StateIdle)
		return Handle{}, ErrPermissionDenied
	}

	capture, err := m.device.Begin(ctx)
	if err != nil {
		m.setState(StateIdle)
		return Handle{}, fmt.Errorf("start capture: %w", err)
	}

	m.capture = capture
	m.setState(StateCapturing)
	m.log.Info("recording started", "capture_id", capture.ID())
	fire(m.hooks.OnStart)

	return Handle{ID: capture.ID(), StartedAt: m.now()}, nil
}

// Stop finalizes the capture and returns the artifact location. It is a
// no-op when nothing is recording. The device is released even on error.
func (m *Manager) Stop(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.capture == nil {
		return "", nil
	}

	capture := m.capture
	m.capture = nil
	m.setState(StateStopping)
	defer m.setState(StateIdle)

	fire(m.hooks.OnStop)
	path, err := capture.Finish(ctx)
	if err != nil {
		return "", fmt.Errorf("finish capture: %w", err)
	}
	m.log.Info("recording stopped", "capture_id", capture.ID(), "artifact", path)
	return path, nil
}

// Cancel releases the capture and discards the artifact.
func (m *Manager) Cancel(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.capture == nil {
		return nil
	}

	capture := m.capture
	m.capture = nil
	m.setState(StateStopping)
	defer m.setState(StateIdle)

	fire(m.hooks.OnCancel)
	if err := capture.Discard(ctx); err != nil {
		return fmt.Errorf("discard capture: %w", err)
	}
	m.log.Info("recording cancelled", "capture_id", capture.ID())
	return nil
}

func fire(hook func()) {
	if hook != nil {
		hook()
	}
}
