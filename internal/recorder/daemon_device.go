package recorder

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/daemon"
)

// DaemonDevice captures audio through the capture daemon. Each capture
// holds its own socket connection, which is the device resource.
type DaemonDevice struct {
	SocketPath string
	Format     string
}

// NewDaemonDevice returns a device speaking to the daemon at socketPath.
func NewDaemonDevice(socketPath string) *DaemonDevice {
	return &DaemonDevice{SocketPath: socketPath, Format: "m4a"}
}

// RequestPermission asks the daemon whether microphone access is granted.
func (d *DaemonDevice) RequestPermission(ctx context.Context) (bool, error) {
	client, err := daemon.Connect(ctx, d.SocketPath)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer client.Close()

	resp, err := client.SendCommand(ctx, daemon.Command{Cmd: daemon.CmdPermission})
	if err != nil {
		return false, err
	}
	if !resp.OK {
		return false, errors.New(resp.Error)
	}
	return resp.Granted != nil && *resp.Granted, nil
}

// Begin starts a capture on a dedicated connection. The daemon is asked for
// its status first so a capture held by another client is reported as busy.
func (d *DaemonDevice) Begin(ctx context.Context) (Capture, error) {
	client, err := daemon.Connect(ctx, d.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	status, err := client.SendCommand(ctx, daemon.Command{Cmd: daemon.CmdStatus})
	if err != nil {
		client.Close()
		return nil, err
	}
	if status.OK && status.Recording != nil && *status.Recording {
		client.Close()
		return nil, ErrDeviceBusy
	}

	resp, err := client.SendCommand(ctx, daemon.Command{Cmd: daemon.CmdStart, Format: d.Format})
	if err != nil {
		client.Close()
		return nil, err
	}
	if !resp.OK {
		client.Close()
		return nil, errors.New(resp.Error)
	}

	return &daemonCapture{id: resp.SessionID, client: client}, nil
}

type daemonCapture struct {
	id     string
	client *daemon.Client
}

func (c *daemonCapture) ID() string { return c.id }

func (c *daemonCapture) Finish(ctx context.Context) (string, error) {
	defer c.client.Close()

	resp, err := c.client.SendCommand(ctx, daemon.Command{Cmd: daemon.CmdStop})
	if err != nil {
		return "", err
	}
	if !resp.OK {
		// Make sure the daemon drops the session before the connection goes.
		c.client.SendCommand(ctx, daemon.Command{Cmd: daemon.CmdCancel})
		return "", errors.New(resp.Error)
	}
	return resp.Path, nil
}

func (c *daemonCapture) Discard(ctx context.Context) error {
	defer c.client.Close()

	resp, err := c.client.SendCommand(ctx, daemon.Command{Cmd: daemon.CmdCancel})
	if err != nil {
		return err
	}
	if !resp.OK {
		return errors.New(resp.Error)
	}
	return nil
}
