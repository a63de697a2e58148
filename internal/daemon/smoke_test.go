package daemon

import (
	"context"
	"fmt"
	"os"
	"testing"
)

// TestLiveDaemonConnection connects to a running capture daemon and checks
// status and permission. Skipped if the daemon socket doesn't exist.
func TestLiveDaemonConnection(t *testing.T) {
	sockPath := SocketPath()
	if _, err := os.Stat(sockPath); os.IsNotExist(err) {
		t.Skip("capture daemon not running (no socket at", sockPath, ")")
	}

	ctx := context.Background()
	client, err := Connect(ctx, sockPath)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	resp, err := client.SendCommand(ctx, Command{Cmd: CmdStatus})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !resp.OK {
		t.Fatalf("status not ok: %s", resp.Error)
	}
	fmt.Printf("Status: ok=%v recording=%v\n", resp.OK, resp.Recording)

	resp, err = client.SendCommand(ctx, Command{Cmd: CmdPermission})
	if err != nil {
		t.Fatalf("permission: %v", err)
	}
	fmt.Printf("Permission: granted=%v\n", resp.Granted)
}
