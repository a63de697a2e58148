// Package daemon provides the client and protocol types for talking to the
// audio-capture daemon over a Unix socket using NDJSON.
package daemon

// Command names understood by the capture daemon.
const (
	CmdPermission = "permission"
	CmdStart      = "start"
	CmdStop       = "stop"
	CmdCancel     = "cancel"
	CmdStatus     = "status"
)

// Command is sent from a client to the daemon.
type Command struct {
	Cmd    string `json:"cmd"`
	Format string `json:"format,omitempty"`
}

// Response is returned by the daemon after processing a command.
type Response struct {
	OK        bool   `json:"ok"`
	Granted   *bool  `json:"granted,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Path      string `json:"path,omitempty"`
	Recording *bool  `json:"recording,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BoolPtr returns a pointer to a bool value. Convenience for building responses.
func BoolPtr(b bool) *bool { return &b }
