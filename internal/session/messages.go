package session

import (
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/recorder"
)

// RecordingStartedMsg reports that the capture for generation Gen began.
type RecordingStartedMsg struct {
	Gen    int
	Handle recorder.Handle
}

// RecordingFailedMsg reports that the capture for generation Gen could not
// start.
type RecordingFailedMsg struct {
	Gen int
	Err error
}

// RecordingReleasedMsg reports that a cancelled capture was released.
type RecordingReleasedMsg struct{}

// TranscribedMsg carries the result of stop-then-transcribe.
type TranscribedMsg struct {
	Text string
	Err  error
}

// ReplyMsg carries the assistant's answer to a submitted turn.
type ReplyMsg struct {
	Reply string
	Err   error
}

// ActionSubmittedMsg reports the outcome of posting a confirmed draft.
type ActionSubmittedMsg struct {
	DraftID string
	Err     error
}

// NoticeExpiredMsg clears the transient notice with the same sequence.
type NoticeExpiredMsg struct {
	Seq int
}
