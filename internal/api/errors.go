package api

import (
	"errors"
	"fmt"
)

// Operation errors. Every failure returned by Client wraps one of these.
var (
	// ErrTranscriptionFailed indicates the audio could not be transcribed.
	ErrTranscriptionFailed = errors.New("transcription failed")

	// ErrChatRequestFailed indicates the assistant did not reply.
	ErrChatRequestFailed = errors.New("chat request failed")

	// ErrActionSubmitFailed indicates a confirmed action was not accepted.
	ErrActionSubmitFailed = errors.New("action submit failed")

	// ErrHistoryFetchFailed indicates the transaction history could not be loaded.
	ErrHistoryFetchFailed = errors.New("history fetch failed")

	// ErrBalanceFetchFailed indicates the balances could not be loaded.
	ErrBalanceFetchFailed = errors.New("balance fetch failed")
)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Op   error  // Operation sentinel, e.g. ErrChatRequestFailed
	Code int    // HTTP status code
	Body string // Response body, truncated
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%v: status %d: %s", e.Op, e.Code, e.Body)
	}
	return fmt.Sprintf("%v: status %d", e.Op, e.Code)
}

func (e *StatusError) Unwrap() error {
	return e.Op
}
