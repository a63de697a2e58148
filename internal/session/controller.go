// Package session is the conversational state machine. It multiplexes
// typed input, push-to-talk capture, transcription, assistant replies and
// draft confirmation, and guarantees that at most one of recording,
// transcribing and sending is active.
//
// The Controller is driven from a bubbletea Update loop: state changes only
// in its methods, and all I/O runs inside the tea.Cmds they return.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/conversation"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/draft"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/logging"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/recorder"
)

// User-visible fallbacks for failed operations.
const (
	TranscriptionPlaceholder = "Error: could not transcribe."
	ReplyPlaceholder         = "⚠️ Error connecting to the server."
)

// NoticeTimeout is how long a transient notice stays visible.
var NoticeTimeout = 5 * time.Second

// ErrNoDraft is returned when a turn does not carry an action draft.
var ErrNoDraft = errors.New("turn has no draft")

// Mode is the controller state. Exactly one is active.
type Mode int

const (
	ModeIdle Mode = iota
	ModeRecording
	ModeTranscribing
	ModeComposing
	ModeSending
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeRecording:
		return "recording"
	case ModeTranscribing:
		return "transcribing"
	case ModeComposing:
		return "composing"
	case ModeSending:
		return "sending"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Recorder is the capture lifecycle the controller drives.
type Recorder interface {
	Start(ctx context.Context) (recorder.Handle, error)
	Stop(ctx context.Context) (string, error)
	Cancel(ctx context.Context) error
}

// Backend is the remote assistant.
type Backend interface {
	Transcribe(ctx context.Context, artifactPath string) (string, error)
	Chat(ctx context.Context, history []conversation.Message) (string, error)
	SubmitAction(ctx context.Context, sub draft.Submission) error
}

// afterStart is what to do once a pending capture start resolves.
type afterStart int

const (
	keepCapture afterStart = iota
	stopCapture
	cancelCapture
)

// Controller owns the conversation and the interaction mode.
type Controller struct {
	rec     Recorder
	backend Backend
	ctx     context.Context
	log     *slog.Logger

	store  *conversation.Store
	drafts map[string]*draft.Draft // by turn ID

	mode     Mode
	prevMode Mode
	input    string
	focused  bool

	gen       int
	starting  bool
	after     afterStart
	releasing int // cancel commands not yet reported back
	handle    recorder.Handle
	disposed  atomic.Bool

	notice    string
	noticeSeq int
}

// New creates a controller with an empty conversation.
func New(rec Recorder, backend Backend, log *slog.Logger) *Controller {
	ctx := logging.WithSessionID(context.Background(), uuid.NewString())
	return &Controller{
		rec:     rec,
		backend: backend,
		ctx:     ctx,
		log:     logging.FromContext(ctx, log),
		store:   conversation.NewStore(),
		drafts:  make(map[string]*draft.Draft),
	}
}

func (c *Controller) Mode() Mode    { return c.mode }
func (c *Controller) Input() string  { return c.input }
func (c *Controller) Focused() bool  { return c.focused }
func (c *Controller) Notice() string { return c.notice }

// Turns returns a copy of the conversation in order.
func (c *Controller) Turns() []conversation.Turn { return c.store.Turns() }

// Handle returns the active recording handle, if any.
func (c *Controller) Handle() (recorder.Handle, bool) {
	if c.mode != ModeRecording || c.starting {
		return recorder.Handle{}, false
	}
	return c.handle, true
}

// Focus moves the cursor into the compose field.
func (c *Controller) Focus() {
	c.focused = true
	if c.mode == ModeIdle {
		c.mode = ModeComposing
	}
}

// Blur leaves the compose field. An empty draft message returns to idle.
func (c *Controller) Blur() {
	c.focused = false
	if c.mode == ModeComposing && c.input == "" {
		c.mode = ModeIdle
	}
}

// SetInput replaces the compose text. Ignored while a transcription is
// about to overwrite it.
func (c *Controller) SetInput(s string) {
	if c.mode == ModeTranscribing {
		return
	}
	c.input = s
	if c.mode == ModeIdle {
		c.mode = ModeComposing
		c.focused = true
	}
}

// HoldMic starts push-to-talk.
func (c *Controller) HoldMic() tea.Cmd {
	if c.mode != ModeIdle && c.mode != ModeComposing {
		return nil
	}
	if c.starting || c.releasing > 0 {
		return nil
	}

	c.prevMode = c.mode
	c.mode = ModeRecording
	c.gen++
	c.starting = true
	c.after = keepCapture
	c.handle = recorder.Handle{}
	return c.startCmd(c.gen)
}

// ReleaseMic ends push-to-talk and transcribes what was captured.
func (c *Controller) ReleaseMic() tea.Cmd {
	if c.mode != ModeRecording {
		return nil
	}
	c.mode = ModeTranscribing
	if c.starting {
		c.after = stopCapture
		return nil
	}
	return c.stopAndTranscribeCmd()
}

// CancelRecording abandons push-to-talk without transcribing.
func (c *Controller) CancelRecording() tea.Cmd {
	if c.mode != ModeRecording {
		return nil
	}
	c.mode = c.prevMode
	return c.releaseCapture()
}

// Submit sends the compose text as a user turn. A recording in progress is
// cancelled first.
func (c *Controller) Submit() tea.Cmd {
	if c.mode != ModeComposing && c.mode != ModeRecording {
		return nil
	}
	text := strings.TrimSpace(c.input)
	if text == "" {
		return nil
	}

	var cancel tea.Cmd
	if c.mode == ModeRecording {
		cancel = c.releaseCapture()
	}

	c.store.Append(conversation.RoleUser, text)
	c.input = ""
	c.mode = ModeSending
	history := c.store.APIHistory(draft.IsPayload)
	c.log.Info("sending message", "turns", c.store.Len(), "history", len(history))

	chat := c.chatCmd(history)
	if cancel != nil {
		return tea.Sequence(cancel, chat)
	}
	return chat
}

// DraftAt returns the action draft carried by the assistant turn at index.
// The same instance is returned on every call so edits and confirmation
// stick.
func (c *Controller) DraftAt(index int) (*draft.Draft, bool) {
	t, ok := c.store.At(index)
	if !ok || t.Role != conversation.RoleAssistant {
		return nil, false
	}
	if d, ok := c.drafts[t.ID]; ok {
		return d, true
	}
	d, ok := draft.Parse(t.Content)
	if !ok {
		return nil, false
	}
	c.drafts[t.ID] = d
	return d, true
}

// EditDraft applies fn to the draft at index.
func (c *Controller) EditDraft(index int, fn func(*draft.Draft) error) error {
	d, ok := c.DraftAt(index)
	if !ok {
		return ErrNoDraft
	}
	return fn(d)
}

// ConfirmDraft freezes the draft at index and posts it. The draft shows as
// confirmed immediately; a failed post is reported but not rolled back.
func (c *Controller) ConfirmDraft(index int) tea.Cmd {
	d, ok := c.DraftAt(index)
	if !ok {
		return nil
	}
	sub, err := d.Confirm()
	if err != nil {
		c.log.Debug("draft confirm ignored", "draft_id", d.ID(), "error", err)
		return nil
	}
	c.log.Info("draft confirmed", "draft_id", sub.DraftID, "kind", sub.Kind, "amount", sub.Amount)
	return c.submitCmd(sub)
}

// Update applies a message produced by one of the controller's commands.
// Unknown messages are ignored.
func (c *Controller) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case RecordingStartedMsg:
		return c.onStarted(msg)
	case RecordingFailedMsg:
		return c.onStartFailed(msg)
	case TranscribedMsg:
		return c.onTranscribed(msg)
	case ReplyMsg:
		return c.onReply(msg)
	case RecordingReleasedMsg:
		c.releasing--
	case ActionSubmittedMsg:
		return c.onSubmitted(msg)
	case NoticeExpiredMsg:
		if msg.Seq == c.noticeSeq {
			c.notice = ""
		}
	}
	return nil
}

// Dispose releases any capture. Starts still in flight clean up after
// themselves.
func (c *Controller) Dispose(ctx context.Context) {
	c.disposed.Store(true)
	if err := c.rec.Cancel(ctx); err != nil {
		c.log.Warn("cancel recording on dispose", "error", err)
	}
	if c.mode == ModeRecording {
		c.mode = c.prevMode
	}
}

func (c *Controller) onStarted(msg RecordingStartedMsg) tea.Cmd {
	if msg.Gen != c.gen || !c.starting {
		c.log.Warn("stale recording start, releasing", "gen", msg.Gen, "current", c.gen)
		return c.cancelCmd()
	}
	c.starting = false

	switch c.after {
	case stopCapture:
		return c.stopAndTranscribeCmd()
	case cancelCapture:
		c.log.Debug("recording superseded before start completed", "capture_id", msg.Handle.ID)
		return c.cancelCmd()
	}
	c.handle = msg.Handle
	return nil
}

func (c *Controller) onStartFailed(msg RecordingFailedMsg) tea.Cmd {
	if msg.Gen != c.gen || !c.starting {
		return nil
	}
	c.starting = false
	c.log.Warn("recording failed to start", "error", msg.Err)

	text := "Could not start recording."
	switch {
	case errors.Is(msg.Err, recorder.ErrPermissionDenied):
		text = "Microphone permission denied."
	case errors.Is(msg.Err, recorder.ErrDeviceBusy):
		text = "Microphone is in use by another app."
	}
	notice := c.setNotice(text)

	switch c.after {
	case keepCapture:
		if c.mode == ModeRecording {
			c.mode = c.prevMode
		}
	case stopCapture:
		c.onTranscribed(TranscribedMsg{Err: msg.Err})
	}
	return notice
}

func (c *Controller) onTranscribed(msg TranscribedMsg) tea.Cmd {
	if c.mode != ModeTranscribing {
		c.log.Warn("transcription arrived outside transcribing", "mode", c.mode)
		return nil
	}
	text := msg.Text
	if msg.Err != nil {
		c.log.Error("transcription failed", "error", msg.Err)
		text = TranscriptionPlaceholder
	}
	c.input = text
	c.mode = ModeComposing
	c.focused = true
	return nil
}

func (c *Controller) onReply(msg ReplyMsg) tea.Cmd {
	if c.mode != ModeSending {
		c.log.Warn("reply arrived outside sending", "mode", c.mode)
		return nil
	}
	reply := msg.Reply
	if msg.Err != nil {
		c.log.Error("chat request failed", "error", msg.Err)
		reply = ReplyPlaceholder
	}
	c.store.Append(conversation.RoleAssistant, reply)
	c.mode = ModeComposing
	return nil
}

func (c *Controller) onSubmitted(msg ActionSubmittedMsg) tea.Cmd {
	if msg.Err != nil {
		c.log.Error("action submit failed", "draft_id", msg.DraftID, "error", msg.Err)
		return c.setNotice("Could not save the movement.")
	}
	c.log.Info("action submitted", "draft_id", msg.DraftID)
	return nil
}

// releaseCapture cancels the current capture, deferring to the pending
// start if there is one.
func (c *Controller) releaseCapture() tea.Cmd {
	if c.starting {
		c.after = cancelCapture
		return nil
	}
	return c.cancelCmd()
}

func (c *Controller) setNotice(text string) tea.Cmd {
	c.notice = text
	c.noticeSeq++
	seq := c.noticeSeq
	return tea.Tick(NoticeTimeout, func(time.Time) tea.Msg {
		return NoticeExpiredMsg{Seq: seq}
	})
}

func (c *Controller) startCmd(gen int) tea.Cmd {
	rec, ctx, log, disposed := c.rec, c.ctx, c.log, &c.disposed
	return func() tea.Msg {
		h, err := rec.Start(ctx)
		if err != nil {
			return RecordingFailedMsg{Gen: gen, Err: err}
		}
		if disposed.Load() {
			if err := rec.Cancel(ctx); err != nil {
				log.Warn("cancel recording after dispose", "error", err)
			}
		}
		return RecordingStartedMsg{Gen: gen, Handle: h}
	}
}

func (c *Controller) stopAndTranscribeCmd() tea.Cmd {
	rec, backend, ctx := c.rec, c.backend, c.ctx
	return func() tea.Msg {
		path, err := rec.Stop(ctx)
		if err != nil {
			return TranscribedMsg{Err: err}
		}
		if path == "" {
			return TranscribedMsg{Err: errors.New("recording produced no artifact")}
		}
		text, err := backend.Transcribe(ctx, path)
		return TranscribedMsg{Text: text, Err: err}
	}
}

func (c *Controller) cancelCmd() tea.Cmd {
	c.releasing++
	rec, ctx, log := c.rec, c.ctx, c.log
	return func() tea.Msg {
		if err := rec.Cancel(ctx); err != nil {
			log.Warn("cancel recording", "error", err)
		}
		return RecordingReleasedMsg{}
	}
}

func (c *Controller) chatCmd(history []conversation.Message) tea.Cmd {
	backend, ctx := c.backend, c.ctx
	return func() tea.Msg {
		reply, err := backend.Chat(ctx, history)
		return ReplyMsg{Reply: reply, Err: err}
	}
}

func (c *Controller) submitCmd(sub draft.Submission) tea.Cmd {
	backend, ctx := c.backend, c.ctx
	return func() tea.Msg {
		return ActionSubmittedMsg{DraftID: sub.DraftID, Err: backend.SubmitAction(ctx, sub)}
	}
}
