package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"

	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/conversation"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/draft"
)

const maxErrorBody = 512

// Client talks to the assistant backend. No timeout is set beyond the
// transport default; in-flight requests are not cancelled by the UI.
type Client struct {
	baseURL    string
	http       *http.Client
	legacyChat bool
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLegacyChat sends {prompt} instead of the message history.
func WithLegacyChat(on bool) Option {
	return func(c *Client) { c.legacyChat = on }
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchHistory returns the confirmed transactions.
func (c *Client) FetchHistory(ctx context.Context) ([]Transaction, error) {
	var out historyResponse
	if err := c.getJSON(ctx, "/historial", ErrHistoryFetchFailed, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

// FetchBalance returns the account balances.
func (c *Client) FetchBalance(ctx context.Context) ([]Account, error) {
	var out balanceResponse
	if err := c.getJSON(ctx, "/balance", ErrBalanceFetchFailed, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// Chat sends the projected history and returns the assistant reply.
func (c *Client) Chat(ctx context.Context, history []conversation.Message) (string, error) {
	var body any = chatRequest{Messages: history}
	if c.legacyChat {
		body = legacyChatRequest{Prompt: lastUserContent(history)}
	}

	var out chatResponse
	if err := c.postJSON(ctx, "/chat", body, ErrChatRequestFailed, &out); err != nil {
		return "", err
	}
	return out.Reply, nil
}

// SubmitAction posts a confirmed draft. Any status other than "ok" fails.
func (c *Client) SubmitAction(ctx context.Context, sub draft.Submission) error {
	var out actionResponse
	if err := c.postJSON(ctx, "/accion", sub, ErrActionSubmitFailed, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("%w: status %q", ErrActionSubmitFailed, out.Status)
	}
	return nil
}

// Transcribe uploads a recorded artifact and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, artifactPath string) (string, error) {
	f, err := os.Open(artifactPath)
	if err != nil {
		return "", fmt.Errorf("%w: open artifact: %v", ErrTranscriptionFailed, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="audio.m4a"`)
	h.Set("Content-Type", "audio/m4a")
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("%w: create part: %v", ErrTranscriptionFailed, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("%w: read artifact: %v", ErrTranscriptionFailed, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%w: close multipart: %v", ErrTranscriptionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribir", &buf)
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrTranscriptionFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out transcribeResponse
	if err := c.do(req, ErrTranscriptionFailed, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (c *Client) getJSON(ctx context.Context, path string, op error, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", op, err)
	}
	return c.do(req, op, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, op error, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: marshal body: %v", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op error, out any) error {
	c.log.Debug("backend request", "method", req.Method, "path", req.URL.Path)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", op, err)
	}
	return nil
}

func lastUserContent(history []conversation.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == conversation.WireUser {
			return history[i].Content
		}
	}
	return ""
}
