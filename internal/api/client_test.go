package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/api"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/conversation"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/devserver"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/draft"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/logging"
)

func newDevClient(t *testing.T, opts ...devserver.Option) (*api.Client, *devserver.Server) {
	t.Helper()
	srv := devserver.New(logging.Discard(), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return api.NewClient(ts.URL+"/", logging.Discard()), srv
}

func newHandlerClient(t *testing.T, h http.HandlerFunc, opts ...api.Option) *api.Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return api.NewClient(ts.URL, logging.Discard(), opts...)
}

func writeArtifact(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.m4a")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestTranscribe(t *testing.T) {
	client, _ := newDevClient(t, devserver.WithTranscript("paid 20 for taxi"))

	text, err := client.Transcribe(context.Background(), writeArtifact(t, "fake-audio"))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "paid 20 for taxi" {
		t.Errorf("text = %q, want %q", text, "paid 20 for taxi")
	}
}

func TestTranscribeMultipartShape(t *testing.T) {
	client := newHandlerClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribir" {
			t.Errorf("path = %q, want /transcribir", r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		defer f.Close()
		if hdr.Filename != "audio.m4a" {
			t.Errorf("filename = %q, want %q", hdr.Filename, "audio.m4a")
		}
		if ct := hdr.Header.Get("Content-Type"); ct != "audio/m4a" {
			t.Errorf("content type = %q, want %q", ct, "audio/m4a")
		}
		data, _ := io.ReadAll(f)
		if string(data) != "abc" {
			t.Errorf("payload = %q, want %q", data, "abc")
		}
		w.Write([]byte(`{"text":"ok"}`))
	})

	if _, err := client.Transcribe(context.Background(), writeArtifact(t, "abc")); err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
}

func TestTranscribeFailures(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		client := newHandlerClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		_, err := client.Transcribe(context.Background(), writeArtifact(t, "x"))
		if !errors.Is(err, api.ErrTranscriptionFailed) {
			t.Fatalf("err = %v, want ErrTranscriptionFailed", err)
		}
		var se *api.StatusError
		if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
			t.Errorf("err = %v, want StatusError with code 500", err)
		}
	})

	t.Run("missing artifact", func(t *testing.T) {
		client := newHandlerClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("request should not be sent")
		})
		_, err := client.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.m4a"))
		if !errors.Is(err, api.ErrTranscriptionFailed) {
			t.Fatalf("err = %v, want ErrTranscriptionFailed", err)
		}
	})

	t.Run("network", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		url := ts.URL
		ts.Close()
		client := api.NewClient(url, logging.Discard())
		_, err := client.Transcribe(context.Background(), writeArtifact(t, "x"))
		if !errors.Is(err, api.ErrTranscriptionFailed) {
			t.Fatalf("err = %v, want ErrTranscriptionFailed", err)
		}
	})
}

func TestChatSendsHistory(t *testing.T) {
	var got map[string][]conversation.Message
	client := newHandlerClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"reply":"hello"}`))
	})

	history := []conversation.Message{
		{Role: conversation.WireUser, Content: "hi"},
		{Role: conversation.WireAssistant, Content: "hey"},
		{Role: conversation.WireUser, Content: "balance?"},
	}
	reply, err := client.Chat(context.Background(), history)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply != "hello" {
		t.Errorf("reply = %q, want %q", reply, "hello")
	}
	if len(got["messages"]) != 3 || got["messages"][2].Content != "balance?" {
		t.Errorf("messages = %+v, want the 3 history entries", got["messages"])
	}
}

func TestChatLegacyPrompt(t *testing.T) {
	var got map[string]any
	client := newHandlerClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"reply":"ok"}`))
	}, api.WithLegacyChat(true))

	_, err := client.Chat(context.Background(), []conversation.Message{
		{Role: conversation.WireUser, Content: "first"},
		{Role: conversation.WireAssistant, Content: "answer"},
		{Role: conversation.WireUser, Content: "second"},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if got["prompt"] != "second" {
		t.Errorf("prompt = %v, want %q", got["prompt"], "second")
	}
	if _, ok := got["messages"]; ok {
		t.Error("legacy body should not carry messages")
	}
}

func TestChatProposesDraft(t *testing.T) {
	day := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	client, _ := newDevClient(t, devserver.WithClock(func() time.Time { return day }))

	reply, err := client.Chat(context.Background(), []conversation.Message{
		{Role: conversation.WireUser, Content: "I spent 12,50 on lunch"},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	d, ok := draft.Parse(reply)
	if !ok {
		t.Fatalf("reply %q is not a draft", reply)
	}
	f := d.Fields()
	if f.Kind != draft.KindExpense {
		t.Errorf("kind = %q, want %q", f.Kind, draft.KindExpense)
	}
	if !f.Amount.Equal(decimal.RequireFromString("12.50")) {
		t.Errorf("amount = %s, want 12.50", f.Amount)
	}
	if got := f.Date.Format(draft.DateLayout); got != "2024-03-09" {
		t.Errorf("date = %q, want %q", got, "2024-03-09")
	}
}

func TestChatFailure(t *testing.T) {
	client := newHandlerClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})
	_, err := client.Chat(context.Background(), nil)
	if !errors.Is(err, api.ErrChatRequestFailed) {
		t.Fatalf("err = %v, want ErrChatRequestFailed", err)
	}
}

func TestSubmitActionUpdatesLedger(t *testing.T) {
	client, srv := newDevClient(t)
	ctx := context.Background()

	before, err := client.FetchBalance(ctx)
	if err != nil {
		t.Fatalf("FetchBalance failed: %v", err)
	}

	d, ok := draft.Parse(`{"type":"draft_gasto","concept":"Groceries","amount":40,"account":"Checking","date":"2024-05-01"}`)
	if !ok {
		t.Fatal("Parse failed")
	}
	sub, err := d.Confirm()
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if err := client.SubmitAction(ctx, sub); err != nil {
		t.Fatalf("SubmitAction failed: %v", err)
	}

	if got := srv.Actions(); len(got) != 1 || got[0].DraftID != d.ID() {
		t.Errorf("actions = %+v, want the submitted draft", got)
	}

	txs, err := client.FetchHistory(ctx)
	if err != nil {
		t.Fatalf("FetchHistory failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	if txs[0].Title != "Groceries" || txs[0].Type != "expense" || txs[0].Date != "2024-05-01" {
		t.Errorf("transaction = %+v", txs[0])
	}
	if txs[0].Amount != "-40.00 €" {
		t.Errorf("amount = %q, want %q", txs[0].Amount, "-40.00 €")
	}

	after, err := client.FetchBalance(ctx)
	if err != nil {
		t.Fatalf("FetchBalance failed: %v", err)
	}
	want := before[0].Balance.Sub(decimal.NewFromInt(40))
	if !after[0].Balance.Equal(want) {
		t.Errorf("checking balance = %s, want %s", after[0].Balance, want)
	}
}

func TestSubmitActionRejected(t *testing.T) {
	client := newHandlerClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"rejected"}`))
	})
	err := client.SubmitAction(context.Background(), draft.Submission{Concept: "x", Amount: "1.00"})
	if !errors.Is(err, api.ErrActionSubmitFailed) {
		t.Fatalf("err = %v, want ErrActionSubmitFailed", err)
	}
}

func TestFetchHistoryFlexibleFields(t *testing.T) {
	client := newHandlerClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transactions":[
			{"id":7,"title":"Rent","date":"2024-01-01","amount":-650.5,"type":"expense","icon":"home"},
			{"id":"a1","title":"Pay","date":"2024-01-02","amount":"+2000 €","type":"income","icon":null}
		]}`))
	})

	txs, err := client.FetchHistory(context.Background())
	if err != nil {
		t.Fatalf("FetchHistory failed: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txs))
	}
	if txs[0].ID != "7" || txs[0].Amount != "-650.5" {
		t.Errorf("first = %+v, want id 7 amount -650.5", txs[0])
	}
	if txs[1].ID != "a1" || txs[1].Amount != "+2000 €" {
		t.Errorf("second = %+v", txs[1])
	}
}

func TestFetchFailures(t *testing.T) {
	client := newHandlerClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})
	ctx := context.Background()

	if _, err := client.FetchHistory(ctx); !errors.Is(err, api.ErrHistoryFetchFailed) {
		t.Errorf("FetchHistory err = %v, want ErrHistoryFetchFailed", err)
	}
	if _, err := client.FetchBalance(ctx); !errors.Is(err, api.ErrBalanceFetchFailed) {
		t.Errorf("FetchBalance err = %v, want ErrBalanceFetchFailed", err)
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := &api.StatusError{Op: api.ErrChatRequestFailed, Code: 502, Body: "bad gateway"}
	if got, want := err.Error(), "chat request failed: status 502: bad gateway"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, api.ErrChatRequestFailed) {
		t.Error("StatusError should unwrap to its operation")
	}
}
