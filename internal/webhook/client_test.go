package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunamismax/pixelvault/internal/domain"
)

func TestSendAddsSigningHeaders(t *testing.T) {
	var (
		gotSig  string
		gotTS   string
		gotEvt  string
		gotBody []byte
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotTS = r.Header.Get(HeaderTimestamp)
		gotEvt = r.Header.Get(HeaderEvent)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(Config{
		SigningSecret:  "test-secret",
		Timeout:        2 * time.Second,
		MaxAttempts:    1,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	})

	err := client.Send(context.Background(), srv.URL, domain.EventImageUploaded, map[string]any{"id": "img-1"})
	if err != nil {
		t.Fatalf("send returned error: %v", err)
	}

	if gotTS == "" {
		t.Fatal("expected timestamp header")
	}
	if gotSig != Sign("test-secret", gotTS, gotBody) {
		t.Fatalf("signature %q does not match body", gotSig)
	}
	if gotEvt != domain.EventImageUploaded {
		t.Fatalf("expected event header %s, got %q", domain.EventImageUploaded, gotEvt)
	}
}

func TestSendRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})
	require.NoError(t, client.Send(context.Background(), srv.URL, domain.EventImageUploaded, struct{}{}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{MaxAttempts: 2, InitialBackoff: time.Millisecond})
	err := client.Send(context.Background(), srv.URL, domain.EventImageUploaded, struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Contains(t, err.Error(), "status=500")
}

func TestSendWithoutEndpointIsNoop(t *testing.T) {
	client := NewClient(Config{})
	assert.NoError(t, client.Send(context.Background(), "  ", domain.EventImageUploaded, struct{}{}))
}

func TestNotifierDeliversEvent(t *testing.T) {
	received := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt Event
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		received <- evt
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	n := NewNotifier(NewClient(Config{MaxAttempts: 1}), srv.URL, nil)
	n.Notify(ctx, domain.EventImageTransformed, domain.ImageRecord{ID: "img-2", Owner: "alice", OriginalImage: "img-1"})
	cancel()
	n.Wait()

	select {
	case evt := <-received:
		assert.Equal(t, domain.EventImageTransformed, evt.Event)
		assert.Equal(t, "img-2", evt.Image.ID)
		assert.Equal(t, "img-1", evt.Image.OriginalImage)
	default:
		t.Fatal("expected event to be delivered after the request context was cancelled")
	}
}
