package events_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-storefront/internal/events"
	"github.com/noah-isme/backend-storefront/internal/repo"
)

func testEvent() repo.DomainEvent {
	return repo.DomainEvent{
		ID:          uuid.New(),
		Topic:       events.TopicCartItemAdded,
		AggregateID: uuid.New(),
		Payload:     []byte(`{"productRef":"sku-a","qty":"2"}`),
		OccurredAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWebhookNotifierDelivers(t *testing.T) {
	evt := testEvent()
	fixed := time.Date(2026, 8, 1, 12, 0, 1, 0, time.UTC)

	var gotBody []byte
	var gotReq *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := events.WebhookNotifier{
		URL:    srv.URL,
		Secret: "hush",
		Client: srv.Client(),
		Now:    func() time.Time { return fixed },
	}
	require.NoError(t, n.Notify(context.Background(), evt))

	var envelope struct {
		EventID     string          `json:"eventId"`
		Topic       string          `json:"topic"`
		AggregateID string          `json:"aggregateId"`
		Data        json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &envelope))
	require.Equal(t, evt.ID.String(), envelope.EventID)
	require.Equal(t, events.TopicCartItemAdded, envelope.Topic)
	require.Equal(t, evt.AggregateID.String(), envelope.AggregateID)
	require.JSONEq(t, string(evt.Payload), string(envelope.Data))

	require.Equal(t, evt.ID.String(), gotReq.Header.Get("X-Event-ID"))
	want := events.ComputeSignature("hush", fixed.Unix(), evt.ID.String(), gotBody)
	require.Equal(t, want, gotReq.Header.Get("X-Signature"))
}

func TestWebhookNotifierRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := events.WebhookNotifier{URL: srv.URL, Client: srv.Client()}
	err := n.Notify(context.Background(), testEvent())
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestWebhookNotifierNoURLIsNoop(t *testing.T) {
	n := events.WebhookNotifier{}
	require.NoError(t, n.Notify(context.Background(), testEvent()))
}
