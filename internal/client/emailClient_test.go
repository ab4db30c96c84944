package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketplace-settlement/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailClient_Send(t *testing.T) {
	var got sendEmailPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email_123"}`))
	}))
	t.Cleanup(srv.Close)

	c := NewEmailClient(&config.Email{BaseApiURL: srv.URL, APIKey: "re_key", From: "Shop <shop@example.com>", Timeout: time.Second})
	id, err := c.Send(context.Background(), &EmailMessage{To: "buyer@example.com", Subject: "Hi", HTML: "<p>hi</p>"})

	require.NoError(t, err)
	assert.Equal(t, "email_123", id)
	assert.Equal(t, []string{"buyer@example.com"}, got.To)
	assert.Equal(t, "Shop <shop@example.com>", got.From)
}

func TestEmailClient_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid from"}`))
	}))
	t.Cleanup(srv.Close)

	c := NewEmailClient(&config.Email{BaseApiURL: srv.URL, Timeout: time.Second})
	_, err := c.Send(context.Background(), &EmailMessage{To: "buyer@example.com"})
	assert.ErrorIs(t, err, ErrEmail)

	_, err = c.Send(context.Background(), &EmailMessage{})
	assert.ErrorIs(t, err, ErrEmail)
}

func TestFileStore_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/book.pdf" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	t.Cleanup(srv.Close)

	s := NewFileStore(&config.Storage{BaseURL: srv.URL + "/", Timeout: time.Second})

	f, err := s.Fetch(context.Background(), "files/book.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), f.Content)

	f, err = s.Fetch(context.Background(), srv.URL+"/files/book.pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", f.ContentType)

	_, err = s.Fetch(context.Background(), "files/missing.pdf")
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = s.Fetch(context.Background(), "")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestNewEventPublisher_NoBrokersIsNoop(t *testing.T) {
	p := NewEventPublisher(&config.Kafka{})
	assert.NoError(t, p.Publish(context.Background(), "k", map[string]string{"a": "b"}))
	assert.NoError(t, p.Close())
}

func TestNewKafkaWriter_FlushesWithoutWaitingForBatch(t *testing.T) {
	w := newKafkaWriter(&config.Kafka{Brokers: []string{"k1:9092", "k2:9092"}, Topic: "notifications"})
	t.Cleanup(func() { _ = w.Close() })

	assert.Equal(t, "notifications", w.Topic)
	assert.LessOrEqual(t, w.BatchTimeout, 10*time.Millisecond)
	assert.False(t, w.Async)
}
