package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMobizonClient_DryRunSkipsHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("dry-run client must not call the API")
	}))
	defer srv.Close()

	c := NewClientWithOptions("", "", false, time.Second, nil)
	c.BaseURL = srv.URL
	if _, err := c.SendSMS(context.Background(), "+77011234567", "code"); err != nil {
		t.Fatalf("SendSMS: %v", err)
	}
}

func TestMobizonClient_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
			return
		}
		if got := r.PostForm.Get("recipient"); got != "+77011234567" {
			t.Errorf("recipient = %q", got)
		}
		if got := r.PostForm.Get("from"); got != "College" {
			t.Errorf("from = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"message":"","data":{"messageId":"m-1"}}`))
	}))
	defer srv.Close()

	c := NewClientWithOptions("key", "College", false, time.Second, nil)
	c.BaseURL = srv.URL
	resp, err := c.SendSMS(context.Background(), "+77011234567", "code")
	if err != nil {
		t.Fatalf("SendSMS: %v", err)
	}
	if resp.Data.MessageID != "m-1" {
		t.Errorf("MessageID = %q, want m-1", resp.Data.MessageID)
	}
}

func TestMobizonClient_ProviderError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"api error code", http.StatusOK, `{"code":1,"message":"bad recipient"}`},
		{"http error", http.StatusBadGateway, `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClientWithOptions("key", "", false, time.Second, nil)
			c.BaseURL = srv.URL
			if _, err := c.SendSMS(context.Background(), "+77011234567", "code"); err == nil {
				t.Error("expected error")
			}
		})
	}
}
