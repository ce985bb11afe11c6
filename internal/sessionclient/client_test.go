package sessionclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"zufan/internal/models"
)

func TestClientSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-123")
	list, err := c.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("unexpected sessions %+v", list)
	}
}

func TestClientGetSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/sessions/s1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.Session{
			ID:    "s1",
			Title: "ውይይት 1",
			Messages: []models.Message{
				{ID: "m1", Role: models.RoleUser, Content: "ሰላም"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	sess, err := c.GetSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.ID != "s1" || len(sess.Messages) != 1 || sess.Messages[0].Content != "ሰላም" {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestClientAddMessageWireShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat/messages" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	err := c.AddMessage(context.Background(), "s1", models.Message{
		ID:      "m1",
		Role:    models.RoleAssistant,
		Content: "reply",
		Citations: []models.Citation{
			{Source: "src", Content: "text"},
		},
	})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if got["sessionId"] != "s1" || got["id"] != "m1" || got["role"] != "assistant" || got["content"] != "reply" {
		t.Fatalf("unexpected body %v", got)
	}
	if _, ok := got["citations"].([]any); !ok {
		t.Fatalf("citations missing from body: %v", got)
	}
}

func TestClientSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"Forbidden"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	err := c.DeleteSession(context.Background(), "s1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "Forbidden") || !strings.Contains(err.Error(), "403") {
		t.Fatalf("error lacks server detail: %v", err)
	}
}

func TestClientCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["id"] != "s9" || body["title"] != "ውይይት 3" {
			t.Errorf("unexpected body %v", body)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	if err := c.CreateSession(context.Background(), "s9", "ውይይት 3"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
}
