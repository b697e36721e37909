package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func geminiTestServer(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewGeminiClient(srv.URL)
	return client
}

func TestConverseParsesReply(t *testing.T) {
	var gotPath string
	var gotBody generateContentRequest
	client := geminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Header.Get("x-goog-api-key") != "key-1" {
			t.Errorf("missing credential header")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"The answer "},{"text":"is 4."}]}}]}`))
	})

	history := []Message{
		{Role: RoleUser, Text: "hello", Timestamp: time.Now()},
		{Role: RoleModel, Text: "hi there", Timestamp: time.Now()},
	}
	reply, err := client.Converse(context.Background(), history, "what is 2+2", "be brief", "key-1", "gemini-2.0-flash")
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	if reply != "The answer is 4." {
		t.Fatalf("unexpected reply %q", reply)
	}
	if !strings.Contains(gotPath, "gemini-2.0-flash:generateContent") {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotBody.SystemInstruction == nil || gotBody.SystemInstruction.Parts[0].Text != "be brief" {
		t.Fatalf("system instruction not sent: %#v", gotBody.SystemInstruction)
	}
	// History plus the new message, in conversation order.
	if len(gotBody.Contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(gotBody.Contents))
	}
	if gotBody.Contents[2].Parts[0].Text != "what is 2+2" {
		t.Fatalf("new message not last: %#v", gotBody.Contents)
	}
}

func TestConverseEmptyCredentialIsAuthFault(t *testing.T) {
	called := false
	client := geminiTestServer(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := client.Converse(context.Background(), nil, "hi", "", "", "gemini-2.0-flash")
	if !errors.Is(err, ErrAuthFault) {
		t.Fatalf("expected ErrAuthFault, got %v", err)
	}
	if called {
		t.Fatalf("empty credential must not reach the service")
	}
}

func TestConverseRejectedCredentialIsAuthFault(t *testing.T) {
	client := geminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	})
	_, err := client.Converse(context.Background(), nil, "hi", "", "bad-key", "gemini-2.0-flash")
	if !errors.Is(err, ErrAuthFault) {
		t.Fatalf("expected ErrAuthFault, got %v", err)
	}
}

func TestConverseUpstreamErrorIsServiceFault(t *testing.T) {
	client := geminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"backend blew up","status":"INTERNAL"}}`))
	})
	_, err := client.Converse(context.Background(), nil, "hi", "", "key-1", "gemini-2.0-flash")
	if !errors.Is(err, ErrServiceFault) {
		t.Fatalf("expected ErrServiceFault, got %v", err)
	}
	if !strings.Contains(err.Error(), "backend blew up") {
		t.Fatalf("error should carry the upstream message: %v", err)
	}
}

func TestGenerateImageReturnsPayload(t *testing.T) {
	client := geminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":predict") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"predictions":[{"bytesBase64Encoded":"aGVsbG8="}]}`))
	})
	payload, err := client.GenerateImage(context.Background(), "a red balloon", "key-1")
	if err != nil {
		t.Fatalf("generate image: %v", err)
	}
	if payload != "aGVsbG8=" {
		t.Fatalf("unexpected payload %q", payload)
	}
}

func TestGenerateImageEmptyPayloadIsNoContent(t *testing.T) {
	client := geminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"predictions":[]}`))
	})
	_, err := client.GenerateImage(context.Background(), "a red balloon", "key-1")
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
}

func TestFaultMessageShapesTranscriptEntry(t *testing.T) {
	msg := FaultMessage(ErrAuthFault)
	if msg.Role != RoleModel {
		t.Fatalf("fault message must use the model role, got %q", msg.Role)
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Fatalf("fault message missing id or timestamp: %#v", msg)
	}
	if !strings.Contains(msg.Text, "API key") {
		t.Fatalf("auth fault text should mention the missing key: %q", msg.Text)
	}
}
