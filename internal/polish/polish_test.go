package polish

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zulandar/switchboard/internal/config"
)

func TestPrompt(t *testing.T) {
	got := Prompt("hey whats up", "formal")
	if !strings.Contains(got, "formal tone") {
		t.Errorf("prompt = %q, want tone", got)
	}
	if !strings.HasSuffix(got, ": hey whats up") {
		t.Errorf("prompt = %q, want text at end", got)
	}
}

func TestPrompt_DefaultsTone(t *testing.T) {
	for _, mode := range []string{"", "plaintext", "code", "url"} {
		if got := Prompt("x", mode); !strings.Contains(got, "casual tone") {
			t.Errorf("Prompt(mode=%q) = %q, want casual tone", mode, got)
		}
	}
}

func TestGemini_Polish(t *testing.T) {
	var gotPrompt string
	g := &Gemini{model: "test-model", generate: func(ctx context.Context, prompt string) (string, error) {
		gotPrompt = prompt
		return "  Hello there.\n", nil
	}}

	out, err := g.Polish(context.Background(), "hello", "casual")
	if err != nil {
		t.Fatalf("Polish: %v", err)
	}
	if out != "Hello there." {
		t.Errorf("out = %q, want trimmed text", out)
	}
	if !strings.Contains(gotPrompt, "hello") {
		t.Errorf("prompt = %q", gotPrompt)
	}
}

func TestGemini_EmptyCandidate(t *testing.T) {
	g := &Gemini{model: "m", generate: func(ctx context.Context, prompt string) (string, error) {
		return "   ", nil
	}}
	if _, err := g.Polish(context.Background(), "x", ""); !errors.Is(err, ErrEmpty) {
		t.Errorf("error = %v, want ErrEmpty", err)
	}
}

func TestGemini_ProviderError(t *testing.T) {
	g := &Gemini{model: "m", generate: func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("quota exceeded")
	}}
	_, err := g.Polish(context.Background(), "x", "")
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error = %v, want provider error", err)
	}
}

func TestNewGemini_RequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), "", "m"); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestHTTP_Polish(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["message"] != "yo" || body["mode"] != "formal" {
			t.Errorf("body = %v", body)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(map[string]string{"polished_message": "Good day."})
	}))
	defer srv.Close()

	out, err := NewHTTP(srv.URL, "k").Polish(context.Background(), "yo", "formal")
	if err != nil {
		t.Fatalf("Polish: %v", err)
	}
	if out != "Good day." {
		t.Errorf("out = %q", out)
	}
}

func TestHTTP_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL, "").Polish(context.Background(), "yo", "")
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("error = %v, want 503", err)
	}
}

func TestHTTP_EmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"polished_message":""}`))
	}))
	defer srv.Close()

	if _, err := NewHTTP(srv.URL, "").Polish(context.Background(), "yo", ""); !errors.Is(err, ErrEmpty) {
		t.Errorf("error = %v, want ErrEmpty", err)
	}
}

func TestNew_Providers(t *testing.T) {
	p, err := New(context.Background(), config.PolishConfig{Provider: "http", Endpoint: "http://x"})
	if err != nil {
		t.Fatalf("New(http): %v", err)
	}
	if _, ok := p.(*HTTP); !ok {
		t.Errorf("New(http) = %T, want *HTTP", p)
	}
	if _, err := New(context.Background(), config.PolishConfig{Provider: "nope"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
