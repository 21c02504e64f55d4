package fetch

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestFetcher(t *testing.T, handler http.HandlerFunc) (*Fetcher, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f, err := New(Opts{GitHubBaseURL: srv.URL + "/api/v3"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f, srv.URL
}

func TestPage_ConvertsToMarkdown(t *testing.T) {
	f, base := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>Title</h1><p>Some <strong>bold</strong> text.</p></body></html>`))
	})

	out, err := f.Page(context.Background(), base+"/article")
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if !strings.Contains(out, "# Title") {
		t.Errorf("markdown = %q, want heading", out)
	}
	if !strings.Contains(out, "**bold**") {
		t.Errorf("markdown = %q, want bold", out)
	}
}

func TestPage_RejectsNonHTTP(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {})
	for _, u := range []string{"", "ftp://example.com/x", "not a url", "file:///etc/passwd"} {
		if _, err := f.Page(context.Background(), u); err == nil {
			t.Errorf("Page(%q): expected error", u)
		}
	}
}

func TestPage_ErrorStatus(t *testing.T) {
	f, base := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := f.Page(context.Background(), base+"/missing")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v, want 404", err)
	}
}

func TestParseGitHubRef(t *testing.T) {
	tests := []struct {
		in   string
		want GitHubRef
		ok   bool
	}{
		{"github:golang/go/src/fmt/print.go", GitHubRef{"golang", "go", "src/fmt/print.go", ""}, true},
		{"github:golang/go/README.md@go1.22", GitHubRef{"golang", "go", "README.md", "go1.22"}, true},
		{"  github:a/b/c  ", GitHubRef{"a", "b", "c", ""}, true},
		{"github:a/b", GitHubRef{}, false},
		{"gitlab:a/b/c", GitHubRef{}, false},
		{"func main() {}", GitHubRef{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseGitHubRef(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseGitHubRef(%q) = %+v, %v; want %+v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestGitHubFile(t *testing.T) {
	content := base64.StdEncoding.EncodeToString([]byte("package main\n"))
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/repos/acme/widgets/contents/main.go" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("ref") != "v1" {
			t.Errorf("ref = %q, want v1", r.URL.Query().Get("ref"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"type":"file","encoding":"base64","name":"main.go","path":"main.go","content":"` + content + `"}`))
	})

	out, err := f.GitHubFile(context.Background(), GitHubRef{Owner: "acme", Repo: "widgets", Path: "main.go", Ref: "v1"})
	if err != nil {
		t.Fatalf("GitHubFile: %v", err)
	}
	if out != "package main\n" {
		t.Errorf("content = %q", out)
	}
}

func TestGitHubFile_Directory(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"type":"file","name":"a.go","path":"pkg/a.go"}]`))
	})

	_, err := f.GitHubFile(context.Background(), GitHubRef{Owner: "acme", Repo: "widgets", Path: "pkg"})
	if err == nil || !strings.Contains(err.Error(), "directory") {
		t.Errorf("error = %v, want directory error", err)
	}
}

func TestEncodeDecode(t *testing.T) {
	text := strings.Repeat("round and round ", 50)
	enc, err := Encode(text)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(enc) >= len(text) {
		t.Errorf("encoded %d bytes, expected compression below %d", len(enc), len(text))
	}
	dec, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec != text {
		t.Error("Decode(Encode(x)) != x")
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := Decode("!!!"); err == nil {
		t.Error("expected base64 error")
	}
	if _, err := Decode(base64.StdEncoding.EncodeToString([]byte("plain"))); err == nil {
		t.Error("expected zlib error")
	}
}
