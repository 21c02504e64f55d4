// Package fetch retrieves outside content for URL and code sends: web pages
// converted to Markdown, and files read from GitHub repositories.
package fetch

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// maxPageBytes caps how much of a fetched page is read.
const maxPageBytes = 4 << 20

// Fetcher retrieves pages and repository files.
type Fetcher struct {
	httpClient *http.Client
	github     *github.Client
	converter  *md.Converter
}

// Opts holds parameters for creating a Fetcher.
type Opts struct {
	GitHubToken   string       // optional; unauthenticated requests are rate limited
	HTTPClient    *http.Client // defaults to a client with a 20s timeout
	GitHubBaseURL string       // API base override, e.g. for GitHub Enterprise
}

// New creates a Fetcher.
func New(opts Opts) (*Fetcher, error) {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}

	var ghHTTP *http.Client
	if opts.GitHubToken != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.GitHubToken})
		ghHTTP = oauth2.NewClient(context.Background(), ts)
	}
	gh := github.NewClient(ghHTTP)
	if opts.GitHubBaseURL != "" {
		base := strings.TrimRight(opts.GitHubBaseURL, "/") + "/"
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("fetch: github base url: %w", err)
		}
		gh.BaseURL = u
	}

	return &Fetcher{
		httpClient: hc,
		github:     gh,
		converter:  md.NewConverter("", true, nil),
	}, nil
}

// Page downloads rawURL and returns its HTML body converted to Markdown.
func (f *Fetcher) Page(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("fetch: %q is not an http(s) URL", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: get %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch: get %s: status %d", u, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("fetch: read %s: %w", u, err)
	}

	markdown, err := f.converter.ConvertString(string(body))
	if err != nil {
		return "", fmt.Errorf("fetch: convert %s: %w", u, err)
	}
	return markdown, nil
}

// GitHubRef identifies a file in a repository.
type GitHubRef struct {
	Owner string
	Repo  string
	Path  string
	Ref   string // branch, tag or SHA; empty means the default branch
}

// ParseGitHubRef parses "github:owner/repo/path/to/file[@ref]".
func ParseGitHubRef(s string) (GitHubRef, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "github:")
	if !ok {
		return GitHubRef{}, false
	}
	var ref string
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		rest, ref = rest[:i], rest[i+1:]
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return GitHubRef{}, false
	}
	return GitHubRef{Owner: parts[0], Repo: parts[1], Path: parts[2], Ref: ref}, true
}

// GitHubFile returns the decoded contents of a repository file.
func (f *Fetcher) GitHubFile(ctx context.Context, ref GitHubRef) (string, error) {
	var opts *github.RepositoryContentGetOptions
	if ref.Ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref.Ref}
	}
	file, dir, _, err := f.github.Repositories.GetContents(ctx, ref.Owner, ref.Repo, ref.Path, opts)
	if err != nil {
		return "", fmt.Errorf("fetch: github %s/%s/%s: %w", ref.Owner, ref.Repo, ref.Path, err)
	}
	if file == nil {
		return "", fmt.Errorf("fetch: github %s/%s/%s is a directory (%d entries)", ref.Owner, ref.Repo, ref.Path, len(dir))
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("fetch: github decode %s: %w", ref.Path, err)
	}
	return content, nil
}

// Encode compresses text with zlib and returns it base64 encoded.
func Encode(text string) (string, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := io.WriteString(w, text); err != nil {
		return "", fmt.Errorf("fetch: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("fetch: compress: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode reverses Encode.
func Decode(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("fetch: base64: %w", err)
	}
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("fetch: decompress: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("fetch: decompress: %w", err)
	}
	return string(out), nil
}
