// Package scriptsrc loads capture JavaScript from files, stdin or GitHub.
package scriptsrc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const (
	// GitHubPrefix marks a script reference such as gh:user/script
	GitHubPrefix = "gh:"

	defaultRepo    = "shot-power-scraper-scripts"
	defaultBranch  = "main"
	defaultBaseURL = "https://raw.githubusercontent.com"
	fetchTimeout   = 30 * time.Second
)

// ErrInvalidPath reports a GitHub reference that cannot be resolved
var ErrInvalidPath = errors.New("GitHub path format should be 'username/repo/path/to/file.js' or 'username/file.js'")

// Loader resolves script references
type Loader struct {
	client  *fasthttp.Client
	baseURL string
	stdin   io.Reader
}

// NewLoader creates a loader fetching from raw.githubusercontent.com
func NewLoader() *Loader {
	return &Loader{
		client: &fasthttp.Client{
			ReadTimeout:  fetchTimeout,
			WriteTimeout: fetchTimeout,
		},
		baseURL: defaultBaseURL,
		stdin:   os.Stdin,
	}
}

// WithBaseURL points GitHub fetches at another host
func (l *Loader) WithBaseURL(base string) *Loader {
	l.baseURL = strings.TrimRight(base, "/")
	return l
}

// WithStdin replaces the reader used for "-"
func (l *Loader) WithStdin(r io.Reader) *Loader {
	l.stdin = r
	return l
}

// Load reads a script: gh:user/script from GitHub, "-" from stdin,
// anything else from a local file.
func (l *Loader) Load(ctx context.Context, ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, GitHubPrefix):
		return l.FetchGitHub(ctx, strings.TrimPrefix(ref, GitHubPrefix))
	case ref == "-":
		data, err := io.ReadAll(l.stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read script from stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(ref)
		if err != nil {
			return "", fmt.Errorf("failed to read script: %w", err)
		}
		return string(data), nil
	}
}

// GitHubRawURL maps user/file to user/shot-power-scraper-scripts/file.js
// and user/repo/path/file to that repository, both on the main branch.
func GitHubRawURL(base, path string) (string, error) {
	path = strings.Trim(path, "/")
	if !strings.HasSuffix(path, ".js") {
		path += ".js"
	}
	parts := strings.Split(path, "/")
	if len(parts) == 2 {
		parts = []string{parts[0], defaultRepo, parts[1]}
	}
	if len(parts) < 3 || slices.Contains(parts, "") {
		return "", ErrInvalidPath
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s", base, parts[0], parts[1], defaultBranch, strings.Join(parts[2:], "/")), nil
}

// FetchGitHub downloads a script from GitHub
func (l *Loader) FetchGitHub(ctx context.Context, path string) (string, error) {
	url, err := GitHubRawURL(l.baseURL, path)
	if err != nil {
		return "", err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(fetchTimeout)
	}
	if err := l.client.DoDeadline(req, resp, deadline); err != nil {
		return "", fmt.Errorf("error fetching from GitHub: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return "", fmt.Errorf("failed to load content from GitHub: HTTP %d\nURL: %s", resp.StatusCode(), url)
	}
	return string(resp.Body()), nil
}
