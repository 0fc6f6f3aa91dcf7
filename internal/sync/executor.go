package sync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	stdsync "sync"

	"sitesync/internal/models"
)

// Executor sends one mutation to the remote API. It returns the HTTP status
// when a response was received; a non-nil error means no response arrived at
// all (transport failure). This layer imposes no timeout beyond the
// transport's own.
type Executor interface {
	Execute(ctx context.Context, m *models.QueuedMutation) (int, error)
}

// EntityFetcher retrieves the authoritative server snapshot of one entity.
type EntityFetcher interface {
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// HTTPExecutor resolves relative mutation targets against the configured
// base URL and replays them over net/http. The base URL can be swapped at
// runtime by an API_BASE_URL_UPDATE message.
type HTTPExecutor struct {
	client *http.Client
	auth   *AuthContext

	mu      stdsync.RWMutex
	baseURL string
}

func NewHTTPExecutor(baseURL string, auth *AuthContext) *HTTPExecutor {
	return &HTTPExecutor{
		client:  &http.Client{},
		auth:    auth,
		baseURL: baseURL,
	}
}

// SetBaseURL updates where relative mutation targets resolve.
func (e *HTTPExecutor) SetBaseURL(raw string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.baseURL = raw
}

// BaseURL returns the current resolution base.
func (e *HTTPExecutor) BaseURL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.baseURL
}

func (e *HTTPExecutor) resolve(target string) (string, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse target url: %w", err)
	}
	if ref.IsAbs() {
		return target, nil
	}

	base := e.BaseURL()
	if base == "" {
		return "", fmt.Errorf("relative target %q with no base url", target)
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	return parsed.ResolveReference(ref).String(), nil
}

func (e *HTTPExecutor) Execute(ctx context.Context, m *models.QueuedMutation) (int, error) {
	resolved, err := e.resolve(m.TargetURL)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, m.Method, resolved, bytes.NewReader(m.Body))
	if err != nil {
		return 0, err
	}
	for k, v := range m.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// Fetch issues a GET for the entity aggregate and returns the raw payload.
func (e *HTTPExecutor) Fetch(ctx context.Context, id string) ([]byte, error) {
	resolved, err := e.resolve("jobs/" + url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return nil, err
	}
	if token, ok := e.auth.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch entity %s: status %d", id, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
