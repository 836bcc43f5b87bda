package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/radtrack/internal/models"
)

// Transport talks to the server-of-record. GetJSON and PostJSON are awaitable;
// Beacon is best-effort and has no error channel.
type Transport interface {
	GetJSON(ctx context.Context, path string, out any) error
	PostJSON(ctx context.Context, path string, body, out any) error
	Beacon(path string, body any)
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Body)
}

// HTTPTransport is a Transport over HTTP that identifies the caller with the
// X-Access-Code header.
type HTTPTransport struct {
	BaseURL    string
	AccessCode string

	httpClient    *http.Client
	beaconTimeout time.Duration
	beacons       sync.WaitGroup
}

// NewHTTPTransport creates a transport with the given request timeout.
func NewHTTPTransport(baseURL, accessCode string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AccessCode: accessCode,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		beaconTimeout: 5 * time.Second,
	}
}

func (t *HTTPTransport) GetJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return t.do(req, out)
}

func (t *HTTPTransport) PostJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return t.post(ctx, path, data, out)
}

// Beacon serializes body now and sends it from a goroutine on a detached
// context. The caller never observes the outcome.
func (t *HTTPTransport) Beacon(path string, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Warn("Dropping beacon", "path", path, "err", err)
		return
	}
	t.beacons.Add(1)
	go func() {
		defer t.beacons.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.beaconTimeout)
		defer cancel()
		if err := t.post(ctx, path, data, nil); err != nil {
			slog.Debug("Beacon failed", "path", path, "err", err)
		}
	}()
}

// Drain waits up to timeout for queued beacons to leave the process. It is the
// process-level equivalent of a browser finishing sendBeacon after unload.
func (t *HTTPTransport) Drain(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		t.beacons.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		slog.Debug("Beacon drain timed out", "timeout", timeout)
	}
}

func (t *HTTPTransport) post(ctx context.Context, path string, data []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req, out)
}

func (t *HTTPTransport) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if t.AccessCode != "" {
		req.Header.Set(models.AccessCodeHeader, t.AccessCode)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
