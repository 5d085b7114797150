// Package remote sends intents to a running imageledger server over its
// HTTP API, for a watcher deployed apart from the server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mattjoyce/imageledger/internal/artifact"
	"github.com/mattjoyce/imageledger/internal/failure"
	"github.com/mattjoyce/imageledger/internal/ledger"
	"github.com/mattjoyce/imageledger/internal/processing"
)

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client implements processing.Intents against the HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    HTTPDoer
	store   *artifact.Store
	logger  *slog.Logger
}

var _ processing.Intents = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends a bearer token with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) { c.http = doer }
}

// WithArtifacts lets Delete remove the local derived file even when the
// server has no job for the path.
func WithArtifacts(store *artifact.Store) Option {
	return func(c *Client) { c.store = store }
}

// New returns a Client for the server at baseURL.
func New(baseURL string, logger *slog.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type submitResponse struct {
	Message     string `json:"message"`
	Fingerprint string `json:"file_hash"`
	Status      string `json:"status"`
	Outcome     string `json:"outcome"`
	Error       string `json:"error"`
}

type errorResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
}

// Submit posts path to /images. The server runs the pipeline synchronously.
func (c *Client) Submit(ctx context.Context, path string) (*processing.Result, error) {
	var resp submitResponse
	body := map[string]string{"file_path": path}
	if err := c.do(ctx, http.MethodPost, "/images", body, &resp); err != nil {
		return nil, err
	}
	return &processing.Result{
		Fingerprint: resp.Fingerprint,
		Path:        path,
		Status:      ledger.Status(resp.Status),
		Outcome:     ledger.Outcome(resp.Outcome),
		Error:       resp.Error,
	}, nil
}

// Delete resolves path to a fingerprint and deletes it on the server. The
// local derived file, when a store is configured, is removed in every case.
func (c *Client) Delete(ctx context.Context, path string) error {
	fp, err := c.LookupPath(ctx, path)
	if err == nil {
		err = c.do(ctx, http.MethodDelete, "/images/"+url.PathEscape(fp), nil, nil)
		if failure.Is(err, failure.KindNotFound) {
			c.logger.Debug("job already gone on server", "fingerprint", fp)
			err = nil
		}
	}
	if c.store != nil {
		if _, rmErr := c.store.Remove(path); rmErr != nil {
			return errors.Join(err, rmErr)
		}
	}
	return err
}

// LookupPath asks the server for the fingerprint registered at path.
func (c *Client) LookupPath(ctx context.Context, path string) (string, error) {
	var resp struct {
		Fingerprint string `json:"file_hash"`
	}
	q := url.Values{"file_path": {path}}
	if err := c.do(ctx, http.MethodGet, "/images/get-image-id?"+q.Encode(), nil, &resp); err != nil {
		return "", err
	}
	if resp.Fingerprint == "" {
		return "", failure.Newf(failure.KindStore, "lookup", "server returned an empty file_hash")
	}
	return resp.Fingerprint, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	op := method + " " + strings.SplitN(path, "?", 2)[0]

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return failure.New(failure.KindIO, op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return failure.New(failure.KindIO, op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 300 {
		return responseError(op, resp.StatusCode, payload)
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return failure.New(failure.KindStore, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func responseError(op string, code int, payload []byte) error {
	var e errorResponse
	msg := strings.TrimSpace(string(payload))
	if json.Unmarshal(payload, &e) == nil && e.Message != "" {
		msg = e.Message
	}
	if msg == "" {
		msg = http.StatusText(code)
	}

	kind := failure.Kind(e.ErrorType)
	switch kind {
	case failure.KindNotFound, failure.KindIO, failure.KindTransform, failure.KindValidation, failure.KindStore, failure.KindConflict:
	default:
		kind = kindForStatus(code)
	}
	return failure.Newf(kind, op, "server returned %d: %s", code, msg)
}

func kindForStatus(code int) failure.Kind {
	switch code {
	case http.StatusNotFound:
		return failure.KindNotFound
	case http.StatusBadRequest:
		return failure.KindValidation
	case http.StatusConflict:
		return failure.KindConflict
	default:
		return failure.KindStore
	}
}
