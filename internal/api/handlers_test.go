package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/imageledger/internal/events"
	"github.com/mattjoyce/imageledger/internal/failure"
	"github.com/mattjoyce/imageledger/internal/ledger"
	"github.com/mattjoyce/imageledger/internal/log"
	"github.com/mattjoyce/imageledger/internal/processing"
)

// mockImages implements Images for testing
type mockImages struct {
	submitFunc func(ctx context.Context, path string) (*processing.Result, error)
	jobs       map[string]*ledger.Job
	paths      map[string]string
	random     []byte
	countsErr  error
	deleted    []string
}

func (m *mockImages) Submit(ctx context.Context, path string) (*processing.Result, error) {
	return m.submitFunc(ctx, path)
}

func (m *mockImages) LookupPath(_ context.Context, path string) (string, error) {
	fp, ok := m.paths[path]
	if !ok {
		return "", failure.New(failure.KindNotFound, "lookup", ledger.ErrNotFound)
	}
	return fp, nil
}

func (m *mockImages) DeleteByFingerprint(_ context.Context, fp string) error {
	if _, ok := m.jobs[fp]; !ok {
		return failure.New(failure.KindNotFound, "delete", ledger.ErrNotFound)
	}
	delete(m.jobs, fp)
	m.deleted = append(m.deleted, fp)
	return nil
}

func (m *mockImages) Job(_ context.Context, fp string) (*ledger.Job, error) {
	job, ok := m.jobs[fp]
	if !ok {
		return nil, failure.New(failure.KindNotFound, "job", ledger.ErrNotFound)
	}
	return job, nil
}

func (m *mockImages) Random(context.Context) (*ledger.Job, []byte, error) {
	for _, job := range m.jobs {
		if job.Status == ledger.StatusSuccess {
			return job, m.random, nil
		}
	}
	return nil, nil, failure.Newf(failure.KindNotFound, "random", "no processed images")
}

func (m *mockImages) Counts(context.Context) (map[ledger.Status]int, error) {
	if m.countsErr != nil {
		return nil, m.countsErr
	}
	out := map[ledger.Status]int{ledger.StatusProcessing: 0, ledger.StatusSuccess: 0, ledger.StatusError: 0}
	for _, job := range m.jobs {
		out[job.Status]++
	}
	return out, nil
}

func newMockImages() *mockImages {
	return &mockImages{
		submitFunc: func(_ context.Context, path string) (*processing.Result, error) {
			return &processing.Result{Fingerprint: "fp-a", Path: path, Status: ledger.StatusSuccess, Outcome: ledger.OutcomeCreated}, nil
		},
		jobs: map[string]*ledger.Job{
			"fp-a": {Fingerprint: "fp-a", SourcePath: "/in/a.jpg", Status: ledger.StatusSuccess, CreatedAt: time.Unix(0, 0).UTC()},
		},
		paths:  map[string]string{"/in/a.jpg": "fp-a"},
		random: []byte("jpeg-bytes"),
	}
}

func newTestServer(images Images, apiKey string) (*Server, *events.Hub) {
	hub := events.NewHub(10)
	return New(Config{Listen: "localhost:0", APIKey: apiKey}, images, hub, log.Discard()), hub
}

func do(t *testing.T, h http.Handler, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&e))
	assert.Equal(t, "error", e.Status)
	return e
}

func TestHandleSubmit(t *testing.T) {
	images := newMockImages()
	s, _ := newTestServer(images, "")
	h := s.Handler()

	rr := do(t, h, http.MethodPost, "/images", SubmitRequest{FilePath: "/in/a.jpg"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var resp SubmitResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "Image processed successfully", resp.Message)
	assert.Equal(t, "fp-a", resp.Fingerprint)
	assert.Equal(t, "success", resp.Status)

	rr = do(t, h, http.MethodPost, "/images", SubmitRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, string(failure.KindValidation), decodeError(t, rr).ErrorType)

	req := httptest.NewRequest(http.MethodPost, "/images", strings.NewReader("{not json"))
	bad := httptest.NewRecorder()
	h.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestHandleSubmitFailures(t *testing.T) {
	images := newMockImages()
	s, _ := newTestServer(images, "")
	h := s.Handler()

	images.submitFunc = func(context.Context, string) (*processing.Result, error) {
		return nil, failure.New(failure.KindNotFound, "submit", errors.New("open /in/x.jpg: no such file or directory"))
	}
	rr := do(t, h, http.MethodPost, "/images", SubmitRequest{FilePath: "/in/x.jpg"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	e := decodeError(t, rr)
	assert.Equal(t, "not_found", e.ErrorType)
	assert.Contains(t, e.Message, "no such file")

	images.submitFunc = func(context.Context, string) (*processing.Result, error) {
		return nil, failure.New(failure.KindStore, "ledger register", errors.New("database disk image is malformed"))
	}
	rr = do(t, h, http.MethodPost, "/images", SubmitRequest{FilePath: "/in/x.jpg"})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	e = decodeError(t, rr)
	assert.NotContains(t, e.Message, "malformed", "5xx bodies do not leak internals")

	images.submitFunc = func(_ context.Context, path string) (*processing.Result, error) {
		return &processing.Result{Fingerprint: "fp-bad", Path: path, Status: ledger.StatusError, Outcome: ledger.OutcomeCreated, Error: "transform: image is too big"}, nil
	}
	rr = do(t, h, http.MethodPost, "/images", SubmitRequest{FilePath: "/in/bad.jpg"})
	assert.Equal(t, http.StatusCreated, rr.Code)
	var resp SubmitResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "Image processing failed", resp.Message)
	assert.Contains(t, resp.Error, "too big")
}

func TestHandleGetImageID(t *testing.T) {
	s, _ := newTestServer(newMockImages(), "")
	h := s.Handler()

	rr := do(t, h, http.MethodGet, "/images/get-image-id?file_path=%2Fin%2Fa.jpg", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp ImageIDResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "fp-a", resp.Fingerprint)

	rr = do(t, h, http.MethodGet, "/images/get-image-id?file_path=%2Fin%2Fnope.jpg", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodGet, "/images/get-image-id", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleGetAndDeleteImage(t *testing.T) {
	images := newMockImages()
	s, _ := newTestServer(images, "")
	h := s.Handler()

	rr := do(t, h, http.MethodGet, "/images/fp-a", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var job JobResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&job))
	assert.Equal(t, "/in/a.jpg", job.FilePath)
	assert.Equal(t, "success", job.Status)

	rr = do(t, h, http.MethodDelete, "/images/fp-a", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []string{"fp-a"}, images.deleted)

	rr = do(t, h, http.MethodDelete, "/images/fp-a", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodGet, "/images/fp-a", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleRandomImage(t *testing.T) {
	images := newMockImages()
	s, _ := newTestServer(images, "")
	h := s.Handler()

	rr := do(t, h, http.MethodGet, "/random-image", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp RandomImageResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "fp-a", resp.Fingerprint)
	raw, err := base64.StdEncoding.DecodeString(resp.Image)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(raw))

	images.jobs = map[string]*ledger.Job{}
	rr = do(t, h, http.MethodGet, "/random-image", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleHealthz(t *testing.T) {
	images := newMockImages()
	s, _ := newTestServer(images, "secret")
	h := s.Handler()

	rr := do(t, h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code, "healthz needs no auth")
	var resp HealthzResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Jobs["success"])

	images.countsErr = errors.New("db closed")
	rr = do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestAuthRequiredWhenKeyConfigured(t *testing.T) {
	s, _ := newTestServer(newMockImages(), "secret")
	h := s.Handler()

	rr := do(t, h, http.MethodGet, "/images/fp-a", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rr).ErrorType)

	rr = do(t, h, http.MethodGet, "/images/fp-a", nil, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, h, http.MethodGet, "/images/fp-a", nil, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestOpenAPI(t *testing.T) {
	s, _ := newTestServer(newMockImages(), "")
	rr := do(t, s.Handler(), http.MethodGet, "/openapi.json", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var doc map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&doc))
	paths := doc["paths"].(map[string]any)
	item := paths["/images/{file_hash}"].(map[string]any)
	assert.Contains(t, item, "get")
	assert.Contains(t, item, "delete")
	assert.NotContains(t, item["get"].(map[string]any), "security")
}

func TestHandleEventsStreamsPublished(t *testing.T) {
	s, hub := newTestServer(newMockImages(), "")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	hub.Publish(events.TypeImageProcessed, events.ImagePayload{Fingerprint: "early"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 32)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	waitFor := func(want string) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed before %q", want)
				}
				if strings.Contains(line, want) {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %q", want)
			}
		}
	}

	waitFor(`"file_hash":"early"`)
	hub.Publish(events.TypeImageDeleted, events.ImagePayload{Fingerprint: "late"})
	waitFor("event: image.deleted")
	waitFor(`"file_hash":"late"`)
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("-3"))
	assert.Equal(t, int64(0), parseLastEventID("abc"))
	assert.Equal(t, int64(42), parseLastEventID("42"))
}
