package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/imageledger/internal/artifact"
	"github.com/mattjoyce/imageledger/internal/failure"
	"github.com/mattjoyce/imageledger/internal/ledger"
	"github.com/mattjoyce/imageledger/internal/log"
	"github.com/mattjoyce/imageledger/internal/processing"
	"github.com/mattjoyce/imageledger/internal/storage"
)

// copyTransformer writes the source bytes as the derived file. Content listed
// in fail is rejected the way a decoder rejects a corrupt image.
type copyTransformer struct {
	mu   sync.Mutex
	fail map[string]bool
}

func (c *copyTransformer) Transform(_ context.Context, src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	c.mu.Lock()
	bad := c.fail[string(data)]
	c.mu.Unlock()
	if bad {
		return failure.New(failure.KindTransform, "transform", errors.New("decode: invalid format"))
	}
	return os.WriteFile(dst, data, 0o644)
}

type pipeline struct {
	cfg    Config
	ledger *ledger.Ledger
	store  *artifact.Store
}

// startPipeline runs a watcher over a real ledger and processing client until
// the test ends.
func startPipeline(t *testing.T, tr *copyTransformer) *pipeline {
	t.Helper()
	root := t.TempDir()
	cfg := Config{
		SourceDir:     filepath.Join(root, "in"),
		DerivedDir:    filepath.Join(root, "out"),
		Settle:        5 * time.Millisecond,
		SettleTimeout: time.Second,
	}
	require.NoError(t, os.MkdirAll(cfg.SourceDir, 0o755))

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(root, "ledger.db"))
	require.NoError(t, err)
	store, err := artifact.NewStore(cfg.DerivedDir)
	require.NoError(t, err)
	l := ledger.New(db)
	client := processing.New(l, tr, store, nil, 0, log.Discard())

	w, err := New(cfg, client, log.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after cancel")
		}
		_ = db.Close()
	})
	return &pipeline{cfg: cfg, ledger: l, store: store}
}

func (p *pipeline) status(path string) ledger.Status {
	ctx := context.Background()
	fp, err := p.ledger.LookupByPath(ctx, path)
	if err != nil {
		return ""
	}
	job, err := p.ledger.LookupByFingerprint(ctx, fp)
	if err != nil {
		return ""
	}
	return job.Status
}

func TestPipelineDeletePropagates(t *testing.T) {
	p := startPipeline(t, &copyTransformer{})
	path := filepath.Join(p.cfg.SourceDir, "a.jpg")

	require.NoError(t, os.WriteFile(path, []byte("pixels"), 0o644))
	require.Eventually(t, func() bool {
		return p.status(path) == ledger.StatusSuccess && p.store.Exists(path)
	}, 5*time.Second, 10*time.Millisecond, "create must produce a job and a derived file")

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		_, err := p.ledger.LookupByPath(context.Background(), path)
		return failure.Is(err, failure.KindNotFound) && !p.store.Exists(path)
	}, 5*time.Second, 10*time.Millisecond, "delete must drop the job and the derived file")
}

func TestPipelineDeleteReleasesFailedPath(t *testing.T) {
	tr := &copyTransformer{fail: map[string]bool{"corrupt": true}}
	p := startPipeline(t, tr)
	path := filepath.Join(p.cfg.SourceDir, "a.jpg")

	require.NoError(t, os.WriteFile(path, []byte("corrupt"), 0o644))
	require.Eventually(t, func() bool {
		return p.status(path) == ledger.StatusError
	}, 5*time.Second, 10*time.Millisecond)
	assert.False(t, p.store.Exists(path))

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		_, err := p.ledger.LookupByPath(context.Background(), path)
		return failure.Is(err, failure.KindNotFound)
	}, 5*time.Second, 10*time.Millisecond, "a failed job must not keep its path after the source is gone")

	// New content under the same name is accepted rather than conflicting.
	require.NoError(t, os.WriteFile(path, []byte("repaired"), 0o644))
	require.Eventually(t, func() bool {
		return p.status(path) == ledger.StatusSuccess && p.store.Exists(path)
	}, 5*time.Second, 10*time.Millisecond)
}
