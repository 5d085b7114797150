package reconcile

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/imageledger/internal/artifact"
	"github.com/mattjoyce/imageledger/internal/events"
	"github.com/mattjoyce/imageledger/internal/ledger"
	"github.com/mattjoyce/imageledger/internal/log"
	"github.com/mattjoyce/imageledger/internal/processing"
	"github.com/mattjoyce/imageledger/internal/storage"
	"github.com/mattjoyce/imageledger/internal/transform"
)

// recordingIntents writes a derived file for every submit, mimicking a
// successful pipeline.
type recordingIntents struct {
	mu        sync.Mutex
	store     *artifact.Store
	submitted []string
	fail      map[string]error
}

func (r *recordingIntents) Submit(_ context.Context, path string) (*processing.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, filepath.Base(path))
	if err := r.fail[filepath.Base(path)]; err != nil {
		return nil, err
	}
	if err := r.store.Ensure(); err != nil {
		return nil, err
	}
	if err := os.WriteFile(r.store.Path(path), []byte("derived"), 0o644); err != nil {
		return nil, err
	}
	return &processing.Result{Path: path, Status: ledger.StatusSuccess}, nil
}

func (r *recordingIntents) Delete(context.Context, string) error { return nil }

func dirs(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	src, dst := filepath.Join(root, "in"), filepath.Join(root, "out")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.MkdirAll(dst, 0o755))
	return src, dst
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
}

func newIntents(t *testing.T, dst string) *recordingIntents {
	t.Helper()
	store, err := artifact.NewStore(dst)
	require.NoError(t, err)
	return &recordingIntents{store: store, fail: map[string]error{}}
}

func TestReconcileConverges(t *testing.T) {
	src, dst := dirs(t)
	touch(t, src, "a.jpg", "b.jpg", "readme.txt")
	intents := newIntents(t, dst)
	hub := events.NewHub(8)
	r := New(intents, hub, log.Discard())

	report, err := r.Reconcile(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Resubmitted)
	assert.Zero(t, report.Removed)
	assert.Zero(t, report.Failed)
	assert.ElementsMatch(t, []string{"a.jpg", "b.jpg"}, intents.submitted)

	again, err := r.Reconcile(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Zero(t, again.Resubmitted)
	assert.Zero(t, again.Removed)
	assert.NotEqual(t, report.RunID, again.RunID)

	evs := hub.SnapshotSince(0)
	require.Len(t, evs, 2)
	assert.Equal(t, events.TypeReconcileCompleted, evs[1].Type)
}

func TestReconcileRemovesOrphans(t *testing.T) {
	src, dst := dirs(t)
	touch(t, src, "a.jpg")
	touch(t, dst, "a.jpg", "c.jpg")
	intents := newIntents(t, dst)

	report, err := New(intents, nil, log.Discard()).Reconcile(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Zero(t, report.Resubmitted)
	assert.NoFileExists(t, filepath.Join(dst, "c.jpg"))
	assert.FileExists(t, filepath.Join(dst, "a.jpg"))
}

func TestReconcileMatchesOnStem(t *testing.T) {
	src, dst := dirs(t)
	touch(t, src, "photo.PNG", "scan.webp")
	touch(t, dst, "photo.jpg")
	intents := newIntents(t, dst)

	report, err := New(intents, nil, log.Discard()).Reconcile(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resubmitted)
	assert.Equal(t, []string{"scan.webp"}, intents.submitted)
	assert.FileExists(t, filepath.Join(dst, "scan.jpg"))
}

func TestReconcileCountsFailuresAndContinues(t *testing.T) {
	src, dst := dirs(t)
	touch(t, src, "a.jpg", "b.jpg")
	intents := newIntents(t, dst)
	intents.fail["a.jpg"] = errors.New("read failed")

	report, err := New(intents, nil, log.Discard()).Reconcile(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Resubmitted)
	assert.Equal(t, 1, report.Failed)
	assert.FileExists(t, filepath.Join(dst, "b.jpg"))
}

func TestReconcileMissingSourceDir(t *testing.T) {
	_, dst := dirs(t)
	_, err := New(newIntents(t, dst), nil, log.Discard()).
		Reconcile(context.Background(), filepath.Join(t.TempDir(), "missing"), dst)
	require.Error(t, err)
}

func TestReconcileStopsOnCancel(t *testing.T) {
	src, dst := dirs(t)
	touch(t, src, "a.jpg")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(newIntents(t, dst), nil, log.Discard()).Reconcile(ctx, src, dst)
	assert.ErrorIs(t, err, context.Canceled)
}

func writePNG(t *testing.T, path string, shade uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	img.Set(0, 0, color.Gray{Y: shade + 1})
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// End to end: real ledger, real transform, duplicates and renames.
func TestReconcileWithProcessingClient(t *testing.T) {
	root := t.TempDir()
	src, dst := filepath.Join(root, "in"), filepath.Join(root, "out")
	require.NoError(t, os.MkdirAll(src, 0o755))

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(root, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := artifact.NewStore(dst)
	require.NoError(t, err)
	resizer, err := transform.NewResizer(transform.DefaultOptions())
	require.NoError(t, err)
	l := ledger.New(db)
	client := processing.New(l, resizer, store, nil, 0, log.Discard())
	r := New(client, nil, log.Discard())
	ctx := context.Background()

	writePNG(t, filepath.Join(src, "a.png"), 10)
	writePNG(t, filepath.Join(src, "b.png"), 20)
	writePNG(t, filepath.Join(src, "a-copy.png"), 10)

	report, err := r.Reconcile(ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Resubmitted)
	assert.Zero(t, report.Failed)

	jobs, err := l.List(ctx, ledger.StatusSuccess)
	require.NoError(t, err)
	assert.Len(t, jobs, 2, "duplicate content shares one job")

	// Rename while offline: the old artifact is orphaned, the new name is
	// resubmitted as a duplicate and reuses the existing job.
	require.NoError(t, os.Rename(filepath.Join(src, "b.png"), filepath.Join(src, "c.png")))
	report, err = r.Reconcile(ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resubmitted)
	assert.Equal(t, 1, report.Removed)

	fp, err := l.LookupByPath(ctx, filepath.Join(src, "c.png"))
	require.NoError(t, err)
	job, err := l.LookupByFingerprint(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSuccess, job.Status)

	report, err = r.Reconcile(ctx, src, dst)
	require.NoError(t, err)
	assert.Zero(t, report.Resubmitted)
	assert.Zero(t, report.Removed)

	for _, name := range []string{"a.jpg", "a-copy.jpg", "c.jpg"} {
		assert.FileExists(t, filepath.Join(dst, name))
	}
	assert.NoFileExists(t, filepath.Join(dst, "b.jpg"))
}

func TestReconcileAfterDeletingOwnerOfDuplicate(t *testing.T) {
	root := t.TempDir()
	src, dst := filepath.Join(root, "in"), filepath.Join(root, "out")
	require.NoError(t, os.MkdirAll(src, 0o755))

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(root, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := artifact.NewStore(dst)
	require.NoError(t, err)
	resizer, err := transform.NewResizer(transform.DefaultOptions())
	require.NoError(t, err)
	l := ledger.New(db)
	client := processing.New(l, resizer, store, nil, 0, log.Discard())
	r := New(client, nil, log.Discard())
	ctx := context.Background()

	a, b := filepath.Join(src, "a.png"), filepath.Join(src, "b.png")
	writePNG(t, a, 10)
	writePNG(t, b, 10)
	_, err = r.Reconcile(ctx, src, dst)
	require.NoError(t, err)

	require.NoError(t, os.Remove(a))
	require.NoError(t, client.Delete(ctx, a))

	report, err := r.Reconcile(ctx, src, dst)
	require.NoError(t, err)
	assert.Zero(t, report.Resubmitted)
	assert.Zero(t, report.Removed)

	jobs, err := l.List(ctx, ledger.StatusSuccess)
	require.NoError(t, err)
	require.Len(t, jobs, 1, "the surviving duplicate keeps a ledger row")
	assert.Equal(t, b, jobs[0].SourcePath)
	assert.FileExists(t, filepath.Join(dst, "b.jpg"))

	job, _, err := client.Random(ctx)
	require.NoError(t, err)
	assert.Equal(t, b, job.SourcePath)
}
