package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_IngestsOnFileCreate(t *testing.T) {
	p := newTestPipeline(t)
	dir := t.TempDir()

	w := NewWatcher(p.Pipeline, dir, 50*time.Millisecond, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"),
		[]byte("A freshly dropped document with enough text to chunk."), 0o644))

	require.Eventually(t, func() bool {
		n, err := p.metadata.CountDocuments(context.Background())
		return err == nil && n == 1
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}

func TestWatcher_IgnoresUnsupportedFiles(t *testing.T) {
	p := newTestPipeline(t)
	dir := t.TempDir()

	w := NewWatcher(p.Pipeline, dir, 50*time.Millisecond, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.csv"), []byte("a,b,c"), 0o644))

	// No ingest should happen for an unsupported file.
	time.Sleep(300 * time.Millisecond)
	n, err := p.metadata.CountDocuments(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWatcher_DebounceDefaults(t *testing.T) {
	p := newTestPipeline(t)
	w := NewWatcher(p.Pipeline, t.TempDir(), 0, nil)
	assert.Equal(t, DefaultDebounce, w.debounce)
}
