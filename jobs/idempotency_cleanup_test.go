package jobs_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Danu-Nur/lumbung-sub003/jobs"
)

type fakeKeyStore struct {
	olderThan time.Duration
	calls     int
	err       error
}

func (f *fakeKeyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	f.calls++
	f.olderThan = olderThan
	return f.err
}

func TestJanitorSweepsWithConfiguredRetention(t *testing.T) {
	store := &fakeKeyStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	janitor := jobs.NewIdempotencyJanitor(store, 7*24*time.Hour, logger)

	task := jobs.NewIdempotencySweepTask()
	require.NoError(t, janitor.Handle(context.Background(), task))
	require.Equal(t, 1, store.calls)
	require.Equal(t, 7*24*time.Hour, store.olderThan)
}

func TestJanitorPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("connection reset")
	store := &fakeKeyStore{err: boom}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	janitor := jobs.NewIdempotencyJanitor(store, time.Hour, logger)

	err := janitor.Sweep(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, store.calls)
}
