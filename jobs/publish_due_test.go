package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	ids   []int64
	err   error
	calls int
}

func (f *fakeSweeper) PublishDue(ctx context.Context) ([]int64, error) {
	f.calls++
	return f.ids, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishDueJobSweeps(t *testing.T) {
	sweeper := &fakeSweeper{ids: []int64{4, 9}}
	job := NewPublishDueJob(sweeper, discardLogger(), nil)

	err := job.Handle(context.Background(), NewPublishDueTask())
	require.NoError(t, err)
	require.Equal(t, 1, sweeper.calls)
}

func TestPublishDueJobPropagatesSweepError(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("pool down")}
	job := NewPublishDueJob(sweeper, discardLogger(), nil)

	err := job.Handle(context.Background(), NewPublishDueTask())
	require.Error(t, err)
}

func TestPublishDueJobRequiresSweeper(t *testing.T) {
	job := &PublishDueJob{Logger: discardLogger()}
	err := job.Handle(context.Background(), NewPublishDueTask())
	require.Error(t, err)
}
