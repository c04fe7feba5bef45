package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bakkal-monitor/price-radar/internal/config"
	"github.com/bakkal-monitor/price-radar/internal/logger"
)

type stubPruner struct {
	maxAge time.Duration
	batch  int
	err    error
	calls  int
}

func (s *stubPruner) DeleteOlderThan(_ context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	s.calls++
	s.maxAge, s.batch = maxAge, batchSize
	return 3, s.err
}

func TestRunOncePassesLimits(t *testing.T) {
	p := &stubPruner{}
	cfg := &config.Retention{MaxAge: 48 * time.Hour, BatchSize: 250}

	runOnce(context.Background(), logger.Discard(), p, cfg)

	require.Equal(t, 1, p.calls)
	require.Equal(t, 48*time.Hour, p.maxAge)
	require.Equal(t, 250, p.batch)
}

func TestRunOnceSurvivesFailure(t *testing.T) {
	p := &stubPruner{err: errors.New("timeout")}
	require.NotPanics(t, func() {
		runOnce(context.Background(), logger.Discard(), p, &config.Retention{MaxAge: time.Hour, BatchSize: 1})
	})
	require.Equal(t, 1, p.calls)
}
