package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/gbox/packages/visual-test/config"
	"github.com/babelcloud/gbox/packages/visual-test/pkg/logger"
	model "github.com/babelcloud/gbox/packages/visual-test/pkg/visual"
)

type fakeReclaimer struct {
	calls  atomic.Int32
	maxAge time.Duration
	err    error
}

func (f *fakeReclaimer) Reclaim(ctx context.Context, maxAge time.Duration) (*model.ReclaimResult, error) {
	f.calls.Add(1)
	f.maxAge = maxAge
	if f.err != nil {
		return nil, f.err
	}
	return &model.ReclaimResult{Errors: []string{"Error removing x: busy"}}, nil
}

func TestReclaimJobUsesMaxAge(t *testing.T) {
	r := &fakeReclaimer{}
	m := NewManager(logger.New(), r, config.ReclaimConfig{Schedule: "@daily", MaxAge: 48 * time.Hour})

	m.reclaimArtifacts()
	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, 48*time.Hour, r.maxAge)

	r.err = errors.New("disk gone")
	m.reclaimArtifacts()
	assert.Equal(t, int32(2), r.calls.Load())
}

func TestStart(t *testing.T) {
	r := &fakeReclaimer{}

	disabled := NewManager(logger.New(), r, config.ReclaimConfig{})
	require.NoError(t, disabled.Start())
	assert.Empty(t, disabled.cron.Entries())

	enabled := NewManager(logger.New(), r, config.ReclaimConfig{Schedule: "0 3 * * *", MaxAge: time.Hour})
	require.NoError(t, enabled.Start())
	assert.Len(t, enabled.cron.Entries(), 1)
	enabled.Stop()

	invalid := NewManager(logger.New(), r, config.ReclaimConfig{Schedule: "not a schedule", MaxAge: time.Hour})
	assert.Error(t, invalid.Start())
}
