package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/babelcloud/gbox/packages/visual-test/config"
	"github.com/babelcloud/gbox/packages/visual-test/pkg/logger"
	model "github.com/babelcloud/gbox/packages/visual-test/pkg/visual"
)

const (
	// Timeout for artifact reclamation
	artifactReclaimTimeout = 10 * time.Minute
)

// Reclaimer removes stale temp and diff images
type Reclaimer interface {
	Reclaim(ctx context.Context, maxAge time.Duration) (*model.ReclaimResult, error)
}

// Manager manages cron jobs
type Manager struct {
	cron      *cron.Cron
	logger    *logger.Logger
	reclaimer Reclaimer
	schedule  string
	maxAge    time.Duration
}

// NewManager creates a new cron manager
func NewManager(logger *logger.Logger, reclaimer Reclaimer, cfg config.ReclaimConfig) *Manager {
	return &Manager{
		cron:      cron.New(cron.WithLogger(cron.DefaultLogger)),
		logger:    logger,
		reclaimer: reclaimer,
		schedule:  cfg.Schedule,
		maxAge:    cfg.MaxAge,
	}
}

// Start starts the cron manager. An empty schedule or a non-positive max
// age disables reclamation.
func (m *Manager) Start() error {
	if m.schedule == "" || m.maxAge <= 0 {
		m.logger.Info("Artifact reclamation disabled")
		return nil
	}
	if _, err := m.cron.AddFunc(m.schedule, m.reclaimArtifacts); err != nil {
		return err
	}
	m.cron.Start()
	m.logger.Info("Cron manager started, reclaiming artifacts older than %v on %q", m.maxAge, m.schedule)
	return nil
}

// Stop stops the cron manager and waits for a running job
func (m *Manager) Stop() {
	<-m.cron.Stop().Done()
	m.logger.Info("Cron manager stopped")
}

// reclaimArtifacts runs the artifact reclamation job
func (m *Manager) reclaimArtifacts() {
	m.logger.Info("Running scheduled artifact reclamation")
	ctx, cancel := context.WithTimeout(context.Background(), artifactReclaimTimeout)
	defer cancel()

	result, err := m.reclaimer.Reclaim(ctx, m.maxAge)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			m.logger.Error("Artifact reclamation timed out after %v", artifactReclaimTimeout)
		} else {
			m.logger.Error("Failed to reclaim artifacts: %v", err)
		}
		return
	}
	for _, e := range result.Errors {
		m.logger.Warn("%s", e)
	}
}
