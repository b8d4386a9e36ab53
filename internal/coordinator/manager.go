package coordinator

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/malosaaa/p2000mon/internal/config"
	"github.com/malosaaa/p2000mon/internal/metrics"
	"github.com/malosaaa/p2000mon/internal/scrape"
)

// Manager owns one coordinator per configured instance and drives them from a
// shared scheduler. Schedules that fire while the previous poll is still
// running are skipped, and a panicking poll never takes the scheduler down.
type Manager struct {
	log    *logrus.Logger
	cron   *cron.Cron
	coords map[string]*Coordinator
	order  []string
	ctx    context.Context
}

// NewManager builds coordinators for every configured instance and registers
// their poll schedules.
func NewManager(cfg config.Config, fetcher *scrape.Fetcher, m *metrics.Metrics, log *logrus.Logger) (*Manager, error) {
	cronLog := cron.PrintfLogger(log)
	mgr := &Manager{
		log:    log,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLog), cron.Recover(cronLog))),
		coords: make(map[string]*Coordinator, len(cfg.Instances)),
		ctx:    context.Background(),
	}

	for _, inst := range cfg.Instances {
		coord := New(inst, fetcher, m, log)
		spec := fmt.Sprintf("@every %s", inst.ScanInterval)
		if _, err := mgr.cron.AddFunc(spec, func() { coord.Poll(mgr.ctx) }); err != nil {
			return nil, fmt.Errorf("schedule instance %s: %w", inst.Name, err)
		}
		mgr.coords[coord.Name()] = coord
		mgr.order = append(mgr.order, coord.Name())

		log.WithFields(logrus.Fields{
			"instance": coord.Name(),
			"url":      coord.URL(),
			"interval": inst.ScanInterval,
		}).Info("instance registered")
	}

	return mgr, nil
}

// Start kicks off an immediate first poll for every instance and then starts
// the interval scheduler, so consumers see data without waiting a full
// interval.
func (m *Manager) Start(ctx context.Context) {
	m.ctx = ctx
	for _, name := range m.order {
		coord := m.coords[name]
		go coord.Poll(ctx)
	}
	m.cron.Start()
	m.log.WithField("instances", len(m.order)).Info("poll scheduler started")
}

// Stop halts the scheduler and waits for in-flight polls to finish, or for
// ctx to expire.
func (m *Manager) Stop(ctx context.Context) error {
	done := m.cron.Stop()
	select {
	case <-done.Done():
		m.log.Info("poll scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight polls: %w", ctx.Err())
	}
}

// Get returns the coordinator for an instance name.
func (m *Manager) Get(name string) (*Coordinator, bool) {
	c, ok := m.coords[name]
	return c, ok
}

// List returns all coordinators in configuration order.
func (m *Manager) List() []*Coordinator {
	out := make([]*Coordinator, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.coords[name])
	}
	return out
}
