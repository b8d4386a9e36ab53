package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/malosaaa/p2000mon/internal/classify"
	"github.com/malosaaa/p2000mon/internal/config"
	"github.com/malosaaa/p2000mon/internal/metrics"
	"github.com/malosaaa/p2000mon/internal/models"
	"github.com/malosaaa/p2000mon/internal/scrape"
)

// Coordinator owns the poll cycle for one monitored region: fetch the page,
// parse it, classify and select a message, and publish the result as state.
// At most one poll runs at a time; a poll that finds another in flight is
// skipped, never queued.
type Coordinator struct {
	name       string
	regionPath string
	interval   time.Duration
	sensors    []string
	filter     models.FilterConfig

	fetcher *scrape.Fetcher
	metrics *metrics.Metrics
	log     *logrus.Logger

	pollMu sync.Mutex // held for the duration of one poll

	mu        sync.RWMutex // guards state and lastParse
	state     models.CoordinatorState
	lastParse *ParseStats
}

// ParseStats summarizes the most recent successful parse, for diagnostics.
type ParseStats struct {
	Blocks    int      `json:"blocks"`
	Records   int      `json:"records"`
	Skipped   int      `json:"skipped"`
	Anomalies []string `json:"anomalies,omitempty"`
}

// New builds a coordinator for one configured instance.
func New(inst config.Instance, fetcher *scrape.Fetcher, m *metrics.Metrics, log *logrus.Logger) *Coordinator {
	return &Coordinator{
		name:       inst.Name,
		regionPath: inst.RegionPath,
		interval:   inst.ScanInterval,
		sensors:    inst.Sensors,
		filter:     inst.Filter,
		fetcher:    fetcher,
		metrics:    m,
		log:        log,
		state: models.CoordinatorState{
			Phase:            models.PhaseIdle,
			LastUpdateStatus: models.UpdateOK,
		},
	}
}

// Name returns the instance name.
func (c *Coordinator) Name() string { return c.name }

// RegionPath returns the configured region path.
func (c *Coordinator) RegionPath() string { return c.regionPath }

// URL returns the resolved page URL this coordinator polls.
func (c *Coordinator) URL() string { return c.fetcher.URL(c.regionPath) }

// Interval returns the poll interval.
func (c *Coordinator) Interval() time.Duration { return c.interval }

// Sensors returns the enabled attribute keys.
func (c *Coordinator) Sensors() []string { return c.sensors }

// Filter returns the configured service type filter.
func (c *Coordinator) Filter() models.FilterConfig { return c.filter }

// State returns a snapshot of the coordinator state. The snapshot shares the
// published message, which is never mutated after publication.
func (c *Coordinator) State() models.CoordinatorState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Poll runs one full cycle. It reports false when it was skipped because
// another poll was still in flight.
func (c *Coordinator) Poll(ctx context.Context) bool {
	if !c.pollMu.TryLock() {
		c.skip()
		return false
	}
	defer c.pollMu.Unlock()

	c.pollLocked(ctx)
	return true
}

// PollAsync starts a poll in the background. It reports false, without
// starting anything, when a poll is already in flight.
func (c *Coordinator) PollAsync(ctx context.Context) bool {
	if !c.pollMu.TryLock() {
		c.skip()
		return false
	}
	go func() {
		defer c.pollMu.Unlock()
		c.pollLocked(ctx)
	}()
	return true
}

func (c *Coordinator) skip() {
	c.log.WithField("instance", c.name).Debug("poll already in flight, skipping")
	c.metrics.RecordPoll(c.name, metrics.StatusSkipped)
}

// pollLocked is the cycle body. The caller holds pollMu.
func (c *Coordinator) pollLocked(ctx context.Context) {
	logger := c.log.WithFields(logrus.Fields{
		"instance": c.name,
		"poll_id":  uuid.NewString(),
	})

	now := time.Now()
	c.mu.Lock()
	c.state.Phase = models.PhaseFetching
	c.state.LastUpdateAttempt = &now
	c.mu.Unlock()

	start := time.Now()
	body, err := c.fetcher.Fetch(ctx, c.regionPath)
	c.metrics.ObserveFetch(c.name, time.Since(start))
	if err != nil {
		c.fail(logger, err)
		return
	}

	c.setPhase(models.PhaseParsing)
	res, err := scrape.Parse(body)
	if err != nil {
		c.fail(logger, err)
		return
	}
	if res.Skipped > 0 {
		logger.WithFields(logrus.Fields{
			"skipped":   res.Skipped,
			"anomalies": res.Anomalies,
		}).Debug("dropped call blocks with missing fields")
		c.metrics.AddBlocksSkipped(c.name, res.Skipped)
	}

	c.setPhase(models.PhaseSelecting)
	classify.Annotate(res.Records)
	selected, matched := classify.Select(res.Records, c.filter)

	c.publish(logger, res, selected, matched)
}

// publish installs a successful poll result and resets the error run.
func (c *Coordinator) publish(logger *logrus.Entry, res *scrape.ParseResult, selected *models.MessageRecord, matched bool) {
	now := time.Now()

	c.mu.Lock()
	prev := c.state.LastMessage
	c.state.LastMessage = selected
	c.state.MatchesFilter = matched
	c.state.LastUpdateStatus = models.UpdateOK
	c.state.LastSuccessfulUpdate = &now
	c.state.ConsecutiveErrors = 0
	c.state.LastError = ""
	c.state.Phase = models.PhasePublished
	c.lastParse = &ParseStats{
		Blocks:    res.Blocks,
		Records:   len(res.Records),
		Skipped:   res.Skipped,
		Anomalies: res.Anomalies,
	}
	c.mu.Unlock()

	c.metrics.RecordPoll(c.name, metrics.StatusOK)
	c.metrics.SetConsecutiveErrors(c.name, 0)
	c.metrics.SetLastSuccess(c.name, now)

	if isNewMessage(prev, selected) {
		c.metrics.RecordNewMessage(c.name, string(selected.ServiceType))
		logger.WithFields(logrus.Fields{
			"priority_code":  selected.PriorityCode,
			"service_type":   selected.ServiceType,
			"location":       selected.Location,
			"matches_filter": matched,
		}).Info("new message published")
	} else {
		logger.Debug("poll complete, no new message")
	}
}

// isNewMessage reports whether the selection should count as fresh activity.
// A selection older than the previous one happens when the page reorders or a
// filtered match scrolls away, and is not news.
func isNewMessage(prev, sel *models.MessageRecord) bool {
	if sel == nil {
		return false
	}
	if prev == nil {
		return true
	}
	return !prev.Equal(*sel) && !sel.Timestamp.Before(prev.Timestamp)
}

// fail records a failed poll. Published data from earlier successes is kept
// so consumers still see the last known messages.
func (c *Coordinator) fail(logger *logrus.Entry, err error) {
	kind := errorKind(err)

	c.mu.Lock()
	c.state.ConsecutiveErrors++
	c.state.LastUpdateStatus = models.UpdateError
	c.state.LastError = err.Error()
	c.state.Phase = models.PhaseFailed
	n := c.state.ConsecutiveErrors
	c.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"kind":               kind,
		"consecutive_errors": n,
	}).Errorf("poll failed: %v", err)

	c.metrics.RecordPoll(c.name, metrics.StatusError)
	c.metrics.RecordError(c.name, kind)
	c.metrics.SetConsecutiveErrors(c.name, n)

	// The cause stays in the diagnostic fields; the pipeline itself rests
	// idle until the next tick.
	c.setPhase(models.PhaseIdle)
}

func (c *Coordinator) setPhase(p models.Phase) {
	c.mu.Lock()
	c.state.Phase = p
	c.mu.Unlock()
}

// errorKind maps a poll error onto its metric and log label.
func errorKind(err error) string {
	var ferr *scrape.FetchError
	if errors.As(err, &ferr) {
		return string(ferr.Kind)
	}
	if errors.Is(err, scrape.ErrStructureChanged) {
		return "structure_changed"
	}
	return "internal"
}
