// Package poller implements the self-throttling background job watcher.
//
// A Poller has two states, idle and polling. It starts polling when a
// job-creating mutation succeeds, or when the page regains visibility and a
// check reveals outstanding jobs. Each tick queries the injected check
// capability; when no job is active anymore the poller stops itself. Losing
// visibility stops the timer entirely rather than letting it run in the
// background. At most one timer is ever live per poller.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for poller operations.
var (
	pollTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_poll_ticks_total",
		Help: "Total poll ticks by outcome (active, drained, error)",
	}, []string{"outcome"})

	pollActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sync_poll_active_jobs",
		Help: "Active jobs observed by the last poll tick",
	})
)

// DefaultInterval is the fixed poll interval.
const DefaultInterval = 5 * time.Second

// Job is one asynchronous server-side job, e.g. a paper analysis run.
type Job struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
}

// CheckFunc is the injected job-status query capability.
type CheckFunc func(ctx context.Context) ([]Job, error)

// ActivePredicate reports whether a job is in a non-terminal state. Job
// status vocabularies differ per job kind, so the predicate is supplied by
// the consumer.
type ActivePredicate func(Job) bool

// Config holds poller configuration.
type Config struct {
	// Interval between checks. Zero means DefaultInterval.
	Interval time.Duration

	// CheckTimeout bounds each check call. Zero means the interval.
	CheckTimeout time.Duration

	// IsActive classifies jobs. Required.
	IsActive ActivePredicate

	// OnActive is invoked after each tick that still sees active jobs, with
	// the full job list, so dependent aggregate stats can refresh. Optional.
	OnActive func(jobs []Job)
}

// Poller watches outstanding jobs at a fixed interval and stops itself when
// none remain.
type Poller struct {
	check    CheckFunc
	isActive ActivePredicate
	onActive func([]Job)
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	active  bool
	visible bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates an idle poller. The page is assumed visible until SetVisible
// says otherwise.
func New(check CheckFunc, cfg Config) *Poller {
	if check == nil {
		panic("check func cannot be nil")
	}
	if cfg.IsActive == nil {
		panic("IsActive predicate cannot be nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = cfg.Interval
	}

	return &Poller{
		check:    check,
		isActive: cfg.IsActive,
		onActive: cfg.OnActive,
		interval: cfg.Interval,
		timeout:  cfg.CheckTimeout,
		visible:  true,
		logger:   log.With().Str("component", "poller").Logger(),
	}
}

// IsActive reports whether a poll loop is currently live.
func (p *Poller) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Start transitions idle -> polling. Starting an already-polling or hidden
// poller is a no-op, so a second job submission can call Start freely. The
// first check runs immediately, then every interval.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.active || !p.visible {
		p.mu.Unlock()
		return
	}
	p.active = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	stop, done := p.stop, p.done
	p.mu.Unlock()

	p.logger.Debug().Msg("Poller started")
	go p.loop(stop, done)
}

// Stop transitions polling -> idle. Idempotent; safe to call when already
// stopped. The timer is cleared before the active flag drops, so no tick can
// fire after Stop returns.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	stop, done := p.stop, p.done
	p.active = false
	p.stop = nil
	p.done = nil
	p.mu.Unlock()

	close(stop)
	<-done
	p.logger.Debug().Msg("Poller stopped")
}

// SetVisible feeds the host environment's visibility signal. Hiding the page
// pauses polling entirely; regaining visibility runs one check and resumes
// only if active jobs are found.
func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	was := p.visible
	p.visible = visible
	p.mu.Unlock()
	if was == visible {
		return
	}

	if !visible {
		p.Stop()
		return
	}

	// Visibility regained: one check decides whether to resume.
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	jobs, err := p.check(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Visibility-regain check failed")
		return
	}
	if p.countActive(jobs) > 0 {
		p.Start()
	}
}

// loop runs the poll cycle until drained or stopped. The self-stop path
// clears state directly rather than calling Stop, which would deadlock on
// done.
func (p *Poller) loop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Immediate first check: a just-created job is the common reason this
	// loop exists, and the visibility-regain path wants a fast verdict too.
	if p.tick() {
		p.selfStop(stop)
		return
	}

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if p.tick() {
				p.selfStop(stop)
				return
			}
		}
	}
}

// tick runs one check. It returns true when the poller should stop because
// no active jobs remain. Check failures keep the previous known state: the
// loop stays alive and the user sees nothing.
func (p *Poller) tick() bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	jobs, err := p.check(ctx)
	if err != nil {
		pollTicksTotal.WithLabelValues("error").Inc()
		p.logger.Warn().Err(err).Msg("Job status check failed")
		return false
	}

	active := p.countActive(jobs)
	pollActiveJobs.Set(float64(active))

	if active == 0 {
		pollTicksTotal.WithLabelValues("drained").Inc()
		p.logger.Info().Int("jobs", len(jobs)).Msg("No active jobs remain, stopping poller")
		return true
	}

	pollTicksTotal.WithLabelValues("active").Inc()
	p.logger.Debug().Int("active", active).Msg("Jobs still running")
	if p.onActive != nil {
		p.onActive(jobs)
	}
	return false
}

// selfStop clears poller state from inside the loop goroutine.
func (p *Poller) selfStop(stop chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// A concurrent Stop may have won; only clear our own session.
	if p.stop == stop {
		p.active = false
		p.stop = nil
		p.done = nil
	}
}

func (p *Poller) countActive(jobs []Job) int {
	count := 0
	for _, job := range jobs {
		if p.isActive(job) {
			count++
		}
	}
	return count
}
