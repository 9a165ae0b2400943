package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// RefreshFunc runs one poll cycle.
type RefreshFunc func(ctx context.Context) error

// PollerConfig configures a Poller.
type PollerConfig struct {
	Period time.Duration
	Logger *zap.Logger
	// OnSkip is called when a tick fires while the previous one is still running.
	OnSkip func()
}

// Poller runs a RefreshFunc on a fixed wall-clock period until stopped. At
// most one cycle runs at a time; ticks that find a cycle in flight are
// skipped. Errors and panics from a cycle are logged and never end the
// schedule.
type Poller struct {
	name   string
	fn     RefreshFunc
	period time.Duration
	logger *zap.Logger
	onSkip func()

	inflight atomic.Bool
	cycles   sync.WaitGroup

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// StartPoller fires the first cycle immediately, then one per period.
func StartPoller(ctx context.Context, name string, fn RefreshFunc, cfg PollerConfig) *Poller {
	if cfg.Period <= 0 {
		cfg.Period = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.OnSkip == nil {
		cfg.OnSkip = func() {}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p := &Poller{
		name:   name,
		fn:     fn,
		period: cfg.Period,
		logger: cfg.Logger,
		onSkip: cfg.OnSkip,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// Cycles outlive Stop: they see the parent's values but not its cancellation.
	cycleCtx := context.WithoutCancel(ctx)
	go p.loop(loopCtx, cycleCtx)

	p.logger.Sugar().Infow("poller started", "poller", p.name, "period", p.period)
	return p
}

// Stop prevents future ticks and returns once the scheduling loop has exited.
// A cycle already running is left to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cancel()
	p.mu.Unlock()

	<-p.done
	p.logger.Sugar().Infow("poller stopped", "poller", p.name)
}

// Active reports whether the poller has not been stopped.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.stopped
}

// Wait blocks until the running cycle, if any, has returned.
func (p *Poller) Wait() {
	p.cycles.Wait()
}

func (p *Poller) loop(loopCtx, cycleCtx context.Context) {
	defer close(p.done)

	p.fire(cycleCtx)

	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
			// A tick and a stop can be ready together; stop wins.
			if loopCtx.Err() != nil {
				return
			}
			p.fire(cycleCtx)
		}
	}
}

func (p *Poller) fire(ctx context.Context) {
	if !p.inflight.CompareAndSwap(false, true) {
		p.onSkip()
		p.logger.Debug("tick skipped, cycle in flight", zap.String("poller", p.name))
		return
	}
	p.cycles.Add(1)
	go func() {
		defer p.cycles.Done()
		defer p.inflight.Store(false)
		p.run(ctx)
	}()
}

func (p *Poller) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("poll cycle panicked",
				zap.String("poller", p.name),
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	if err := p.fn(ctx); err != nil {
		p.logger.Warn("poll cycle failed", zap.String("poller", p.name), zap.Error(err))
	}
}
