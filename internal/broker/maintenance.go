package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quernio/quern/internal/events"
	"github.com/quernio/quern/internal/queue"
	"github.com/quernio/quern/pkg/log"
)

// DefaultMaintenanceInterval is the background sweep period when none is
// configured.
const DefaultMaintenanceInterval = 60 * time.Second

// sweepConcurrency bounds how many queues sweep at once.
const sweepConcurrency = 8

// maintenance holds the background sweep loop's state.
type maintenance struct {
	interval time.Duration
	auto     bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	sweeps    atomic.Uint64
	lastSweep atomic.Int64
}

func newMaintenance() *maintenance {
	return &maintenance{interval: DefaultMaintenanceInterval}
}

// MaintenanceStatus describes the sweep scheduler.
type MaintenanceStatus struct {
	Running         bool   `json:"running"`
	IntervalSeconds int    `json:"intervalSeconds"`
	Sweeps          uint64 `json:"sweeps"`
	LastSweep       int64  `json:"lastSweep,omitempty"`
}

func (s *System) maintenanceStatus() MaintenanceStatus {
	m := s.maint
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	return MaintenanceStatus{
		Running:         running,
		IntervalSeconds: int(m.interval / time.Second),
		Sweeps:          m.sweeps.Load(),
		LastSweep:       m.lastSweep.Load(),
	}
}

// StartMaintenance launches the background sweep loop. Safe to call when
// already running.
func (s *System) StartMaintenance() {
	m := s.maint
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	go s.maintenanceLoop(ctx)
	s.logger.Info("maintenance started", log.Dur("interval", m.interval))
}

// StopMaintenance halts the background sweep loop and waits for an
// in-progress pass to finish. Safe to call when not running.
func (s *System) StopMaintenance() {
	m := s.maint
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	s.logger.Info("maintenance stopped")
}

func (s *System) maintenanceLoop(ctx context.Context) {
	defer s.maint.wg.Done()
	ticker := time.NewTicker(s.maint.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunMaintenance(ctx); err != nil {
				s.logger.Warn("maintenance pass failed", log.Err(err))
			}
		}
	}
}

// RunMaintenance sweeps every queue once: due delayed messages become
// visible, expired leases return to available, receive-count breaches are
// dead-lettered and routed, and retention reaps old messages. Queues sweep
// concurrently; one queue's failure never blocks the others, it is reported
// in that queue's result instead.
func (s *System) RunMaintenance(ctx context.Context) (map[string]events.SweepResult, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	qs := make([]queue.Queue, 0, len(s.queues))
	for _, q := range s.queues {
		qs = append(qs, q)
	}
	s.mu.RUnlock()

	var (
		resMu   sync.Mutex
		results = make(map[string]events.SweepResult, len(qs))
	)
	var g errgroup.Group
	g.SetLimit(sweepConcurrency)
	for _, q := range qs {
		q := q
		g.Go(func() error {
			sw := s.sweepQueue(ctx, q)
			resMu.Lock()
			results[q.Name()] = sw
			resMu.Unlock()
			return nil
		})
	}
	g.Wait()

	s.maint.sweeps.Add(1)
	s.maint.lastSweep.Store(s.now().UnixMilli())
	s.bus.Publish(events.MaintenanceCompleted(results))
	s.logger.Debug("maintenance completed", log.Int("queues", len(results)))
	return results, ctx.Err()
}

// sweepQueue runs one queue's sweep and translates the outcome into events.
func (s *System) sweepQueue(ctx context.Context, q queue.Queue) events.SweepResult {
	res, err := q.Maintenance(ctx)
	sw := events.SweepResultOf(res)
	if err != nil {
		sw.Error = err.Error()
		s.logger.Warn("queue sweep failed", log.Str("queue", q.Name()), log.Err(err))
	}

	if len(res.Promoted) > 0 {
		s.bus.Publish(events.MessagesVisible(q.Name(), len(res.Promoted)))
	}
	for _, msgID := range res.Requeued {
		s.bus.Publish(events.MessageRequeued(q.Name(), msgID))
	}
	if len(res.DeadLettered) > 0 {
		reason := queue.ThresholdReason(q.Options().MaxReceiveCount)
		for _, msgID := range res.DeadLettered {
			s.bus.Publish(events.MessageDeadLettered(q.Name(), msgID, reason))
		}
	}
	// Routing runs every sweep so messages dead-lettered before a target
	// was linked still move once one exists.
	s.routeDeadLetters(ctx, q)
	for _, msgID := range res.Expired {
		s.bus.Publish(events.MessageExpired(q.Name(), msgID))
	}
	return sw
}
