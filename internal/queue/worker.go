package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/interfaces"
	"github.com/ternarybob/fragor/internal/models"
)

// Pool polls the queue and dispatches messages to registered handlers with a
// fixed number of worker goroutines. Handlers run under at-least-once
// delivery: a handler error leaves the message leased, and the lease expiry
// redelivers it.
type Pool struct {
	queue        interfaces.QueueManager
	pollInterval time.Duration
	concurrency  int

	mu       sync.RWMutex
	handlers map[string]interfaces.JobHandler

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	logger  arbor.ILogger
}

// NewPool creates a new worker pool.
func NewPool(queue interfaces.QueueManager, pollInterval time.Duration, concurrency int, logger arbor.ILogger) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		queue:        queue,
		pollInterval: pollInterval,
		concurrency:  concurrency,
		handlers:     make(map[string]interfaces.JobHandler),
		logger:       logger,
	}
}

// RegisterHandler registers the handler for a message type. Must be called
// before Start.
func (p *Pool) RegisterHandler(msgType string, handler interfaces.JobHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[msgType] = handler
}

// Start launches the worker goroutines.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("worker pool already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.started = true

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}

	p.logger.Info().Int("workers", p.concurrency).Msg("Worker pool started")
	return nil
}

// Stop signals the workers and waits for in-flight handlers to finish.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.logger.Info().Msg("Worker pool stopped")
	return nil
}

func (p *Pool) run(ctx context.Context, worker int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain everything visible before going back to sleep.
			for p.processOne(ctx, worker) {
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// processOne receives and dispatches a single message, reporting whether a
// message was available.
func (p *Pool) processOne(ctx context.Context, worker int) bool {
	msg, err := p.queue.Receive(ctx)
	if err != nil {
		if !errors.Is(err, interfaces.ErrNoMessage) {
			p.logger.Error().Err(err).Int("worker", worker).Msg("Queue receive failed")
		}
		return false
	}

	p.dispatch(ctx, worker, msg)
	return true
}

func (p *Pool) dispatch(ctx context.Context, worker int, msg *models.QueueMessage) {
	p.mu.RLock()
	handler, ok := p.handlers[msg.Type]
	p.mu.RUnlock()

	if !ok {
		p.logger.Warn().
			Str("type", msg.Type).
			Str("id", msg.ID).
			Msg("No handler for message type, dropping")
		if err := p.queue.Delete(ctx, msg.ID); err != nil {
			p.logger.Error().Err(err).Str("id", msg.ID).Msg("Failed to drop unroutable message")
		}
		return
	}

	if err := handler(ctx, msg); err != nil {
		// Leave the message leased; the visibility timeout redelivers it.
		p.logger.Error().Err(err).
			Str("type", msg.Type).
			Str("id", msg.ID).
			Int("worker", worker).
			Msg("Job failed, leaving for redelivery")
		return
	}

	if err := p.queue.Delete(ctx, msg.ID); err != nil {
		p.logger.Error().Err(err).Str("id", msg.ID).Msg("Failed to acknowledge message")
	}
}

// Ensure Pool implements WorkerPool interface
var _ interfaces.WorkerPool = (*Pool)(nil)
