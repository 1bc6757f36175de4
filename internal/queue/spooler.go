package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/reflexsoar/reflex-agent-go/internal/logging"
)

// DefaultBulkSize is the number of events drained per Spooler iteration
// (spec.md §4.E).
const DefaultBulkSize = 100

const drainIdleSleep = 1 * time.Second

// Spooler drains an EventQueue in the background, POSTing bulks to the
// console. It never raises: send failures are logged and the batch is
// dropped, matching spec.md §4.E's documented "events lost by design"
// behavior pending a future persistent-queue extension.
type Spooler struct {
	queue    *EventQueue
	sender   BulkSender
	bulkSize int
	logger   *logging.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewSpooler constructs a Spooler draining queue via sender. bulkSize<=0
// uses DefaultBulkSize.
func NewSpooler(queue *EventQueue, sender BulkSender, bulkSize int, logger *logging.Logger) *Spooler {
	if bulkSize <= 0 {
		bulkSize = DefaultBulkSize
	}
	if logger == nil {
		logger = logging.NewFromEnv("spooler")
	}
	return &Spooler{
		queue:    queue,
		sender:   sender,
		bulkSize: bulkSize,
		logger:   logger,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Done is closed when the worker goroutine exits, letting EventManager
// detect an unexpected exit and restart it.
func (s *Spooler) Done() <-chan struct{} {
	return s.done
}

// Start launches the background drain loop.
func (s *Spooler) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Spooler) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		batch := s.queue.Drain(s.bulkSize)
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-time.After(drainIdleSleep):
			}
			continue
		}

		payload := make([]json.RawMessage, 0, len(batch))
		for _, e := range batch {
			data, err := json.Marshal(e)
			if err != nil {
				s.logger.WithError(err).Warn("spooler: marshal event failed, dropping")
				continue
			}
			payload = append(payload, data)
		}

		// TODO: a Persist(event.Event) error seam would attach here to spill
		// a failed batch to disk instead of dropping it; out of scope for now.
		ok, err := s.sender.BulkEvents(ctx, payload)
		if err != nil {
			s.logger.WithError(err).Warn("spooler: bulk send errored, batch dropped")
			continue
		}
		if !ok {
			s.logger.WithField("batch_size", len(payload)).Warn("spooler: bulk send rejected, batch dropped")
		}
	}
}

// Stop signals the worker to exit. When fromSelf is false (the common
// case, called by another goroutine) it blocks until the worker has
// actually exited; called from inside the worker itself it must not block.
func (s *Spooler) Stop(fromSelf bool) {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	if fromSelf {
		return
	}
	<-s.done
}
