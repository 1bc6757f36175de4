// Package eventmanager implements the facade between event producers
// (roles) and the queue/spooler pipeline, per spec.md §4.F.
package eventmanager

import (
	"context"
	"sync"
	"time"

	"github.com/reflexsoar/reflex-agent-go/internal/agenterrors"
	"github.com/reflexsoar/reflex-agent-go/internal/event"
	"github.com/reflexsoar/reflex-agent-go/internal/eventcache"
	"github.com/reflexsoar/reflex-agent-go/internal/logging"
	"github.com/reflexsoar/reflex-agent-go/internal/queue"
)

// CacheSettings configures the optional event-cache dedup step.
type CacheSettings struct {
	Enabled bool
	Key     string
	TTL     time.Duration
}

// Manager is the facade roles use to publish events.
type Manager struct {
	mu               sync.Mutex
	initialized      bool
	queue            *queue.EventQueue
	spooler          *queue.Spooler
	sender           queue.BulkSender
	maxSpooledEvents int
	backPressure     int
	cache            *eventcache.Cache
	cacheSettings    CacheSettings
	logger           *logging.Logger
}

// New constructs an uninitialized Manager. Initialize must be called
// before PrepareEvents.
func New(sender queue.BulkSender, maxSpooledEvents int, cache *eventcache.Cache, cacheSettings CacheSettings, logger *logging.Logger) *Manager {
	if maxSpooledEvents <= 0 {
		maxSpooledEvents = queue.DefaultMaxSpooled
	}
	if logger == nil {
		logger = logging.NewFromEnv("eventmanager")
	}
	return &Manager{
		sender:           sender,
		maxSpooledEvents: maxSpooledEvents,
		backPressure:     1,
		cache:            cache,
		cacheSettings:    cacheSettings,
		logger:           logger,
	}
}

// Initialize starts the Spooler bound to ctx. A second call fails with
// ErrEventManagerInitialized.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return agenterrors.ErrEventManagerInitialized
	}
	m.queue = queue.NewEventQueue(m.maxSpooledEvents)
	m.spooler = queue.NewSpooler(m.queue, m.sender, queue.DefaultBulkSize, m.logger)
	m.spooler.Start(ctx)
	m.initialized = true
	return nil
}

// ensureSpoolerHealthy restarts the Spooler if it exited unexpectedly,
// matching the original's spooler-health-check behavior before enqueueing.
func (m *Manager) ensureSpoolerHealthy(ctx context.Context) {
	select {
	case <-m.spooler.Done():
		m.logger.Warn("eventmanager: spooler exited unexpectedly, restarting")
		m.spooler = queue.NewSpooler(m.queue, m.sender, queue.DefaultBulkSize, m.logger)
		m.spooler.Start(ctx)
	default:
	}
}

// RawEvent is either a pre-built *event.Event or the raw-record material to
// build one via event.NewFromRecord.
type RawEvent struct {
	Event  *event.Event
	Record map[string]interface{}
}

// PrepareEvents converts raw records to Events (path B) or enqueues
// already-built Events directly, applying backpressure and (when enabled)
// cache-based dedup before each enqueue.
func (m *Manager) PrepareEvents(ctx context.Context, events []RawEvent, base event.BaseFields, signatureFields []string, mapping []event.ObservableMapping, sourceField string) error {
	m.mu.Lock()
	initialized := m.initialized
	m.mu.Unlock()
	if !initialized {
		return agenterrors.ErrEventManagerNotInitialized
	}

	if base.Source == "" {
		base.Source = "Unknown"
	}

	m.ensureSpoolerHealthy(ctx)

	for _, raw := range events {
		m.awaitCapacity(ctx)

		e := raw.Event
		if e == nil {
			built, err := event.NewFromRecord(raw.Record, base, signatureFields, mapping, sourceField)
			if err != nil {
				m.logger.WithError(err).Warn("eventmanager: failed to build event from record, skipping")
				continue
			}
			e = built
		}

		if m.isDuplicate(ctx, e) {
			continue
		}

		m.queue.Push(e)
	}
	return nil
}

func (m *Manager) isDuplicate(ctx context.Context, e *event.Event) bool {
	if m.cache == nil || !m.cacheSettings.Enabled {
		return false
	}
	key := dedupKey(e, m.cacheSettings.Key)
	if key == "" {
		return false
	}
	return m.cache.SeenRecently(ctx, key, m.cacheSettings.TTL)
}

// dedupKey resolves the cache key for e. Today the only recognized cache
// key field is "signature"; other values fall back to it.
func dedupKey(e *event.Event, _ string) string {
	return e.Signature
}

// awaitCapacity stalls the caller while the queue exceeds maxSpooledEvents,
// sleeping an increasing number of seconds (the backpressure counter) each
// iteration, and resets the counter to 1 once drained.
func (m *Manager) awaitCapacity(ctx context.Context) {
	for m.queue.Size() > m.maxSpooledEvents {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(m.backPressure) * time.Second):
		}
		m.backPressure++
	}
	m.backPressure = 1
}
