package bus

import (
	"context"
	"sync"
	"time"

	"github.com/centrixhq/centrix/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Streamer tails the events table and fans newly appended rows out to
// in-process subscribers in append order. Because any process may append
// events, the streamer polls the store rather than relying on in-memory
// notification.
type Streamer struct {
	db       *Database
	interval time.Duration

	mu     sync.Mutex
	subs   map[int]chan types.Event
	nextID int
	lastID int64
}

// NewStreamer creates a streamer polling at the given interval.
func NewStreamer(gormDB *gorm.DB, interval time.Duration) *Streamer {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Streamer{
		db:       NewDatabase(gormDB),
		interval: interval,
		subs:     make(map[int]chan types.Event),
	}
}

// Start runs the polling loop until the context is cancelled. New
// subscribers only receive events appended after the streamer started.
func (s *Streamer) Start(ctx context.Context) {
	logger := log.With().Str("component", "event_streamer").Logger()

	lastID, err := s.db.LastEventID()
	if err != nil {
		logger.Error().Err(err).Msg("failed to read last event id")
	}
	s.mu.Lock()
	s.lastID = lastID
	s.mu.Unlock()

	logger.Info().Int64("last_event_id", lastID).Msg("starting event streamer")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down event streamer")
			s.closeAll()
			return
		case <-ticker.C:
			if err := s.poll(); err != nil {
				logger.Error().Err(err).Msg("failed to poll events")
			}
		}
	}
}

// Subscribe registers a buffered event channel and returns it with an
// unsubscribe function. Slow subscribers drop events rather than stalling
// the stream.
func (s *Streamer) Subscribe(buffer int) (<-chan types.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan types.Event, buffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	unsub := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, unsub
}

func (s *Streamer) poll() error {
	s.mu.Lock()
	after := s.lastID
	s.mu.Unlock()

	events, err := s.db.EventsAfter(after, 200)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range events {
		if event.ID > s.lastID {
			s.lastID = event.ID
		}
		for _, sub := range s.subs {
			select {
			case sub <- event:
			default:
			}
		}
	}
	return nil
}

func (s *Streamer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sub := range s.subs {
		delete(s.subs, id)
		close(sub)
	}
}
