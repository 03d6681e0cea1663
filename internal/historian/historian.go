// Package historian drains the action queue into the archive in batches and marks sessions
// abandoned once they go quiet.
package historian

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sto/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// maxRetainedBatches caps, in batches, how many unflushed records survive repeated archive failures.
const maxRetainedBatches = 10

// Queue yields action records in publish order. Pop returns nil, nil when nothing arrived
// within timeout.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (*models.ActionRecord, error)
}

// Sink archives records.
type Sink interface {
	InsertActions(ctx context.Context, records []models.ActionRecord) error
	MarkAbandoned(ctx context.Context, sessionID uuid.UUID) error
}

type Config struct {
	BatchSize       int
	FlushInterval   time.Duration
	PopTimeout      time.Duration
	Inactivity      time.Duration
	InactivityCheck time.Duration
}

// Service encapsulates the queue and archive logic.
type Service struct {
	queue  Queue
	sink   Sink
	cfg    Config
	logger *logrus.Logger

	now func() time.Time

	batch        []models.ActionRecord
	lastActivity map[uuid.UUID]time.Time
}

func New(queue Queue, sink Sink, cfg Config, logger *logrus.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = time.Second
	}
	if cfg.Inactivity <= 0 {
		cfg.Inactivity = 10 * time.Minute
	}
	if cfg.InactivityCheck <= 0 {
		cfg.InactivityCheck = time.Minute
	}
	return &Service{
		queue:        queue,
		sink:         sink,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		batch:        make([]models.ActionRecord, 0, cfg.BatchSize),
		lastActivity: make(map[uuid.UUID]time.Time),
	}
}

// Run reads from the queue and writes to the sink until ctx is canceled. Records already
// read are flushed before Run returns.
func (s *Service) Run(ctx context.Context) error {
	records := make(chan models.ActionRecord, s.cfg.BatchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(records)
		return s.readLoop(gctx, records)
	})
	g.Go(func() error {
		return s.writeLoop(gctx, records)
	})

	s.logger.Info("historian started")
	err := g.Wait()
	s.logger.Info("historian stopped")
	return err
}

// readLoop pops records and hands them to the writer.
func (s *Service) readLoop(ctx context.Context, out chan<- models.ActionRecord) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		rec, err := s.queue.Pop(ctx, s.cfg.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.WithError(err).Error("failed to pop action")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.cfg.PopTimeout):
			}
			continue
		}
		if rec == nil {
			continue
		}
		select {
		case out <- *rec:
			continue
		default:
		}
		select {
		case out <- *rec:
		case <-ctx.Done():
			s.logger.WithField("game_id", rec.GameID).Warn("dropping action popped during shutdown")
			return nil
		}
	}
}

// writeLoop batches records. It exits when in is closed.
func (s *Service) writeLoop(ctx context.Context, in <-chan models.ActionRecord) error {
	flush := time.NewTicker(s.cfg.FlushInterval)
	defer flush.Stop()
	inactivity := time.NewTicker(s.cfg.InactivityCheck)
	defer inactivity.Stop()

	for {
		select {
		case rec, ok := <-in:
			if !ok {
				// the run context is done; use a fresh one for the last write
				finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				s.flush(finalCtx)
				cancel()
				return nil
			}
			s.append(rec)
			if len(s.batch) >= s.cfg.BatchSize {
				s.flush(ctx)
			}
		case <-flush.C:
			s.flush(ctx)
		case <-inactivity.C:
			s.markInactive(ctx)
		}
	}
}

func (s *Service) append(rec models.ActionRecord) {
	s.batch = append(s.batch, rec)
	s.lastActivity[rec.GameID] = s.now()
}

// flush writes the current batch. A failed batch is retried on the next flush.
func (s *Service) flush(ctx context.Context) {
	if len(s.batch) == 0 {
		return
	}
	if err := s.sink.InsertActions(ctx, s.batch); err != nil {
		s.logger.WithError(err).Errorf("failed to flush %d actions", len(s.batch))
		if limit := maxRetainedBatches * s.cfg.BatchSize; len(s.batch) > limit {
			dropped := len(s.batch) - limit
			s.batch = append(s.batch[:0], s.batch[dropped:]...)
			s.logger.Warnf("dropped %d oldest actions", dropped)
		}
		return
	}
	s.logger.Debugf("Flushed %d actions to DB.", len(s.batch))
	s.batch = s.batch[:0]
}

// markInactive marks sessions with no recent action as abandoned.
func (s *Service) markInactive(ctx context.Context) {
	now := s.now()
	for id, last := range s.lastActivity {
		if now.Sub(last) <= s.cfg.Inactivity {
			continue
		}
		if err := s.sink.MarkAbandoned(ctx, id); err != nil {
			s.logger.WithField("game_id", id).WithError(err).Error("failed to mark session abandoned")
			continue
		}
		delete(s.lastActivity, id)
		s.logger.WithField("game_id", id).Info("marked session abandoned due to inactivity")
	}
}
