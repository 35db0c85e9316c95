package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classpulse/classpulse-backend/internal/core/domain"
	apperrors "github.com/classpulse/classpulse-backend/internal/core/errors"
	"github.com/classpulse/classpulse-backend/internal/core/ports"
)

// FeedSource watches tables for row mutations using LISTEN/NOTIFY. Each
// watched table has a notify_change trigger (see migrations) that publishes
// a JSON envelope on the cdc_<table> channel.
type FeedSource struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ ports.FeedSource = (*FeedSource)(nil)

func NewFeedSource(pool *pgxpool.Pool, logger *slog.Logger) *FeedSource {
	return &FeedSource{pool: pool, logger: logger}
}

// Watch dedicates a connection to the collection's notification channel and
// starts pumping decoded records. The returned feed stays open until Close
// is called or the connection fails.
func (s *FeedSource) Watch(ctx context.Context, collection domain.Collection) (ports.ChangeFeed, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listener connection: %w", err)
	}

	// Channel names come from the fixed collection enum, never user input.
	channel := notifyChannel(collection)
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen on %s: %w", channel, err)
	}

	feedCtx, cancel := context.WithCancel(context.Background())
	f := &changeFeed{
		collection: collection,
		conn:       conn,
		cancel:     cancel,
		records:    make(chan domain.ChangeRecord, 64),
		logger: s.logger.With(
			"component", "change_feed",
			"collection", string(collection),
		),
	}

	go f.run(feedCtx)

	s.logger.Info("change feed opened", "collection", string(collection), "channel", channel)
	return f, nil
}

func notifyChannel(collection domain.Collection) string {
	return "cdc_" + string(collection)
}

type changeFeed struct {
	collection domain.Collection
	conn       *pgxpool.Conn
	cancel     context.CancelFunc
	records    chan domain.ChangeRecord
	logger     *slog.Logger

	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

var _ ports.ChangeFeed = (*changeFeed)(nil)

func (f *changeFeed) Records() <-chan domain.ChangeRecord {
	return f.records
}

func (f *changeFeed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Close stops the listener. Records() is closed once the pump goroutine
// drains out; Err() reports nil for a deliberate close.
func (f *changeFeed) Close() error {
	f.closeOnce.Do(f.cancel)
	return nil
}

func (f *changeFeed) run(ctx context.Context) {
	defer close(f.records)
	defer f.conn.Release()

	for {
		notification, err := f.conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // deliberate Close
			}
			f.setErr(fmt.Errorf("wait for notification: %w", err))
			return
		}

		record, err := decodeNotification(f.collection, []byte(notification.Payload))
		if err != nil {
			// A malformed envelope is a bug in the trigger, not a reason
			// to tear down the subscription.
			f.logger.Error("dropping undecodable notification",
				"error", err,
				"payload_bytes", len(notification.Payload),
			)
			continue
		}

		select {
		case f.records <- record:
		case <-ctx.Done():
			return
		}
	}
}

func (f *changeFeed) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// notifyEnvelope mirrors the JSON built by the notify_change trigger.
type notifyEnvelope struct {
	Op      string          `json:"op"`
	ID      string          `json:"id"`
	Doc     json.RawMessage `json:"doc"`
	Updated []string        `json:"updated"`
}

func decodeNotification(collection domain.Collection, payload []byte) (domain.ChangeRecord, error) {
	var env notifyEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return domain.ChangeRecord{}, fmt.Errorf("%w: %v", apperrors.ErrRecordDecode, err)
	}

	var op domain.ChangeOp
	switch env.Op {
	case "insert":
		op = domain.OpInsert
	case "update":
		op = domain.OpUpdate
	case "delete":
		op = domain.OpDelete
	default:
		return domain.ChangeRecord{}, fmt.Errorf("%w: unknown op %q", apperrors.ErrRecordDecode, env.Op)
	}

	if env.ID == "" {
		return domain.ChangeRecord{}, fmt.Errorf("%w: envelope missing id", apperrors.ErrRecordDecode)
	}

	return domain.ChangeRecord{
		Collection:    collection,
		Op:            op,
		DocumentID:    env.ID,
		Document:      env.Doc,
		UpdatedFields: env.Updated,
	}, nil
}
