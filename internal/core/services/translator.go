// Package services holds the mutation event translator: the worker layer
// that observes the store's change feed and turns each record into targeted
// deliveries through the connection registry.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/classpulse/classpulse-backend/internal/core/domain"
	apperrors "github.com/classpulse/classpulse-backend/internal/core/errors"
	"github.com/classpulse/classpulse-backend/internal/core/ports"
)

// Field names whose change on a submissions document means the submission
// was graded, and whose change on a classes document means membership moved.
var (
	gradingFields    = []string{"grade", "feedback"}
	membershipFields = []string{"student_ids", "teacher_ids"}
)

// Translator subscribes to one change feed per watched collection and
// projects each record into zero or more addressed deliveries. It never
// re-queries the store: targeting is computed from the shape of the change
// alone, so the projection stays a fast, order-preserving pass over the feed.
type Translator struct {
	source   ports.FeedSource
	registry ports.Broadcaster
	logger   *slog.Logger

	mu    sync.Mutex
	feeds []ports.ChangeFeed
	wg    sync.WaitGroup

	// fatal receives the first unrecoverable feed error per collection.
	// The hosting process must treat any value here as a reason to exit:
	// a silently dead feed is worse than a visible crash.
	fatal chan error
}

// NewTranslator wires a translator to its registry. The registry is injected
// explicitly; the translator holds no ambient state.
func NewTranslator(source ports.FeedSource, registry ports.Broadcaster, logger *slog.Logger) *Translator {
	return &Translator{
		source:   source,
		registry: registry,
		logger:   logger.With("component", "translator"),
		fatal:    make(chan error, len(domain.WatchedCollections)),
	}
}

// Start opens a feed for every watched collection and launches one worker
// per feed. An error opening any feed aborts startup and closes the feeds
// already opened.
func (t *Translator) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, collection := range domain.WatchedCollections {
		feed, err := t.source.Watch(ctx, collection)
		if err != nil {
			t.closeFeedsLocked()
			return fmt.Errorf("watch %s: %w", collection, err)
		}
		t.feeds = append(t.feeds, feed)

		t.wg.Add(1)
		go t.run(collection, feed)
	}

	t.logger.Info("change feed watchers started",
		"collections", len(domain.WatchedCollections),
	)
	return nil
}

// Fatal exposes unrecoverable feed failures to the hosting process.
func (t *Translator) Fatal() <-chan error {
	return t.fatal
}

// Stop closes all feed subscriptions and waits for the workers to drain.
// No other state needs flushing.
func (t *Translator) Stop() {
	t.mu.Lock()
	t.closeFeedsLocked()
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info("change feed watchers stopped")
}

func (t *Translator) closeFeedsLocked() {
	for _, feed := range t.feeds {
		if err := feed.Close(); err != nil {
			t.logger.Warn("error closing change feed", "error", err)
		}
	}
	t.feeds = nil
}

// run consumes one collection's feed until it closes. Records are handled
// synchronously, preserving the feed's commit order for that collection.
func (t *Translator) run(collection domain.Collection, feed ports.ChangeFeed) {
	defer t.wg.Done()

	for record := range feed.Records() {
		t.dispatch(record)
	}

	if err := feed.Err(); err != nil {
		t.fatal <- &apperrors.FeedError{Collection: string(collection), Err: err}
	}
}

// dispatch translates one record and hands the resulting deliveries to the
// registry. A record that cannot be decoded is logged and skipped; it never
// tears down the subscription.
func (t *Translator) dispatch(record domain.ChangeRecord) {
	deliveries, err := translate(record)
	if err != nil {
		t.logger.Warn("skipping undecodable change record",
			"collection", record.Collection,
			"op", record.Op,
			"document_id", record.DocumentID,
			"error", err,
		)
		return
	}

	for _, d := range deliveries {
		switch d.scope {
		case scopeSchool:
			t.registry.BroadcastToSchool(d.schoolID, d.event)
		case scopeRole:
			t.registry.BroadcastToRole(d.schoolID, d.role, d.event)
		case scopeUser:
			t.registry.SendToUser(d.schoolID, d.userID, d.event)
		}
	}
}

// --- Pure projection ---

type deliveryScope int

const (
	scopeSchool deliveryScope = iota
	scopeRole
	scopeUser
)

// delivery is one addressed send computed from a change record.
type delivery struct {
	scope    deliveryScope
	schoolID string
	role     domain.Role
	userID   string
	event    domain.Event
}

// translate maps a change record to its deliveries. Pure: no I/O, no store
// lookups. Returning an empty slice with a nil error means the record is a
// deliberate no-op (e.g. an assignment delete, where the document is gone).
func translate(record domain.ChangeRecord) ([]delivery, error) {
	switch record.Collection {
	case domain.CollectionAssignments:
		return translateAssignment(record)
	case domain.CollectionSubmissions:
		return translateSubmission(record)
	case domain.CollectionClasses:
		return translateClass(record)
	}
	return nil, fmt.Errorf("unwatched collection %q", record.Collection)
}

func translateAssignment(record domain.ChangeRecord) ([]delivery, error) {
	switch record.Op {
	case domain.OpInsert:
		var doc domain.AssignmentDoc
		if err := decodeDocument(record, &doc); err != nil {
			return nil, err
		}

		data := domain.AssignmentCreatedData{
			AssignmentID: record.DocumentID,
			Title:        doc.Title,
			ClassID:      doc.ClassID,
			DueDate:      doc.DueDate,
			CreatedAt:    doc.CreatedAt,
		}
		return []delivery{
			{scope: scopeSchool, schoolID: doc.SchoolID, event: domain.NewAssignmentCreatedEvent(data)},
			{scope: scopeRole, schoolID: doc.SchoolID, role: domain.RoleStudent, event: domain.NewAssignmentNotification(data)},
		}, nil

	case domain.OpUpdate:
		var doc domain.AssignmentDoc
		if err := decodeDocument(record, &doc); err != nil {
			return nil, err
		}

		return []delivery{{
			scope:    scopeSchool,
			schoolID: doc.SchoolID,
			event: domain.NewAssignmentUpdatedEvent(domain.AssignmentUpdatedData{
				AssignmentID:  record.DocumentID,
				UpdatedFields: record.UpdatedFields,
			}),
		}}, nil

	case domain.OpDelete:
		// The document is unavailable on delete and we do not reconstruct
		// it, so no client notification is produced.
		return nil, nil
	}
	return nil, nil
}

func translateSubmission(record domain.ChangeRecord) ([]delivery, error) {
	var doc domain.SubmissionDoc
	if err := decodeDocument(record, &doc); err != nil {
		return nil, err
	}

	switch record.Op {
	case domain.OpInsert:
		// Two events from one record: a teacher-facing summary and a
		// student-facing confirmation.
		return []delivery{
			{
				scope:    scopeRole,
				schoolID: doc.SchoolID,
				role:     domain.RoleTeacher,
				event: domain.NewSubmissionCreatedEvent(domain.SubmissionCreatedData{
					SubmissionID: record.DocumentID,
					AssignmentID: doc.AssignmentID,
					StudentID:    doc.StudentID,
					SubmittedAt:  doc.SubmittedAt,
				}),
			},
			{
				scope:    scopeUser,
				schoolID: doc.SchoolID,
				userID:   doc.StudentID,
				event: domain.NewSubmissionConfirmedEvent(domain.SubmissionConfirmedData{
					SubmissionID: record.DocumentID,
					AssignmentID: doc.AssignmentID,
				}),
			},
		}, nil

	case domain.OpUpdate:
		// Updates unrelated to grading produce no event.
		if !touchesAny(record, gradingFields) {
			return nil, nil
		}

		return []delivery{{
			scope:    scopeUser,
			schoolID: doc.SchoolID,
			userID:   doc.StudentID,
			event: domain.NewSubmissionGradedEvent(domain.SubmissionGradedData{
				SubmissionID: record.DocumentID,
				Grade:        doc.Grade,
				Feedback:     doc.Feedback,
			}),
		}}, nil
	}
	return nil, nil
}

func translateClass(record domain.ChangeRecord) ([]delivery, error) {
	var doc domain.ClassDoc
	if err := decodeDocument(record, &doc); err != nil {
		return nil, err
	}

	switch record.Op {
	case domain.OpInsert:
		return []delivery{{
			scope:    scopeSchool,
			schoolID: doc.SchoolID,
			event: domain.NewClassCreatedEvent(domain.ClassCreatedData{
				ClassID: record.DocumentID,
				Name:    doc.Name,
				Grade:   doc.Grade,
			}),
		}}, nil

	case domain.OpUpdate:
		if !touchesAny(record, membershipFields) {
			return nil, nil
		}

		return []delivery{{
			scope:    scopeSchool,
			schoolID: doc.SchoolID,
			event: domain.NewClassUpdatedEvent(domain.ClassUpdatedData{
				ClassID:       record.DocumentID,
				UpdatedFields: record.UpdatedFields,
			}),
		}}, nil
	}
	return nil, nil
}

// decodeDocument unmarshals the record's document and requires a school ID,
// since every delivery is tenant-addressed.
func decodeDocument(record domain.ChangeRecord, dst any) error {
	if len(record.Document) == 0 {
		return fmt.Errorf("%w: document missing for %s %s", apperrors.ErrRecordDecode, record.Collection, record.Op)
	}
	if err := json.Unmarshal(record.Document, dst); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrRecordDecode, err)
	}

	switch doc := dst.(type) {
	case *domain.AssignmentDoc:
		if doc.SchoolID == "" {
			return missingTenant(record)
		}
	case *domain.SubmissionDoc:
		if doc.SchoolID == "" {
			return missingTenant(record)
		}
	case *domain.ClassDoc:
		if doc.SchoolID == "" {
			return missingTenant(record)
		}
	}
	return nil
}

func missingTenant(record domain.ChangeRecord) error {
	return fmt.Errorf("%w: school_id missing for %s %s", apperrors.ErrRecordDecode, record.Collection, record.Op)
}

func touchesAny(record domain.ChangeRecord, fields []string) bool {
	for _, f := range fields {
		if record.HasUpdatedField(f) {
			return true
		}
	}
	return false
}
