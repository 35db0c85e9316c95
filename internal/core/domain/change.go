package domain

import (
	"encoding/json"
	"time"
)

// Collection identifies a watched table on the change feed.
type Collection string

const (
	CollectionAssignments Collection = "assignments"
	CollectionSubmissions Collection = "submissions"
	CollectionClasses     Collection = "classes"
)

// WatchedCollections is the fixed set of collections the translator observes.
var WatchedCollections = []Collection{
	CollectionAssignments,
	CollectionSubmissions,
	CollectionClasses,
}

// ChangeOp is the mutation type reported by the feed.
type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// ChangeRecord is one observed mutation read from the store's change feed.
//
// Document holds the resulting document state when the feed can supply it
// (inserts always, updates usually, deletes never). UpdatedFields holds the
// set of field names changed by an update. Consumers must tolerate either
// being absent.
type ChangeRecord struct {
	Collection    Collection
	Op            ChangeOp
	DocumentID    string
	Document      json.RawMessage
	UpdatedFields []string
}

// HasUpdatedField reports whether the update touched the named field.
func (r ChangeRecord) HasUpdatedField(name string) bool {
	for _, f := range r.UpdatedFields {
		if f == name {
			return true
		}
	}
	return false
}

// The *Doc types below are the feed-visible document shapes. Field names
// follow the store's column naming, not the client wire format; the
// translator maps them into event payloads.

// AssignmentDoc is the feed-visible shape of an assignments document.
type AssignmentDoc struct {
	SchoolID  string     `json:"school_id"`
	Title     string     `json:"title"`
	ClassID   string     `json:"class_id"`
	DueDate   *time.Time `json:"due_date"`
	CreatedAt *time.Time `json:"created_at"`
}

// SubmissionDoc is the feed-visible shape of a submissions document.
type SubmissionDoc struct {
	SchoolID     string     `json:"school_id"`
	AssignmentID string     `json:"assignment_id"`
	StudentID    string     `json:"student_id"`
	Grade        string     `json:"grade"`
	Feedback     string     `json:"feedback"`
	SubmittedAt  *time.Time `json:"submitted_at"`
}

// ClassDoc is the feed-visible shape of a classes document.
type ClassDoc struct {
	SchoolID string `json:"school_id"`
	Name     string `json:"name"`
	Grade    string `json:"grade"`
}
