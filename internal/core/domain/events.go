package domain

import "time"

// EventType discriminates the messages pushed to clients. The set is closed:
// every value sent over a connection is built through one of the constructors
// below, so delivery paths only ever see these shapes.
type EventType string

const (
	EventConnected           EventType = "connected"
	EventAssignmentCreated   EventType = "assignment.created"
	EventAssignmentUpdated   EventType = "assignment.updated"
	EventSubmissionCreated   EventType = "submission.created"
	EventSubmissionConfirmed EventType = "submission.confirmed"
	EventSubmissionGraded    EventType = "submission.graded"
	EventClassCreated        EventType = "class.created"
	EventClassUpdated        EventType = "class.updated"
	EventNotification        EventType = "notification"
	EventPong                EventType = "pong"
)

// Event is the envelope serialized to the client. Data holds one of the
// payload structs below; it is shaped for the wire and carries no secrets.
type Event struct {
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
}

// ConnectedData acknowledges a successful handshake so the client can
// confirm the identity the gateway authenticated.
type ConnectedData struct {
	UserID   string `json:"userId"`
	SchoolID string `json:"schoolId,omitempty"`
}

type AssignmentCreatedData struct {
	AssignmentID string     `json:"assignmentId"`
	Title        string     `json:"title"`
	ClassID      string     `json:"classId,omitempty"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
}

// AssignmentUpdatedData carries only the names of the changed fields,
// not the full document.
type AssignmentUpdatedData struct {
	AssignmentID  string   `json:"assignmentId"`
	UpdatedFields []string `json:"updatedFields"`
}

type SubmissionCreatedData struct {
	SubmissionID string     `json:"submissionId"`
	AssignmentID string     `json:"assignmentId"`
	StudentID    string     `json:"studentId"`
	SubmittedAt  *time.Time `json:"submittedAt,omitempty"`
}

type SubmissionConfirmedData struct {
	SubmissionID string `json:"submissionId"`
	AssignmentID string `json:"assignmentId"`
}

type SubmissionGradedData struct {
	SubmissionID string `json:"submissionId"`
	Grade        string `json:"grade,omitempty"`
	Feedback     string `json:"feedback,omitempty"`
}

type ClassCreatedData struct {
	ClassID string `json:"classId"`
	Name    string `json:"name"`
	Grade   string `json:"grade,omitempty"`
}

type ClassUpdatedData struct {
	ClassID       string   `json:"classId"`
	UpdatedFields []string `json:"updatedFields"`
}

func NewConnectedEvent(userID, schoolID string) Event {
	return Event{
		Type:    EventConnected,
		Message: "Connected to real-time service",
		Data:    ConnectedData{UserID: userID, SchoolID: schoolID},
	}
}

func NewAssignmentCreatedEvent(data AssignmentCreatedData) Event {
	return Event{Type: EventAssignmentCreated, Data: data}
}

// NewAssignmentNotification is the student-facing companion to an
// assignment.created broadcast.
func NewAssignmentNotification(data AssignmentCreatedData) Event {
	return Event{
		Type:    EventNotification,
		Message: "A new assignment has been posted: " + data.Title,
		Data:    data,
	}
}

func NewAssignmentUpdatedEvent(data AssignmentUpdatedData) Event {
	return Event{Type: EventAssignmentUpdated, Data: data}
}

func NewSubmissionCreatedEvent(data SubmissionCreatedData) Event {
	return Event{
		Type:    EventSubmissionCreated,
		Message: "A new submission has arrived",
		Data:    data,
	}
}

func NewSubmissionConfirmedEvent(data SubmissionConfirmedData) Event {
	return Event{
		Type:    EventSubmissionConfirmed,
		Message: "Your submission was received",
		Data:    data,
	}
}

func NewSubmissionGradedEvent(data SubmissionGradedData) Event {
	return Event{
		Type:    EventSubmissionGraded,
		Message: "Your submission has been graded",
		Data:    data,
	}
}

func NewClassCreatedEvent(data ClassCreatedData) Event {
	return Event{
		Type:    EventClassCreated,
		Message: "A new class has been created: " + data.Name,
		Data:    data,
	}
}

func NewClassUpdatedEvent(data ClassUpdatedData) Event {
	return Event{Type: EventClassUpdated, Data: data}
}

func NewPongEvent() Event {
	return Event{Type: EventPong}
}
