package ports

import (
	"context"

	"github.com/classpulse/classpulse-backend/internal/core/domain"
)

// Broadcaster is the registry's addressed-delivery surface. The translator
// depends on this interface only; it never touches sockets.
type Broadcaster interface {
	// BroadcastToSchool sends the event to every connection registered
	// under the school, regardless of role.
	BroadcastToSchool(schoolID string, event domain.Event)

	// BroadcastToRole sends the event to the school's connections whose
	// role matches.
	BroadcastToRole(schoolID string, role domain.Role, event domain.Event)

	// SendToUser sends the event to every connection matching both school
	// and user. A user with no live connection is a silent no-op.
	SendToUser(schoolID, userID string, event domain.Event)
}

// ChangeFeed yields the change records observed for a single collection, in
// commit order. Records is closed when the feed stops; Err reports why.
// A nil Err after close means the feed was shut down deliberately.
type ChangeFeed interface {
	Records() <-chan domain.ChangeRecord
	Err() error
	Close() error
}

// FeedSource opens a change feed per collection. Implemented by the store
// adapter; consumed by the translator.
type FeedSource interface {
	Watch(ctx context.Context, collection domain.Collection) (ChangeFeed, error)
}

// UserRepository provides the user lookups the login path needs.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// AuthService authenticates platform users for token issuance.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*domain.User, error)
}
