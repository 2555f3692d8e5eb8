package notify

import (
	"context"
	"time"

	"github.com/bugtrackr/apiserver/types"
)

// Channel is the queue/topic name bug events are published to.
const Channel = "bug-events"

// Event kinds.
const (
	KindBugCreated       = "bug_created"
	KindBugStatusChanged = "bug_status_changed"
	KindBugLockToggled   = "bug_lock_toggled"
	KindBugDeleted       = "bug_deleted"
)

// Event is the payload published to the broker when a bug changes.
type Event struct {
	Kind       string          `json:"kind"`
	BugID      int             `json:"bug_id"`
	ProjectID  int             `json:"project_id"`
	ActorID    int             `json:"actor_id"`
	Status     types.BugStatus `json:"status,omitempty"`
	Locked     bool            `json:"locked,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Notifier publishes bug events to a broker. Implementations must be
// safe for concurrent use.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop discards events. It stands in when no broker is configured.
type Noop struct{}

func (Noop) Publish(ctx context.Context, event Event) error { return nil }

func (Noop) Close() error { return nil }
