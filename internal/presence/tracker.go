package presence

import (
	"context"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// Tracker maintains best-effort online/last-seen state. It only ever
// records activity; there is no background sweep demoting is_online, so
// readers must apply a freshness window to last_seen instead of trusting
// the flag.
type Tracker struct {
	users repositories.UserRepository
}

// NewTracker constructs a Tracker over the user directory.
func NewTracker(users repositories.UserRepository) *Tracker {
	return &Tracker{users: users}
}

// Touch records authenticated activity for the user.
func (t *Tracker) Touch(ctx context.Context, userID int) error {
	return t.users.TouchPresence(ctx, userID)
}

// Snapshot returns the stored presence state without interpretation.
func (t *Tracker) Snapshot(ctx context.Context, userID int) (models.Presence, error) {
	return t.users.GetPresence(ctx, userID)
}
