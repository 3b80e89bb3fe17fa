package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository is the service's view of the user directory: profile
// summaries plus the presence fields this service is allowed to mutate.
type UserRepository interface {
	Get(ctx context.Context, userID int) (models.User, error)
	BulkGet(ctx context.Context, ids []int) ([]models.User, error)
	TouchPresence(ctx context.Context, userID int) error
	GetPresence(ctx context.Context, userID int) (models.Presence, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, username, first_name, last_name, profile_picture, is_online, last_seen`

// Get fetches one user.
func (r *UserRepo) Get(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// BulkGet fetches multiple users in one query. Missing ids are silently
// absent from the result.
func (r *UserRepo) BulkGet(ctx context.Context, ids []int) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}

	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}

	var users []models.User
	err = r.db.SelectContext(ctx, &users, r.db.Rebind(query), args...)
	return users, err
}

// TouchPresence records activity: is_online true, last_seen now. Nothing in
// this service ever sets is_online back to false.
func (r *UserRepo) TouchPresence(ctx context.Context, userID int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_online=TRUE, last_seen=NOW() WHERE id=$1`, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetPresence returns the stored presence state without interpretation.
func (r *UserRepo) GetPresence(ctx context.Context, userID int) (models.Presence, error) {
	var p models.Presence
	err := r.db.GetContext(ctx, &p,
		`SELECT is_online, last_seen FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Presence{}, ErrUserNotFound
	}
	return p, err
}
