package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/asmorodws/simlok2-sub012/internal/model"
)

// UserRepo provides read access to the users table.  The trust subsystem
// never manages credentials; it only resolves the subject of a validated
// JWT into a role and active flag when authorizing scans and stream
// subscriptions.  Those lookups sit behind the validation cache, so this
// repository stays a thin single-row reader.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo returns a new UserRepo bound to the given database.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// GetByID returns a single user.  When no user with the specified ID
// exists, ErrUserNotFound is returned.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	var u model.User
	var vendorName sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, role, vendor_name, is_active, created_at, updated_at
		 FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.Role, &vendorName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if vendorName.Valid {
		u.VendorName = vendorName.String
	}
	return &u, nil
}
