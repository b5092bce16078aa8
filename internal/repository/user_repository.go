package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/court-slot-booking/internal/model"
)

// UserRepo reads the contact details notifications need.  Accounts are
// managed by the identity service.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Contact fetches a user's contact details by id.
func (r *UserRepo) Contact(ctx context.Context, id uint64) (model.Contact, error) {
	var c model.Contact
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,COALESCE(phone,''),COALESCE(full_name,'') FROM users WHERE id=? LIMIT 1",
		id).Scan(&c.UserID, &c.Email, &c.Phone, &c.FullName)
	if err != nil {
		return model.Contact{}, translate(err)
	}
	return c, nil
}
