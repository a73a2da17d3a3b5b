package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// UserRepo reads holder details from the 'users' table.  Accounts are
// managed by the authentication service; Create exists for seeding.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, name, email, role string) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, email, role) VALUES (?,?,?)",
		strings.TrimSpace(name), email, role)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetPayer fetches the name and email used to start a checkout.
func (r *UserRepo) GetPayer(ctx context.Context, id uint64) (model.Payer, error) {
	var p model.Payer
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,name,email FROM users WHERE id=? LIMIT 1",
		id).Scan(&p.ID, &p.Name, &p.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}
