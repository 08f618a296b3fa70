package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type UsersStore interface {
	Create(ctx context.Context, user *User) (int64, error)
	Get(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	SetRole(ctx context.Context, id int64, role string) error
	SetActive(ctx context.Context, id int64, active bool) error
}

type usersStore struct {
	db *sql.DB
}

func NewUsersStore(db *sql.DB) UsersStore {
	return &usersStore{db: db}
}

func HashPassword(plain, pepper string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain+pepper), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func MustHashPassword(plain, pepper string) string {
	hash, err := HashPassword(plain, pepper)
	if err != nil {
		panic(err)
	}
	return hash
}

func CheckPassword(hash, plain, pepper string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain+pepper)) == nil
}

func (s *usersStore) Create(ctx context.Context, user *User) (int64, error) {
	now := time.Now().UTC()
	if strings.TrimSpace(user.Role) == "" {
		user.Role = "CIVILIAN"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users(name, email, password_hash, role, active, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?)`,
		user.Name, strings.ToLower(strings.TrimSpace(user.Email)), user.PasswordHash, user.Role, boolToInt(user.Active), now, now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return id, nil
}

func (s *usersStore) Get(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, active, created_at, updated_at
		FROM users WHERE id=?`, id)
	return scanUser(row)
}

func (s *usersStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, active, created_at, updated_at
		FROM users WHERE email=?`, strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

func (s *usersStore) SetRole(ctx context.Context, id int64, role string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET role=?, updated_at=? WHERE id=?`,
		role, time.Now().UTC(), id)
	return err
}

func (s *usersStore) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET active=?, updated_at=? WHERE id=?`,
		boolToInt(active), time.Now().UTC(), id)
	return err
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var active int
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Active = active == 1
	return &u, nil
}
