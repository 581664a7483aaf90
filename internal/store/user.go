package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/pantry/internal/auth"
	"github.com/dukerupert/pantry/internal/model"
)

var _ auth.UserStore = (*UserStore)(nil)

type UserStore struct {
	db   *sql.DB
	cost int

	dummyOnce sync.Once
	dummyHash string
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db, cost: bcrypt.DefaultCost}
}

// NewUser is the input to Create. An empty ID gets a random UUID.
type NewUser struct {
	ID                 string
	Username           string
	Email              string
	DisplayName        string
	DietaryPreferences []string
	Password           string
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var prefs string
	err := scanner.Scan(&u.ID, &u.Username, &u.Email, &u.DisplayName, &prefs, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(prefs), &u.DietaryPreferences); err != nil {
		return nil, fmt.Errorf("decode dietary preferences: %w", err)
	}
	if u.DietaryPreferences == nil {
		u.DietaryPreferences = []string{}
	}
	return &u, nil
}

const userCols = `id, username, email, display_name, dietary_preferences, created_at, updated_at`

func (s *UserStore) Create(ctx context.Context, nu NewUser) (*model.User, error) {
	id := nu.ID
	if id == "" {
		id = uuid.NewString()
	}
	hash, err := auth.HashPassword(nu.Password, s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	prefs := nu.DietaryPreferences
	if prefs == nil {
		prefs = []string{}
	}
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		return nil, fmt.Errorf("encode dietary preferences: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, display_name, dietary_preferences, password_hash) VALUES (?, ?, ?, ?, ?, ?)`,
		id, strings.TrimSpace(nu.Username), strings.TrimSpace(nu.Email), nu.DisplayName, string(prefsJSON), hash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.FindByID(ctx, id)
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// Verify looks the identifier up as a username or (case-insensitive) email
// and checks secret against the stored hash. It returns (nil, nil) on any
// mismatch. Unknown identifiers still pay for one bcrypt comparison.
func (s *UserStore) Verify(ctx context.Context, identifier, secret string) (*model.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+userCols+`, password_hash FROM users WHERE username = ? OR email = ? LIMIT 1`,
		identifier, identifier,
	)
	var hash string
	u, err := scanUser(scanFunc(func(dest ...any) error {
		return row.Scan(append(dest, &hash)...)
	}))
	if errors.Is(err, sql.ErrNoRows) {
		_ = auth.ComparePasswordAndHash(secret, s.dummy())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("verify user: %w", err)
	}

	switch err := auth.ComparePasswordAndHash(secret, hash); {
	case errors.Is(err, auth.ErrPasswordMismatch):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("compare password: %w", err)
	}
	return u, nil
}

func (s *UserStore) UpdatePassword(ctx context.Context, id, password string) error {
	hash, err := auth.HashPassword(password, s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *UserStore) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("pantry-dummy-password"), s.cost)
		if err == nil {
			s.dummyHash = string(h)
		}
	})
	return s.dummyHash
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }
