package store

import (
	"database/sql"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/pantry/internal/database"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestUserStore(db *sql.DB) *UserStore {
	us := NewUserStore(db)
	us.cost = bcrypt.MinCost
	return us
}
