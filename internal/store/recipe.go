package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/pantry/internal/model"
)

type RecipeStore struct {
	db *sql.DB
}

func NewRecipeStore(db *sql.DB) *RecipeStore {
	return &RecipeStore{db: db}
}

func scanRecipe(scanner interface{ Scan(...any) error }) (*model.Recipe, error) {
	var r model.Recipe
	var public int
	if err := scanner.Scan(&r.ID, &r.OwnerID, &r.Title, &public, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Public = public != 0
	return &r, nil
}

const recipeCols = `id, owner_id, title, public, created_at`

func (s *RecipeStore) Create(ctx context.Context, ownerID, title string, public bool) (*model.Recipe, error) {
	var p int
	if public {
		p = 1
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO recipes (owner_id, title, public) VALUES (?, ?, ?)`,
		ownerID, title, p,
	)
	if err != nil {
		return nil, fmt.Errorf("insert recipe: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+recipeCols+` FROM recipes WHERE id = ?`, id)
	return scanRecipe(row)
}

// ListVisible returns public recipes plus, when viewerID is set, the
// viewer's private ones.
func (s *RecipeStore) ListVisible(ctx context.Context, viewerID string) ([]model.Recipe, error) {
	query := `SELECT ` + recipeCols + ` FROM recipes WHERE public = 1`
	args := []any{}
	if viewerID != "" {
		query += ` OR owner_id = ?`
		args = append(args, viewerID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	defer rows.Close()

	var recipes []model.Recipe
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		recipes = append(recipes, *r)
	}
	return recipes, rows.Err()
}
