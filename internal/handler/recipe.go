package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/pantry/internal/model"
)

type RecipeLister interface {
	ListVisible(ctx context.Context, viewerID string) ([]model.Recipe, error)
}

type RecipeHandler struct {
	store  RecipeLister
	logger *slog.Logger
}

func NewRecipeHandler(s RecipeLister, logger *slog.Logger) *RecipeHandler {
	return &RecipeHandler{store: s, logger: logger}
}

// List returns public recipes, plus the caller's private ones when a user is
// present.
func (h *RecipeHandler) List(user *model.User, w http.ResponseWriter, r *http.Request) {
	var viewerID string
	if user != nil {
		viewerID = user.ID
	}
	recipes, err := h.store.ListVisible(r.Context(), viewerID)
	if err != nil {
		h.logger.Error("list recipes", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list recipes")
		return
	}
	if recipes == nil {
		recipes = []model.Recipe{}
	}
	writeJSON(w, http.StatusOK, map[string][]model.Recipe{"recipes": recipes})
}
