package auth

import (
	"context"
	"testing"

	"github.com/dukerupert/pantry/internal/model"
)

func TestWithUserAndFromContext(t *testing.T) {
	u := &model.User{ID: "u1", Username: "alice"}

	ctx := WithUser(context.Background(), u)
	got, ok := UserFromContext(ctx)
	if !ok {
		t.Fatal("expected user in context")
	}
	if got.ID != "u1" {
		t.Errorf("ID = %q, want %q", got.ID, "u1")
	}
	if UserID(ctx) != "u1" {
		t.Errorf("UserID = %q, want %q", UserID(ctx), "u1")
	}
	if !IsAuthenticated(ctx) {
		t.Error("expected authenticated context")
	}
}

func TestFromContextMissing(t *testing.T) {
	if _, ok := UserFromContext(context.Background()); ok {
		t.Error("expected false for missing user")
	}
	if UserID(context.Background()) != "" {
		t.Error("expected empty user id for missing context")
	}
}

func TestWithUserNil(t *testing.T) {
	ctx := WithUser(context.Background(), nil)
	if IsAuthenticated(ctx) {
		t.Error("nil user must read as anonymous")
	}
}
