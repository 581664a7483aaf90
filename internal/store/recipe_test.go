package store

import (
	"context"
	"testing"
)

func TestRecipeListVisible(t *testing.T) {
	db := openTestDB(t)
	us := newTestUserStore(db)
	rs := NewRecipeStore(db)
	ctx := context.Background()

	alice, _ := us.Create(ctx, NewUser{Username: "alice", Email: "alice@example.com", Password: "x"})
	bob, _ := us.Create(ctx, NewUser{Username: "bob", Email: "bob@example.com", Password: "x"})

	if _, err := rs.Create(ctx, alice.ID, "Shakshuka", true); err != nil {
		t.Fatalf("create recipe: %v", err)
	}
	rs.Create(ctx, alice.ID, "Secret chili", false)
	rs.Create(ctx, bob.ID, "Bob's bread", false)

	tests := []struct {
		name   string
		viewer string
		want   []string
	}{
		{"anonymous", "", []string{"Shakshuka"}},
		{"owner", alice.ID, []string{"Shakshuka", "Secret chili"}},
		{"other user", bob.ID, []string{"Shakshuka", "Bob's bread"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recipes, err := rs.ListVisible(ctx, tt.viewer)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(recipes) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(recipes), len(tt.want))
			}
			for i, r := range recipes {
				if r.Title != tt.want[i] {
					t.Errorf("recipes[%d] = %q, want %q", i, r.Title, tt.want[i])
				}
			}
		})
	}
}

func TestRecipeCreatePublicFlag(t *testing.T) {
	db := openTestDB(t)
	us := newTestUserStore(db)
	rs := NewRecipeStore(db)
	ctx := context.Background()

	u, _ := us.Create(ctx, NewUser{Username: "alice", Email: "alice@example.com", Password: "x"})
	r, err := rs.Create(ctx, u.ID, "Soup", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !r.Public || r.OwnerID != u.ID || r.ID == 0 {
		t.Errorf("unexpected recipe %+v", r)
	}
}
