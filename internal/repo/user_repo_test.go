package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-recipe-backend/internal/domain"
)

func TestUsers_UpsertListRole(t *testing.T) {
	db := newSchemaDB(t)
	ctx := context.Background()

	u, err := UpsertUser(ctx, db, &domain.User{Name: "Ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if u.ID == "" || u.Role != domain.RoleUser {
		t.Fatalf("unexpected user: %+v", u)
	}

	// same email updates in place and keeps the id
	again, err := UpsertUser(ctx, db, &domain.User{Name: "Ada L.", Email: "ada@example.com", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("UpsertUser again: %v", err)
	}
	if again.ID != u.ID || again.Name != "Ada L." || again.Role != domain.RoleAdmin {
		t.Fatalf("upsert should update existing row: %+v", again)
	}

	if _, err := UpsertUser(ctx, db, &domain.User{Name: "Bob", Email: "bob@example.com"}); err != nil {
		t.Fatalf("UpsertUser bob: %v", err)
	}
	n, err := CountUsers(ctx, db)
	if err != nil || n != 2 {
		t.Fatalf("CountUsers = %d,%v", n, err)
	}
	page, err := ListUsersPage(ctx, db, 0, 1)
	if err != nil || len(page) != 1 {
		t.Fatalf("ListUsersPage = %+v,%v", page, err)
	}

	if err := SetUserRole(ctx, db, u.ID, domain.RoleUser); err != nil {
		t.Fatalf("SetUserRole: %v", err)
	}
	got, err := GetUser(ctx, db, u.ID)
	if err != nil || got.Role != domain.RoleUser {
		t.Fatalf("role not updated: %+v %v", got, err)
	}
	if err := SetUserRole(ctx, db, "missing", domain.RoleAdmin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
