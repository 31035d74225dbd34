package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-recipe-backend/internal/auth"
	"github.com/tbourn/go-recipe-backend/internal/domain"
)

func newModeration(t *testing.T) (*ModerationService, *domain.Recipe, *time.Time) {
	t.Helper()
	db := newTestDB(t)
	r := insertRecipe(t, db, alice.UserID, domain.StatusPending, nil)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := NewModerationService(db, testGate())
	svc.now = func() time.Time { return clock }
	return svc, r, &clock
}

func TestModeration_ApproveThenRejectKeepsPublishedAt(t *testing.T) {
	svc, r, clock := newModeration(t)
	ctx := context.Background()

	got, err := svc.Approve(ctx, admin, r.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if got.Status != domain.StatusPublished || got.PublishedAt == nil || !got.PublishedAt.Equal(*clock) {
		t.Fatalf("approved recipe: status=%s publishedAt=%v", got.Status, got.PublishedAt)
	}
	if got.RejectionReason != "" {
		t.Fatalf("rejection reason should be empty, got %q", got.RejectionReason)
	}

	*clock = clock.Add(time.Hour)
	got, err = svc.Reject(ctx, admin, r.ID, "Missing steps")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if got.Status != domain.StatusRejected || got.RejectionReason != "Missing steps" {
		t.Fatalf("rejected recipe: status=%s reason=%q", got.Status, got.RejectionReason)
	}
	if got.PublishedAt == nil || !got.PublishedAt.Equal(clock.Add(-time.Hour)) {
		t.Fatalf("publishedAt should survive rejection, got %v", got.PublishedAt)
	}
}

func TestModeration_RejectDefaultsReason(t *testing.T) {
	svc, r, _ := newModeration(t)
	got, err := svc.Reject(context.Background(), admin, r.ID, "   ")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if got.RejectionReason != DefaultRejectionReason {
		t.Fatalf("reason = %q; want %q", got.RejectionReason, DefaultRejectionReason)
	}
}

func TestModeration_SetStatusClearsReason(t *testing.T) {
	svc, r, _ := newModeration(t)
	ctx := context.Background()
	if _, err := svc.Reject(ctx, admin, r.ID, "nope"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	got, err := svc.SetStatus(ctx, admin, r.ID, "pending", "ignored")
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if got.Status != domain.StatusPending || got.RejectionReason != "" {
		t.Fatalf("status=%s reason=%q; want pending with no reason", got.Status, got.RejectionReason)
	}
}

func TestModeration_SetStatusAuthorizesBeforeValidating(t *testing.T) {
	svc, r, _ := newModeration(t)
	ctx := context.Background()
	for _, a := range []auth.Actor{alice, bob, anon} {
		if _, err := svc.SetStatus(ctx, a, r.ID, "bogus", ""); !errors.Is(err, ErrForbidden) {
			t.Fatalf("%q: expected ErrForbidden for a bogus status, got %v", a.UserID, err)
		}
	}
}

func TestModeration_Errors(t *testing.T) {
	svc, r, _ := newModeration(t)
	ctx := context.Background()

	_, err := svc.SetStatus(ctx, admin, r.ID, "archived", "")
	var ve *ValidationError
	if !errors.As(err, &ve) || !ve.Has("status") {
		t.Fatalf("expected status ValidationError, got %v", err)
	}
	if _, err := svc.Approve(ctx, admin, "missing"); !errors.Is(err, ErrRecipeNotFound) {
		t.Fatalf("expected ErrRecipeNotFound, got %v", err)
	}
	for _, a := range []struct {
		name string
		err  error
	}{
		{"author", func() error { _, err := svc.Approve(ctx, alice, r.ID); return err }()},
		{"other user", func() error { _, err := svc.Reject(ctx, bob, r.ID, ""); return err }()},
		{"anonymous", func() error { _, err := svc.Approve(ctx, anon, r.ID); return err }()},
	} {
		if !errors.Is(a.err, ErrForbidden) {
			t.Fatalf("%s: expected ErrForbidden, got %v", a.name, a.err)
		}
	}
	if got := mustRecipe(t, svc.DB, r.ID); got.Status != domain.StatusPending {
		t.Fatalf("status changed to %s after refused transitions", got.Status)
	}
}

func TestModeration_OnChangeCalled(t *testing.T) {
	svc, r, _ := newModeration(t)
	calls := 0
	svc.OnChange = func(context.Context) { calls++ }
	if _, err := svc.Approve(context.Background(), admin, r.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if calls != 1 {
		t.Fatalf("OnChange calls = %d; want 1", calls)
	}
}

func TestModeration_Pending(t *testing.T) {
	svc, r, _ := newModeration(t)
	ctx := context.Background()
	insertRecipe(t, svc.DB, bob.UserID, domain.StatusPublished, nil)
	second := insertRecipe(t, svc.DB, bob.UserID, domain.StatusPending, nil)
	if err := svc.DB.Model(&domain.Recipe{}).Where("id = ?", second.ID).
		UpdateColumn("created_at", time.Now().UTC().Add(time.Minute)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	queue, err := svc.Pending(ctx, admin)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("queue length = %d; want 2", len(queue))
	}
	if queue[0].ID != second.ID || queue[1].ID != r.ID {
		t.Fatalf("queue order = [%s %s]; want newest first", queue[0].ID, queue[1].ID)
	}
	if queue[0].Author == nil || queue[0].Author.Name != "Bob" {
		t.Fatalf("author not expanded: %+v", queue[0].Author)
	}

	if _, err := svc.Pending(ctx, alice); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-admin, got %v", err)
	}
}
