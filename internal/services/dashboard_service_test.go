package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-recipe-backend/internal/cache"
	"github.com/tbourn/go-recipe-backend/internal/domain"
	"github.com/tbourn/go-recipe-backend/internal/repo"
)

func TestDashboardStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedCategory(t, db, "Soups")
	insertRecipe(t, db, alice.UserID, domain.StatusPublished, func(r *domain.Recipe) { r.AverageRating = 4 })
	insertRecipe(t, db, alice.UserID, domain.StatusPublished, func(r *domain.Recipe) { r.AverageRating = 5 })
	insertRecipe(t, db, bob.UserID, domain.StatusPending, nil)
	insertRecipe(t, db, bob.UserID, domain.StatusRejected, nil)

	svc := &DashboardService{DB: db, Gate: testGate()}
	d, err := svc.Stats(ctx, admin)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if d.TotalRecipes != 4 || d.TotalUsers != 3 || d.TotalCategories != 1 {
		t.Fatalf("totals = %d recipes, %d users, %d categories", d.TotalRecipes, d.TotalUsers, d.TotalCategories)
	}
	if d.PublishedRecipes != 2 || d.PendingRecipes != 1 || d.RejectedRecipes != 1 || d.DraftRecipes != 0 {
		t.Fatalf("status counts = %+v", d.ByStatus)
	}
	if d.AverageRating != 4.5 {
		t.Fatalf("average rating = %v; want 4.5", d.AverageRating)
	}
	if len(d.RecentRecipes) != 4 || len(d.TopRated) != 2 || d.TopRated[0].AverageRating != 5 {
		t.Fatalf("recent=%d top=%d", len(d.RecentRecipes), len(d.TopRated))
	}
	if len(d.MonthlyRecipes) != 6 || d.MonthlyRecipes[5].Recipes != 4 {
		t.Fatalf("monthly = %+v; want 4 in the current month", d.MonthlyRecipes)
	}

	if _, err := svc.Stats(ctx, alice); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestDashboardStats_CachedUntilInvalidated(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	svc := &DashboardService{DB: db, Gate: testGate(), Cache: cache.New(rc, "test:"), TTL: time.Minute}
	first, err := svc.Stats(ctx, admin)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	insertRecipe(t, db, alice.UserID, domain.StatusPublished, nil)

	cached, err := svc.Stats(ctx, admin)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if cached.TotalRecipes != first.TotalRecipes {
		t.Fatalf("cached total = %d; want %d", cached.TotalRecipes, first.TotalRecipes)
	}

	svc.Invalidate(ctx)
	fresh, err := svc.Stats(ctx, admin)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if fresh.TotalRecipes != first.TotalRecipes+1 {
		t.Fatalf("fresh total = %d; want %d", fresh.TotalRecipes, first.TotalRecipes+1)
	}
}

func TestMonthStart(t *testing.T) {
	now := time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)
	if got := MonthStart(now, -1); !got.Equal(time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("MonthStart(-1) = %v", got)
	}
	if got := MonthStart(now, 1); !got.Equal(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("MonthStart(1) = %v", got)
	}
}

func TestMonthlyCounts(t *testing.T) {
	now := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	times := []time.Time{
		time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.February, 29, 23, 59, 0, 0, time.UTC),
		time.Date(2023, time.October, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, time.September, 30, 0, 0, 0, 0, time.UTC), // outside the window
		time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC),      // future
	}
	got := MonthlyCounts(times, now, 6)
	want := []MonthCount{
		{"Oct", 1}, {"Nov", 0}, {"Dec", 0}, {"Jan", 0}, {"Feb", 1}, {"Mar", 2},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d; want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("month %d = %+v; want %+v", i, got[i], want[i])
		}
	}
	if MonthlyCounts(times, now, 0) != nil {
		t.Fatal("n=0 should yield nil")
	}
}

func TestDashboardSkipsDeletedRecipes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	r := insertRecipe(t, db, alice.UserID, domain.StatusPublished, nil)
	if err := repo.DeleteRecipe(ctx, db, r.ID); err != nil {
		t.Fatalf("DeleteRecipe: %v", err)
	}
	d, err := (&DashboardService{DB: db, Gate: testGate()}).Stats(ctx, admin)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if d.TotalRecipes != 0 || d.PublishedRecipes != 0 {
		t.Fatalf("deleted recipe counted: %+v", d)
	}
}
