package plans

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/shapeai4-rgb/shapeai/pkg/db/models"
	"github.com/shapeai4-rgb/shapeai/pkg/enums"
	"github.com/shapeai4-rgb/shapeai/pkg/pagination"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:plans_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.User{}, &models.MealPlan{}, &models.Transaction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, balance int) uuid.UUID {
	t.Helper()
	user := models.User{
		ID:           uuid.New(),
		Email:        uuid.NewString() + "@example.com",
		TokenBalance: balance,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user.ID
}

func seedPlan(t *testing.T, repo Repository, userID uuid.UUID, title string, createdAt time.Time) uuid.UUID {
	t.Helper()
	plan := &models.MealPlan{
		UserID:    userID,
		Title:     title,
		Days:      7,
		Status:    enums.MealPlanStatusActive,
		Content:   []byte(`{"days":[],"recipes":{}}`),
		CreatedAt: createdAt,
	}
	if err := repo.Create(context.Background(), plan); err != nil {
		t.Fatalf("seed plan %q: %v", title, err)
	}
	return plan.ID
}

func TestGetByIDEnforcesOwnership(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	owner := seedUser(t, db, 0)
	other := seedUser(t, db, 0)
	planID := seedPlan(t, repo, owner, "Keto Week", time.Now())

	plan, err := repo.GetByID(ctx, owner, planID)
	if err != nil {
		t.Fatalf("owner lookup: %v", err)
	}
	if plan.Title != "Keto Week" {
		t.Fatalf("expected Keto Week, got %q", plan.Title)
	}

	if _, err := repo.GetByID(ctx, other, planID); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound for non-owner, got %v", err)
	}
	if _, err := repo.GetByID(ctx, owner, uuid.New()); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound for unknown plan, got %v", err)
	}
}

func TestListByUserOrderingAndCursor(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	userID := seedUser(t, db, 0)
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i, title := range []string{"First", "Second", "Third", "Fourth", "Fifth"} {
		seedPlan(t, repo, userID, title, base.Add(time.Duration(i)*time.Minute))
	}

	first, err := repo.ListByUser(ctx, userID, 3, nil)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(first))
	}
	if first[0].Title != "Fifth" || first[1].Title != "Fourth" || first[2].Title != "Third" {
		t.Fatalf("unexpected order: %q %q %q", first[0].Title, first[1].Title, first[2].Title)
	}

	cursor := &pagination.Cursor{CreatedAt: first[2].CreatedAt, ID: first[2].ID}
	rest, err := repo.ListByUser(ctx, userID, 3, cursor)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(rest) != 2 {
		t.Fatalf("expected 2 remaining plans, got %d", len(rest))
	}
	if rest[0].Title != "Second" || rest[1].Title != "First" {
		t.Fatalf("unexpected second page order: %q %q", rest[0].Title, rest[1].Title)
	}

	// Another user sees nothing.
	empty, err := repo.ListByUser(ctx, seedUser(t, db, 0), 10, nil)
	if err != nil {
		t.Fatalf("other user: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no plans for other user, got %d", len(empty))
	}
}
