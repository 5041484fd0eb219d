package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/moneyseed/moneyseed/internal/database"
	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createProfile(t *testing.T, db *sql.DB, name string, role model.Role) *model.Profile {
	t.Helper()
	p, err := NewProfileStore(db).Create(context.Background(), name, role, "")
	if err != nil {
		t.Fatalf("create profile %s: %v", name, err)
	}
	return p
}

func createMission(t *testing.T, ms *MissionStore, userID int64, date string, typ model.MissionType, reward string) *model.MissionInstance {
	t.Helper()
	m, err := ms.Create(context.Background(), &model.MissionInstance{
		UserID:       userID,
		Date:         date,
		Title:        "Make bed",
		RewardAmount: decimal.RequireFromString(reward),
		MissionType:  typ,
	})
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}
	return m
}
