package interactions

import (
	"testing"
	"time"

	githubsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustPropertyID(t *testing.T, value string) PropertyID {
	t.Helper()
	id, err := NewPropertyID(value)
	if err != nil {
		t.Fatalf("unexpected property id error: %v", err)
	}
	return id
}

func mustDesiredState(t *testing.T, columnIndex, position int, status Status, comment *string) DesiredState {
	t.Helper()
	desired, err := NewDesiredState(columnIndex, position, status, comment)
	if err != nil {
		t.Fatalf("unexpected desired state error: %v", err)
	}
	return desired
}

func newTestService(t *testing.T, clock func() time.Time) *Service {
	t.Helper()
	db, err := gorm.Open(githubsqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&Record{}, &HistoryEntry{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	service, err := NewService(ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func stringPointer(value string) *string {
	return &value
}
