package db

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:db-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func TestUniqueIndexesAreDetected(t *testing.T) {
	gdb := openTestDB(t)

	user := User{Fullname: "ada", Username: "ada", Email: "ada@example.com", Password: "x"}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	first := Post{UserID: user.ID, Title: "Same", Slug: "same", Description: "d", Status: StatusDraft, Version: 1}
	if err := gdb.Create(&first).Error; err != nil {
		t.Fatalf("create first post: %v", err)
	}

	tests := []struct {
		name   string
		post   Post
		column string
	}{
		{name: "title", post: Post{UserID: user.ID, Title: "Same", Slug: "other", Description: "d"}, column: "posts.title"},
		{name: "slug", post: Post{UserID: user.ID, Title: "Other", Slug: "same", Description: "d"}, column: "posts.slug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gdb.Create(&tt.post).Error
			if !IsUniqueViolation(err) {
				t.Fatalf("expected unique violation, got %v", err)
			}
			if !ViolatesUnique(err, tt.column) {
				t.Fatalf("expected violation on %s, got %v", tt.column, err)
			}
		})
	}

	if IsUniqueViolation(nil) {
		t.Fatalf("nil must not be a unique violation")
	}
}

func TestRevisionVersionIsUniquePerPost(t *testing.T) {
	gdb := openTestDB(t)

	rev := PostRevision{PostID: 1, Version: 1, Content: "a", SavedAt: time.Now()}
	if err := gdb.Create(&rev).Error; err != nil {
		t.Fatalf("create revision: %v", err)
	}
	dup := PostRevision{PostID: 1, Version: 1, Content: "b", SavedAt: time.Now()}
	if err := gdb.Create(&dup).Error; !IsUniqueViolation(err) {
		t.Fatalf("expected duplicate revision to be rejected, got %v", err)
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "inkwell.db")
	gdb, err := Open(path, logger.Silent)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	_ = sqlDB.Close()
}

func TestPostHelpers(t *testing.T) {
	post := Post{Status: StatusDraft, Tags: []Tag{{ID: 3}, {ID: 1}}}
	ids := post.TagIDs()
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 1 {
		t.Fatalf("unexpected tag ids %v", ids)
	}
	if !post.IsDraft() {
		t.Fatalf("expected draft")
	}
	if ValidStatus("deleted") || !ValidStatus(StatusArchived) {
		t.Fatalf("unexpected status validation")
	}
}
