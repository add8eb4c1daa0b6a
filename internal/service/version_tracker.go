package service

import (
	"context"
	"time"

	"github.com/inkwell/internal/db"
	"gorm.io/gorm"
)

// VersionTracker 维护文章的版本号与只追加的历史快照。
// 每次保存版本号加一，历史条数始终等于版本号。
type VersionTracker struct {
	now func() time.Time
}

// NewVersionTracker 创建版本跟踪器，clock 为 nil 时使用 time.Now
func NewVersionTracker(clock func() time.Time) *VersionTracker {
	if clock == nil {
		clock = time.Now
	}
	return &VersionTracker{now: clock}
}

// Start 为新文章设置版本 1 并返回首个快照
func (v *VersionTracker) Start(post *db.Post) db.PostRevision {
	post.Version = 1
	return db.PostRevision{Version: 1, Content: post.Content, SavedAt: v.now().UTC()}
}

// Advance 递增已有文章的版本并返回对应快照
func (v *VersionTracker) Advance(post *db.Post) db.PostRevision {
	post.Version++
	return db.PostRevision{PostID: post.ID, Version: post.Version, Content: post.Content, SavedAt: v.now().UTC()}
}

// appendRevision 在当前保存事务中写入版本记录
func appendRevision(tx *gorm.DB, postID uint, rev *db.PostRevision) error {
	rev.PostID = postID
	if err := tx.Create(rev).Error; err != nil {
		return postWriteError("append revision", err)
	}
	return nil
}

func orderedHistory(q *gorm.DB) *gorm.DB {
	return q.Order("post_revisions.version asc")
}

func loadHistory(ctx context.Context, tx *gorm.DB, postID uint) ([]db.PostRevision, error) {
	var revisions []db.PostRevision
	if err := orderedHistory(tx.WithContext(ctx)).
		Where("post_id = ?", postID).
		Find(&revisions).Error; err != nil {
		return nil, storageError("load history", err)
	}
	return revisions, nil
}
