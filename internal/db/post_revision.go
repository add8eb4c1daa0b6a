package db

import "time"

// PostRevision 记录文章每次保存时的内容快照。
// (post_id, version) 唯一，保证同一版本号只能写入一次。
type PostRevision struct {
	ID      uint      `gorm:"primaryKey" json:"-"`
	PostID  uint      `gorm:"not null;uniqueIndex:idx_post_revisions_post_version,priority:1" json:"-"`
	Version int       `gorm:"not null;uniqueIndex:idx_post_revisions_post_version,priority:2" json:"version"`
	Content string    `gorm:"type:text;not null;default:''" json:"content"`
	SavedAt time.Time `gorm:"not null" json:"updatedAt"`
}

// TableName 指定自定义表名。
func (PostRevision) TableName() string {
	return "post_revisions"
}
