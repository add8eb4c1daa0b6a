package db

import "time"

// 文章状态
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Post 定义了文章模型。Title 与 Slug 都是全局唯一的。
type Post struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;index:idx_posts_user_created,priority:1" json:"userId"`
	User        User           `json:"-"`
	Title       string         `gorm:"size:100;not null;uniqueIndex" json:"title"`
	Slug        string         `gorm:"size:100;not null;uniqueIndex" json:"slug"`
	Description string         `gorm:"size:200;not null" json:"description"`
	Banner      string         `json:"banner"`
	Content     string         `gorm:"type:text;not null;default:''" json:"content"`
	Tags        []Tag          `gorm:"many2many:post_tags;" json:"tags"`
	Status      string         `gorm:"size:16;not null;default:draft;index" json:"status"`
	Version     int            `gorm:"not null;default:1" json:"version"`
	History     []PostRevision `gorm:"constraint:OnDelete:CASCADE;" json:"history,omitempty"`
	TotalReads  int64          `gorm:"not null;default:0" json:"total_reads"`
	CreatedAt   time.Time      `gorm:"index:idx_posts_user_created,priority:2" json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// TagIDs 按顺序返回已加载标签的 ID
func (p *Post) TagIDs() []uint {
	ids := make([]uint, 0, len(p.Tags))
	for _, tag := range p.Tags {
		ids = append(ids, tag.ID)
	}
	return ids
}

// IsDraft 判断文章是否未发布
func (p *Post) IsDraft() bool {
	return p.Status == StatusDraft
}

// ValidStatus 判断状态值是否合法
func ValidStatus(status string) bool {
	switch status {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}
