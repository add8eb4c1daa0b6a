package db

import "time"

// Tag 定义了标签模型。标签是全局词表，UserID 仅记录创建者。
type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:50;not null;uniqueIndex" json:"name"`
	Slug      string    `gorm:"size:80;not null;uniqueIndex" json:"slug"`
	UserID    uint      `gorm:"not null;index" json:"userId"`
	PostCount int64     `gorm:"not null;default:0" json:"post_count"`
	Posts     []Post    `gorm:"many2many:post_tags;" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
