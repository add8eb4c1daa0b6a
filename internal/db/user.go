package db

import "time"

// User 定义了用户模型
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Fullname   string    `gorm:"size:30;not null" json:"fullname"`
	Username   string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email      string    `gorm:"size:254;not null;uniqueIndex" json:"email"`
	Password   string    `gorm:"not null" json:"-"`
	ProfileImg string    `json:"profileImg"`
	TotalPosts int64     `gorm:"not null;default:0" json:"total_posts"`
	TotalReads int64     `gorm:"not null;default:0" json:"total_reads"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
