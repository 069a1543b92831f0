package models

import (
	"strings"
	"time"
)

// ResourceCategories are the resource library sections, in menu order
var ResourceCategories = []string{
	"hydration",
	"pain",
	"medication",
	"emergency",
	"mental",
	"caregiver",
}

// IsResourceCategory reports whether s names a known category
func IsResourceCategory(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range ResourceCategories {
		if c == s {
			return true
		}
	}
	return false
}

// Resource is an educational link or media file shared from the library
type Resource struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Category    string    `gorm:"size:50;not null;index" json:"category"`
	Language    string    `gorm:"size:30;not null;default:'English'" json:"language"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	Link        string    `gorm:"size:500" json:"link,omitempty"`
	MediaURL    string    `gorm:"size:500" json:"media_url,omitempty"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for the Resource model
func (Resource) TableName() string {
	return "resource"
}

// CreateResourceRequest is the admin form for a new resource; a file may be attached
type CreateResourceRequest struct {
	Category    string `form:"category" binding:"required"`
	Language    string `form:"language"`
	Title       string `form:"title" binding:"required,max=200"`
	Link        string `form:"link" binding:"omitempty,url"`
	Description string `form:"description"`
}
