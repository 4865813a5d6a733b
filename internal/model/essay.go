package model

import (
	"time"
)

type Essay struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	UserID         int64     `gorm:"not null;index" json:"user_id"`
	Topic          string    `gorm:"size:500;not null" json:"topic"`
	Field          string    `gorm:"size:100" json:"field"`
	CitationStyle  string    `gorm:"size:20;default:APA" json:"citation_style"`
	WordCount      int       `gorm:"not null" json:"word_count"`
	Content        string    `gorm:"type:longtext" json:"content,omitempty"`
	SourceCount    string    `gorm:"size:20" json:"source_count"`
	DocumentURL    string    `gorm:"size:500" json:"document_url,omitempty"`
	PaidPerEssay   bool      `gorm:"default:false" json:"paid_per_essay"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Essay) TableName() string {
	return "essays"
}
