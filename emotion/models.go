package emotion

import (
	"time"

	"gorm.io/datatypes"
)

// EmotionReport is one analysis run over a character's talk logs.
type EmotionReport struct {
	ID          uint64          `gorm:"primaryKey" json:"id"`
	CharacterID uint64          `gorm:"not null;index" json:"character_id"`
	Details     []EmotionDetail `gorm:"foreignKey:ReportID" json:"details"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (EmotionReport) TableName() string {
	return "emotion_report"
}

// EmotionDetail groups the child's sentences under one emotion category,
// with the wordcloud image rendered for that category.
type EmotionDetail struct {
	ID           uint64         `gorm:"primaryKey" json:"id"`
	ReportID     uint64         `gorm:"not null;index" json:"report_id"`
	EmotionType  string         `gorm:"size:32;not null" json:"emotion_type"`
	Sentences    datatypes.JSON `gorm:"type:json" json:"sentences"`
	WordcloudURL *string        `gorm:"size:255" json:"wordcloud_url,omitempty"`
}

func (EmotionDetail) TableName() string {
	return "emotion_detail"
}
