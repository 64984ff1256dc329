package chat

import "time"

// Talk log types. Every exchange stores one row per side.
const (
	LogTypeUser      = "USER_TALK"
	LogTypeCompanion = "GREE_TALK"
)

// Log is one utterance in a conversation with a character. Companion rows may
// carry the URL of the synthesized voice clip.
type Log struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	CharacterID uint64    `gorm:"not null;index" json:"character_id"`
	LogType     string    `gorm:"size:16;not null" json:"log_type"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	VoiceURL    *string   `gorm:"size:255" json:"voice_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Log) TableName() string {
	return "log"
}
