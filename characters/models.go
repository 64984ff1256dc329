package characters

import (
	"time"

	"gorm.io/datatypes"
)

// Character lifecycle states.
const (
	StatusActive   = "ACTIVATE"
	StatusDisabled = "DISABLED"
)

// Asset kinds recorded in the catalog. The names mirror the file types the
// animation renderer consumes and produces.
const (
	AssetKindImage     = "IMG"
	AssetKindConfig    = "YAML"
	AssetKindAnimation = "GIF"
)

// Character represents one uploaded drawing and the persona derived from it.
type Character struct {
	ID           uint64         `gorm:"primaryKey" json:"id"`
	MemberID     uint           `gorm:"not null;index" json:"member_id"`
	Name         *string        `gorm:"size:100" json:"name,omitempty"`
	RawImageURL  string         `gorm:"size:255;not null" json:"raw_image_url"`
	PromptGender *string        `gorm:"size:16" json:"prompt_gender,omitempty"`
	PromptAge    *int           `json:"prompt_age,omitempty"`
	PromptMBTI   *string        `gorm:"size:8" json:"prompt_mbti,omitempty"`
	VoiceType    *string        `gorm:"size:32" json:"voice_type,omitempty"`
	RigPackID    *uint64        `gorm:"index" json:"rig_pack_id,omitempty"`
	Status       string         `gorm:"size:16;not null;default:'ACTIVATE'" json:"status"`
	IsFavorite   bool           `gorm:"not null;default:false" json:"is_favorite"`
	Tags         datatypes.JSON `gorm:"type:json" json:"tags,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName keeps the original table naming.
func (Character) TableName() string {
	return "gree"
}

// CharacterAsset is one derived file attached to a character. Rows are
// append-only; pipeline re-runs add new rows and readers pick the most recent.
type CharacterAsset struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	CharacterID uint64    `gorm:"not null;index" json:"character_id"`
	Kind        string    `gorm:"size:8;not null;index" json:"kind"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	URL         string    `gorm:"size:255;not null" json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName keeps the original table naming.
func (CharacterAsset) TableName() string {
	return "greefile"
}
