package rigpacks

import "time"

// RigPack is a reusable motion template bundle. Admins upload an archive with
// the motion descriptor and its supporting files; the renderer pulls the
// descriptor when a character run uses a preset from the pack.
type RigPack struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	Key         string    `gorm:"size:64;uniqueIndex" json:"key"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Description *string   `gorm:"type:text" json:"description,omitempty"`
	Folder      string    `gorm:"size:255;not null" json:"folder"`
	EntryFile   string    `gorm:"size:255;not null" json:"entry_file"`
	PreviewFile *string   `gorm:"size:255" json:"preview_file,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (RigPack) TableName() string {
	return "rig_packs"
}
