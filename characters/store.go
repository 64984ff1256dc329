package characters

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Store provides data access helpers for characters and their asset catalog.
// It is shared with the pipeline, chat and emotion modules so that asset rows
// are written through a single code path.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an existing GORM handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new character record.
func (s *Store) Create(ctx context.Context, character *Character) error {
	return s.db.WithContext(ctx).Create(character).Error
}

// FindOwned loads an active character owned by the given member.
func (s *Store) FindOwned(ctx context.Context, id uint64, memberID uint) (*Character, error) {
	var character Character
	err := s.db.WithContext(ctx).
		Where("id = ? AND member_id = ? AND status = ?", id, memberID, StatusActive).
		First(&character).Error
	if err != nil {
		return nil, err
	}
	return &character, nil
}

// FindByID loads a character regardless of owner. Used by internal services.
func (s *Store) FindByID(ctx context.Context, id uint64) (*Character, error) {
	var character Character
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&character).Error
	if err != nil {
		return nil, err
	}
	return &character, nil
}

// ListByMember returns the member's active characters, newest first.
func (s *Store) ListByMember(ctx context.Context, memberID uint) ([]Character, error) {
	var list []Character
	err := s.db.WithContext(ctx).
		Where("member_id = ? AND status = ?", memberID, StatusActive).
		Order("created_at desc").
		Find(&list).Error
	return list, err
}

// UpdateParams holds the persona fields eligible for updates.
type UpdateParams struct {
	Name         *string
	PromptGender *string
	PromptAge    *int
	PromptMBTI   *string
	IsFavorite   *bool
	RigPackID    *uint64
}

// Update persists persona fields and reassigns the voice type when any of the
// persona attributes changed.
func (s *Store) Update(ctx context.Context, id uint64, memberID uint, params UpdateParams) (*Character, error) {
	character, err := s.FindOwned(ctx, id, memberID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	personaChanged := false

	if params.Name != nil {
		updates["name"] = *params.Name
	}
	if params.PromptGender != nil {
		updates["prompt_gender"] = *params.PromptGender
		character.PromptGender = params.PromptGender
		personaChanged = true
	}
	if params.PromptAge != nil {
		updates["prompt_age"] = *params.PromptAge
		character.PromptAge = params.PromptAge
		personaChanged = true
	}
	if params.PromptMBTI != nil {
		updates["prompt_mbti"] = *params.PromptMBTI
		character.PromptMBTI = params.PromptMBTI
		personaChanged = true
	}
	if params.IsFavorite != nil {
		updates["is_favorite"] = *params.IsFavorite
	}
	if params.RigPackID != nil {
		updates["rig_pack_id"] = *params.RigPackID
	}

	if personaChanged {
		if voice := VoiceTypeFor(character.PromptMBTI, character.PromptGender, character.PromptAge); voice != "" {
			updates["voice_type"] = voice
		}
	}

	if len(updates) == 0 {
		return character, nil
	}

	updates["updated_at"] = time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&Character{}).
		Where("id = ? AND member_id = ?", id, memberID).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	return s.FindOwned(ctx, id, memberID)
}

// SetStatus flips the lifecycle state (soft disable / reactivate).
func (s *Store) SetStatus(ctx context.Context, id uint64, memberID uint, status string) error {
	result := s.db.WithContext(ctx).Model(&Character{}).
		Where("id = ? AND member_id = ?", id, memberID).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountByRigPack reports how many active characters reference a rig pack.
func (s *Store) CountByRigPack(ctx context.Context, rigPackID uint64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Character{}).
		Where("rig_pack_id = ? AND status = ?", rigPackID, StatusActive).
		Count(&count).Error
	return count, err
}

// CreateAsset appends one asset row. Assets are never mutated afterwards.
func (s *Store) CreateAsset(ctx context.Context, asset *CharacterAsset) error {
	if asset == nil {
		return errors.New("characters: asset is nil")
	}
	return s.db.WithContext(ctx).Create(asset).Error
}

// LatestAssetByKind returns the most recent asset of the given kind.
func (s *Store) LatestAssetByKind(ctx context.Context, characterID uint64, kind string) (*CharacterAsset, error) {
	var asset CharacterAsset
	err := s.db.WithContext(ctx).
		Where("character_id = ? AND kind = ?", characterID, kind).
		Order("id desc").
		First(&asset).Error
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// ListAssets returns the character's assets, optionally filtered by kind.
func (s *Store) ListAssets(ctx context.Context, characterID uint64, kind string) ([]CharacterAsset, error) {
	query := s.db.WithContext(ctx).Where("character_id = ?", characterID)
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	var assets []CharacterAsset
	err := query.Order("id asc").Find(&assets).Error
	return assets, err
}

// CountAssets reports how many assets of the given kind exist.
func (s *Store) CountAssets(ctx context.Context, characterID uint64, kind string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&CharacterAsset{}).
		Where("character_id = ? AND kind = ?", characterID, kind).
		Count(&count).Error
	return count, err
}
