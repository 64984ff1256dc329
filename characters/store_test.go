package characters

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Character{}, &CharacterAsset{}))
	return db
}

func TestStoreFindOwnedSkipsOtherMembers(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()

	character := &Character{MemberID: 1, RawImageURL: "https://files/raw.png", Status: StatusActive}
	require.NoError(t, store.Create(ctx, character))

	found, err := store.FindOwned(ctx, character.ID, 1)
	require.NoError(t, err)
	require.Equal(t, character.ID, found.ID)

	_, err = store.FindOwned(ctx, character.ID, 2)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestStoreFindOwnedSkipsDisabled(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()

	character := &Character{MemberID: 1, RawImageURL: "https://files/raw.png", Status: StatusActive}
	require.NoError(t, store.Create(ctx, character))
	require.NoError(t, store.SetStatus(ctx, character.ID, 1, StatusDisabled))

	_, err := store.FindOwned(ctx, character.ID, 1)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestStoreUpdateReassignsVoice(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()

	character := &Character{MemberID: 1, RawImageURL: "https://files/raw.png", Status: StatusActive}
	require.NoError(t, store.Create(ctx, character))

	updated, err := store.Update(ctx, character.ID, 1, UpdateParams{
		Name:         strPtr("초록이"),
		PromptGender: strPtr("남자"),
		PromptAge:    intPtr(7),
		PromptMBTI:   strPtr("ENFP"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.VoiceType)
	require.Equal(t, "nwoof", *updated.VoiceType)

	// A persona change moves the voice to the new bucket.
	updated, err = store.Update(ctx, character.ID, 1, UpdateParams{PromptMBTI: strPtr("INFP")})
	require.NoError(t, err)
	require.NotNil(t, updated.VoiceType)
	require.Equal(t, "nhajun", *updated.VoiceType)
}

func TestStoreUpdateWithoutChangesKeepsRow(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()

	character := &Character{MemberID: 1, RawImageURL: "https://files/raw.png", Status: StatusActive}
	require.NoError(t, store.Create(ctx, character))

	updated, err := store.Update(ctx, character.ID, 1, UpdateParams{})
	require.NoError(t, err)
	require.Equal(t, character.ID, updated.ID)
	require.Nil(t, updated.VoiceType)
}

func TestStoreAssetCatalogIsAppendOnly(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()

	character := &Character{MemberID: 1, RawImageURL: "https://files/raw.png", Status: StatusActive}
	require.NoError(t, store.Create(ctx, character))

	for i := 0; i < 3; i++ {
		require.NoError(t, store.CreateAsset(ctx, &CharacterAsset{
			CharacterID: character.ID,
			Kind:        AssetKindConfig,
			Name:        "char_cfg.yaml",
			URL:         fmt.Sprintf("https://files/config/%d.yaml", i),
		}))
	}

	latest, err := store.LatestAssetByKind(ctx, character.ID, AssetKindConfig)
	require.NoError(t, err)
	require.Equal(t, "https://files/config/2.yaml", latest.URL)

	all, err := store.ListAssets(ctx, character.ID, AssetKindConfig)
	require.NoError(t, err)
	require.Len(t, all, 3)

	count, err := store.CountAssets(ctx, character.ID, AssetKindConfig)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)
}

func TestStoreLatestAssetByKindMissing(t *testing.T) {
	store := NewStore(openTestDB(t))

	_, err := store.LatestAssetByKind(context.Background(), 99, AssetKindAnimation)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestStoreCountByRigPack(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()

	pack := uint64(7)
	active := &Character{MemberID: 1, RawImageURL: "https://files/a.png", Status: StatusActive, RigPackID: &pack}
	disabled := &Character{MemberID: 1, RawImageURL: "https://files/b.png", Status: StatusDisabled, RigPackID: &pack}
	other := &Character{MemberID: 1, RawImageURL: "https://files/c.png", Status: StatusActive}
	require.NoError(t, store.Create(ctx, active))
	require.NoError(t, store.Create(ctx, disabled))
	require.NoError(t, store.Create(ctx, other))

	count, err := store.CountByRigPack(ctx, pack)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}
