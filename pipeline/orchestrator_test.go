package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"greedot_back/cache"
	"greedot_back/characters"
)

// fakeBlobStore keeps uploads in memory and hands out URLs on the test file
// server so packageRig can download them back. Setting failOnUpload makes the
// Nth upload fail.
type fakeBlobStore struct {
	mu           sync.Mutex
	baseURL      string
	objects      map[string][]byte
	nextID       int
	failOnUpload int
}

func newFakeBlobStore(baseURL string) *fakeBlobStore {
	return &fakeBlobStore{baseURL: baseURL, objects: make(map[string][]byte)}
}

func (s *fakeBlobStore) UploadBytes(_ context.Context, data []byte, _, ext string, pathSegments ...string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	if s.failOnUpload > 0 && s.nextID == s.failOnUpload {
		return "", fmt.Errorf("blob store: synthetic upload failure")
	}
	key := fmt.Sprintf("/%s/%d%s", strings.Join(pathSegments, "/"), s.nextID, ext)
	s.objects[key] = append([]byte(nil), data...)
	return s.baseURL + key, nil
}

func (s *fakeBlobStore) UploadLocalFile(ctx context.Context, localPath, contentType string, pathSegments ...string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	return s.UploadBytes(ctx, data, contentType, filepath.Ext(localPath), pathSegments...)
}

func (s *fakeBlobStore) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	data, ok := s.objects[r.URL.Path]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write(data)
}

type fakeSegmenter struct {
	parts []string
	err   error
	calls int
}

func (s *fakeSegmenter) Segment(_ context.Context, _ string, outputDir string) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	paths := make([]string, 0, len(s.parts))
	for _, name := range s.parts {
		path := filepath.Join(outputDir, name)
		if err := os.WriteFile(path, []byte("part:"+name), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func openTestStore(t *testing.T) *characters.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&characters.Character{}, &characters.CharacterAsset{}))
	return characters.NewStore(db)
}

func newTestOrchestrator(t *testing.T, store *characters.Store, segmenter Segmenter, renderer Renderer) (*Orchestrator, *fakeBlobStore, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	blobs := newFakeBlobStore(server.URL)
	mux.HandleFunc("/", blobs.serve)
	mux.HandleFunc("/stylized.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("stylized-bytes"))
	})
	mux.HandleFunc("/raw.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("raw-bytes"))
	})

	orchestrator := NewOrchestrator(
		store,
		blobs,
		nil,
		segmenter,
		&RenderPool{renderer: renderer, concurrency: 2, presets: []string{"wave", "dance", "jump", "walk"}},
		cache.NewRunLock(nil, time.Minute),
	)
	orchestrator.httpClient = server.Client()

	return orchestrator, blobs, server
}

func seedCharacter(t *testing.T, store *characters.Store, rawImageURL string) *characters.Character {
	t.Helper()
	character := &characters.Character{
		MemberID:    1,
		RawImageURL: rawImageURL,
		Status:      characters.StatusActive,
	}
	require.NoError(t, store.Create(context.Background(), character))
	return character
}

func TestGenerateProducesAllAssetKinds(t *testing.T) {
	store := openTestStore(t)
	segmenter := &fakeSegmenter{parts: []string{"head.png", "torso.png", "mask.png"}}
	renderer := &fakeRenderer{}
	orchestrator, _, server := newTestOrchestrator(t, store, segmenter, renderer)

	character := seedCharacter(t, store, server.URL+"/raw.png")

	report, err := orchestrator.Generate(context.Background(), character, server.URL+"/stylized.png")
	require.NoError(t, err)

	require.Len(t, report.PartURLs, 3)
	require.NotEmpty(t, report.ConfigURL)
	require.Len(t, report.Animations, 4)
	for _, animation := range report.Animations {
		require.Empty(t, animation.Error)
		require.NotEmpty(t, animation.URL)
	}

	ctx := context.Background()
	images, err := store.ListAssets(ctx, character.ID, characters.AssetKindImage)
	require.NoError(t, err)
	require.Len(t, images, 3)

	configs, err := store.ListAssets(ctx, character.ID, characters.AssetKindConfig)
	require.NoError(t, err)
	require.Len(t, configs, 1)

	gifs, err := store.ListAssets(ctx, character.ID, characters.AssetKindAnimation)
	require.NoError(t, err)
	require.Len(t, gifs, 4)
}

func TestGenerateKeepsPartialRenderResults(t *testing.T) {
	store := openTestStore(t)
	segmenter := &fakeSegmenter{parts: []string{"mask.png"}}
	renderer := &fakeRenderer{failing: map[string]bool{"jump": true}}
	orchestrator, _, server := newTestOrchestrator(t, store, segmenter, renderer)

	character := seedCharacter(t, store, server.URL+"/raw.png")

	report, err := orchestrator.Generate(context.Background(), character, server.URL+"/stylized.png")
	require.NoError(t, err)

	var failed int
	for _, animation := range report.Animations {
		if animation.Error != "" {
			failed++
			require.Equal(t, "jump", animation.Preset)
			require.Empty(t, animation.URL)
		}
	}
	require.Equal(t, 1, failed)

	gifs, err := store.ListAssets(context.Background(), character.ID, characters.AssetKindAnimation)
	require.NoError(t, err)
	require.Len(t, gifs, 3)
}

func TestGenerateRequiresRawImage(t *testing.T) {
	store := openTestStore(t)
	segmenter := &fakeSegmenter{parts: []string{"mask.png"}}
	orchestrator, blobs, _ := newTestOrchestrator(t, store, segmenter, &fakeRenderer{})

	character := seedCharacter(t, store, "")

	_, err := orchestrator.Generate(context.Background(), character, "https://files/stylized.png")
	require.ErrorIs(t, err, ErrMissingRawImage)

	// The precondition fails before any collaborator is touched.
	require.Zero(t, segmenter.calls)
	require.Empty(t, blobs.objects)
	assets, err := store.ListAssets(context.Background(), character.ID, "")
	require.NoError(t, err)
	require.Empty(t, assets)
}

func TestGenerateKeepsCommittedPartsOnUploadFailure(t *testing.T) {
	store := openTestStore(t)
	segmenter := &fakeSegmenter{parts: []string{"head.png", "torso.png", "mask.png"}}
	orchestrator, blobs, server := newTestOrchestrator(t, store, segmenter, &fakeRenderer{})
	blobs.failOnUpload = 3

	character := seedCharacter(t, store, server.URL+"/raw.png")

	_, err := orchestrator.Generate(context.Background(), character, server.URL+"/stylized.png")
	require.Error(t, err)
	require.Contains(t, err.Error(), "synthetic upload failure")

	// Parts are committed one by one; the two uploaded before the failure
	// keep their asset rows.
	images, err := store.ListAssets(context.Background(), character.ID, characters.AssetKindImage)
	require.NoError(t, err)
	require.Len(t, images, 2)

	assets, err := store.ListAssets(context.Background(), character.ID, "")
	require.NoError(t, err)
	require.Len(t, assets, 2)
}

func TestPackageRigWithoutCatalogAssets(t *testing.T) {
	store := openTestStore(t)
	orchestrator, _, server := newTestOrchestrator(t, store, &fakeSegmenter{}, &fakeRenderer{})

	character := seedCharacter(t, store, server.URL+"/raw.png")
	ctx := context.Background()

	ws, err := newWorkspace(character.ID)
	require.NoError(t, err)
	defer ws.Close()

	_, err = orchestrator.packageRig(ctx, ws, character)
	require.ErrorIs(t, err, ErrAssetNotFound)

	// A config asset alone is not enough either; part images are checked first.
	require.NoError(t, store.CreateAsset(ctx, &characters.CharacterAsset{
		CharacterID: character.ID,
		Kind:        characters.AssetKindConfig,
		Name:        "char_cfg.yaml",
		URL:         server.URL + "/raw.png",
	}))
	_, err = orchestrator.packageRig(ctx, ws, character)
	require.ErrorIs(t, err, ErrAssetNotFound)

	// Nothing was written into the workspace on either attempt.
	entries, err := os.ReadDir(ws.root)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestGenerateFailsFastOnBadDownload(t *testing.T) {
	store := openTestStore(t)
	orchestrator, _, server := newTestOrchestrator(t, store, &fakeSegmenter{parts: []string{"mask.png"}}, &fakeRenderer{})

	character := seedCharacter(t, store, server.URL+"/raw.png")

	_, err := orchestrator.Generate(context.Background(), character, server.URL+"/missing.png")
	require.ErrorIs(t, err, ErrDownload)

	// The failed download happens before any asset row is written.
	assets, err := store.ListAssets(context.Background(), character.ID, "")
	require.NoError(t, err)
	require.Empty(t, assets)
}

func TestGenerateRerunsAppendAssets(t *testing.T) {
	store := openTestStore(t)
	segmenter := &fakeSegmenter{parts: []string{"mask.png"}}
	orchestrator, _, server := newTestOrchestrator(t, store, segmenter, &fakeRenderer{})

	character := seedCharacter(t, store, server.URL+"/raw.png")
	ctx := context.Background()

	_, err := orchestrator.Generate(ctx, character, server.URL+"/stylized.png")
	require.NoError(t, err)
	first, err := store.LatestAssetByKind(ctx, character.ID, characters.AssetKindConfig)
	require.NoError(t, err)

	_, err = orchestrator.Generate(ctx, character, server.URL+"/stylized.png")
	require.NoError(t, err)
	second, err := store.LatestAssetByKind(ctx, character.ID, characters.AssetKindConfig)
	require.NoError(t, err)

	// Re-runs append; the latest row wins, earlier rows stay.
	require.Greater(t, second.ID, first.ID)
	configs, err := store.ListAssets(ctx, character.ID, characters.AssetKindConfig)
	require.NoError(t, err)
	require.Len(t, configs, 2)
}
