package pipeline

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"greedot_back/cache"
	"greedot_back/characters"
)

// BlobStore is the slice of object storage the pipeline needs.
type BlobStore interface {
	UploadBytes(ctx context.Context, data []byte, contentType, ext string, pathSegments ...string) (string, error)
	UploadLocalFile(ctx context.Context, localPath, contentType string, pathSegments ...string) (string, error)
}

// Orchestrator drives the stylize -> segment -> package -> render chain for
// one character and records every produced file in the asset catalog. All
// collaborators are injected at construction; nothing reads configuration
// mid-run.
type Orchestrator struct {
	store      *characters.Store
	blobs      BlobStore
	stylize    *StylizeClient
	segmenter  Segmenter
	pool       *RenderPool
	lock       *cache.RunLock
	httpClient *http.Client
}

func NewOrchestrator(store *characters.Store, blobs BlobStore, stylize *StylizeClient, segmenter Segmenter, pool *RenderPool, lock *cache.RunLock) *Orchestrator {
	return &Orchestrator{
		store:      store,
		blobs:      blobs,
		stylize:    stylize,
		segmenter:  segmenter,
		pool:       pool,
		lock:       lock,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// AnimationOutcome reports one motion preset of a run: either the uploaded
// GIF URL or the render error for that preset.
type AnimationOutcome struct {
	Preset string `json:"preset"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error,omitempty"`
}

// GenerateReport summarizes one full pipeline run.
type GenerateReport struct {
	PartURLs   []string           `json:"part_urls"`
	ConfigURL  string             `json:"config_url"`
	Animations []AnimationOutcome `json:"animations"`
}

// Stylize sends the character's raw drawing through the image generation
// service and returns the candidate stylized image URLs.
func (o *Orchestrator) Stylize(ctx context.Context, character *characters.Character, stylePreset int) ([]string, error) {
	if character.RawImageURL == "" {
		return nil, ErrMissingRawImage
	}
	return o.stylize.Generate(ctx, stylePreset, character.RawImageURL)
}

// Generate runs segmentation, rig packaging and animation rendering for the
// chosen stylized image. Stages run strictly in order; a failed stage aborts
// the run but already-recorded assets stay in the catalog. Renders that fail
// only lose their own preset.
func (o *Orchestrator) Generate(ctx context.Context, character *characters.Character, stylizedURL string) (*GenerateReport, error) {
	if character.RawImageURL == "" {
		return nil, ErrMissingRawImage
	}

	token := uuid.NewString()
	release, err := o.lock.Acquire(ctx, character.ID, token)
	if err != nil {
		return nil, err
	}
	defer release()

	ws, err := newWorkspace(character.ID)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	partURLs, err := o.runSegmentation(ctx, ws, character, stylizedURL)
	if err != nil {
		return nil, err
	}

	configURL, err := o.uploadRigConfig(ctx, character)
	if err != nil {
		return nil, err
	}

	rigDir, err := o.packageRig(ctx, ws, character)
	if err != nil {
		return nil, err
	}

	animations, err := o.renderAnimations(ctx, ws, character, rigDir)
	if err != nil {
		return nil, err
	}

	return &GenerateReport{
		PartURLs:   partURLs,
		ConfigURL:  configURL,
		Animations: animations,
	}, nil
}

// runSegmentation downloads the stylized image, splits it into part images
// and records each part as an IMG asset.
func (o *Orchestrator) runSegmentation(ctx context.Context, ws *workspace, character *characters.Character, stylizedURL string) ([]string, error) {
	inputPath := ws.Path("stylized.png")
	if err := downloadFile(ctx, o.httpClient, stylizedURL, inputPath); err != nil {
		return nil, err
	}

	partsDir, err := ws.Mkdir("parts")
	if err != nil {
		return nil, err
	}

	partPaths, err := o.segmenter.Segment(ctx, inputPath, partsDir)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(partPaths))
	for _, partPath := range partPaths {
		url, err := o.blobs.UploadLocalFile(ctx, partPath, "image/png", "characters", fmt.Sprint(character.ID), "parts")
		if err != nil {
			return nil, err
		}
		asset := &characters.CharacterAsset{
			CharacterID: character.ID,
			Kind:        characters.AssetKindImage,
			Name:        filepath.Base(partPath),
			URL:         url,
		}
		if err := o.store.CreateAsset(ctx, asset); err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// uploadRigConfig writes the skeleton descriptor for this run and records it
// as a YAML asset.
func (o *Orchestrator) uploadRigConfig(ctx context.Context, character *characters.Character) (string, error) {
	data, err := MarshalRigConfig(DefaultRigConfig())
	if err != nil {
		return "", err
	}

	url, err := o.blobs.UploadBytes(ctx, data, "application/x-yaml", ".yaml", "characters", fmt.Sprint(character.ID), "config")
	if err != nil {
		return "", err
	}
	asset := &characters.CharacterAsset{
		CharacterID: character.ID,
		Kind:        characters.AssetKindConfig,
		Name:        rigConfigName,
		URL:         url,
	}
	if err := o.store.CreateAsset(ctx, asset); err != nil {
		return "", err
	}
	return url, nil
}

// packageRig assembles the fixed texture/mask/config layout the renderer
// expects. Both derived assets must already exist in the catalog before any
// file hits the workspace.
func (o *Orchestrator) packageRig(ctx context.Context, ws *workspace, character *characters.Character) (string, error) {
	maskAsset, err := o.store.LatestAssetByKind(ctx, character.ID, characters.AssetKindImage)
	if err != nil {
		return "", fmt.Errorf("%w: character %d has no part image", ErrAssetNotFound, character.ID)
	}
	configAsset, err := o.store.LatestAssetByKind(ctx, character.ID, characters.AssetKindConfig)
	if err != nil {
		return "", fmt.Errorf("%w: character %d has no rig config", ErrAssetNotFound, character.ID)
	}

	rigDir, err := ws.Mkdir("rig")
	if err != nil {
		return "", err
	}

	if err := downloadFile(ctx, o.httpClient, character.RawImageURL, filepath.Join(rigDir, rigTextureName)); err != nil {
		return "", err
	}
	if err := downloadFile(ctx, o.httpClient, maskAsset.URL, filepath.Join(rigDir, rigMaskName)); err != nil {
		return "", err
	}
	if err := downloadFile(ctx, o.httpClient, configAsset.URL, filepath.Join(rigDir, rigConfigName)); err != nil {
		return "", err
	}
	return rigDir, nil
}

// renderAnimations runs the motion presets over the packaged rig, uploading
// each successful GIF and recording it as an asset.
func (o *Orchestrator) renderAnimations(ctx context.Context, ws *workspace, character *characters.Character, rigDir string) ([]AnimationOutcome, error) {
	outputDir, err := ws.Mkdir("animations")
	if err != nil {
		return nil, err
	}

	results := o.pool.RenderAll(ctx, rigDir, outputDir)

	outcomes := make([]AnimationOutcome, 0, len(results))
	for _, result := range results {
		if result.Err != nil {
			log.Printf("pipeline: render preset %s for character %d: %v", result.Preset, character.ID, result.Err)
			outcomes = append(outcomes, AnimationOutcome{Preset: result.Preset, Error: result.Err.Error()})
			continue
		}

		url, err := o.blobs.UploadLocalFile(ctx, result.OutputPath, "image/gif", "characters", fmt.Sprint(character.ID), "animations")
		if err != nil {
			return nil, err
		}
		asset := &characters.CharacterAsset{
			CharacterID: character.ID,
			Kind:        characters.AssetKindAnimation,
			Name:        result.Preset + ".gif",
			URL:         url,
		}
		if err := o.store.CreateAsset(ctx, asset); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, AnimationOutcome{Preset: result.Preset, URL: url})
	}
	return outcomes, nil
}
