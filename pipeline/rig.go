package pipeline

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Rig package layout. The renderer expects exactly these three names inside
// one directory, so every run stages files into a fresh workspace before
// invoking it.
const (
	rigTextureName = "texture.png"
	rigMaskName    = "mask.png"
	rigConfigName  = "char_cfg.yaml"
)

// RigJoint is one skeleton node in the rig descriptor.
type RigJoint struct {
	Name   string `yaml:"name"`
	Parent string `yaml:"parent,omitempty"`
	X      int    `yaml:"loc_x"`
	Y      int    `yaml:"loc_y"`
}

// RigConfig is the YAML descriptor that ties the texture, the mask and the
// skeleton together for the animation renderer.
type RigConfig struct {
	Width    int        `yaml:"width"`
	Height   int        `yaml:"height"`
	Skeleton []RigJoint `yaml:"skeleton"`
}

// DefaultRigConfig returns the descriptor for a resized 400x400 drawing with
// the standard humanoid skeleton.
func DefaultRigConfig() RigConfig {
	return RigConfig{
		Width:  400,
		Height: 400,
		Skeleton: []RigJoint{
			{Name: "root", X: 200, Y: 380},
			{Name: "hip", Parent: "root", X: 200, Y: 260},
			{Name: "torso", Parent: "hip", X: 200, Y: 180},
			{Name: "neck", Parent: "torso", X: 200, Y: 120},
			{Name: "head", Parent: "neck", X: 200, Y: 70},
			{Name: "left_shoulder", Parent: "torso", X: 150, Y: 140},
			{Name: "left_elbow", Parent: "left_shoulder", X: 120, Y: 190},
			{Name: "left_hand", Parent: "left_elbow", X: 100, Y: 240},
			{Name: "right_shoulder", Parent: "torso", X: 250, Y: 140},
			{Name: "right_elbow", Parent: "right_shoulder", X: 280, Y: 190},
			{Name: "right_hand", Parent: "right_elbow", X: 300, Y: 240},
			{Name: "left_knee", Parent: "hip", X: 170, Y: 320},
			{Name: "left_foot", Parent: "left_knee", X: 170, Y: 380},
			{Name: "right_knee", Parent: "hip", X: 230, Y: 320},
			{Name: "right_foot", Parent: "right_knee", X: 230, Y: 380},
		},
	}
}

// MarshalRigConfig renders the descriptor as YAML bytes for upload.
func MarshalRigConfig(cfg RigConfig) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: marshal rig config: %w", err)
	}
	return data, nil
}

// workspace is a per-run scratch directory. Runs for the same character can
// overlap across processes, so the name carries a random nonce on top of the
// character id and everything is removed on Close.
type workspace struct {
	root string
}

func newWorkspace(characterID uint64) (*workspace, error) {
	nonce := uuid.NewString()[:8]
	root, err := os.MkdirTemp("", fmt.Sprintf("greedot-run-%d-%s-", characterID, nonce))
	if err != nil {
		return nil, fmt.Errorf("pipeline: create run workspace: %w", err)
	}
	return &workspace{root: root}, nil
}

func (w *workspace) Path(name string) string {
	return filepath.Join(w.root, name)
}

func (w *workspace) Mkdir(name string) (string, error) {
	dir := filepath.Join(w.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("pipeline: create workspace dir: %w", err)
	}
	return dir, nil
}

func (w *workspace) Close() {
	if w.root == "" {
		return
	}
	if err := os.RemoveAll(w.root); err != nil {
		log.Printf("pipeline: remove workspace %s: %v", w.root, err)
	}
	w.root = ""
}
