package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const defaultRenderConcurrency = 4

var defaultMotionPresets = []string{"wave", "dance", "jump", "walk"}

// Renderer produces one GIF animation for a rig directory and a motion
// preset. The rig directory must contain the fixed texture/mask/config
// layout.
type Renderer interface {
	Render(ctx context.Context, rigDir, motionPreset, outputPath string) error
}

// CommandRenderer shells out to the animation tool for each preset.
type CommandRenderer struct {
	binary string
}

// NewCommandRendererFromEnv builds the default out-of-process renderer.
// RENDERER_BIN overrides the executable name.
func NewCommandRendererFromEnv() *CommandRenderer {
	binary := strings.TrimSpace(os.Getenv("RENDERER_BIN"))
	if binary == "" {
		binary = "greedot-render"
	}
	return &CommandRenderer{binary: binary}
}

func (r *CommandRenderer) Render(ctx context.Context, rigDir, motionPreset, outputPath string) error {
	cmd := exec.CommandContext(ctx, r.binary,
		"--rig-dir", rigDir,
		"--motion", motionPreset,
		"--output", outputPath,
	)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("pipeline: renderer stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("pipeline: start renderer: %w", err)
	}
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		log.Printf("pipeline: renderer[%s]: %s", motionPreset, scanner.Text())
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%w: preset %s: %v", ErrRender, motionPreset, err)
	}
	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("%w: preset %s produced no output", ErrRender, motionPreset)
	}
	return nil
}

// AnimationResult holds the outcome for one motion preset. Exactly one of
// OutputPath and Err is set; a failed preset never hides the others.
type AnimationResult struct {
	Preset     string
	OutputPath string
	Err        error
}

// RenderPool fans motion presets out over a bounded number of renderer
// processes.
type RenderPool struct {
	renderer    Renderer
	concurrency int
	presets     []string
}

// NewRenderPoolFromEnv reads RENDER_CONCURRENCY and MOTION_PRESETS (comma
// separated) with sensible defaults.
func NewRenderPoolFromEnv(renderer Renderer) *RenderPool {
	concurrency := defaultRenderConcurrency
	if raw := strings.TrimSpace(os.Getenv("RENDER_CONCURRENCY")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			concurrency = parsed
		} else {
			log.Printf("pipeline: invalid RENDER_CONCURRENCY %q, using %d", raw, concurrency)
		}
	}

	presets := defaultMotionPresets
	if raw := strings.TrimSpace(os.Getenv("MOTION_PRESETS")); raw != "" {
		var parsed []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				parsed = append(parsed, item)
			}
		}
		if len(parsed) > 0 {
			presets = parsed
		}
	}

	return &RenderPool{renderer: renderer, concurrency: concurrency, presets: presets}
}

// Presets returns the configured motion presets in render order.
func (p *RenderPool) Presets() []string {
	return p.presets
}

// RenderAll runs every preset against the rig directory, writing GIFs into
// outputDir. Results come back in preset order and each entry carries its own
// error, so one bad preset does not discard the rest.
func (p *RenderPool) RenderAll(ctx context.Context, rigDir, outputDir string) []AnimationResult {
	results := make([]AnimationResult, len(p.presets))
	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

	for i, preset := range p.presets {
		wg.Add(1)
		go func(i int, preset string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outputPath := filepath.Join(outputDir, preset+".gif")
			if err := p.renderer.Render(ctx, rigDir, preset, outputPath); err != nil {
				results[i] = AnimationResult{Preset: preset, Err: err}
				return
			}
			results[i] = AnimationResult{Preset: preset, OutputPath: outputPath}
		}(i, preset)
	}
	wg.Wait()

	return results
}
