package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeRenderer writes an empty file per preset and fails for the presets
// named in failing.
type fakeRenderer struct {
	mu       sync.Mutex
	failing  map[string]bool
	rendered []string
	active   int32
	maxSeen  int32
}

func (r *fakeRenderer) Render(_ context.Context, _, motionPreset, outputPath string) error {
	current := atomic.AddInt32(&r.active, 1)
	defer atomic.AddInt32(&r.active, -1)
	for {
		seen := atomic.LoadInt32(&r.maxSeen)
		if current <= seen || atomic.CompareAndSwapInt32(&r.maxSeen, seen, current) {
			break
		}
	}

	r.mu.Lock()
	r.rendered = append(r.rendered, motionPreset)
	fails := r.failing[motionPreset]
	r.mu.Unlock()

	if fails {
		return fmt.Errorf("%w: preset %s: synthetic failure", ErrRender, motionPreset)
	}
	return os.WriteFile(outputPath, []byte("gif"), 0o644)
}

func TestRenderPoolRunsEveryPreset(t *testing.T) {
	renderer := &fakeRenderer{}
	pool := &RenderPool{
		renderer:    renderer,
		concurrency: 2,
		presets:     []string{"wave", "dance", "jump", "walk"},
	}

	outputDir := t.TempDir()
	results := pool.RenderAll(context.Background(), t.TempDir(), outputDir)

	require.Len(t, results, 4)
	for i, preset := range pool.presets {
		require.Equal(t, preset, results[i].Preset)
		require.NoError(t, results[i].Err)
		require.Equal(t, filepath.Join(outputDir, preset+".gif"), results[i].OutputPath)
	}
	require.LessOrEqual(t, renderer.maxSeen, int32(2), "worker pool exceeded its bound")
}

func TestRenderPoolIsolatesFailures(t *testing.T) {
	renderer := &fakeRenderer{failing: map[string]bool{"dance": true}}
	pool := &RenderPool{
		renderer:    renderer,
		concurrency: 4,
		presets:     []string{"wave", "dance", "jump", "walk"},
	}

	results := pool.RenderAll(context.Background(), t.TempDir(), t.TempDir())

	var failed, succeeded int
	for _, result := range results {
		if result.Err != nil {
			failed++
			require.Equal(t, "dance", result.Preset)
			require.ErrorIs(t, result.Err, ErrRender)
			require.Empty(t, result.OutputPath)
		} else {
			succeeded++
			require.NotEmpty(t, result.OutputPath)
		}
	}
	require.Equal(t, 1, failed)
	require.Equal(t, 3, succeeded)
}

func TestNewRenderPoolFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("RENDER_CONCURRENCY", "")
		t.Setenv("MOTION_PRESETS", "")
		pool := NewRenderPoolFromEnv(&fakeRenderer{})
		require.Equal(t, defaultRenderConcurrency, pool.concurrency)
		require.Equal(t, defaultMotionPresets, pool.Presets())
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("RENDER_CONCURRENCY", "2")
		t.Setenv("MOTION_PRESETS", "spin, bow ,")
		pool := NewRenderPoolFromEnv(&fakeRenderer{})
		require.Equal(t, 2, pool.concurrency)
		require.Equal(t, []string{"spin", "bow"}, pool.Presets())
	})

	t.Run("invalid concurrency falls back", func(t *testing.T) {
		t.Setenv("RENDER_CONCURRENCY", "zero")
		pool := NewRenderPoolFromEnv(&fakeRenderer{})
		require.Equal(t, defaultRenderConcurrency, pool.concurrency)
	})
}
