package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Segmenter splits one stylized character image into part-image files (head,
// torso, limbs) plus a mask. Implementations receive a local input path and a
// scratch output directory and return the produced file paths.
type Segmenter interface {
	Segment(ctx context.Context, imagePath, outputDir string) ([]string, error)
}

// CommandSegmenter shells out to the segmentation tool. The tool prints one
// output file path per line on stdout.
type CommandSegmenter struct {
	binary string
}

// NewCommandSegmenterFromEnv builds the default out-of-process segmenter.
// SEGMENTER_BIN overrides the executable name.
func NewCommandSegmenterFromEnv() *CommandSegmenter {
	binary := strings.TrimSpace(os.Getenv("SEGMENTER_BIN"))
	if binary == "" {
		binary = "greedot-segment"
	}
	return &CommandSegmenter{binary: binary}
}

func (s *CommandSegmenter) Segment(ctx context.Context, imagePath, outputDir string) ([]string, error) {
	cmd := exec.CommandContext(ctx, s.binary, "--input", imagePath, "--out-dir", outputDir)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("pipeline: segmenter stderr pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipeline: segmenter stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("pipeline: start segmenter: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Printf("pipeline: segmenter: %s", scanner.Text())
		}
	}()

	var paths []string
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(outputDir, line)
		}
		paths = append(paths, line)
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("pipeline: segmenter exited: %w", err)
	}
	if scanErr != nil {
		return nil, fmt.Errorf("pipeline: read segmenter output: %w", scanErr)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("pipeline: segmenter produced no output files")
	}

	return paths, nil
}

// downloadFile fetches an external resource into destPath. Any non-success
// status aborts the stage with ErrDownload before any asset row is written.
func downloadFile(ctx context.Context, client *http.Client, rawURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("pipeline: create download request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDownload, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned %s", ErrDownload, rawURL, resp.Status)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("pipeline: create local file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("pipeline: write local file: %w", err)
	}
	return nil
}
