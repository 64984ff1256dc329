package rigpacks

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	rardecode "github.com/nwaples/rardecode/v2"
)

const (
	maxArchiveBytes int64 = 100 * 1024 * 1024 // 100 MiB upper guard

	formatZip = "zip"
	formatRar = "rar"

	// The motion descriptor every pack must carry.
	entrySuffix = ".rig.yaml"
)

// packStorage keeps extracted pack folders on local disk. Each pack lives in
// its own uuid-named folder under the base dir.
type packStorage struct {
	baseDir string
}

func newPackStorageFromEnv() (*packStorage, error) {
	dir := strings.TrimSpace(os.Getenv("RIGPACK_STORAGE_DIR"))
	if dir == "" {
		dir = "./data/rigpacks"
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("rigpacks: resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("rigpacks: ensure storage dir: %w", err)
	}
	return &packStorage{baseDir: abs}, nil
}

func (s *packStorage) BaseDir() string {
	if s == nil {
		return ""
	}
	return s.baseDir
}

// SaveArchive extracts an uploaded zip or rar archive into a fresh pack
// folder. It returns the folder name, the detected motion descriptor and an
// optional preview image. The folder is removed again on any error.
func (s *packStorage) SaveArchive(fileHeader *multipart.FileHeader) (folder, entryFile string, previewFile *string, err error) {
	if s == nil {
		return "", "", nil, errors.New("rigpacks: pack storage not configured")
	}
	if fileHeader == nil {
		return "", "", nil, errors.New("rigpacks: archive file not provided")
	}
	if fileHeader.Size > 0 && fileHeader.Size > maxArchiveBytes {
		return "", "", nil, fmt.Errorf("rigpacks: archive size exceeds %d bytes", maxArchiveBytes)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", "", nil, fmt.Errorf("rigpacks: open archive: %w", err)
	}
	defer src.Close()

	tmpFile, err := os.CreateTemp("", "rigpack-archive-*")
	if err != nil {
		return "", "", nil, fmt.Errorf("rigpacks: create temp file: %w", err)
	}
	defer func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}()

	written, err := io.Copy(tmpFile, io.LimitReader(src, maxArchiveBytes+1))
	if err != nil {
		return "", "", nil, fmt.Errorf("rigpacks: copy archive: %w", err)
	}
	if written > maxArchiveBytes {
		return "", "", nil, fmt.Errorf("rigpacks: archive size exceeds %d bytes", maxArchiveBytes)
	}

	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		return "", "", nil, fmt.Errorf("rigpacks: rewind temp file: %w", err)
	}
	format, err := detectArchiveFormat(tmpFile, fileHeader.Filename)
	if err != nil {
		return "", "", nil, err
	}

	folder = uuid.NewString()
	destDir := filepath.Join(s.baseDir, folder)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", "", nil, fmt.Errorf("rigpacks: create pack dir: %w", err)
	}

	cleanup := true
	defer func() {
		if cleanup {
			os.RemoveAll(destDir)
		}
	}()

	ex := &extraction{destDir: destDir}
	switch format {
	case formatZip:
		err = ex.extractZip(tmpFile)
	case formatRar:
		err = ex.extractRar(tmpFile.Name())
	}
	if err != nil {
		return "", "", nil, err
	}

	entryFile, previewFile, err = ex.resolve()
	if err != nil {
		return "", "", nil, err
	}

	cleanup = false
	return folder, entryFile, previewFile, nil
}

func (s *packStorage) Remove(folder string) error {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(folder)
	if trimmed == "" {
		return nil
	}
	target := filepath.Join(s.baseDir, trimmed)
	if !strings.HasPrefix(target, s.baseDir) {
		return fmt.Errorf("rigpacks: invalid folder %q", folder)
	}
	return os.RemoveAll(target)
}

// extraction walks archive entries, writes them under destDir and tracks the
// descriptor and preview candidates as it goes.
type extraction struct {
	destDir        string
	filesExtracted int
	entry          string
	preview        string
}

func (e *extraction) extractZip(tmpFile *os.File) error {
	stat, err := tmpFile.Stat()
	if err != nil {
		return fmt.Errorf("rigpacks: stat temp file: %w", err)
	}
	reader, err := zip.NewReader(tmpFile, stat.Size())
	if err != nil {
		return fmt.Errorf("rigpacks: parse archive: %w", err)
	}

	for _, file := range reader.File {
		rel, err := sanitizeEntryName(file.Name)
		if err != nil {
			return err
		}
		if rel == "" || file.FileInfo().IsDir() {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return fmt.Errorf("rigpacks: open entry %s: %w", rel, err)
		}
		err = e.writeEntry(rel, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *extraction) extractRar(tmpPath string) error {
	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("rigpacks: reopen temp archive: %w", err)
	}
	defer f.Close()

	rr, err := rardecode.NewReader(f)
	if err != nil {
		return fmt.Errorf("rigpacks: parse rar archive: %w", err)
	}

	for {
		header, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("rigpacks: read rar entry: %w", err)
		}

		rel, err := sanitizeEntryName(header.Name)
		if err != nil {
			return err
		}
		if rel == "" || header.IsDir {
			if !header.IsDir {
				if _, err := io.Copy(io.Discard, rr); err != nil {
					return fmt.Errorf("rigpacks: discard rar entry: %w", err)
				}
			}
			continue
		}

		if err := e.writeEntry(rel, rr); err != nil {
			return err
		}
	}
	return nil
}

func (e *extraction) writeEntry(rel string, src io.Reader) error {
	targetPath := filepath.Join(e.destDir, filepath.FromSlash(rel))
	if !strings.HasPrefix(targetPath, e.destDir+string(os.PathSeparator)) {
		return fmt.Errorf("rigpacks: archive entry escapes target dir: %s", rel)
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("rigpacks: prepare dir %s: %w", rel, err)
	}

	dst, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("rigpacks: create file %s: %w", rel, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("rigpacks: write file %s: %w", rel, err)
	}

	e.filesExtracted++
	lower := strings.ToLower(rel)
	if e.entry == "" && strings.HasSuffix(lower, entrySuffix) {
		e.entry = rel
	}
	if e.preview == "" && isImagePath(lower) {
		e.preview = rel
	}
	return nil
}

func (e *extraction) resolve() (string, *string, error) {
	if e.filesExtracted == 0 {
		return "", nil, errors.New("rigpacks: archive is empty")
	}
	if e.entry == "" {
		return "", nil, fmt.Errorf("rigpacks: unable to detect motion descriptor (%s)", entrySuffix)
	}
	if e.preview != "" {
		preview := e.preview
		return e.entry, &preview, nil
	}
	return e.entry, nil, nil
}

func detectArchiveFormat(file *os.File, originalName string) (string, error) {
	ext := strings.ToLower(strings.TrimSpace(filepath.Ext(originalName)))
	switch ext {
	case ".zip":
		return formatZip, nil
	case ".rar":
		return formatRar, nil
	}

	var header [8]byte
	n, err := file.ReadAt(header[:], 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("rigpacks: read archive header: %w", err)
	}
	magic := header[:n]

	if len(magic) >= 2 && magic[0] == 0x50 && magic[1] == 0x4b {
		return formatZip, nil
	}
	if len(magic) >= 6 && bytes.Equal(magic[:6], []byte{0x52, 0x61, 0x72, 0x21, 0x1a, 0x07}) {
		return formatRar, nil
	}

	return "", errors.New("rigpacks: unsupported archive format, only .zip and .rar are accepted")
}

func sanitizeEntryName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", nil
	}

	normalized := strings.ReplaceAll(trimmed, "\\", "/")
	normalized = path.Clean(normalized)
	normalized = strings.TrimPrefix(normalized, "./")
	if normalized == "." || normalized == "" {
		return "", nil
	}
	if strings.HasPrefix(normalized, "../") {
		return "", fmt.Errorf("rigpacks: archive entry %q uses parent traversal", name)
	}
	if strings.HasPrefix(strings.ToLower(normalized), "__macosx/") {
		return "", nil
	}
	return normalized, nil
}

func normalizeRelPath(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	normalized := strings.ReplaceAll(trimmed, "\\", "/")
	normalized = path.Clean(normalized)
	normalized = strings.TrimPrefix(normalized, "./")
	if normalized == "." || strings.HasPrefix(normalized, "../") {
		return ""
	}
	return normalized
}

func isImagePath(path string) bool {
	switch {
	case strings.HasSuffix(path, ".png"),
		strings.HasSuffix(path, ".jpg"),
		strings.HasSuffix(path, ".jpeg"),
		strings.HasSuffix(path, ".webp"),
		strings.HasSuffix(path, ".gif"):
		return true
	default:
		return false
	}
}
