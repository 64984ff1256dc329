package rigpacks

import (
	"archive/zip"
	"bytes"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type archiveEntry struct {
	name string
	data string
}

func buildZip(t *testing.T, entries []archiveEntry) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, entry := range entries {
		w, err := zw.Create(entry.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(entry.data))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func makeFileHeader(t *testing.T, filename string, data []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("archive", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	form, err := multipart.NewReader(body, mw.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })

	files := form.File["archive"]
	require.Len(t, files, 1)
	return files[0]
}

func newTestStorage(t *testing.T) *packStorage {
	t.Helper()
	return &packStorage{baseDir: t.TempDir()}
}

func TestSaveArchiveExtractsZip(t *testing.T) {
	storage := newTestStorage(t)
	archive := buildZip(t, []archiveEntry{
		{"preview.png", "png-bytes"},
		{"motions/wave.rig.yaml", "motion: wave"},
		{"model/texture.png", "texture-bytes"},
	})

	folder, entryFile, previewFile, err := storage.SaveArchive(makeFileHeader(t, "pack.zip", archive))
	require.NoError(t, err)
	require.NotEmpty(t, folder)
	require.Equal(t, "motions/wave.rig.yaml", entryFile)
	require.NotNil(t, previewFile)
	require.Equal(t, "preview.png", *previewFile)

	data, err := os.ReadFile(filepath.Join(storage.baseDir, folder, "motions", "wave.rig.yaml"))
	require.NoError(t, err)
	require.Equal(t, "motion: wave", string(data))
}

func TestSaveArchiveWithoutPreview(t *testing.T) {
	storage := newTestStorage(t)
	archive := buildZip(t, []archiveEntry{
		{"dance.rig.yaml", "motion: dance"},
	})

	_, entryFile, previewFile, err := storage.SaveArchive(makeFileHeader(t, "pack.zip", archive))
	require.NoError(t, err)
	require.Equal(t, "dance.rig.yaml", entryFile)
	require.Nil(t, previewFile)
}

func TestSaveArchiveRequiresDescriptor(t *testing.T) {
	storage := newTestStorage(t)
	archive := buildZip(t, []archiveEntry{
		{"readme.txt", "no descriptor here"},
	})

	_, _, _, err := storage.SaveArchive(makeFileHeader(t, "pack.zip", archive))
	require.Error(t, err)
	require.Contains(t, err.Error(), "motion descriptor")

	// Failed extractions leave no folder behind.
	entries, err := os.ReadDir(storage.baseDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSaveArchiveRejectsEmptyArchive(t *testing.T) {
	storage := newTestStorage(t)
	archive := buildZip(t, nil)

	_, _, _, err := storage.SaveArchive(makeFileHeader(t, "pack.zip", archive))
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty")
}

func TestSaveArchiveRejectsTraversal(t *testing.T) {
	storage := newTestStorage(t)
	archive := buildZip(t, []archiveEntry{
		{"../escape.rig.yaml", "motion: escape"},
	})

	_, _, _, err := storage.SaveArchive(makeFileHeader(t, "pack.zip", archive))
	require.Error(t, err)
	require.Contains(t, err.Error(), "traversal")
}

func TestSaveArchiveRejectsUnknownFormat(t *testing.T) {
	storage := newTestStorage(t)

	_, _, _, err := storage.SaveArchive(makeFileHeader(t, "pack.bin", []byte("not an archive")))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported archive format")
}

func TestSaveArchiveDetectsZipByMagic(t *testing.T) {
	storage := newTestStorage(t)
	archive := buildZip(t, []archiveEntry{
		{"idle.rig.yaml", "motion: idle"},
	})

	// No usable extension, format comes from the PK header.
	_, entryFile, _, err := storage.SaveArchive(makeFileHeader(t, "upload", archive))
	require.NoError(t, err)
	require.Equal(t, "idle.rig.yaml", entryFile)
}

func TestRemoveIgnoresBlankFolder(t *testing.T) {
	storage := newTestStorage(t)
	require.NoError(t, storage.Remove(""))
	require.NoError(t, storage.Remove("   "))
}

func TestSanitizeEntryName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "model/texture.png", "model/texture.png", false},
		{"backslashes", `model\texture.png`, "model/texture.png", false},
		{"leading dot slash", "./wave.rig.yaml", "wave.rig.yaml", false},
		{"macos metadata skipped", "__MACOSX/._wave.rig.yaml", "", false},
		{"blank", "   ", "", false},
		{"parent traversal", "../../etc/passwd", "", true},
		{"nested traversal", "a/../../escape", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sanitizeEntryName(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeRelPath(t *testing.T) {
	require.Equal(t, "motions/wave.rig.yaml", normalizeRelPath("./motions/wave.rig.yaml"))
	require.Equal(t, "a/b.png", normalizeRelPath(`a\b.png`))
	require.Empty(t, normalizeRelPath("../outside"))
	require.Empty(t, normalizeRelPath("  "))
}
