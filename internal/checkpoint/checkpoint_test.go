package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loopscan/internal/models"
)

func sampleDocument() *models.ScanDocument {
	doc := models.NewScanDocument()
	doc.Metadata.RunID = "run-1"
	doc.Metadata.ScanPath = "/src"
	doc.Metadata.TotalFilesScanned = 2
	doc.Metadata.TotalLoopsFound = 1
	doc.Metadata.FailedFiles = []models.FailedFile{{Path: "/src/b.cpp", Error: "parse failure"}}

	rec := models.NewFileRecord(models.FileInfo{Path: "/src/a.cpp", Language: "C++", TotalLoops: 1})
	fn := models.NewFunctionRecord("main", "main", models.Location{StartLine: 1, EndLine: 5})
	fn.Loops = append(fn.Loops, models.NewLoop(models.LoopID("/src/a.cpp", 2, 5), models.LoopFor, models.Location{StartLine: 2, EndLine: 4}, 1))
	rec.Functions["main"] = fn
	doc.SourceFiles["/src/a.cpp"] = rec
	return doc
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, "loop_analysis.checkpoint.json", DefaultPath("loop_analysis.json"))
	assert.Equal(t, filepath.Join("out", "scan.checkpoint.json"), DefaultPath(filepath.Join("out", "scan.json")))
	assert.Equal(t, "results.checkpoint.json", DefaultPath("results"))
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "scan.checkpoint.json")
	m := NewManager(path, nil)
	assert.Equal(t, path, m.Path())

	processed := []string{"/src/a.cpp", "/src/b.cpp"}
	cp := New(sampleDocument(), processed, "abc123")
	assert.Equal(t, Counters{FilesProcessed: 2, FilesFailed: 1, LoopsFound: 1}, cp.Counters)
	require.NoError(t, m.Save(cp))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, processed, loaded.ProcessedFiles)
	assert.Equal(t, 2, loaded.ResumeCursor)
	assert.Equal(t, "abc123", loaded.DiscoveryFingerprint)
	assert.False(t, loaded.SavedAt.IsZero())

	doc := loaded.Document()
	assert.Equal(t, "run-1", doc.Metadata.RunID)
	require.Contains(t, doc.SourceFiles, "/src/a.cpp")
	assert.Len(t, doc.SourceFiles["/src/a.cpp"].Functions["main"].Loops, 1)
	assert.NotNil(t, doc.CallGraph)

	// No temp files are left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, m.Remove())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, m.Remove())
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrCorrupt)

	truncated := filepath.Join(dir, "truncated.json")
	require.NoError(t, os.WriteFile(truncated, []byte(`{"metadata": {"version": "1.0"`), 0644))
	_, err = Load(truncated)
	assert.ErrorIs(t, err, ErrCorrupt)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"processed_files": []}`), 0644))
	_, err = Load(empty)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestValidate(t *testing.T) {
	files := []string{"/src/a.cpp", "/src/b.cpp", "/src/c.cpp"}
	cp := New(sampleDocument(), files[:2], "fp")

	assert.NoError(t, cp.Validate("fp", files))
	assert.ErrorIs(t, cp.Validate("other", files), ErrMismatch)
	assert.ErrorIs(t, cp.Validate("fp", files[:1]), ErrMismatch)
	assert.ErrorIs(t, cp.Validate("fp", []string{"/src/a.cpp", "/src/x.cpp", "/src/c.cpp"}), ErrMismatch)

	cp.ResumeCursor = 5
	assert.ErrorIs(t, cp.Validate("fp", files), ErrCorrupt)
}

func TestSaveWriteFailure(t *testing.T) {
	dir := t.TempDir()
	cp := New(sampleDocument(), []string{"/src/a.cpp"}, "fp")

	// The checkpoint path is taken by a directory.
	taken := filepath.Join(dir, "scan.checkpoint.json")
	require.NoError(t, os.Mkdir(taken, 0755))
	assert.ErrorIs(t, NewManager(taken, nil).Save(cp), ErrWrite)

	// The parent is a regular file.
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	assert.ErrorIs(t, NewManager(filepath.Join(file, "scan.checkpoint.json"), nil).Save(cp), ErrWrite)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestSaveFailureKeepsPreviousCheckpoint(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	path := filepath.Join(dir, "scan.checkpoint.json")
	m := NewManager(path, nil)
	require.NoError(t, m.Save(New(sampleDocument(), []string{"/src/a.cpp"}, "fp")))

	require.NoError(t, os.Chmod(dir, 0555))
	t.Cleanup(func() { os.Chmod(dir, 0755) })
	if f, err := os.CreateTemp(dir, "writable"); err == nil {
		f.Close()
		os.Remove(f.Name())
		t.Skip("directory permissions are not enforced for this user")
	}

	err := m.Save(New(sampleDocument(), []string{"/src/a.cpp", "/src/b.cpp"}, "fp"))
	assert.ErrorIs(t, err, ErrWrite)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/src/a.cpp"}, loaded.ProcessedFiles)
	assert.Equal(t, 1, loaded.ResumeCursor)
}
