// Package checkpoint persists partial scan state so an interrupted scan can
// be resumed.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"loopscan/internal/logging"
	"loopscan/internal/models"
)

var (
	// ErrWrite is returned when a checkpoint cannot be persisted. The scan
	// continues and the previous checkpoint stays the recovery point.
	ErrWrite = errors.New("checkpoint write failed")

	// ErrCorrupt is returned for an unreadable or malformed checkpoint.
	ErrCorrupt = errors.New("checkpoint is corrupt")

	// ErrMismatch is returned when a checkpoint was taken with a different
	// discovery configuration or file set.
	ErrMismatch = errors.New("checkpoint does not match the current scan")
)

type Counters struct {
	FilesProcessed int `json:"files_processed"`
	FilesFailed    int `json:"files_failed"`
	LoopsFound     int `json:"loops_found"`
}

// Checkpoint is the partial ScanDocument plus resume bookkeeping. The
// document fields are inlined so a checkpoint reads like an analysis file.
type Checkpoint struct {
	models.ScanDocument

	ProcessedFiles       []string  `json:"processed_files"`
	ResumeCursor         int       `json:"resume_cursor"`
	Counters             Counters  `json:"counters"`
	DiscoveryFingerprint string    `json:"discovery_fingerprint"`
	SavedAt              time.Time `json:"saved_at"`
}

// New snapshots doc and the processed prefix of the scan order.
func New(doc *models.ScanDocument, processed []string, fingerprint string) *Checkpoint {
	cp := &Checkpoint{
		ScanDocument:         *doc,
		ProcessedFiles:       append([]string{}, processed...),
		ResumeCursor:         len(processed),
		DiscoveryFingerprint: fingerprint,
	}
	cp.Counters = Counters{
		FilesProcessed: len(processed),
		FilesFailed:    len(doc.Metadata.FailedFiles),
		LoopsFound:     doc.Metadata.TotalLoopsFound,
	}
	return cp
}

// Document returns the partial document held by the checkpoint.
func (c *Checkpoint) Document() *models.ScanDocument {
	doc := c.ScanDocument
	return &doc
}

// Validate checks that the checkpoint can resume a scan whose discovery
// produced files with the given fingerprint.
func (c *Checkpoint) Validate(fingerprint string, files []string) error {
	if c.DiscoveryFingerprint != fingerprint {
		return fmt.Errorf("%w: discovery configuration changed", ErrMismatch)
	}
	if c.ResumeCursor != len(c.ProcessedFiles) {
		return fmt.Errorf("%w: resume cursor %d does not match %d processed files",
			ErrCorrupt, c.ResumeCursor, len(c.ProcessedFiles))
	}
	if c.ResumeCursor > len(files) {
		return fmt.Errorf("%w: %d files processed but only %d discovered",
			ErrMismatch, c.ResumeCursor, len(files))
	}
	for i, path := range c.ProcessedFiles {
		if files[i] != path {
			return fmt.Errorf("%w: file %d is %s, checkpoint has %s", ErrMismatch, i, files[i], path)
		}
	}
	return nil
}

// Manager reads and writes the checkpoint file of one scan.
type Manager struct {
	path   string
	logger *slog.Logger
}

func NewManager(path string, logger *slog.Logger) *Manager {
	return &Manager{path: path, logger: logging.OrDiscard(logger)}
}

// DefaultPath derives the checkpoint location from the output file, as in
// loop_analysis.json -> loop_analysis.checkpoint.json.
func DefaultPath(outputFile string) string {
	ext := filepath.Ext(outputFile)
	return strings.TrimSuffix(outputFile, ext) + ".checkpoint.json"
}

func (m *Manager) Path() string {
	return m.path
}

// Save writes cp atomically: a temp file in the same directory is renamed
// over the previous checkpoint.
func (m *Manager) Save(cp *Checkpoint) error {
	cp.SavedAt = time.Now().UTC()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(m.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	m.logger.Info("checkpoint saved",
		"path", m.path,
		"files_processed", cp.Counters.FilesProcessed,
		"loops_found", cp.Counters.LoopsFound)
	return nil
}

// Load reads a checkpoint written by Save.
func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}
	if cp.SourceFiles == nil || cp.Metadata.Version == "" {
		return nil, fmt.Errorf("%w: %s: missing analysis document", ErrCorrupt, path)
	}
	if cp.CallGraph == nil {
		cp.CallGraph = make(map[string]*models.CallGraphEntry)
	}
	if cp.Extensions == nil {
		cp.Extensions = make(map[string]any)
	}
	return &cp, nil
}

// Remove deletes the checkpoint file. A missing file is not an error.
func (m *Manager) Remove() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
