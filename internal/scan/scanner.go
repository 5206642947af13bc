// Package scan runs a whole loop analysis: discovery, per-file analysis,
// checkpointing, the call graph pass and the output document.
package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"loopscan/internal/analyzer"
	"loopscan/internal/checkpoint"
	"loopscan/internal/config"
	"loopscan/internal/discovery"
	"loopscan/internal/logging"
	"loopscan/internal/models"
	"loopscan/internal/syntax"
)

// ErrInterrupted is returned after an interrupted scan has written its
// checkpoint and partial output.
var ErrInterrupted = errors.New("scan interrupted")

type Options struct {
	// Root is the directory to scan.
	Root string
	// OutputFile overrides output.output_file when set.
	OutputFile string
	// CheckpointPath overrides the checkpoint location derived from the
	// output file.
	CheckpointPath string
	// ResumeFrom is the path of a checkpoint to resume.
	ResumeFrom string
}

// Result is the state of a finished or interrupted scan.
type Result struct {
	Document       *models.ScanDocument
	Assembler      *analyzer.Assembler
	Discoverer     *discovery.Discoverer
	OutputFile     string
	CheckpointPath string
	Interrupted    bool
}

type Scanner struct {
	provider syntax.Provider
	analyzer *analyzer.Analyzer
	config   *config.Config
	logger   *slog.Logger
	now      func() time.Time
}

func NewScanner(provider syntax.Provider, cfg *config.Config, logger *slog.Logger) *Scanner {
	logger = logging.OrDiscard(logger)
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Scanner{
		provider: provider,
		analyzer: analyzer.NewAnalyzer(logger),
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

type fileResult struct {
	record *models.FileRecord
	err    error
}

// Run scans opts.Root. Cancelling ctx stops the scan after the files in
// flight finish; the checkpoint and a partial document are written and
// ErrInterrupted is returned along with the partial result.
func (s *Scanner) Run(ctx context.Context, opts Options) (*Result, error) {
	started := s.now()

	disc, err := discovery.New(discovery.OptionsFromConfig(opts.Root, s.config.Files))
	if err != nil {
		return nil, err
	}
	files, err := disc.Discover(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: during discovery", ErrInterrupted)
		}
		return nil, err
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	fingerprint := disc.Fingerprint()

	outputFile := opts.OutputFile
	if outputFile == "" {
		outputFile = s.config.Output.OutputFile
	}
	checkpointPath := opts.CheckpointPath
	if checkpointPath == "" {
		checkpointPath = checkpoint.DefaultPath(outputFile)
	}

	doc := models.NewScanDocument()
	var processed []string
	if opts.ResumeFrom != "" {
		cp, err := checkpoint.Load(opts.ResumeFrom)
		if err != nil {
			return nil, err
		}
		if err := cp.Validate(fingerprint, paths); err != nil {
			return nil, err
		}
		doc = cp.Document()
		processed = append(processed, cp.ProcessedFiles...)
		doc.Metadata.ResumedFrom = opts.ResumeFrom
		s.logger.Info("resuming scan", "checkpoint", opts.ResumeFrom, "files_processed", len(processed))
	}

	doc.Metadata.RunID = uuid.New().String()
	doc.Metadata.StartedAt = started.UTC()
	doc.Metadata.ScanPath = disc.Root()
	doc.Metadata.CompilerFlags = s.config.GetCompilerFlags()

	asm := analyzer.NewAssembler(doc)
	mgr := checkpoint.NewManager(checkpointPath, s.logger)
	result := &Result{
		Document:       doc,
		Assembler:      asm,
		Discoverer:     disc,
		OutputFile:     outputFile,
		CheckpointPath: checkpointPath,
	}

	s.logger.Info("starting scan",
		"root", disc.Root(),
		"files", len(files),
		"remaining", len(files)-len(processed),
		"workers", s.config.Analysis.MaxWorkers)

	batchSize := s.config.Analysis.CheckpointFrequency
	cursor := len(processed)
	done := 0
	for cursor < len(files) {
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}
		batch := files[cursor:min(cursor+batchSize, len(files))]
		results := s.analyzeBatch(ctx, batch)

		for i, r := range results {
			path := files[cursor+i].Path
			if r.err != nil {
				s.logger.Warn("failed to analyze file", "path", path, "error", r.err)
				asm.AddFailure(path, r.err)
			} else {
				asm.AddFile(r.record)
			}
			processed = append(processed, path)
		}
		cursor += len(results)
		done += len(results)
		s.logProgress(started, done, cursor, len(files))

		if len(results) < len(batch) {
			result.Interrupted = true
			break
		}
		if cursor < len(files) {
			s.saveCheckpoint(mgr, doc, processed, fingerprint)
		}
	}

	analyzer.BuildCallGraph(doc)
	s.finalize(doc, started, len(processed), len(files)-len(processed), result.Interrupted)

	if result.Interrupted {
		s.saveCheckpoint(mgr, doc, processed, fingerprint)
		if err := WriteDocument(outputFile, doc); err != nil {
			return result, err
		}
		s.logger.Warn("scan interrupted",
			"files_processed", len(processed),
			"files_remaining", len(files)-len(processed),
			"checkpoint", checkpointPath)
		return result, ErrInterrupted
	}

	if err := WriteDocument(outputFile, doc); err != nil {
		return result, err
	}
	if !s.config.Analysis.KeepCheckpoint {
		if err := mgr.Remove(); err != nil {
			s.logger.Warn("failed to remove checkpoint", "path", checkpointPath, "error", err)
		}
	}
	s.logger.Info("scan complete",
		"files", doc.Metadata.TotalFilesScanned,
		"loops", doc.Metadata.TotalLoopsFound,
		"failed", len(doc.Metadata.FailedFiles),
		"duration", time.Duration(doc.Metadata.AnalysisDurationSeconds*float64(time.Second)).Round(time.Millisecond))
	return result, nil
}

// analyzeBatch analyzes files and returns their results in order. With one
// worker it stops early when ctx is cancelled, so the result can be a
// prefix of the batch. With several workers the whole batch finishes.
func (s *Scanner) analyzeBatch(ctx context.Context, files []discovery.File) []fileResult {
	workers := s.config.Analysis.MaxWorkers
	if workers <= 1 {
		results := make([]fileResult, 0, len(files))
		for _, f := range files {
			if ctx.Err() != nil {
				break
			}
			record, err := s.AnalyzeFile(ctx, f)
			results = append(results, fileResult{record: record, err: err})
		}
		return results
	}

	results := make([]fileResult, len(files))
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			record, err := s.AnalyzeFile(ctx, f)
			results[i] = fileResult{record: record, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// AnalyzeFile parses and analyzes one file. The parse runs to completion
// even when ctx is cancelled.
func (s *Scanner) AnalyzeFile(ctx context.Context, f discovery.File) (*models.FileRecord, error) {
	root, err := s.provider.Parse(context.WithoutCancel(ctx), f.Path, s.config.FlagsForFile(f.Path))
	if err != nil {
		return nil, err
	}
	info := models.FileInfo{
		Path:         f.Path,
		Language:     syntax.LanguageName(f.Path),
		Size:         f.Size,
		LastModified: f.ModTime.UTC(),
	}
	return s.analyzer.AnalyzeFile(root, info), nil
}

// Refresh re-analyzes changed paths of a finished scan, drops paths that no
// longer match discovery, rebuilds the call graph and rewrites the output.
func (s *Scanner) Refresh(ctx context.Context, result *Result, paths []string) error {
	started := s.now()
	for _, path := range paths {
		f, ok := result.Discoverer.Match(path)
		if !ok {
			abs, _ := filepath.Abs(path)
			result.Assembler.RemoveFile(abs)
			s.logger.Debug("removed file from analysis", "path", abs)
			continue
		}
		record, err := s.AnalyzeFile(ctx, f)
		if err != nil {
			s.logger.Warn("failed to analyze file", "path", f.Path, "error", err)
			result.Assembler.AddFailure(f.Path, err)
			continue
		}
		result.Assembler.AddFile(record)
		s.logger.Info("re-analyzed file", "path", f.Path, "loops", record.FileInfo.TotalLoops)
	}

	doc := result.Document
	analyzer.BuildCallGraph(doc)
	processed := doc.Metadata.TotalFilesScanned
	s.finalize(doc, started, processed, 0, false)
	return WriteDocument(result.OutputFile, doc)
}

func (s *Scanner) saveCheckpoint(mgr *checkpoint.Manager, doc *models.ScanDocument, processed []string, fingerprint string) {
	analyzer.BuildCallGraph(doc)
	if err := mgr.Save(checkpoint.New(doc, processed, fingerprint)); err != nil {
		s.logger.Warn("checkpoint not saved; previous checkpoint kept", "path", mgr.Path(), "error", err)
	}
}

func (s *Scanner) finalize(doc *models.ScanDocument, started time.Time, processed, remaining int, interrupted bool) {
	now := s.now()
	doc.Metadata.GeneratedAt = now.UTC()
	doc.Metadata.AnalysisDurationSeconds = now.Sub(started).Seconds()
	doc.Metadata.Interrupted = interrupted
	doc.Metadata.FilesProcessed = processed
	doc.Metadata.FilesRemaining = remaining
	doc.Metadata.TotalLoopsFound = doc.CountLoops()
}

func (s *Scanner) logProgress(started time.Time, done, cursor, total int) {
	if total == 0 {
		return
	}
	elapsed := s.now().Sub(started)
	var eta time.Duration
	if done > 0 {
		eta = time.Duration(float64(elapsed) / float64(done) * float64(total-cursor))
	}
	s.logger.Info("progress",
		"files", fmt.Sprintf("%d/%d", cursor, total),
		"percent", fmt.Sprintf("%.1f", float64(cursor)*100/float64(total)),
		"eta", eta.Round(time.Second))
}

// WriteDocument writes doc as indented JSON.
func WriteDocument(path string, doc *models.ScanDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode analysis document: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write analysis document: %w", err)
	}
	return nil
}

// ReadDocument loads an analysis document written by WriteDocument.
func ReadDocument(path string) (*models.ScanDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis document: %w", err)
	}
	var doc models.ScanDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse analysis document %s: %w", path, err)
	}
	return &doc, nil
}
