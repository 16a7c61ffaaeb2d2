// Package scanner discovers sideloaded books: it walks the books
// directory, clusters files into prospective books, probes audio
// metadata, and assembles library records with narration timing
// tables.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Scanner orchestrates the scan phases.
type Scanner struct {
	logger  *slog.Logger
	walker  *Walker
	grouper *Grouper
	prober  *Prober
}

// New creates a scanner.
func New(workers int, logger *slog.Logger) *Scanner {
	return &Scanner{
		logger:  logger,
		walker:  NewWalker(logger),
		grouper: NewGrouper(logger),
		prober:  NewProber(workers, logger),
	}
}

// Options configures a scan.
type Options struct {
	// OnProgress, when set, receives phase/count updates. Called from
	// scan goroutines; implementations must be safe for that.
	OnProgress func(Progress)
}

// Scan walks root and returns the assembled books found under it.
// Groups that fail assembly are logged and skipped, never fatal; the
// scan only errors when the root itself is unusable or the context
// ends.
func (s *Scanner) Scan(ctx context.Context, root string, opts Options) ([]*Result, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("books directory not accessible: %w", err)
	}

	started := time.Now()
	tracker := newProgressTracker(opts.OnProgress)

	tracker.setPhase(PhaseWalking)
	s.logger.Info("starting scan", "root", root)

	var files []WalkResult
	for wr := range s.walker.Walk(ctx, root) {
		files = append(files, wr)
		tracker.increment(wr.RelPath)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tracker.setPhase(PhaseGrouping)
	groups := s.grouper.Group(files)
	s.logger.Info("grouped files", "files", len(files), "groups", len(groups))

	tracker.setPhase(PhaseProbing)
	results := make([]*Result, 0, len(groups))
	for _, grp := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		metas := s.prober.ProbeAll(ctx, grp.Files, tracker.increment)

		tracker.setPhase(PhaseAssembling)
		res, err := buildResult(root, grp, metas, s.logger)
		if err != nil {
			s.logger.Warn("failed to assemble book", "root", grp.Root, "error", err)
			tracker.addError()
			continue
		}
		results = append(results, res)
		tracker.increment(grp.Root)
		tracker.setPhase(PhaseProbing)
	}

	tracker.setPhase(PhaseComplete)
	s.logger.Info("scan complete",
		"duration", time.Since(started),
		"files", len(files),
		"books", len(results),
	)

	return results, nil
}
