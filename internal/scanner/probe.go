package scanner

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/simonhull/audiometa"
)

// metaSource extracts metadata from one audio file. It exists so
// tests can stand in for real audio parsing.
type metaSource interface {
	probe(ctx context.Context, path string) (*fileMeta, error)
}

// audiometaSource probes tags, duration, and chapter marks.
type audiometaSource struct{}

func (audiometaSource) probe(ctx context.Context, path string) (*fileMeta, error) {
	f, err := audiometa.OpenContext(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	meta := &fileMeta{
		Format:   f.Format.String(),
		Duration: f.Audio.Duration.Seconds(),
		Title:    f.Tags.Title,
		Album:    f.Tags.Album,
		Artist:   f.Tags.Artist,
		Narrator: f.Tags.Narrator,
		Comment:  f.Tags.Comment,
	}
	for _, ch := range f.Chapters {
		meta.Chapters = append(meta.Chapters, chapterMark{
			Index: ch.Index,
			Title: ch.Title,
			Begin: ch.StartTime.Seconds(),
			End:   ch.EndTime.Seconds(),
		})
	}

	return meta, nil
}

// Prober fans audio probing out across a bounded worker pool.
type Prober struct {
	source  metaSource
	logger  *slog.Logger
	workers int
}

// NewProber creates a prober backed by audiometa. Workers defaults to
// the CPU count when zero or negative.
func NewProber(workers int, logger *slog.Logger) *Prober {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Prober{
		source:  audiometaSource{},
		logger:  logger,
		workers: workers,
	}
}

// ProbeAll extracts metadata from every probeable file. Failed probes
// are logged and omitted from the result; assembly falls back to
// filename-derived metadata for those files. onFile, when set, is
// called once per processed file for progress reporting.
func (p *Prober) ProbeAll(ctx context.Context, files []WalkResult, onFile func(relPath string)) map[string]*fileMeta {
	var probeable []WalkResult
	for _, f := range files {
		if isProbeablePath(f.RelPath) {
			probeable = append(probeable, f)
		}
	}
	metas := make(map[string]*fileMeta, len(probeable))
	if len(probeable) == 0 {
		return metas
	}

	type probeResult struct {
		meta *fileMeta
		path string
	}

	jobs := make(chan WalkResult, len(probeable))
	results := make(chan probeResult, len(probeable))

	workers := min(p.workers, len(probeable))
	for range workers {
		go func() {
			// Every job yields exactly one result so the collector
			// below can count instead of coordinating a close.
			for f := range jobs {
				var meta *fileMeta
				if ctx.Err() == nil {
					m, err := p.source.probe(ctx, f.Path)
					if err != nil {
						p.logger.Warn("failed to probe audio file", "path", f.Path, "error", err)
					} else {
						meta = m
					}
					if onFile != nil {
						onFile(f.RelPath)
					}
				}
				results <- probeResult{meta: meta, path: f.Path}
			}
		}()
	}

	for _, f := range probeable {
		jobs <- f
	}
	close(jobs)

	for range probeable {
		r := <-results
		if r.meta != nil {
			metas[r.path] = r.meta
		}
	}

	return metas
}
