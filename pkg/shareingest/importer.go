// shareimport - An attachment import pipeline for end-to-end encrypted messengers.
// Copyright (C) 2026 shareimport contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package shareingest turns opaque cross-app share items into sendable
// attachments: classification over declared format identifiers, asynchronous
// loading into pipeline-owned storage, format-specific attachment building
// (including video recompression), and composite progress reporting.
package shareingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mau.fi/util/exsync"
	"go.mau.fi/util/random"

	"go.mau.fi/shareimport/pkg/shareitem"
)

// DefaultMaxAttachments matches the outbound message pipeline's limit on
// media attachments per message.
const DefaultMaxAttachments = 32

// Config carries the knobs for one Importer.
type Config struct {
	// WorkDir is where owned copies and transcode outputs live. A fresh
	// process-private directory is created when empty.
	WorkDir        string
	MaxAttachments int
	Transcode      TranscodeOptions
	Metrics        *Metrics
	Log            zerolog.Logger
}

// Importer owns one import pipeline: its working directory, its in-flight
// job registry, and the loader/builder pair. It is created at pipeline start
// and torn down with Close once importing is finished or cancelled; nothing
// about it is ambient static state.
type Importer struct {
	log            zerolog.Logger
	loader         *Loader
	builder        *Builder
	metrics        *Metrics
	maxAttachments int
	workDir        string

	jobs *exsync.Map[uuid.UUID, *Job]
}

func NewImporter(cfg Config) (*Importer, error) {
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "shareimport-"+random.String(10))
	}
	if cfg.MaxAttachments <= 0 {
		cfg.MaxAttachments = DefaultMaxAttachments
	}
	loader, err := NewLoader(cfg.WorkDir)
	if err != nil {
		return nil, err
	}
	builder, err := NewBuilder(cfg.WorkDir, cfg.Transcode, cfg.Metrics)
	if err != nil {
		return nil, err
	}
	return &Importer{
		log:            cfg.Log,
		loader:         loader,
		builder:        builder,
		metrics:        cfg.Metrics,
		maxAttachments: cfg.MaxAttachments,
		workDir:        cfg.WorkDir,
		jobs:           exsync.NewMap[uuid.UUID, *Job](),
	}, nil
}

// WorkDir returns the directory holding the pipeline's owned files.
func (im *Importer) WorkDir() string {
	return im.workDir
}

// Close cancels any in-flight jobs and removes the working directory,
// invalidating every file-backed attachment produced by this importer.
func (im *Importer) Close() error {
	for _, job := range im.jobs.CopyData() {
		job.Cancel()
	}
	return os.RemoveAll(im.workDir)
}

// Job is one in-flight import operation.
type Job struct {
	ID uuid.UUID

	cancel context.CancelFunc
	agg    *Aggregator
	done   chan struct{}

	attachments []*Attachment
	err         error
}

// Percent returns the job's composite progress.
func (job *Job) Percent() int {
	return job.agg.Percent()
}

// Cancel is best-effort: it cancels the per-item contexts, which aborts
// provider loads and transcode sessions that honor cancellation.
func (job *Job) Cancel() {
	job.cancel()
}

// Wait blocks until the job finishes and returns its attachments. Per-item
// failures have already been folded into a single aggregate error; a failed
// import never partially succeeds.
func (job *Job) Wait() ([]*Attachment, error) {
	<-job.done
	if job.err != nil {
		return nil, job.err
	}
	return job.attachments, nil
}

// CancelJob cancels an in-flight job by ID. It reports whether the job was
// still registered.
func (im *Importer) CancelJob(id uuid.UUID) bool {
	job, ok := im.jobs.Get(id)
	if ok {
		job.Cancel()
	}
	return ok
}

// Import runs one synchronous import. onProgress may be nil; when set, it
// receives composite 0-100 updates from the job's sampling goroutine, and
// the caller is responsible for marshalling them onto its UI loop.
func (im *Importer) Import(ctx context.Context, items []shareitem.Provider, onProgress func(percent int)) ([]*Attachment, error) {
	job, err := im.Begin(ctx, items, onProgress)
	if err != nil {
		return nil, err
	}
	return job.Wait()
}

// Begin selects which offered items to import and starts their load+build
// pipelines concurrently. Distinct items run with no ordering guarantee;
// within one item, build strictly follows load.
func (im *Importer) Begin(ctx context.Context, items []shareitem.Provider, onProgress func(percent int)) (*Job, error) {
	selected, err := SelectForImport(items)
	if err != nil {
		return nil, err
	}
	if len(selected) > im.maxAttachments {
		return nil, fmt.Errorf("%w: %d items selected, limit is %d", ErrTooManyAttachments, len(selected), im.maxAttachments)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		ID:          uuid.New(),
		cancel:      cancel,
		done:        make(chan struct{}),
		attachments: make([]*Attachment, len(selected)),
	}
	log := im.log.With().Stringer("job_id", job.ID).Logger()
	jobCtx = log.WithContext(jobCtx)
	log.Debug().Int("offered", len(items)).Int("selected", len(selected)).Msg("Starting import")

	sources := make([]Source, 0, len(selected)*2)
	trackers := make([][2]*Tracker, len(selected))
	for i := range selected {
		trackers[i] = [2]*Tracker{{}, {}}
		sources = append(sources, trackers[i][0], trackers[i][1])
	}
	job.agg = NewAggregator(sources, onProgress)
	im.jobs.Set(job.ID, job)

	go im.run(jobCtx, job, selected, trackers)
	return job, nil
}

func (im *Importer) run(ctx context.Context, job *Job, selected []ClassifiedItem, trackers [][2]*Tracker) {
	log := zerolog.Ctx(ctx)
	start := time.Now()

	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		job.agg.Run(ctx)
	}()

	var wg sync.WaitGroup
	errs := make([]error, len(selected))
	for i, item := range selected {
		wg.Add(1)
		go func(i int, item ClassifiedItem) {
			defer wg.Done()
			loadTracker, buildTracker := trackers[i][0], trackers[i][1]
			// A failed item must not wedge the aggregate below 100.
			defer loadTracker.finish()
			defer buildTracker.finish()
			attachment, err := im.importItem(ctx, item, loadTracker, buildTracker)
			if err != nil {
				level := zerolog.WarnLevel
				if errorIsUnavailable(err) {
					level = zerolog.DebugLevel
				}
				log.WithLevel(level).Err(err).
					Int("item_index", i).
					Stringer("kind", item.Kind).
					Msg("Failed to import item")
				errs[i] = fmt.Errorf("item %d (%s): %w", i, item.Kind, err)
				return
			}
			im.metrics.AttachmentBuilt(item.Kind)
			job.attachments[i] = attachment
		}(i, item)
	}
	wg.Wait()
	<-aggDone

	// One failed item fails the whole import with a single aggregate error;
	// siblings are never silently dropped.
	if err := errors.Join(errs...); err != nil {
		job.err = fmt.Errorf("failed to build attachments: %w", err)
		job.attachments = nil
	}
	im.metrics.ImportFinished(job.err, time.Since(start))
	im.jobs.Delete(job.ID)
	job.cancel()
	close(job.done)
	log.Debug().Err(job.err).Dur("duration", time.Since(start)).Msg("Import finished")
}

func (im *Importer) importItem(ctx context.Context, item ClassifiedItem, loadTracker, buildTracker *Tracker) (*Attachment, error) {
	payload, err := im.loader.Load(ctx, item, loadTracker)
	if err != nil {
		return nil, err
	}
	attachment, err := im.builder.Build(ctx, payload, buildTracker)
	if err != nil {
		return nil, err
	}
	return attachment, nil
}
