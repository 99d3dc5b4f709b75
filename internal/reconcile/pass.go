package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/inkmirror/internal/apperr"
	"github.com/starford/inkmirror/internal/decoder"
	"github.com/starford/inkmirror/internal/destination"
	"github.com/starford/inkmirror/internal/journal"
	"github.com/starford/inkmirror/internal/models"
	"github.com/starford/inkmirror/internal/notify"
	"github.com/starford/inkmirror/internal/sse"
	"github.com/starford/inkmirror/internal/storage"
)

// Recorder persists the history of passes.
type Recorder interface {
	BeginRun(ctx context.Context, id string, startedAt time.Time) error
	RecordFile(ctx context.Context, runID string, r models.FileResult) error
	FinishRun(ctx context.Context, rep models.Report, runErr error) error
}

// Publisher broadcasts pass progress to live clients.
type Publisher interface {
	Publish(event sse.Event)
	PublishProgress(done, total int)
}

// Options configures a Syncer.
type Options struct {
	SourceRoot string
	// RootLink is the destination root folder, as an external link or bare id.
	RootLink   string
	Extension  string
	ScratchDir string
	Reflow     bool
}

// Syncer runs reconciliation passes.
type Syncer struct {
	opts      Options
	dest      destination.Provider
	decoder   decoder.Decoder
	resources *Resources
	writer    *Writer
	matcher   *Matcher
	journal   Recorder
	events    Publisher
	sink      notify.Sink
	logger    *slog.Logger
	now       func() time.Time
}

// NewSyncer wires a Syncer. journal and events may be nil.
func NewSyncer(opts Options, dest destination.Provider, dec decoder.Decoder, journal Recorder, events Publisher, sink notify.Sink, logger *slog.Logger) *Syncer {
	if opts.Extension == "" {
		opts.Extension = ".note"
	}
	if sink == nil {
		sink = notify.Discard{}
	}
	res := NewResources(dest, sink, logger)
	return &Syncer{
		opts:      opts,
		dest:      dest,
		decoder:   dec,
		resources: res,
		writer:    NewWriter(dest, res, opts.Reflow),
		matcher:   NewMatcher(dest),
		journal:   journal,
		events:    events,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
	}
}

// SetReflow changes the text mode used for notes written from now on.
func (s *Syncer) SetReflow(on bool) { s.writer.SetReflow(on) }

// target is a validated sync target plus the stores derived from it.
type target struct {
	models.SyncTarget
	source  storage.Provider
	scratch string
	exclude []string
}

// Run performs one reconciliation pass. A configuration problem aborts the
// pass before any file is touched and is returned wrapping
// apperr.ErrConfiguration. Per-file failures are recorded in the report
// and do not fail the pass.
func (s *Syncer) Run(ctx context.Context) (*models.Report, error) {
	rep := &models.Report{RunID: uuid.NewString(), StartedAt: s.now()}
	s.begin(ctx, rep)

	err := s.run(ctx, rep)

	rep.FinishedAt = s.now()
	s.finish(ctx, rep, err)
	return rep, err
}

// run executes the pass and notifies the user once when it aborts for any
// reason other than cancellation.
func (s *Syncer) run(ctx context.Context, rep *models.Report) error {
	err := s.reconcile(ctx, rep)
	if err != nil && ctx.Err() == nil {
		s.sink.Notify(notify.Error, fmt.Sprintf("sync pass aborted: %v", err))
	}
	return err
}

func (s *Syncer) reconcile(ctx context.Context, rep *models.Report) error {
	t, err := s.validate(ctx)
	if err != nil {
		return err
	}

	files, err := t.source.List(s.opts.Extension, t.exclude...)
	if err != nil {
		return fmt.Errorf("reconcile: list source: %w", err)
	}
	rep.Total = len(files)
	s.logger.Info("sync: pass started", slog.String("run_id", rep.RunID), slog.Int("files", len(files)))

	index, err := LoadFolderIndex(ctx, s.dest)
	if err != nil {
		return err
	}
	resolver := NewResolver(s.dest, index)

	if err := os.MkdirAll(t.scratch, 0o755); err != nil {
		return fmt.Errorf("reconcile: create scratch dir: %w", err)
	}
	scratch, err := storage.NewFS(t.scratch)
	if err != nil {
		return err
	}
	defer func() {
		if err := scratch.RemoveAll(); err != nil {
			s.logger.Warn("sync: scratch cleanup failed", slog.String("error", err.Error()))
		}
	}()

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		res := s.syncFile(ctx, t, resolver, scratch, f)
		rep.Add(res.Outcome)
		s.record(ctx, rep.RunID, res)
		if s.events != nil {
			s.events.PublishProgress(i+1, len(files))
		}
	}
	return nil
}

// validate checks the source directory and the destination root folder.
func (s *Syncer) validate(ctx context.Context) (*target, error) {
	if s.opts.SourceRoot == "" {
		return nil, fmt.Errorf("%w: source directory is not set", apperr.ErrConfiguration)
	}
	info, err := os.Stat(s.opts.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: source directory: %v", apperr.ErrConfiguration, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: source path %s is not a directory", apperr.ErrConfiguration, s.opts.SourceRoot)
	}
	source, err := storage.NewFS(s.opts.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrConfiguration, err)
	}

	rootID, err := destination.ParseFolderLink(s.opts.RootLink)
	if err != nil {
		return nil, err
	}
	if _, err := s.dest.GetFolder(ctx, rootID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("%w: destination folder %s does not exist", apperr.ErrConfiguration, rootID)
		}
		return nil, fmt.Errorf("reconcile: get root folder: %w", err)
	}

	t := &target{
		SyncTarget: models.SyncTarget{RootFolderID: rootID, SourceRoot: source.Root()},
		source:     source,
	}
	t.scratch, t.exclude, err = scratchDir(source.Root(), s.opts.ScratchDir)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// scratchDir resolves the scratch directory. When it lies inside the source
// tree it is returned as an exclusion for the listing; it may never contain
// the source tree itself.
func scratchDir(sourceRoot, dir string) (string, []string, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "inkmirror-scratch")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, fmt.Errorf("%w: scratch directory: %v", apperr.ErrConfiguration, err)
	}
	if rel, err := filepath.Rel(abs, sourceRoot); err == nil && !escapes(rel) {
		return "", nil, fmt.Errorf("%w: scratch directory %s contains the source directory", apperr.ErrConfiguration, abs)
	}
	if rel, err := filepath.Rel(sourceRoot, abs); err == nil && !escapes(rel) {
		return abs, []string{rel}, nil
	}
	return abs, nil, nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// syncFile reconciles one source file and never returns an error: failures
// end up in the result.
func (s *Syncer) syncFile(ctx context.Context, t *target, resolver *Resolver, scratch *storage.FS, f models.SourceFile) models.FileResult {
	res := models.FileResult{Path: f.Path}
	fail := func(err error) models.FileResult {
		res.Outcome = models.OutcomeFailed
		res.Error = err.Error()
		res.SyncedAt = s.now()
		s.logger.Error("sync: file failed", slog.String("path", f.Path), slog.String("error", err.Error()))
		s.sink.Notify(notify.Warning, fmt.Sprintf("could not sync %s: %v", f.Path, err))
		return res
	}

	folderID, err := resolver.Resolve(ctx, f.Path, t.RootFolderID)
	if err != nil {
		return fail(err)
	}
	prior, err := s.matcher.Match(ctx, folderID, f.Path)
	if err != nil {
		return fail(err)
	}
	if prior != nil && !f.ModTime.After(prior.UpdatedTime) {
		res.NoteID = prior.ID
		res.Outcome = models.OutcomeSkipped
		res.SyncedAt = s.now()
		s.logger.Debug("sync: up to date", slog.String("path", f.Path))
		return res
	}

	data, err := t.source.Read(f.Path)
	if err != nil {
		return fail(err)
	}
	res.Checksum = journal.Checksum(data)

	pages, err := s.decoder.Decode(ctx, data)
	if err != nil {
		if !errors.Is(err, apperr.ErrDecode) {
			err = fmt.Errorf("%w: %v", apperr.ErrDecode, err)
		}
		return fail(err)
	}

	noteID, err := s.writer.Write(ctx, folderID, prior, f.Path, pages, scratch)
	if err != nil {
		return fail(err)
	}
	res.NoteID = noteID
	res.Outcome = models.OutcomeCreated
	if prior != nil {
		res.Outcome = models.OutcomeUpdated
	}
	res.SyncedAt = s.now()
	s.logger.Info("sync: note written",
		slog.String("path", f.Path), slog.String("note_id", noteID), slog.String("outcome", string(res.Outcome)))
	return res
}

func (s *Syncer) begin(ctx context.Context, rep *models.Report) {
	if s.journal != nil {
		if err := s.journal.BeginRun(ctx, rep.RunID, rep.StartedAt); err != nil {
			s.logger.Warn("sync: journal begin failed", slog.String("error", err.Error()))
		}
	}
	if s.events != nil {
		s.events.Publish(sse.Event{Type: "sync.started", Data: map[string]any{
			"run_id":     rep.RunID,
			"started_at": rep.StartedAt,
		}})
	}
}

func (s *Syncer) record(ctx context.Context, runID string, res models.FileResult) {
	if s.journal != nil {
		if err := s.journal.RecordFile(ctx, runID, res); err != nil {
			s.logger.Warn("sync: journal record failed", slog.String("path", res.Path), slog.String("error", err.Error()))
		}
	}
	if s.events != nil {
		s.events.Publish(sse.Event{Type: "sync.file", Data: res})
	}
}

func (s *Syncer) finish(ctx context.Context, rep *models.Report, runErr error) {
	// The journal write must survive a cancelled pass context.
	ctx = context.WithoutCancel(ctx)
	if s.journal != nil {
		if err := s.journal.FinishRun(ctx, *rep, runErr); err != nil {
			s.logger.Warn("sync: journal finish failed", slog.String("error", err.Error()))
		}
	}
	data := map[string]any{"report": rep}
	if runErr != nil {
		data["error"] = runErr.Error()
	}
	if s.events != nil {
		s.events.Publish(sse.Event{Type: "sync.finished", Data: data})
	}

	attrs := []any{
		slog.String("run_id", rep.RunID),
		slog.Int("created", rep.Created),
		slog.Int("updated", rep.Updated),
		slog.Int("skipped", rep.Skipped),
		slog.Int("failed", rep.Failed),
		slog.Duration("took", rep.Duration()),
	}
	if runErr != nil {
		s.logger.Error("sync: pass failed", append(attrs, slog.String("error", runErr.Error()))...)
		return
	}
	s.logger.Info("sync: pass finished", attrs...)
}
