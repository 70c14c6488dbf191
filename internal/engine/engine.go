// Package engine runs Legend's read and write paths against one state
// directory: load, merge, rescore, save and journal.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nickthorpe71/legend/internal/config"
	"github.com/nickthorpe71/legend/internal/feature"
	"github.com/nickthorpe71/legend/internal/guard"
	"github.com/nickthorpe71/legend/internal/index"
	"github.com/nickthorpe71/legend/internal/journal"
	"github.com/nickthorpe71/legend/internal/merge"
	"github.com/nickthorpe71/legend/internal/observe"
	"github.com/nickthorpe71/legend/internal/recency"
	"github.com/nickthorpe71/legend/internal/storage"
)

// DefaultDir is the state directory used when none is given.
const DefaultDir = ".legend"

// Options configures an Engine.
type Options struct {
	// Dir is the state directory. Defaults to DefaultDir.
	Dir string
	// Observer receives logs and spans. Defaults to observe.Nop().
	Observer *observe.Observer
	// Clock supplies "now". Defaults to time.Now.
	Clock func() time.Time
	// Journal overrides the SQLite journal opened from the state directory.
	Journal journal.Recorder
}

// Engine is bound to one state directory for the life of a command.
type Engine struct {
	dir     string
	cfg     config.Config
	guard   *guard.Guard
	store   *storage.FileStore
	journal journal.Recorder
	obs     *observe.Observer
	now     func() time.Time
	closed  bool
}

// Open reads the directory's configuration and prepares the store. It
// creates nothing on disk.
func Open(opts Options) (*Engine, error) {
	if opts.Dir == "" {
		opts.Dir = DefaultDir
	}
	if opts.Observer == nil {
		opts.Observer = observe.Nop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	cfg, err := config.Load(opts.Dir, guard.New(guard.DefaultPolicy))
	if err != nil {
		return nil, err
	}
	g := guard.New(cfg.Policy())

	store, err := storage.NewFileStore(opts.Dir, cfg.Project(filepath.Dir(opts.Dir)), g)
	if err != nil {
		return nil, err
	}

	return &Engine{
		dir:     opts.Dir,
		cfg:     cfg,
		guard:   g,
		store:   store,
		journal: opts.Journal,
		obs:     opts.Observer,
		now:     opts.Clock,
	}, nil
}

// Close releases the store and the journal. Repeated calls are no-ops.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	var errs []error
	if e.journal != nil {
		errs = append(errs, e.journal.Close())
	}
	errs = append(errs, e.store.Close())
	return errors.Join(errs...)
}

// Dir returns the state directory.
func (e *Engine) Dir() string {
	return e.dir
}

// Config returns the effective configuration.
func (e *Engine) Config() config.Config {
	return e.cfg
}

// InitResult reports what Init created.
type InitResult struct {
	Dir           string `json:"dir"`
	StateCreated  bool   `json:"state_created"`
	ConfigCreated bool   `json:"config_created"`
}

// Init creates the state directory, a default config.yaml and an empty
// State. Existing files are left alone, so Init is safe to repeat.
func (e *Engine) Init(ctx context.Context) (res *InitResult, err error) {
	_, span := e.obs.StartSpan(ctx, "engine.init", attribute.String("dir", e.dir))
	defer func() { observe.Finish(span, err) }()

	res = &InitResult{Dir: e.dir}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	if _, statErr := os.Stat(filepath.Join(e.dir, config.FileName)); errors.Is(statErr, os.ErrNotExist) {
		cfg := e.cfg
		cfg.ProjectName = cfg.Project(filepath.Dir(e.dir))
		if err := config.Save(e.dir, cfg, e.guard); err != nil {
			return nil, err
		}
		e.cfg = cfg
		res.ConfigCreated = true
	}

	if !e.store.Exists() {
		if err := e.store.Save(feature.NewState(e.cfg.Project(filepath.Dir(e.dir)), e.now().Unix())); err != nil {
			return nil, err
		}
		res.StateCreated = true
	}

	e.obs.Log().Info().
		Str("dir", e.dir).
		Str("state_created", fmt.Sprint(res.StateCreated)).
		Str("config_created", fmt.Sprint(res.ConfigCreated)).
		Msg("state directory ready")
	return res, nil
}

// Snapshot is a loaded, rescored State together with its Index.
type Snapshot struct {
	State *feature.State
	Index *index.Index
	Stats feature.Stats
}

// Snapshot loads the State, rescores every feature and indexes it.
func (e *Engine) Snapshot(ctx context.Context) (snap *Snapshot, err error) {
	_, span := e.obs.StartSpan(ctx, "engine.snapshot")
	defer func() { observe.Finish(span, err) }()

	s, err := e.store.Load()
	if err != nil {
		return nil, err
	}
	recency.Rescore(s, e.now().Unix())

	return &Snapshot{State: s, Index: index.Build(s), Stats: s.Stats()}, nil
}

// Result describes a completed write.
type Result struct {
	Report       merge.Report `json:"report"`
	FeatureCount int          `json:"feature_count"`
	State        *feature.State
}

// Apply merges u into the persisted State and saves it. Nothing is written
// unless the whole update is valid and within capacity. A journal failure
// after the save is logged, not returned.
func (e *Engine) Apply(ctx context.Context, u merge.Update) (res *Result, err error) {
	ctx, span := e.obs.StartSpan(ctx, "engine.apply",
		attribute.Int("patches", len(u.Features)),
		attribute.Int("removals", len(u.RemoveFeatures)))
	defer func() { observe.Finish(span, err) }()

	s, err := e.store.Load()
	if err != nil {
		return nil, err
	}

	now := e.now()
	next, rep, err := merge.Apply(s, u, now.Unix(), e.guard.CheckFiles)
	if err != nil {
		return nil, err
	}

	res = &Result{Report: rep, FeatureCount: len(next.Features), State: next}
	if rep.Touched() == 0 {
		e.obs.Log().Info().Msg("update changed nothing; state not rewritten")
		return res, nil
	}

	if err := e.store.Save(next); err != nil {
		return nil, err
	}

	e.obs.Log().Info().
		Int("created", len(rep.Created)).
		Int("updated", len(rep.Updated)).
		Int("removed", len(rep.Removed)).
		Int("features", res.FeatureCount).
		Msg("update applied")

	e.record(ctx, now, rep, res.FeatureCount)
	return res, nil
}

func (e *Engine) record(ctx context.Context, at time.Time, rep merge.Report, count int) {
	j, err := e.openJournal()
	if err != nil {
		e.obs.Log().Warn().Err(err).Msg("journal unavailable; update was saved")
		return
	}
	if j == nil {
		return
	}

	entry := &journal.Entry{
		AppliedAt:    at,
		Created:      rep.Created,
		Updated:      rep.Updated,
		Removed:      rep.Removed,
		FeatureCount: count,
	}
	if err := j.Record(ctx, entry); err != nil {
		e.obs.Log().Warn().Err(err).Msg("failed to record journal entry; update was saved")
	}
}

// openJournal returns the journal, opening the SQLite file on first use.
// It returns nil when journaling is disabled.
func (e *Engine) openJournal() (journal.Recorder, error) {
	if e.journal != nil {
		return e.journal, nil
	}
	if !e.cfg.Journal.Enabled {
		return nil, nil
	}
	j, err := journal.Open(filepath.Join(e.dir, journal.FileName))
	if err != nil {
		return nil, err
	}
	e.journal = j
	return j, nil
}

// Search returns the features matching q in recency order.
func (e *Engine) Search(ctx context.Context, q index.Query) (out []feature.Feature, err error) {
	ctx, span := e.obs.StartSpan(ctx, "engine.search")
	defer func() { observe.Finish(span, err) }()

	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Index.Features(snap.Index.Search(q)), nil
}

// History lists up to limit journal entries, newest first. It never
// creates a journal that does not exist yet.
func (e *Engine) History(ctx context.Context, limit int) ([]*journal.Entry, error) {
	if e.journal == nil {
		if _, err := os.Stat(filepath.Join(e.dir, journal.FileName)); errors.Is(err, os.ErrNotExist) {
			return []*journal.Entry{}, nil
		}
	}
	j, err := e.openJournal()
	if err != nil {
		return nil, err
	}
	if j == nil {
		return []*journal.Entry{}, nil
	}
	return j.List(ctx, limit)
}
