package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickthorpe71/legend/internal/config"
	"github.com/nickthorpe71/legend/internal/feature"
	"github.com/nickthorpe71/legend/internal/guard"
	"github.com/nickthorpe71/legend/internal/index"
	"github.com/nickthorpe71/legend/internal/journal"
	"github.com/nickthorpe71/legend/internal/merge"
	"github.com/nickthorpe71/legend/internal/observe"
	"github.com/nickthorpe71/legend/internal/storage"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newEngine(t *testing.T, opts Options) (*Engine, *clock) {
	t.Helper()
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	if opts.Dir == "" {
		opts.Dir = filepath.Join(t.TempDir(), DefaultDir)
	}
	opts.Clock = c.Now
	e, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, c
}

func update(t *testing.T, doc string) merge.Update {
	t.Helper()
	u, err := merge.Decode(strings.NewReader(doc), merge.FormatAuto)
	require.NoError(t, err)
	return u
}

func TestEngine_InitIsIdempotent(t *testing.T) {
	e, _ := newEngine(t, Options{})
	ctx := context.Background()

	res, err := e.Init(ctx)
	require.NoError(t, err)
	assert.True(t, res.StateCreated)
	assert.True(t, res.ConfigCreated)
	assert.FileExists(t, filepath.Join(e.Dir(), storage.StateFile))
	assert.FileExists(t, filepath.Join(e.Dir(), config.FileName))
	assert.Equal(t, filepath.Base(filepath.Dir(e.Dir())), e.Config().ProjectName)

	_, err = e.Apply(ctx, update(t, `{"features":[{"id":"a","name":"A","domain":"d","description":"x"}]}`))
	require.NoError(t, err)

	res, err = e.Init(ctx)
	require.NoError(t, err)
	assert.False(t, res.StateCreated)
	assert.False(t, res.ConfigCreated)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.State.Features, 1)
}

func TestEngine_OpenCreatesNothing(t *testing.T) {
	e, _ := newEngine(t, Options{})

	snap, err := e.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.State.Features)

	_, err = os.Stat(e.Dir())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestEngine_ApplyScenario(t *testing.T) {
	e, c := newEngine(t, Options{})
	ctx := context.Background()

	res, err := e.Apply(ctx, update(t, `{"features":[{"id":"auth","name":"Auth","domain":"backend","description":"Login flow","tags":["security"]}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"auth"}, res.Report.Created)
	assert.Equal(t, 1, res.FeatureCount)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	auth := snap.State.Find("auth")
	require.NotNil(t, auth)
	assert.Equal(t, feature.StatusPending, auth.Status)
	assert.InDelta(t, 1.0, auth.RecencyScore, 1e-9)

	c.Advance(time.Hour)
	_, err = e.Apply(ctx, update(t, `{"features":[{"id":"auth","status":"Complete"}]}`))
	require.NoError(t, err)

	snap, err = e.Snapshot(ctx)
	require.NoError(t, err)
	auth = snap.State.Find("auth")
	assert.Equal(t, feature.StatusComplete, auth.Status)
	assert.Equal(t, "backend", auth.Domain)
	assert.Equal(t, []string{"security"}, auth.Tags)
	assert.Equal(t, c.Now().Unix(), auth.LastUpdated)
	assert.Equal(t, 1, snap.Stats.Complete)

	backend, err := e.Search(ctx, index.Query{Domain: "backend"})
	require.NoError(t, err)
	require.Len(t, backend, 1)
	assert.Equal(t, "auth", backend[0].ID)

	pending, err := e.Search(ctx, index.Query{Status: feature.StatusPending})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEngine_FailedApplyLeavesDiskUntouched(t *testing.T) {
	e, _ := newEngine(t, Options{})
	ctx := context.Background()

	_, err := e.Apply(ctx, update(t, `{"features":[{"id":"a","name":"A","domain":"d","description":"x"}]}`))
	require.NoError(t, err)
	path := filepath.Join(e.Dir(), storage.StateFile)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	cases := map[string]string{
		"missing id":     `{"features":[{"id":"a","status":"Blocked"},{"name":"no id"}]}`,
		"missing fields": `{"features":[{"id":"b"}]}`,
		"absolute path":  `{"features":[{"id":"a","files_involved":["/etc/passwd"]}]}`,
		"escaping path":  `{"features":[{"id":"a","files_involved":["../outside.go"]}]}`,
		"too long":       `{"features":[{"id":"a","description":"` + strings.Repeat("x", feature.MaxDescriptionBytes+1) + `"}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.Apply(ctx, update(t, doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, feature.ErrValidation), "got %v", err)

			after, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestEngine_CorruptStateIsNeverReplaced(t *testing.T) {
	e, _ := newEngine(t, Options{})
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(e.Dir(), 0o755))
	path := filepath.Join(e.Dir(), storage.StateFile)
	require.NoError(t, os.WriteFile(path, []byte("garbage!garbage!"), 0o644))

	_, err := e.Snapshot(ctx)
	assert.True(t, errors.Is(err, feature.ErrCorrupted))

	_, err = e.Apply(ctx, update(t, `{"features":[{"id":"a","name":"A","domain":"d","description":"x"}]}`))
	assert.True(t, errors.Is(err, feature.ErrCorrupted))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "garbage!garbage!", string(data))
}

func TestEngine_RespectsAllowedGlobs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), DefaultDir)
	cfg := config.Default()
	cfg.Guard.AllowedFileGlobs = []string{"src/**"}
	require.NoError(t, config.Save(dir, cfg, guard.New(guard.DefaultPolicy)))

	e, _ := newEngine(t, Options{Dir: dir})
	_, err := e.Apply(context.Background(), update(t, `{"features":[{"id":"a","name":"A","domain":"d","description":"x","files_involved":["docs/readme.md"]}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")

	_, err = e.Apply(context.Background(), update(t, `{"features":[{"id":"a","name":"A","domain":"d","description":"x","files_involved":["src/a.go"]}]}`))
	require.NoError(t, err)
}

func TestEngine_NoOpUpdateSkipsWrite(t *testing.T) {
	e, _ := newEngine(t, Options{})

	res, err := e.Apply(context.Background(), update(t, `{"remove_features":["ghost"]}`))
	require.NoError(t, err)
	assert.Zero(t, res.Report.Touched())
	assert.NoFileExists(t, filepath.Join(e.Dir(), storage.StateFile))
}

func TestEngine_JournalsWrites(t *testing.T) {
	e, c := newEngine(t, Options{})
	ctx := context.Background()

	hist, err := e.History(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, hist)
	assert.NoFileExists(t, filepath.Join(e.Dir(), journal.FileName))

	_, err = e.Apply(ctx, update(t, `{"features":[{"id":"a","name":"A","domain":"d","description":"x"}]}`))
	require.NoError(t, err)
	c.Advance(time.Minute)
	_, err = e.Apply(ctx, update(t, `{"features":[{"id":"a","status":"Complete"}],"remove_features":["zzz"]}`))
	require.NoError(t, err)

	hist, err = e.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, []string{"a"}, hist[0].Updated)
	assert.Equal(t, c.Now().Unix(), hist[0].AppliedAt.Unix())
	assert.Equal(t, []string{"a"}, hist[1].Created)
}

type failingJournal struct{ closed bool }

func (f *failingJournal) Record(context.Context, *journal.Entry) error {
	return errors.New("journal is read-only")
}

func (f *failingJournal) List(context.Context, int) ([]*journal.Entry, error) {
	return nil, errors.New("journal is read-only")
}

func (f *failingJournal) Close() error {
	f.closed = true
	return nil
}

func TestEngine_JournalFailureIsOnlyAWarning(t *testing.T) {
	var logs bytes.Buffer
	fj := &failingJournal{}
	e, _ := newEngine(t, Options{Journal: fj, Observer: observe.New(&logs, false)})
	ctx := context.Background()

	_, err := e.Apply(ctx, update(t, `{"features":[{"id":"a","name":"A","domain":"d","description":"x"}]}`))
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "failed to record journal entry")

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotNil(t, snap.State.Find("a"))

	require.NoError(t, e.Close())
	assert.True(t, fj.closed)
}

func TestEngine_JournalDisabled(t *testing.T) {
	dir := filepath.Join(t.TempDir(), DefaultDir)
	cfg := config.Default()
	cfg.Journal.Enabled = false
	require.NoError(t, config.Save(dir, cfg, guard.New(guard.DefaultPolicy)))

	e, _ := newEngine(t, Options{Dir: dir})
	_, err := e.Apply(context.Background(), update(t, `{"features":[{"id":"a","name":"A","domain":"d","description":"x"}]}`))
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, journal.FileName))
}

func TestEngine_InvalidConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), DefaultDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte("nope: 1\n"), 0o644))

	_, err := Open(Options{Dir: dir})
	assert.True(t, errors.Is(err, feature.ErrValidation))
}
