package tracker

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/radtrack/internal/config"
	"github.com/lehigh-university-libraries/radtrack/internal/handlers"
	"github.com/lehigh-university-libraries/radtrack/internal/localstore"
	"github.com/lehigh-university-libraries/radtrack/internal/scoring"
	"github.com/lehigh-university-libraries/radtrack/internal/storage"
)

type env struct {
	clock  *clockwork.FakeClock
	store  *localstore.MemoryStore
	server *storage.Store
	http   *httptest.Server
	cfg    config.Config
}

func newEnv(t *testing.T, runID string) *env {
	t.Helper()
	server, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })

	srv := httptest.NewServer(handlers.New(server, handlers.WithRunID(runID)).Routes())
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.ServerURL = srv.URL
	cfg.AccessCode = "RAD7"
	cfg.Canvas = scoring.Canvas{Width: 200, Height: 100}
	return &env{
		clock:  clockwork.NewFakeClockAt(time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)),
		store:  localstore.NewMemoryStore(),
		server: server,
		http:   srv,
		cfg:    cfg,
	}
}

func (e *env) open(t *testing.T, opts ...Option) *Tracker {
	t.Helper()
	opts = append([]Option{WithClock(e.clock), WithStore(e.store)}, opts...)
	tr, err := Open(context.Background(), e.cfg, opts...)
	require.NoError(t, err)
	return tr
}

func chestCase() (scoring.GroundTruth, scoring.Submission) {
	labels := scoring.DefaultLabels()
	gt := scoring.GroundTruth{
		CaseID:  "case-17",
		ImageID: "case-17",
		Boxes:   map[string][]scoring.Rect{"Fracture": {{X1: 0.1, Y1: 0.1, X2: 0.3, Y2: 0.5}}},
		Present: map[string]bool{"Cardiomegaly": true},
	}
	sub := scoring.Submission{
		Boxes:      []scoring.UserBox{{LabelIndex: labels.Index("Fracture"), Rect: scoring.Rect{X1: 20, Y1: 10, X2: 60, Y2: 50}}},
		Selections: map[string]bool{"Cardiomegaly": true},
	}
	return gt, sub
}

func TestLocalizationSessionEndToEnd(t *testing.T) {
	e := newEnv(t, "run-a")
	ctx := context.Background()

	tr := e.open(t)
	st := tr.Status()
	require.NotNil(t, st.Server, "summary pulled on load")
	assert.Equal(t, "run-a", st.Server.RunID)
	assert.Equal(t, time.Duration(0), st.Elapsed)

	e.clock.Advance(90 * time.Second)
	gt, sub := chestCase()
	rec, err := tr.Submit(ctx, gt, sub)
	require.NoError(t, err)
	assert.Equal(t, scoring.Counts{Correct: 2, Incorrect: 0}, rec.Score.Counts)
	assert.Equal(t, int64(90000), rec.Request.TimeSpentMs)

	st = tr.Status()
	assert.Equal(t, 90*time.Second, st.Elapsed)
	assert.Equal(t, int64(1), st.Images)
	assert.Equal(t, int64(1), st.Cases)
	assert.Equal(t, int64(2), st.Correct)
	require.NotNil(t, st.Recent.Cases)
	assert.Equal(t, 100.0, st.Recent.Cases.Accuracy)
	assert.Nil(t, tr.Recorder().Last())

	sum, err := e.server.ProgressSummary(ctx, "RAD7")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.ImagesTotal)
	assert.Equal(t, int64(90000), sum.LastTimerCheckpointMs)

	e.clock.Advance(15 * time.Second)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close(), "close is idempotent")

	snap, ok, err := e.server.LatestSnapshot(ctx, "RAD7", handlers.KindSnapshot)
	require.NoError(t, err)
	require.True(t, ok, "unload beacon delivered")
	assert.Equal(t, int64(105000), snap.ElapsedMs)

	// reload: the server checkpoint wins over the unsaved 15 s
	tr = e.open(t)
	defer tr.Close()
	st = tr.Status()
	assert.Equal(t, 90*time.Second, st.Elapsed)
	assert.Equal(t, int64(2), st.Correct, "counters survive the reload")
}

func TestRunChangeStartsFreshSession(t *testing.T) {
	e := newEnv(t, "run-a")
	tr := e.open(t)
	e.clock.Advance(time.Minute)
	gt, sub := chestCase()
	_, err := tr.Submit(context.Background(), gt, sub)
	require.NoError(t, err)
	require.NoError(t, tr.Close())

	restarted := newEnv(t, "run-b")
	restarted.store = e.store
	restarted.clock = e.clock
	tr = restarted.open(t)
	defer tr.Close()

	st := tr.Status()
	assert.Equal(t, int64(0), st.Correct)
	assert.Equal(t, int64(0), st.Cases)
	assert.Equal(t, time.Duration(0), st.Elapsed)
	assert.Equal(t, 0, st.Recent.Cases.Count)
}

func TestReportSessionEndToEnd(t *testing.T) {
	e := newEnv(t, "run-a")
	ctx := context.Background()

	tr := e.open(t, WithDomain(localstore.DomainReport))
	assert.Nil(t, tr.Recorder())

	e.clock.Advance(30 * time.Second)
	green := 0.6
	require.NoError(t, tr.SubmitReport(ctx, "r-1", "Mild cardiomegaly.", &green))

	st := tr.Status()
	assert.Equal(t, 30*time.Second, st.Elapsed)
	assert.Equal(t, int64(1), st.Cases)
	require.NotNil(t, st.Recent.Reports)
	assert.InDelta(t, 60.0, st.Recent.Reports.Average, 1e-9)
	require.NotNil(t, st.Server)
	require.NotNil(t, st.Server.AvgGreenScore)
	assert.InDelta(t, 0.6, *st.Server.AvgGreenScore, 1e-9)

	require.NoError(t, tr.Close())
	assert.True(t, tr.Timer().Paused(), "unload pauses the report timer")

	// time spent away from the page is not counted
	e.clock.Advance(10 * time.Second)
	tr = e.open(t, WithDomain(localstore.DomainReport))
	defer tr.Close()
	assert.False(t, tr.Timer().Paused())
	assert.Equal(t, 30*time.Second, tr.Status().Elapsed)

	sum, err := e.server.ReportSummary(ctx, "RAD7")
	require.NoError(t, err)
	assert.Equal(t, int64(30000), sum.LastTimerCheckpointMs)
}

func TestReportPageKeepsLocalizationSnapshot(t *testing.T) {
	e := newEnv(t, "run-a")
	ctx := context.Background()

	loc := e.open(t)
	e.clock.Advance(40 * time.Second)
	gt, sub := chestCase()
	_, err := loc.Submit(ctx, gt, sub)
	require.NoError(t, err)
	require.NoError(t, loc.Close())

	before, ok, err := e.server.LatestSnapshot(ctx, "RAD7", handlers.KindSnapshot)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), before.CorrectCount)
	assert.Equal(t, int64(1), before.ImagesProcessed)

	rep := e.open(t, WithDomain(localstore.DomainReport))
	e.clock.Advance(5 * time.Second)
	require.NoError(t, rep.Close())

	after, ok, err := e.server.LatestSnapshot(ctx, "RAD7", handlers.KindSnapshot)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestWrongDomain(t *testing.T) {
	e := newEnv(t, "run-a")
	loc := e.open(t)
	defer loc.Close()
	assert.ErrorIs(t, loc.SubmitReport(context.Background(), "r", "", nil), ErrWrongDomain)

	rep := e.open(t, WithDomain(localstore.DomainReport))
	defer rep.Close()
	gt, sub := chestCase()
	_, err := rep.Submit(context.Background(), gt, sub)
	assert.ErrorIs(t, err, ErrWrongDomain)
}

func TestOpenWithServerDown(t *testing.T) {
	e := newEnv(t, "run-a")
	e.http.Close()

	tr := e.open(t)
	defer tr.Close()
	assert.Nil(t, tr.Status().Server)

	require.NoError(t, tr.Pause())
	e.clock.Advance(time.Minute)
	require.NoError(t, tr.Resume())
	assert.Equal(t, time.Duration(0), tr.Status().Elapsed)

	e.clock.Advance(5 * time.Second)
	gt, sub := chestCase()
	_, err := tr.Submit(context.Background(), gt, sub)
	require.NoError(t, err, "network failures never block the user")
	assert.Equal(t, int64(1), tr.Status().Images)
	assert.Equal(t, 5*time.Second, tr.Status().Elapsed)
}

func TestWatchRunsHeartbeatUntilCancelled(t *testing.T) {
	e := newEnv(t, "run-a")
	tr := e.open(t)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Watch(ctx) }()

	require.Eventually(t, tr.Agent().HeartbeatRunning, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return")
	}
	assert.False(t, tr.Agent().HeartbeatRunning())
}
