package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aircast/coordinator/internal/domain"
	"github.com/aircast/coordinator/internal/eventbus"
	"github.com/aircast/coordinator/internal/ingest"
)

type fakeSnapshots struct {
	now  domain.NowSnapshot
	next domain.NextSnapshot
}

func (f fakeSnapshots) Now() domain.NowSnapshot        { return f.now }
func (f fakeSnapshots) Next(limit int) domain.NextSnapshot { return f.next }

type fakeStore struct {
	history []domain.PlayEvent
	artwork *domain.ArtworkCacheEntry
	pingErr error
}

func (f *fakeStore) History(_ context.Context, _ int, _ *int64) ([]domain.PlayEvent, error) {
	return f.history, nil
}
func (f *fakeStore) GetArtwork(_ context.Context, _ string) (*domain.ArtworkCacheEntry, error) {
	return f.artwork, nil
}
func (f *fakeStore) RegisterTTS(_ context.Context, a *domain.TTSArtifact) (int64, error) {
	a.ID = 1
	return 1, nil
}
func (f *fakeStore) MarkTTS(_ context.Context, _ int64, _ domain.TTSStatus, _, _ int64) error {
	return nil
}
func (f *fakeStore) CommitAndLink(_ context.Context, e *domain.PlayEvent, ttsID int64) (int64, error) {
	e.ID = 1
	e.TTSID = &ttsID
	return 1, nil
}
func (f *fakeStore) Ping(_ context.Context) error { return f.pingErr }

type fakeIngest struct {
	result ingest.Result
	err    error
	got    ingest.Event
}

func (f *fakeIngest) Accept(_ context.Context, ev ingest.Event) (ingest.Result, error) {
	f.got = ev
	return f.result, f.err
}

type fakeEngine struct {
	connected  bool
	enqueueErr error
}

func (f *fakeEngine) EnqueueTTS(_ context.Context, _ string, _ []byte) error { return f.enqueueErr }
func (f *fakeEngine) Skip(_ context.Context, _ string) error                { return nil }
func (f *fakeEngine) Connected() bool                                       { return f.connected }

type fakeDJJobs struct {
	jobs []domain.DJJob
}

func (f *fakeDJJobs) Jobs() []domain.DJJob { return f.jobs }

func newTestRouter(t *testing.T, deps Deps) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.New(zap.NewNop())
	}
	return NewRouter(deps)
}

func TestGetNowReturnsSnapshot(t *testing.T) {
	deps := Deps{Snapshots: fakeSnapshots{now: domain.NowSnapshot{Title: "X", Artist: "Y"}}, Store: &fakeStore{}, Ingest: &fakeIngest{}, Engine: &fakeEngine{}}
	r := newTestRouter(t, deps)

	req := httptest.NewRequest(http.MethodGet, "/api/now", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got domain.NowSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "X", got.Title)
}

func TestPostEventNormalizesAndClampsEpoch(t *testing.T) {
	ing := &fakeIngest{result: ingest.Result{ID: 5}}
	deps := Deps{Snapshots: fakeSnapshots{}, Store: &fakeStore{}, Ingest: ing, Engine: &fakeEngine{}}
	r := newTestRouter(t, deps)

	body := `{"kind":"song","title":"  Hello  ","artist":"World","epoch_ms":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/event", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello", ing.got.Title)
	assert.NotEqual(t, int64(1), ing.got.EpochMs)
}

func TestPostEventRejectsXSSTitle(t *testing.T) {
	ing := &fakeIngest{}
	deps := Deps{Snapshots: fakeSnapshots{}, Store: &fakeStore{}, Ingest: ing, Engine: &fakeEngine{}}
	r := newTestRouter(t, deps)

	body := `{"kind":"song","title":"<script>alert(1)</script>","artist":"World"}`
	req := httptest.NewRequest(http.MethodPost, "/api/event", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDebugDJJobsHiddenUnlessEnabled(t *testing.T) {
	jobs := &fakeDJJobs{jobs: []domain.DJJob{{JobID: "a", State: domain.JobFailed}}}
	deps := Deps{Snapshots: fakeSnapshots{}, Store: &fakeStore{}, Ingest: &fakeIngest{}, Engine: &fakeEngine{}, DJJobs: jobs}
	r := newTestRouter(t, deps)

	req := httptest.NewRequest(http.MethodGet, "/api/debug/dj_jobs", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDebugDJJobsReturnsJobsWhenEnabled(t *testing.T) {
	jobs := &fakeDJJobs{jobs: []domain.DJJob{{JobID: "a", State: domain.JobFailed}}}
	deps := Deps{Snapshots: fakeSnapshots{}, Store: &fakeStore{}, Ingest: &fakeIngest{}, Engine: &fakeEngine{}, DJJobs: jobs, DebugEndpoints: true}
	r := newTestRouter(t, deps)

	req := httptest.NewRequest(http.MethodGet, "/api/debug/dj_jobs", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string][]domain.DJJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body["jobs"], 1)
}

func TestGetHealthReflectsStoreAndEngine(t *testing.T) {
	deps := Deps{Snapshots: fakeSnapshots{}, Store: &fakeStore{}, Ingest: &fakeIngest{}, Engine: &fakeEngine{connected: true}}
	r := newTestRouter(t, deps)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["engine_connected"])
}
