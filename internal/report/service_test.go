package report_test

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/notegraphhq/notegraph/internal/cache"
	"github.com/notegraphhq/notegraph/internal/insight"
	"github.com/notegraphhq/notegraph/internal/job"
	"github.com/notegraphhq/notegraph/internal/op"
	"github.com/notegraphhq/notegraph/internal/report"
	"github.com/notegraphhq/notegraph/internal/store"
	"github.com/notegraphhq/notegraph/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusUpdate struct {
	id     uuid.UUID
	status string
	nOpts  int
}

// recStore records job writes in memory. Terminal updates are also pushed to
// a channel so tests can wait for the background goroutine without sleeping.
type recStore struct {
	mu        sync.Mutex
	created   []*models.Job
	updates   []statusUpdate
	createErr error
	getJob    *models.Job
	getErr    error
	latest    *models.Job
	latestErr error
	terminal  chan string
}

func newRecStore() *recStore {
	return &recStore{terminal: make(chan string, 4), getErr: store.ErrNotFound, latestErr: store.ErrNotFound}
}

func (s *recStore) Ping(_ context.Context) error { return nil }
func (s *recStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *recStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *recStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error)   { return nil, nil }
func (s *recStore) RevokeAPIKey(_ context.Context, _ uuid.UUID) error         { return nil }
func (s *recStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }

func (s *recStore) CreateJob(_ context.Context, j *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, j)
	return nil
}

func (s *recStore) GetJob(_ context.Context, _ uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getJob, s.getErr
}

func (s *recStore) GetLatestJobByConversation(_ context.Context, _ string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.latestErr
}

func (s *recStore) UpdateJobStatus(_ context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	s.mu.Lock()
	s.updates = append(s.updates, statusUpdate{id: id, status: status, nOpts: len(opts)})
	s.mu.Unlock()
	switch status {
	case models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusTimedOut, models.JobStatusCancelled:
		s.terminal <- status
	}
	return nil
}

func (s *recStore) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.updates))
	for i, u := range s.updates {
		out[i] = u.status
	}
	return out
}

var _ store.Store = (*recStore)(nil)

type recCache struct {
	mu        sync.Mutex
	jobStatus []string
	convJobs  map[string]uuid.UUID
	lookupID  uuid.UUID
	lookupOK  bool
}

func newRecCache() *recCache { return &recCache{convJobs: map[string]uuid.UUID{}} }

func (c *recCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *recCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *recCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *recCache) Ping(_ context.Context) error                                     { return nil }
func (c *recCache) GetJobStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (c *recCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

func (c *recCache) SetJobStatus(_ context.Context, _ uuid.UUID, status string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobStatus = append(c.jobStatus, status)
	return nil
}

func (c *recCache) SetConversationJob(_ context.Context, conversationID string, jobID uuid.UUID, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.convJobs[conversationID] = jobID
	return nil
}

func (c *recCache) GetConversationJob(_ context.Context, _ string) (uuid.UUID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupID, c.lookupOK, nil
}

var _ cache.Cache = (*recCache)(nil)

// reportEngine is an httptest stand-in for the insight engine's report
// endpoints. Status responses replay in order; the last one repeats.
type reportEngine struct {
	srv          *httptest.Server
	statusBodies []string
	statusCalls  atomic.Int64
	submitCode   int
}

func newReportEngine(statusBodies ...string) *reportEngine {
	e := &reportEngine{statusBodies: statusBodies, submitCode: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/submit", func(w http.ResponseWriter, _ *http.Request) {
		if e.submitCode != http.StatusOK {
			w.WriteHeader(e.submitCode)
			fmt.Fprint(w, `{"error":"bad request"}`)
			return
		}
		fmt.Fprint(w, `{"job_id":"rj-1"}`)
	})
	mux.HandleFunc("/status/", func(w http.ResponseWriter, _ *http.Request) {
		n := int(e.statusCalls.Add(1)) - 1
		if n >= len(e.statusBodies) {
			n = len(e.statusBodies) - 1
		}
		fmt.Fprint(w, e.statusBodies[n])
	})
	mux.HandleFunc("/download/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"content":"# Report\n\nFindings."}`)
	})
	e.srv = httptest.NewServer(mux)
	return e
}

func newTestService(t *testing.T, engine *reportEngine, st *recStore, ca *recCache, ops *op.Registry) *report.Service {
	t.Helper()
	t.Cleanup(engine.srv.Close)

	logger := slog.New(slog.DiscardHandler)
	exec, err := insight.NewExecutor(
		insight.NewHTTPTransport(engine.srv.URL, "secret"),
		insight.RetryConfig{
			MaxRetries:        1,
			BaseDelay:         time.Millisecond,
			MaxDelay:          2 * time.Millisecond,
			BaseTimeout:       2 * time.Second,
			MaxTimeout:        2 * time.Second,
			TimeoutMultiplier: 1.0,
		},
		logger,
	)
	require.NoError(t, err)

	poller := job.NewPoller(exec, job.PollConfig{
		FastInterval:         time.Millisecond,
		MediumInterval:       2 * time.Millisecond,
		SlowInterval:         3 * time.Millisecond,
		FastUntil:            50 * time.Millisecond,
		MediumUntil:          100 * time.Millisecond,
		MaxElapsed:           time.Second,
		MaxConsecutiveErrors: 2,
	}, job.Endpoints{Submit: "/submit", Status: "/status", Download: "/download"}, logger)

	return report.NewService(poller, st, ca, ops, logger)
}

func waitTerminal(t *testing.T, st *recStore) string {
	t.Helper()
	select {
	case status := <-st.terminal:
		return status
	case <-time.After(3 * time.Second):
		t.Fatal("job never reached a terminal state")
		return ""
	}
}

func TestServiceStart_RunsToCompletion(t *testing.T) {
	engine := newReportEngine(
		`{"status":"processing","progress":{"message":"gathering sources","percent":25}}`,
		`{"status":"completed"}`,
	)
	st, ca := newRecStore(), newRecCache()
	ops := op.NewRegistry()
	svc := newTestService(t, engine, st, ca, ops)

	rec, err := svc.Start(context.Background(), "conv-1", "history of graph databases")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, rec.Status)
	assert.Equal(t, "conv-1", rec.ConversationID)

	assert.Equal(t, models.JobStatusCompleted, waitTerminal(t, st))

	statuses := st.statuses()
	assert.Contains(t, statuses, models.JobStatusProcessing)
	assert.Equal(t, models.JobStatusCompleted, statuses[len(statuses)-1])

	// The processing transition carries the remote job id, the completion
	// carries the report content.
	st.mu.Lock()
	first := st.updates[0]
	last := st.updates[len(st.updates)-1]
	st.mu.Unlock()
	assert.Equal(t, models.JobStatusProcessing, first.status)
	assert.Equal(t, 1, first.nOpts)
	assert.Equal(t, 1, last.nOpts)

	ca.mu.Lock()
	assert.Equal(t, rec.ID, ca.convJobs["conv-1"])
	ca.mu.Unlock()

	// The registry entry is released once the goroutine finishes.
	assert.Eventually(t, func() bool { return !ops.Active(rec.ID.String()) },
		time.Second, 5*time.Millisecond)
}

func TestServiceStart_ReportsProgress(t *testing.T) {
	engine := newReportEngine(
		`{"status":"processing","progress":{"message":"analyzing","percent":60}}`,
		`{"status":"completed"}`,
	)
	st, ca := newRecStore(), newRecCache()
	svc := newTestService(t, engine, st, ca, op.NewRegistry())

	_, err := svc.Start(context.Background(), "conv-2", "q")
	require.NoError(t, err)
	waitTerminal(t, st)

	st.mu.Lock()
	defer st.mu.Unlock()
	var progressUpdates int
	for _, u := range st.updates[1:] { // skip the remote-id transition
		if u.status == models.JobStatusProcessing {
			progressUpdates++
		}
	}
	assert.GreaterOrEqual(t, progressUpdates, 1)
}

func TestServiceStart_RequiresConversation(t *testing.T) {
	st, ca := newRecStore(), newRecCache()
	svc := newTestService(t, newReportEngine(`{"status":"completed"}`), st, ca, op.NewRegistry())

	_, err := svc.Start(context.Background(), "", "q")
	assert.Error(t, err)
	assert.Empty(t, st.created)
}

func TestServiceStart_StoreFailure(t *testing.T) {
	st, ca := newRecStore(), newRecCache()
	st.createErr = fmt.Errorf("connection refused")
	svc := newTestService(t, newReportEngine(`{"status":"completed"}`), st, ca, op.NewRegistry())

	_, err := svc.Start(context.Background(), "conv-3", "q")
	assert.ErrorContains(t, err, "creating job record")
}

func TestServiceStart_SubmitRejected(t *testing.T) {
	engine := newReportEngine(`{"status":"completed"}`)
	engine.submitCode = http.StatusBadRequest
	st, ca := newRecStore(), newRecCache()
	svc := newTestService(t, engine, st, ca, op.NewRegistry())

	_, err := svc.Start(context.Background(), "conv-4", "q")
	require.NoError(t, err, "submission happens in the background")

	assert.Equal(t, models.JobStatusFailed, waitTerminal(t, st))
	assert.Zero(t, engine.statusCalls.Load(), "rejected submission is never polled")
}

func TestServiceStart_PollingBudgetExhausted(t *testing.T) {
	engine := newReportEngine(`{"status":"processing"}`)
	t.Cleanup(engine.srv.Close)
	st, ca := newRecStore(), newRecCache()

	logger := slog.New(slog.DiscardHandler)
	exec, err := insight.NewExecutor(
		insight.NewHTTPTransport(engine.srv.URL, "secret"),
		insight.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond,
			BaseTimeout: time.Second, MaxTimeout: time.Second, TimeoutMultiplier: 1.0},
		logger,
	)
	require.NoError(t, err)
	poller := job.NewPoller(exec, job.PollConfig{
		FastInterval: time.Millisecond, MediumInterval: time.Millisecond, SlowInterval: time.Millisecond,
		FastUntil: 5 * time.Millisecond, MediumUntil: 10 * time.Millisecond,
		MaxElapsed: 10 * time.Millisecond, MaxConsecutiveErrors: 2,
	}, job.Endpoints{Submit: "/submit", Status: "/status", Download: "/download"}, logger)
	short := report.NewService(poller, st, ca, op.NewRegistry(), logger)

	_, err = short.Start(context.Background(), "conv-5", "q")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusTimedOut, waitTerminal(t, st))
}

func TestServiceCancel(t *testing.T) {
	engine := newReportEngine(`{"status":"processing"}`)
	st, ca := newRecStore(), newRecCache()
	ops := op.NewRegistry()
	svc := newTestService(t, engine, st, ca, ops)

	rec, err := svc.Start(context.Background(), "conv-6", "q")
	require.NoError(t, err)

	// Wait until polling is underway before firing the cancel.
	assert.Eventually(t, func() bool { return engine.statusCalls.Load() >= 1 },
		time.Second, time.Millisecond)

	assert.True(t, svc.Cancel(rec.ID))
	assert.Equal(t, models.JobStatusCancelled, waitTerminal(t, st))

	calls := engine.statusCalls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, engine.statusCalls.Load(), "polling stops after cancellation")
}

func TestServiceCancel_UnknownJob(t *testing.T) {
	st, ca := newRecStore(), newRecCache()
	svc := newTestService(t, newReportEngine(`{"status":"completed"}`), st, ca, op.NewRegistry())

	assert.False(t, svc.Cancel(uuid.New()))
}

func TestServiceGet(t *testing.T) {
	st, ca := newRecStore(), newRecCache()
	want := &models.Job{ID: uuid.New(), Status: models.JobStatusProcessing}
	st.getJob, st.getErr = want, nil
	svc := newTestService(t, newReportEngine(`{"status":"completed"}`), st, ca, op.NewRegistry())

	got, err := svc.Get(context.Background(), want.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestServiceLatest_CacheFastPath(t *testing.T) {
	st, ca := newRecStore(), newRecCache()
	want := &models.Job{ID: uuid.New(), ConversationID: "conv-7", Status: models.JobStatusCompleted}
	st.getJob, st.getErr = want, nil
	ca.lookupID, ca.lookupOK = want.ID, true
	svc := newTestService(t, newReportEngine(`{"status":"completed"}`), st, ca, op.NewRegistry())

	got, err := svc.Latest(context.Background(), "conv-7")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestServiceLatest_StoreFallback(t *testing.T) {
	st, ca := newRecStore(), newRecCache()
	want := &models.Job{ID: uuid.New(), ConversationID: "conv-8", Status: models.JobStatusCompleted}
	st.latest, st.latestErr = want, nil
	svc := newTestService(t, newReportEngine(`{"status":"completed"}`), st, ca, op.NewRegistry())

	got, err := svc.Latest(context.Background(), "conv-8")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestServiceLatest_NotFound(t *testing.T) {
	st, ca := newRecStore(), newRecCache()
	svc := newTestService(t, newReportEngine(`{"status":"completed"}`), st, ca, op.NewRegistry())

	_, err := svc.Latest(context.Background(), "conv-none")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
