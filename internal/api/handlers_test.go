package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/weekly-campaign/internal/config"
	"github.com/ignite/weekly-campaign/internal/content"
	"github.com/ignite/weekly-campaign/internal/domain"
	"github.com/ignite/weekly-campaign/internal/mailer"
	"github.com/ignite/weekly-campaign/internal/render"
	"github.com/ignite/weekly-campaign/internal/repository/memory"
	"github.com/ignite/weekly-campaign/internal/schedule"
	"github.com/ignite/weekly-campaign/internal/service/weekly"
)

// Wednesday 2026-02-18 12:00 in Chicago.
var wedNoon = time.Date(2026, 2, 18, 18, 0, 0, 0, time.UTC)

type testEnv struct {
	server    *Server
	store     *memory.Store
	transport *mailer.LogTransport
}

func setupTestServer(t *testing.T, env string) *testEnv {
	t.Helper()

	cfg := &config.Config{Environment: env}
	loc, err := schedule.LoadLocation("America/Chicago")
	require.NoError(t, err)

	store := memory.New()
	store.PutContact(domain.Contact{ID: "c1", Email: "ann@example.com", LastName: "Adams"})
	store.PutContact(domain.Contact{ID: "c2", Email: "bob@example.com", LastName: "Baker"})

	layout, err := render.Load("", render.Options{})
	require.NoError(t, err)
	transport := mailer.NewLogTransport()

	svc, err := weekly.NewService(store, content.NewMockProvider(), transport, layout, weekly.Options{
		Location: loc,
		Schedule: weekly.Schedule{
			Generate: schedule.Trigger{Weekday: "FRIDAY", Time: "09:00"},
			Lock:     schedule.Trigger{Weekday: "TUESDAY", Time: "09:45"},
			Send:     schedule.Trigger{Weekday: "TUESDAY", Time: "10:00"},
		},
		Identity: weekly.MailIdentity{Sender: config.StubSender, ReplyTo: config.StubReplyTo},
	})
	require.NoError(t, err)

	return &testEnv{
		server:    NewServer(svc, cfg, WithClock(func() time.Time { return wedNoon })),
		store:     store,
		transport: transport,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeTick(t *testing.T, w *httptest.ResponseRecorder) TickResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp TickResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestTick_UsesClockWhenNoOverride(t *testing.T) {
	e := setupTestServer(t, config.EnvDev)

	resp := decodeTick(t, e.do(t, http.MethodPost, "/jobs/tick", nil))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "2026-02-16", resp.WeekOf)
	assert.Empty(t, resp.Actions)
	assert.Equal(t, "America/Chicago", resp.TZ)
	assert.Equal(t, "2026-02-18T12:00:00", resp.NowLocal)
	assert.Equal(t, "FRIDAY", resp.Config.Generate.Weekday)
}

func TestTick_DevOverrideDrivesAllStages(t *testing.T) {
	e := setupTestServer(t, config.EnvDev)

	resp := decodeTick(t, e.do(t, http.MethodPost, "/jobs/tick?now=2026-02-20T09:00", nil))
	assert.Equal(t, []string{"generate"}, resp.Actions)
	assert.Equal(t, "2026-02-16", resp.WeekOf)

	resp = decodeTick(t, e.do(t, http.MethodPost, "/jobs/tick?now=2026-02-17T15:45:00Z", nil))
	assert.Equal(t, []string{"lock"}, resp.Actions)

	resp = decodeTick(t, e.do(t, http.MethodPost, "/jobs/tick?now=2026-02-17T10:00:00", nil))
	assert.Equal(t, []string{"send"}, resp.Actions)
	assert.Len(t, e.transport.Sent(), 2)

	resp = decodeTick(t, e.do(t, http.MethodPost, "/jobs/tick?now=2026-02-17T10:00:00", nil))
	assert.Empty(t, resp.Actions)
	assert.Len(t, e.transport.Sent(), 2)
}

func TestTick_InvalidOverride(t *testing.T) {
	e := setupTestServer(t, config.EnvDev)

	w := e.do(t, http.MethodPost, "/jobs/tick?now=next-friday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTick_OverrideIgnoredInProduction(t *testing.T) {
	e := setupTestServer(t, config.EnvProduction)

	resp := decodeTick(t, e.do(t, http.MethodPost, "/jobs/tick?now=2026-02-20T09:00", nil))
	assert.Empty(t, resp.Actions)
	assert.Equal(t, "2026-02-18T12:00:00", resp.NowLocal)

	run, err := e.store.GetRunByWeek(context.Background(), "2026-02-16")
	require.NoError(t, err)
	assert.Equal(t, domain.RunPending, run.Status)
}

func TestDevRoutes_OnlyInDev(t *testing.T) {
	prod := setupTestServer(t, config.EnvProduction)
	assert.Equal(t, http.StatusNotFound, prod.do(t, http.MethodPost, "/dev/run", nil).Code)
	assert.Equal(t, http.StatusNotFound, prod.do(t, http.MethodGet, "/dev/ping", nil).Code)

	dev := setupTestServer(t, config.EnvDev)
	w := dev.do(t, http.MethodGet, "/dev/ping?now=2026-02-22T23:59", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ping map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ping))
	assert.Equal(t, "SUNDAY", ping["dow"])
	assert.Equal(t, "2026-02-16", ping["week_of"])
}

func TestDevRun_Pipeline(t *testing.T) {
	e := setupTestServer(t, config.EnvDev)

	w := e.do(t, http.MethodPost, "/dev/run?week_of=2026-02-16", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Result weekly.PipelineResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Result.Generate.Generated)
	assert.True(t, body.Result.Locked)
	assert.Equal(t, 2, body.Result.Send.Delivered)
	assert.Equal(t, 1, body.Result.SendsForRun)
	assert.Equal(t, domain.RunSent, body.Result.Snapshot.Run.Status)
}

func TestAdmin_GenerateSelectAndRead(t *testing.T) {
	e := setupTestServer(t, config.EnvDev)

	w := e.do(t, http.MethodPost, "/admin/candidates/generate?week_of=2026-02-16", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/admin/candidates/select", []byte(`{"week_of":"2026-02-16","rank":3,"notes":"spring launch"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodGet, "/admin/weekly?week_of=2026-02-16", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap struct {
		Run        domain.WeeklyRun   `json:"weekly_run"`
		Candidates []domain.Candidate `json:"candidates"`
		Selected   domain.Candidate   `json:"selected"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Len(t, snap.Candidates, 3)
	assert.Equal(t, domain.StageBottom, snap.Selected.FunnelStage)
	assert.Equal(t, "spring launch", snap.Run.FocusNotes)

	w = e.do(t, http.MethodGet, "/admin/sends?weekly_run_id="+snap.Run.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdmin_Errors(t *testing.T) {
	e := setupTestServer(t, config.EnvDev)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad week", http.MethodGet, "/admin/weekly?week_of=feb-16", "", http.StatusBadRequest},
		{"bad rank", http.MethodPost, "/admin/candidates/select", `{"week_of":"2026-02-16","rank":7}`, http.StatusBadRequest},
		{"no candidates", http.MethodPost, "/admin/candidates/select", `{"week_of":"2026-02-16","rank":1}`, http.StatusNotFound},
		{"bad json", http.MethodPost, "/admin/candidates/select", `{`, http.StatusBadRequest},
		{"sends without run", http.MethodGet, "/admin/sends", "", http.StatusBadRequest},
		{"unknown send", http.MethodGet, "/admin/sends/nope/recipients", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body []byte
			if tt.body != "" {
				body = []byte(tt.body)
			}
			assert.Equal(t, tt.want, e.do(t, tt.method, tt.path, body).Code)
		})
	}
}

func TestHealth(t *testing.T) {
	e := setupTestServer(t, config.EnvDev)

	w := e.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "up", status.Checks["database"].Status)
	assert.Equal(t, "not_configured", status.Checks["redis"].Status)
}
