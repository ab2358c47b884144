package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rankhub/discord-rank-hub/internal/application/query"
	"github.com/rankhub/discord-rank-hub/internal/application/ranking"
	"github.com/rankhub/discord-rank-hub/internal/domain/member"
	"github.com/rankhub/discord-rank-hub/internal/domain/rank"
	"github.com/rankhub/discord-rank-hub/internal/interface/http/handlers"
	"github.com/rankhub/discord-rank-hub/pkg/metrics"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeStates struct {
	state rank.State
}

func (f *fakeStates) Load(ctx context.Context) (rank.State, error) {
	if f.state.UserRanks == nil {
		return rank.EmptyState(), nil
	}
	return f.state, nil
}

func (f *fakeStates) Save(ctx context.Context, state rank.State) error {
	f.state = state
	return nil
}

type fakeDirectory struct {
	members map[rank.MemberID]member.Member
	posts   int
}

func (f *fakeDirectory) ListMembers(ctx context.Context) ([]member.Member, error) {
	out := make([]member.Member, 0, len(f.members))
	for _, m := range f.members {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeDirectory) Member(ctx context.Context, id rank.MemberID) (member.Member, error) {
	m, ok := f.members[id]
	if !ok {
		return member.Member{}, member.ErrNotFound
	}
	return m, nil
}

func (f *fakeDirectory) Rename(ctx context.Context, id rank.MemberID, displayName string) error {
	m, ok := f.members[id]
	if !ok {
		return member.ErrNotFound
	}
	m.Nick = displayName
	f.members[id] = m
	return nil
}

func (f *fakeDirectory) FindListingChannel(ctx context.Context) (member.ChannelRef, error) {
	return member.ChannelRef("chan-1"), nil
}

func (f *fakeDirectory) CreateListingChannel(ctx context.Context) (member.ChannelRef, error) {
	return member.ChannelRef("chan-1"), nil
}

func (f *fakeDirectory) PostListing(ctx context.Context, ch member.ChannelRef, text string) (rank.MessageRef, error) {
	f.posts++
	return rank.MessageRef(fmt.Sprintf("msg-%d", f.posts)), nil
}

func (f *fakeDirectory) EditListing(ctx context.Context, ch member.ChannelRef, msg rank.MessageRef, text string) error {
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func newTestConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	cfg.EnableMetrics = false
	return cfg
}

// newRankedService builds a ranking service with two ranked members.
func newRankedService(t *testing.T) *ranking.Service {
	t.Helper()

	dir := &fakeDirectory{
		members: map[rank.MemberID]member.Member{
			"100": {ID: "100", Username: "alpha"},
			"200": {ID: "200", Username: "bravo"},
		},
	}

	svc, err := ranking.NewService(ranking.ServiceConfig{
		States:    &fakeStates{},
		Directory: dir,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Load(context.Background()))

	ctx := context.Background()
	_, err = svc.SetRank(ctx, "100", 1)
	require.NoError(t, err)
	_, err = svc.SetRank(ctx, "200", 2)
	require.NoError(t, err)

	return svc
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

// ─────────────────────────────────────────────────────────────────────────────
// Health & status
// ─────────────────────────────────────────────────────────────────────────────

func TestHealthzDefaultsHealthy(t *testing.T) {
	s := NewServer(newTestConfig(), Dependencies{})

	rec := doRequest(s, http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestHealthzReportsFailingCheck(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("state_store", func(ctx context.Context) error {
		return errors.New("disk unavailable")
	})

	s := NewServer(newTestConfig(), Dependencies{HealthChecker: checker})

	rec := doRequest(s, http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk unavailable")
}

func TestReadyAndLiveProbes(t *testing.T) {
	s := NewServer(newTestConfig(), Dependencies{})

	assert.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/ready").Code)
	assert.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/live").Code)
}

func TestRootEndpoint(t *testing.T) {
	s := NewServer(newTestConfig(), Dependencies{})

	rec := doRequest(s, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Discord Rank Hub API")
	assert.Contains(t, rec.Body.String(), "uptime")

	rec = doRequest(s, http.MethodGet, "/nonexistent")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDHeaderSet(t *testing.T) {
	s := NewServer(newTestConfig(), Dependencies{})

	rec := doRequest(s, http.MethodGet, "/live")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDHeaderPreserved(t *testing.T) {
	s := NewServer(newTestConfig(), Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "my-request-id")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "my-request-id", rec.Header().Get("X-Request-ID"))
}

// ─────────────────────────────────────────────────────────────────────────────
// Ranking API
// ─────────────────────────────────────────────────────────────────────────────

func TestGetRankingEndpoint(t *testing.T) {
	svc := newRankedService(t)

	s := NewServer(newTestConfig(), Dependencies{
		GetRankingHandler: query.NewGetRankingHandler(svc, nil),
	})

	rec := doRequest(s, http.MethodGet, "/api/v1/ranking")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    []struct {
			Rank     int    `json:"rank"`
			MemberID string `json:"member_id"`
			Name     string `json:"name"`
		} `json:"data"`
		Meta struct {
			TotalCount int `json:"total_count"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.True(t, resp.Success)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, 1, resp.Data[0].Rank)
	assert.Equal(t, "100", resp.Data[0].MemberID)
	assert.Equal(t, 2, resp.Data[1].Rank)
	assert.Equal(t, 2, resp.Meta.TotalCount)
}

func TestGetRankingEndpointWithLimit(t *testing.T) {
	svc := newRankedService(t)

	s := NewServer(newTestConfig(), Dependencies{
		GetRankingHandler: query.NewGetRankingHandler(svc, nil),
	})

	rec := doRequest(s, http.MethodGet, "/api/v1/ranking?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []json.RawMessage `json:"data"`
		Meta struct {
			TotalCount int  `json:"total_count"`
			HasMore    bool `json:"has_more"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Len(t, resp.Data, 1)
	assert.Equal(t, 2, resp.Meta.TotalCount)
	assert.True(t, resp.Meta.HasMore)
}

func TestGetRankingEndpointRejectsNegativeParams(t *testing.T) {
	svc := newRankedService(t)

	s := NewServer(newTestConfig(), Dependencies{
		GetRankingHandler: query.NewGetRankingHandler(svc, nil),
	})

	rec := doRequest(s, http.MethodGet, "/api/v1/ranking?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRankingEndpointUnconfigured(t *testing.T) {
	s := NewServer(newTestConfig(), Dependencies{})

	rec := doRequest(s, http.MethodGet, "/api/v1/ranking")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Metrics & middleware
// ─────────────────────────────────────────────────────────────────────────────

func TestMetricsEndpoint(t *testing.T) {
	cfg := newTestConfig()
	cfg.EnableMetrics = true

	s := NewServer(cfg, Dependencies{Metrics: metrics.New()})

	// Generate one observed request first so the counter has samples.
	doRequest(s, http.MethodGet, "/live")

	rec := doRequest(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rankhub_http_requests_total")
}

func TestMetricsBucketUnmatchedPaths(t *testing.T) {
	cfg := newTestConfig()
	cfg.EnableMetrics = true

	s := NewServer(cfg, Dependencies{Metrics: metrics.New()})

	doRequest(s, http.MethodGet, "/wp-admin/setup.php")
	doRequest(s, http.MethodGet, "/..%2f..%2fetc%2fpasswd")

	rec := doRequest(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.NotContains(t, body, "wp-admin", "raw scanner paths must not become label values")
	assert.Contains(t, body, `path="unmatched"`)
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/live", routeLabel("/live"))
	assert.Equal(t, "/api/v1/ranking", routeLabel("/api/v1/ranking"))
	assert.Equal(t, "unmatched", routeLabel("/api/v1/ranking/extra"))
	assert.Equal(t, "unmatched", routeLabel("/favicon.ico"))
}

func TestMetricsEndpointDisabled(t *testing.T) {
	s := NewServer(newTestConfig(), Dependencies{Metrics: metrics.New()})

	rec := doRequest(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimitReturns429(t *testing.T) {
	cfg := newTestConfig()
	cfg.RateLimitPerMinute = 2

	s := NewServer(cfg, Dependencies{})

	assert.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/live").Code)
	assert.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/live").Code)

	rec := doRequest(s, http.MethodGet, "/live")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRecoveryMiddlewareReturns500(t *testing.T) {
	s := NewServer(newTestConfig(), Dependencies{})
	s.router.HandleFunc("GET /panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := doRequest(s, http.MethodGet, "/panic")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_server_error")
}
