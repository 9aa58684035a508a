package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-escrow/account"
	"tournament-escrow/events"
	"tournament-escrow/middleware"
	"tournament-escrow/registry"
	"tournament-escrow/services"
)

const (
	gatewayToken = "gw-secret"
	admin        = "0xA000000000000000000000000000000000000001"
	manager      = "0xB000000000000000000000000000000000000002"
	p1           = "0x1111111111111111111111111111111111111111"
	p2           = "0x2222222222222222222222222222222222222222"
	holder       = "0x3333333333333333333333333333333333333333"
)

func mustParse(t *testing.T, s string) account.Address {
	t.Helper()
	a, err := account.Parse(s)
	require.NoError(t, err)
	return a
}

type badges map[account.Address]bool

func (b badges) HasBadge(_ context.Context, a account.Address) (bool, error) { return b[a], nil }

type wallet struct {
	mu   sync.Mutex
	paid map[account.Address]uint64
}

func (w *wallet) Transfer(_ context.Context, to account.Address, amount uint64, _ string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paid[to] += amount
	return nil
}

type env struct {
	app    *fiber.App
	clock  *clockwork.FakeClock
	queue  *events.Queue
	wallet *wallet
	t0     time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	t0 := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	e := &env{
		clock:  clockwork.NewFakeClockAt(t0),
		queue:  events.NewQueue(),
		wallet: &wallet{paid: map[account.Address]uint64{}},
		t0:     t0,
	}
	reg, err := registry.New(registry.Config{
		Admin:    mustParse(t, admin),
		Manager:  mustParse(t, manager),
		Clock:    e.clock,
		Oracle:   badges{account.Address(holder): true},
		Transfer: e.wallet,
	}, e.queue)
	require.NoError(t, err)

	e.app = fiber.New()
	e.app.Use(middleware.GatewayAuthMiddleware(gatewayToken))
	SetupTournamentRoutes(e.app, services.NewTournamentService(reg, nil, time.Second))
	SetupRoleRoutes(e.app, services.NewAccessService(reg.Access()))
	SetupEventRoutes(e.app, services.NewEventStreamService(e.queue))
	return e
}

func (e *env) do(t *testing.T, method, path, caller, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+gatewayToken)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		req.Header.Set("X-User-ID", caller)
	}
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (e *env) createBody(fee string, max int) string {
	b, _ := json.Marshal(map[string]any{
		"entry_fee":      json.RawMessage(fee),
		"max_players":    max,
		"start_time":     e.t0.Add(1000 * time.Second),
		"lobby_deadline": e.t0.Add(500 * time.Second),
		"game_type":      "Game A",
	})
	return string(b)
}

func TestTournamentLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(t, http.MethodPost, "/tournaments", manager, e.createBody("100", 2))
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, float64(1), body["tournament_id"])

	code, body = e.do(t, http.MethodGet, "/tournaments/1/quote", holder, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "50", body["entry_fee"])

	code, _ = e.do(t, http.MethodPost, "/tournaments/1/join", p1, `{"payment": 100}`)
	require.Equal(t, http.StatusOK, code)
	code, body = e.do(t, http.MethodPost, "/tournaments/1/join", p1, `{"payment": 100}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "duplicate", body["kind"])
	code, _ = e.do(t, http.MethodPost, "/tournaments/1/join", p2, `{"payment": "100"}`)
	require.Equal(t, http.StatusOK, code)

	code, body = e.do(t, http.MethodGet, "/tournaments/1", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "awaiting_completion", body["state"])
	assert.Equal(t, float64(200), body["pot"])

	e.clock.Advance(1000 * time.Second)
	code, _ = e.do(t, http.MethodPost, "/tournaments/1/scores", manager, `{"player": "`+p1+`", "score": 30}`)
	require.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodPost, "/tournaments/1/scores", manager, `{"player": "`+p2+`", "score": 70}`)
	require.Equal(t, http.StatusOK, code)

	code, body = e.do(t, http.MethodGet, "/tournaments/1/scores/"+p2, "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(70), body["score"])

	code, body = e.do(t, http.MethodPost, "/tournaments/1/complete", manager, "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, []any{"120", "50", "0"}, body["rewards"])
	assert.Equal(t, "30", body["platform_credit"])
	assert.Equal(t, []any{p2, p1, account.NoWinner.String()}, body["winners"])

	code, body = e.do(t, http.MethodGet, "/platform/balance", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "30", body["balance"])

	code, _ = e.do(t, http.MethodPost, "/platform/withdraw", manager, `{"to": "`+admin+`"}`)
	assert.Equal(t, http.StatusForbidden, code)
	code, body = e.do(t, http.MethodPost, "/platform/withdraw", admin, `{"to": "`+admin+`"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "30", body["amount"])

	code, body = e.do(t, http.MethodGet, "/tournaments", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])
}

func TestErrorStatuses(t *testing.T) {
	e := newEnv(t)

	code, _ := e.do(t, http.MethodPost, "/tournaments", p1, e.createBody("100", 2))
	assert.Equal(t, http.StatusForbidden, code)

	code, body := e.do(t, http.MethodPost, "/tournaments", manager, e.createBody("1.5", 2))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid parameters", body["kind"])

	code, _ = e.do(t, http.MethodPost, "/tournaments", manager, e.createBody("-1", 2))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodPost, "/tournaments", manager, e.createBody("10", 0))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodGet, "/tournaments/9", "", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = e.do(t, http.MethodGet, "/tournaments/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, body = e.do(t, http.MethodGet, "/tournaments/9/history", "", "")
	assert.Equal(t, http.StatusNotFound, code, "no event store attached")
	assert.Equal(t, "not found", body["kind"])

	code, _ = e.do(t, http.MethodPost, "/tournaments", manager, e.createBody("10", 2))
	require.Equal(t, http.StatusCreated, code)
	code, body = e.do(t, http.MethodPost, "/tournaments/1/join", p1, `{"payment": 9}`)
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "insufficient payment", body["kind"])

	code, _ = e.do(t, http.MethodPost, "/tournaments/1/join", "", `{"payment": 10}`)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = e.do(t, http.MethodPost, "/tournaments/1/complete", manager, "")
	assert.Equal(t, http.StatusConflict, code, "not started yet")
}

func TestCancelOverHTTP(t *testing.T) {
	e := newEnv(t)
	code, _ := e.do(t, http.MethodPost, "/tournaments", manager, e.createBody("40", 3))
	require.Equal(t, http.StatusCreated, code)
	code, _ = e.do(t, http.MethodPost, "/tournaments/1/join", holder, `{"payment": 20}`)
	require.Equal(t, http.StatusOK, code)

	code, body := e.do(t, http.MethodPost, "/tournaments/1/cancel", manager, "")
	require.Equal(t, http.StatusOK, code)
	refunds := body["refunds"].([]any)
	require.Len(t, refunds, 1)
	assert.Equal(t, "20", refunds[0].(map[string]any)["amount"])
	assert.Equal(t, uint64(20), e.wallet.paid[account.Address(holder)])

	code, _ = e.do(t, http.MethodPost, "/tournaments/1/cancel", manager, "")
	assert.Equal(t, http.StatusConflict, code)
}

func TestRoleRoutes(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(t, http.MethodGet, "/roles/MANAGER_ROLE/members/"+manager, "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["has_role"])

	code, _ = e.do(t, http.MethodPost, "/roles/MANAGER_ROLE/grant", manager, `{"account": "`+p1+`"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = e.do(t, http.MethodPost, "/roles/MANAGER_ROLE/grant", admin, `{"account": "`+p1+`"}`)
	require.Equal(t, http.StatusOK, code)
	code, body = e.do(t, http.MethodGet, "/roles/MANAGER_ROLE/members/"+p1, "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["has_role"])

	code, body = e.do(t, http.MethodPost, "/roles/MANAGER_ROLE/renounce", p1, `{"confirmation": "`+p2+`"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "confirmation mismatch", body["kind"])
	code, _ = e.do(t, http.MethodPost, "/roles/MANAGER_ROLE/renounce", p1, `{"confirmation": "`+p1+`"}`)
	require.Equal(t, http.StatusOK, code)

	code, body = e.do(t, http.MethodGet, "/roles/SCORER_ROLE/admin", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "DEFAULT_ADMIN_ROLE", body["admin_role"])
	code, body = e.do(t, http.MethodPut, "/roles/SCORER_ROLE/admin", admin, `{"admin_role": "MANAGER_ROLE"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "MANAGER_ROLE", body["admin_role"])
}

func TestEventsAndMetricsArePublic(t *testing.T) {
	e := newEnv(t)
	code, _ := e.do(t, http.MethodPost, "/tournaments", manager, e.createBody("10", 2))
	require.Equal(t, http.StatusCreated, code)

	code, body := e.do(t, http.MethodGet, "/events?since=2", "", "")
	require.Equal(t, http.StatusOK, code)
	evs := body["events"].([]any)
	require.Len(t, evs, 1)
	assert.Equal(t, "TournamentCreated", evs[0].(map[string]any)["type"])
	assert.Equal(t, float64(3), body["last_seq"])

	code, body = e.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "tournaments.created")
}

func TestGatewayTokenRequiredEverywhere(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/tournaments", nil)
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
