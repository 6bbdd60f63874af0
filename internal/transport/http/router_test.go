package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-dead-mans-switch/internal/application/claim"
	"github.com/go-dead-mans-switch/internal/application/liveness"
	"github.com/go-dead-mans-switch/internal/application/recovery"
	"github.com/go-dead-mans-switch/internal/application/scheduler"
	"github.com/go-dead-mans-switch/internal/config"
	"github.com/go-dead-mans-switch/internal/domain"
	jwtinfra "github.com/go-dead-mans-switch/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockStateMachine struct{ mock.Mock }

func (m *mockStateMachine) claimResult(args mock.Arguments) (*domain.DeathClaim, error) {
	if c, _ := args.Get(0).(*domain.DeathClaim); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStateMachine) Submit(ctx context.Context, beneficiaryID, linkID string) (*domain.DeathClaim, error) {
	return m.claimResult(m.Called(ctx, beneficiaryID, linkID))
}

func (m *mockStateMachine) Advance(ctx context.Context, claimID string, now time.Time) (bool, error) {
	args := m.Called(ctx, claimID, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockStateMachine) AdvanceAll(ctx context.Context, now time.Time) (claim.AdvanceReport, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(claim.AdvanceReport), args.Error(1)
}

func (m *mockStateMachine) Respond(ctx context.Context, claimID, ownerID, reason string) (*domain.DeathClaim, error) {
	return m.claimResult(m.Called(ctx, claimID, ownerID, reason))
}

func (m *mockStateMachine) RespondWithToken(ctx context.Context, token, reason string) (*domain.DeathClaim, error) {
	return m.claimResult(m.Called(ctx, token, reason))
}

func (m *mockStateMachine) MarkKeyRetrieved(ctx context.Context, claimID, beneficiaryID, txHash string) (*domain.DeathClaim, error) {
	return m.claimResult(m.Called(ctx, claimID, beneficiaryID, txHash))
}

func (m *mockStateMachine) GetStatus(ctx context.Context, claimID, callerID string) (*domain.ClaimStatusView, error) {
	args := m.Called(ctx, claimID, callerID)
	if v, _ := args.Get(0).(*domain.ClaimStatusView); v != nil {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

type idleMonitor struct{}

func (idleMonitor) Scan(context.Context) (liveness.ScanReport, error) {
	return liveness.ScanReport{Scanned: 1}, nil
}
func (idleMonitor) RetryUndelivered(context.Context) (int, error) { return 0, nil }

// --- helpers ---

type testServer struct {
	handler http.Handler
	jwt     *jwtinfra.Provider
	claims  *mockStateMachine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	p := jwtinfra.NewProviderFromKeys(key, &key.PublicKey, time.Hour)

	sm := new(mockStateMachine)
	sm.On("AdvanceAll", mock.Anything, mock.Anything).Return(claim.AdvanceReport{}, nil).Maybe()
	clk := clock.NewMock()
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	deps := &Deps{
		Claims:      sm,
		Recovery:    recovery.NewService(recovery.ServiceDeps{}),
		Scheduler:   scheduler.New(scheduler.Deps{Monitor: idleMonitor{}, Claims: sm, Clock: clk}),
		JWTProvider: p,
		Done:        done,
	}
	return &testServer{
		handler: NewRouter(&config.Config{AllowedOrigins: []string{"*"}}, deps),
		jwt:     p,
		claims:  sm,
	}
}

func (s *testServer) do(t *testing.T, method, target, userID, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		tok, err := s.jwt.Sign(userID, role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

// --- tests ---

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodGet, "/v1/health-check/ping", "", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pong", decodeBody(t, rr)["message"])
}

func TestSecrets_SplitThenReconstruct(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/v1/secrets/split", "", "", map[string]interface{}{"secret": []byte("hunter2")})
	require.Equal(t, http.StatusOK, rr.Code)
	var split struct {
		Shares []string `json:"shares"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &split))
	require.Len(t, split.Shares, 3)

	rr = s.do(t, http.MethodPost, "/v1/secrets/reconstruct", "", "", map[string]string{
		"share_a": split.Shares[2], "share_b": split.Shares[0],
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var out struct {
		Secret []byte `json:"secret"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, "hunter2", string(out.Secret))
}

func TestSecrets_ReconstructFailuresAreGeneric(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodPost, "/v1/secrets/split", "", "", map[string]interface{}{"secret": []byte("abc")})
	require.Equal(t, http.StatusOK, rr.Code)
	var split struct {
		Shares []string `json:"shares"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &split))

	cases := []map[string]string{
		{"share_a": split.Shares[0], "share_b": split.Shares[0]},
		{"share_a": split.Shares[0], "share_b": "dms2zz"},
		{"share_a": split.Shares[0], "share_b": "dms20000"},
	}
	for _, body := range cases {
		rr := s.do(t, http.MethodPost, "/v1/secrets/reconstruct", "", "", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "%v", body)
		assert.Equal(t, "invalid shares", decodeBody(t, rr)["error"])
	}
}

func TestAuthenticatedRoutes_RequireBearer(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodPost, "/v1/claims", "", "", map[string]string{"link_id": "l1"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSubmitClaim_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	s.claims.On("Submit", mock.Anything, "ben", "dup").
		Return(nil, fmt.Errorf("link dup: %w", domain.ErrDuplicateActiveClaim))
	s.claims.On("Submit", mock.Anything, "ben", "revoked").
		Return(nil, fmt.Errorf("link revoked: %w", domain.ErrClaimNotAuthorized))
	s.claims.On("Submit", mock.Anything, "ben", "ok").
		Return(&domain.DeathClaim{ClaimID: "c1", CurrentStage: domain.StageEmailLevel}, nil)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/v1/claims", "ben", domain.RoleUser, map[string]string{"link_id": "dup"}).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/v1/claims", "ben", domain.RoleUser, map[string]string{"link_id": "revoked"}).Code)

	rr := s.do(t, http.MethodPost, "/v1/claims", "ben", domain.RoleUser, map[string]string{"link_id": "ok"})
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "c1", decodeBody(t, rr)["id"])

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/v1/claims", "ben", domain.RoleUser, map[string]string{}).Code)
}

func TestGetClaim_NotFound(t *testing.T) {
	s := newTestServer(t)
	s.claims.On("GetStatus", mock.Anything, "missing", "ben").Return(nil, domain.ErrClaimNotFound)
	rr := s.do(t, http.MethodGet, "/v1/claims/missing", "ben", domain.RoleUser, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRespond_UsesCallerAsOwner(t *testing.T) {
	s := newTestServer(t)
	s.claims.On("Respond", mock.Anything, "c1", "owner", "").
		Return(&domain.DeathClaim{ClaimID: "c1", Status: domain.ClaimStatusRejected}, nil)
	s.claims.On("Respond", mock.Anything, "c2", "owner", "still here").
		Return(nil, fmt.Errorf("claim c2: %w", domain.ErrInvalidStageTransition))

	rr := s.do(t, http.MethodPost, "/v1/claims/c1/respond", "owner", domain.RoleUser, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.ClaimStatusRejected, decodeBody(t, rr)["status"])

	rr = s.do(t, http.MethodPost, "/v1/claims/c2/respond", "owner", domain.RoleUser, map[string]string{"reason": "still here"})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRespondWithToken_IsPublicAndValidated(t *testing.T) {
	s := newTestServer(t)
	tok := "ab12cd34ab12cd34ab12cd34ab12cd34ab12cd34ab12cd34ab12cd34ab12cd34"
	s.claims.On("RespondWithToken", mock.Anything, tok, "").
		Return(&domain.DeathClaim{ClaimID: "c1", Status: domain.ClaimStatusRejected}, nil)

	rr := s.do(t, http.MethodPost, "/v1/claims/respond-token", "", "", map[string]string{"token": tok})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodPost, "/v1/claims/respond-token", "", "", map[string]string{"token": "short"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	s.claims.AssertNumberOfCalls(t, "RespondWithToken", 1)
}

func TestKeyRetrieved_ClaimGuardsPrecedeHashFormat(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodPost, "/v1/claims/c1/key-retrieved", "ben", domain.RoleUser, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	s.claims.AssertNotCalled(t, "MarkKeyRetrieved", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	s.claims.On("MarkKeyRetrieved", mock.Anything, "c1", "ben", "0x1234").
		Return(nil, fmt.Errorf("claim c1 at stage completed: %w", domain.ErrInvalidStageTransition))
	rr = s.do(t, http.MethodPost, "/v1/claims/c1/key-retrieved", "ben", domain.RoleUser, map[string]string{"tx_hash": "0x1234"})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRecover_RejectsMalformedShare(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodPost, "/v1/claims/c1/recover", "ben", domain.RoleUser, map[string]string{"share": "garbage"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid shares")
}

func TestAdminTick_RequiresAdminRole(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/v1/admin/tick", "u1", domain.RoleUser, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, http.MethodPost, "/v1/admin/tick", "root", domain.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var report scheduler.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Liveness.Scanned)
}
