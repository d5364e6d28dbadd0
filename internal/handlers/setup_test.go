package handlers_test

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/abrezinsky/voterewards/internal/auth"
	"github.com/abrezinsky/voterewards/internal/handlers"
	"github.com/abrezinsky/voterewards/internal/logger"
	"github.com/abrezinsky/voterewards/internal/metrics"
	"github.com/abrezinsky/voterewards/internal/repository"
	"github.com/abrezinsky/voterewards/internal/repository/mock"
	"github.com/abrezinsky/voterewards/internal/rewards"
	"github.com/abrezinsky/voterewards/internal/serverid"
	"github.com/abrezinsky/voterewards/internal/services"
	"github.com/abrezinsky/voterewards/internal/store"
	"github.com/abrezinsky/voterewards/internal/testutil"
	"github.com/abrezinsky/voterewards/internal/verification"
)

// testSetup wires real services on an in-memory database behind the router
type testSetup struct {
	repo       *repository.Repository
	mock       *mock.Repository
	handlers   *handlers.Handlers
	router     http.Handler
	authCookie *http.Cookie
	sealer     *serverid.Sealer
	tokens     *auth.VoterTokens
	flags      *store.MemoryFlagStore
	metrics    *metrics.Metrics
}

// pingbackVerifier confirms gtop100.com votes through the VoterIP callback field
func pingbackVerifier() *verification.Verifier {
	return verification.For("gtop100.com").RetrieveKeyByRegex(`(\d+)$`, 1).VerifyByPingback(func(r *http.Request) string {
		return r.FormValue("VoterIP")
	})
}

// newTestSetup creates a test setup. Extra verifiers are registered next to
// the gtop100.com pingback verifier.
func newTestSetup(t *testing.T, verifiers ...*verification.Verifier) *testSetup {
	t.Helper()

	repo := testutil.NewTestRepository(t)
	mockRepo := mock.NewRepository(repo)
	log := logger.Discard()

	registry := verification.NewRegistry(append([]*verification.Verifier{pingbackVerifier()}, verifiers...)...)
	flags := store.NewMemoryFlagStore()

	cfg := verification.DefaultConfig()
	cfg.IPCompatibility = false
	cfg.FailOpen = false
	cfg.Timeout = 2 * time.Second
	engine := verification.NewEngine(log, nil, nil, flags, cfg)

	m := metrics.New(nil)
	engine.SetMetrics(m)

	dispatcher := services.NewCommandDispatcher(log, mockRepo)
	admission := services.NewAdmissionService(log, mockRepo, store.NewMemoryCooldownStore(), registry, engine,
		rewards.NewSelector(rand.NewSource(1)), dispatcher, services.DefaultAdmissionConfig())
	admission.SetMetrics(m)
	sealer := serverid.NewSealer("handler-secret")
	admission.SetSealer(sealer)

	pingback := services.NewPingbackService(log, mockRepo, registry, engine)
	admin := services.NewAdminService(log, mockRepo, registry)

	adminAuth := auth.New("test-password")
	tokens := auth.NewVoterTokens("jwt-secret", time.Hour)

	h := handlers.New(admission, pingback, dispatcher, admin, adminAuth, tokens, nil, m, log)
	// httptest requests come from 192.0.2.1
	h.SetTrustedProxies([]netip.Prefix{netip.MustParsePrefix("192.0.2.0/24")})

	// Login to get a session cookie for authenticated requests
	token, _ := adminAuth.Login("test-password")
	authCookie := &http.Cookie{Name: auth.CookieName, Value: token}

	return &testSetup{
		repo:       repo,
		mock:       mockRepo,
		handlers:   h,
		router:     h.Router(),
		authCookie: authCookie,
		sealer:     sealer,
		tokens:     tokens,
		flags:      flags,
		metrics:    m,
	}
}

// do sends a request through the router. body is JSON-encoded unless it is
// nil or already a []byte.
func (s *testSetup) do(t *testing.T, method, target string, body interface{}, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// asAdmin attaches the admin session cookie
func (s *testSetup) asAdmin(r *http.Request) {
	r.AddCookie(s.authCookie)
}

// fromIP sets the voter address reported by the trusted test proxy
func fromIP(ip string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("X-Real-IP", ip)
	}
}

// fromPeer sets the TCP peer address of the request
func fromPeer(addr string) func(*http.Request) {
	return func(r *http.Request) {
		r.RemoteAddr = addr
	}
}

func forwardedFor(chain string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("X-Forwarded-For", chain)
	}
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(target); err != nil {
		t.Fatalf("failed to decode response: %v (body %q)", err, rec.Body.String())
	}
}

// expectError checks the status and the API error code of a response
func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) handlers.APIError {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	var apiErr handlers.APIError
	decodeBody(t, rec, &apiErr)
	if apiErr.Code != code {
		t.Errorf("expected code %q, got %q (%s)", code, apiErr.Code, apiErr.Message)
	}
	return apiErr
}
