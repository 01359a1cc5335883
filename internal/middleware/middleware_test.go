package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/service"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

type validatorStub map[string]*models.JWTClaims

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := v[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

var tokens = validatorStub{
	"admin":     {UserID: "admin-1", Role: models.RoleAdmin},
	"reviewer":  {UserID: "reviewer-1", Role: models.RoleReviewer},
	"applicant": {UserID: "applicant-1", Role: models.RoleApplicant},
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/users/:id", handlers...)
	return router
}

func serve(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "203.0.113.7:4000"
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestJWTRejectsMissingAndInvalidTokens(t *testing.T) {
	router := newRouter(JWT(tokens))

	if rec := serve(router, "/users/x", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", rec.Code)
	}
	if rec := serve(router, "/users/x", "forged"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown token, got %d", rec.Code)
	}
	if rec := serve(router, "/users/x", "admin"); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for valid token, got %d", rec.Code)
	}
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	var seen bool
	router := newRouter(OptionalJWT(tokens), func(c *gin.Context) {
		_, seen = CurrentClaims(c)
	})

	if rec := serve(router, "/users/x", "forged"); rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if seen {
		t.Fatalf("forged token must not attach claims")
	}
	serve(router, "/users/x", "reviewer")
	if !seen {
		t.Fatalf("valid token should attach claims")
	}
}

func TestRolesSeparateStaffAndApplicants(t *testing.T) {
	staff := newRouter(JWT(tokens), RequireRoles(models.RoleSuperAdmin, models.RoleAdmin))
	portal := newRouter(JWT(tokens), RequireApplicant())

	cases := []struct {
		router *gin.Engine
		token  string
		want   int
	}{
		{staff, "admin", http.StatusNoContent},
		{staff, "reviewer", http.StatusForbidden},
		{staff, "applicant", http.StatusForbidden},
		{portal, "applicant", http.StatusNoContent},
		{portal, "admin", http.StatusForbidden},
	}
	for _, tc := range cases {
		if rec := serve(tc.router, "/users/x", tc.token); rec.Code != tc.want {
			t.Fatalf("token %s: expected %d, got %d", tc.token, tc.want, rec.Code)
		}
	}
}

func TestSelfPolicyExcludesApplicants(t *testing.T) {
	router := newRouter(JWT(tokens), Authorize(Roles(models.RoleSuperAdmin), Self("id")))

	if rec := serve(router, "/users/reviewer-1", "reviewer"); rec.Code != http.StatusNoContent {
		t.Fatalf("reviewer should reach own record, got %d", rec.Code)
	}
	if rec := serve(router, "/users/admin-1", "reviewer"); rec.Code != http.StatusForbidden {
		t.Fatalf("reviewer must not reach another record, got %d", rec.Code)
	}
	if rec := serve(router, "/users/applicant-1", "applicant"); rec.Code != http.StatusForbidden {
		t.Fatalf("applicant token must not match SELF, got %d", rec.Code)
	}
}

func TestRateLimitReturnsRetryAfter(t *testing.T) {
	metrics := service.NewMetricsService()
	router := newRouter(RateLimit(NewIPRateLimiter(1, 2), metrics))

	for i := 0; i < 2; i++ {
		if rec := serve(router, "/users/x", ""); rec.Code != http.StatusNoContent {
			t.Fatalf("request %d within burst should pass, got %d", i, rec.Code)
		}
	}
	rec := serve(router, "/users/x", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("unexpected Retry-After %q", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimitDisabled(t *testing.T) {
	router := newRouter(RateLimit(NewIPRateLimiter(0, 1), nil))
	for i := 0; i < 5; i++ {
		if rec := serve(router, "/users/x", ""); rec.Code != http.StatusNoContent {
			t.Fatalf("limiter should be disabled, got %d", rec.Code)
		}
	}
}

func TestIPRateLimiterKeepsOneBucketPerClient(t *testing.T) {
	limiter := NewIPRateLimiter(1, 1)
	if limiter.Limiter("a") != limiter.Limiter("a") {
		t.Fatalf("same client should reuse bucket")
	}
	if limiter.Limiter("a") == limiter.Limiter("b") {
		t.Fatalf("clients must not share buckets")
	}
}

func TestIPRateLimiterPrunesAtMostOncePerInterval(t *testing.T) {
	limiter := NewIPRateLimiter(1, 1)
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) { limiter.now = func() time.Time { return start.Add(d) } }

	at(0)
	for i := 0; i < 300; i++ {
		limiter.Limiter(fmt.Sprintf("old-%d", i))
	}
	at(6 * time.Minute)
	for i := 0; i < 201; i++ {
		limiter.Limiter(fmt.Sprintf("new-%d", i))
	}
	limiter.Limiter("a")
	if len(limiter.clients) != 502 {
		t.Fatalf("no client was idle yet, got %d entries", len(limiter.clients))
	}

	at(10*time.Minute + 30*time.Second)
	limiter.Limiter("b")
	if len(limiter.clients) != 503 {
		t.Fatalf("prune ran again too soon, got %d entries", len(limiter.clients))
	}

	at(11*time.Minute + 30*time.Second)
	limiter.Limiter("c")
	if len(limiter.clients) != 204 {
		t.Fatalf("idle clients should be gone, got %d entries", len(limiter.clients))
	}
}

type auditRepoStub struct {
	logs []*models.AuditLog
	err  error
}

func (a *auditRepoStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return a.err
}

func TestAuditRecordsSuccessfulStaffRequests(t *testing.T) {
	repo := &auditRepoStub{}
	router := newRouter(JWT(tokens), Audit(repo, nil, "APPLICANT_EXPORT", "applicants"))

	serve(router, "/users/abc?format=csv", "admin")
	if len(repo.logs) != 1 {
		t.Fatalf("expected one audit log, got %d", len(repo.logs))
	}
	entry := repo.logs[0]
	if entry.UserID == nil || *entry.UserID != "admin-1" {
		t.Fatalf("unexpected user id %v", entry.UserID)
	}
	if entry.ResourceID == nil || *entry.ResourceID != "abc" {
		t.Fatalf("unexpected resource id %v", entry.ResourceID)
	}
	var trace requestTrace
	if err := json.Unmarshal(entry.NewValues, &trace); err != nil {
		t.Fatalf("trace is not json: %v", err)
	}
	if trace.Route != "/users/:id" || trace.Query != "format=csv" || trace.Status != http.StatusNoContent {
		t.Fatalf("unexpected trace %+v", trace)
	}
}

func TestAuditIgnoresPortalTokens(t *testing.T) {
	repo := &auditRepoStub{}
	router := newRouter(JWT(tokens), Audit(repo, nil, "X", "y"))

	serve(router, "/users/abc", "applicant")
	if len(repo.logs) != 0 {
		t.Fatalf("portal requests must not be audited, got %d", len(repo.logs))
	}
}

func TestAuthorizeWithoutClaims(t *testing.T) {
	router := newRouter(RequireRoles(models.RoleAdmin))
	if rec := serve(router, "/users/x", "admin"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("claims are attached by JWT only, expected 401, got %d", rec.Code)
	}
}

func TestAuditSkipsFailuresAndSwallowsWriteErrors(t *testing.T) {
	repo := &auditRepoStub{err: errors.New("db down")}
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/fail", Audit(repo, nil, "X", "y"), func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	router.GET("/ok", Audit(repo, nil, "X", "y"), func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(router, "/fail", "")
	if len(repo.logs) != 0 {
		t.Fatalf("failed requests must not be audited")
	}
	if rec := serve(router, "/ok", ""); rec.Code != http.StatusOK {
		t.Fatalf("audit write failure must not change response, got %d", rec.Code)
	}
}

func TestMetricsObservesRequests(t *testing.T) {
	metrics := service.NewMetricsService()
	router := newRouter(Metrics(metrics))
	serve(router, "/users/x", "")
	if got := metrics.Snapshot().RequestsTotal; got != 1 {
		t.Fatalf("expected 1 request observed, got %d", got)
	}
}

func TestResponseMetaRecordsCacheHit(t *testing.T) {
	var meta map[string]interface{}
	router := newRouter(WithResponseMeta(), func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
	})
	serve(router, "/users/x", "")
	if meta[cacheHitKey] != true {
		t.Fatalf("expected cache hit flag, got %v", meta)
	}
}

func TestMetricsSkipsProbePaths(t *testing.T) {
	metrics := service.NewMetricsService()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Metrics(metrics, "/health"))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(router, "/health", "")
	serve(router, "/nowhere", "")
	if got := metrics.Snapshot().RequestsTotal; got != 1 {
		t.Fatalf("expected only the unmatched request observed, got %d", got)
	}
}

func TestExtractMetaWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if ExtractMeta(c) != nil {
		t.Fatalf("expected nil meta before anything is recorded")
	}
	SetCacheHit(c, false)
	meta := ExtractMeta(c)
	if meta[cacheHitKey] != false {
		t.Fatalf("unexpected meta %v", meta)
	}
	if _, ok := meta[processingKey]; !ok {
		t.Fatalf("processing time missing from %v", meta)
	}
}
