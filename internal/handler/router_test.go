package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ambassador-api/internal/middleware"
	"github.com/noah-isme/ambassador-api/internal/models"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

type routeTokens map[string]*models.JWTClaims

func (r routeTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := r[token]; ok {
		return claims, nil
	}
	return nil, appErrors.ErrUnauthorized
}

func buildTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	portal := &fakePortal{}
	applicants := &fakeApplicantAdmin{}
	routes := &Router{
		Tokens: routeTokens{
			"admin":     {UserID: "admin-1", Role: models.RoleAdmin},
			"reviewer":  {UserID: "reviewer-1", Role: models.RoleReviewer},
			"applicant": {UserID: "a-1", Role: models.RoleApplicant},
		},
		RateLimiter: middleware.NewIPRateLimiter(1, 2),
		Intake:      NewIntakeHandler(&fakeIntake{result: intakeResult(true)}),
		Portal:      newPortalForTest(portal),
		Applicants:  NewApplicantHandler(applicants, applicants),
		Dashboard:   NewDashboardHandler(&fakeDashboardSrv{resp: &models.DashboardSummary{}}),
	}
	router := gin.New()
	router.Use(middleware.WithResponseMeta())
	routes.Register(router.Group("/api/v1"))
	return router
}

func performRequest(router *gin.Engine, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "198.51.100.4:1234"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouterAccessControl(t *testing.T) {
	router := buildTestRouter()

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"portal needs token", http.MethodGet, "/api/v1/portal/boosts", "", http.StatusUnauthorized},
		{"portal rejects staff", http.MethodGet, "/api/v1/portal/boosts", "admin", http.StatusForbidden},
		{"portal applicant", http.MethodGet, "/api/v1/portal/boosts", "applicant", http.StatusOK},
		{"admin rejects applicant", http.MethodGet, "/api/v1/admin/dashboard", "applicant", http.StatusForbidden},
		{"reviewer reads dashboard", http.MethodGet, "/api/v1/admin/dashboard", "reviewer", http.StatusOK},
		{"reviewer lists applicants", http.MethodGet, "/api/v1/admin/applicants", "reviewer", http.StatusOK},
		{"reviewer cannot delete", http.MethodPost, "/api/v1/admin/applicants/bulk/delete", "reviewer", http.StatusForbidden},
		{"admin recalculates", http.MethodPost, "/api/v1/admin/applicants/a-1/recalculate", "admin", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := performRequest(router, tc.method, tc.path, tc.token, nil)
			require.Equal(t, tc.want, resp.Code)
		})
	}
}

func TestRouterRateLimitsIntake(t *testing.T) {
	router := buildTestRouter()

	for i := 0; i < 2; i++ {
		resp := performRequest(router, http.MethodPost, "/api/v1/intake", "", []byte(`{}`))
		require.Equal(t, http.StatusCreated, resp.Code)
	}
	resp := performRequest(router, http.MethodPost, "/api/v1/intake", "", []byte(`{}`))
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	require.NotEmpty(t, resp.Header().Get("Retry-After"))

	// other routes keep working for the same client
	resp = performRequest(router, http.MethodGet, "/api/v1/portal/leaderboard", "applicant", nil)
	require.Equal(t, http.StatusOK, resp.Code)
}
