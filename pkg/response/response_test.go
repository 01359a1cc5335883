package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ambassador-api/internal/models"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, rec
}

func TestJSONMergesMetaAndPagination(t *testing.T) {
	c, rec := newContext()

	JSON(c, http.StatusOK, []string{"a"}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1},
		map[string]interface{}{"cache_hit": false}, nil, map[string]interface{}{"cache_hit": true, "source": "db"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]interface{}{"cache_hit": true, "source": "db"}, body["meta"])
	assert.NotContains(t, body, "error")
	assert.EqualValues(t, 1, body["pagination"].(map[string]interface{})["total_count"])
}

func TestJSONOmitsEmptyMeta(t *testing.T) {
	c, rec := newContext()
	JSON(c, http.StatusOK, map[string]int{"n": 1}, nil, map[string]interface{}{})
	assert.JSONEq(t, `{"data":{"n":1}}`, rec.Body.String())
}

func TestErrorRecordsServerFailuresOnly(t *testing.T) {
	c, rec := newContext()
	Error(c, appErrors.Clone(appErrors.ErrNotFound, "applicant not found"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, c.Errors)
	assert.JSONEq(t, `{"error":{"code":"NOT_FOUND","message":"applicant not found","status":404}}`, rec.Body.String())

	c, rec = newContext()
	Error(c, errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Len(t, c.Errors, 1)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}
