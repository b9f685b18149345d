package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/01moynul/storefront-api/internal/apperr"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type retryCounter struct{ n int }

func (r *retryCounter) ConflictRetry() { r.n++ }

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	return c, rec
}

func TestStatusFor(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.KindNotFound:           http.StatusNotFound,
		apperr.KindInvalidArgument:    http.StatusBadRequest,
		apperr.KindInsufficientStock:  http.StatusConflict,
		apperr.KindAlreadyExists:      http.StatusConflict,
		apperr.KindFailedPrecondition: http.StatusConflict,
		apperr.KindConflict:           http.StatusServiceUnavailable,
		apperr.KindForbidden:          http.StatusForbidden,
		apperr.KindUnauthorized:       http.StatusUnauthorized,
		apperr.KindInternal:           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusFor(kind), kind.String())
	}
}

func TestWithRetryStopsOnSuccess(t *testing.T) {
	rec := &retryCounter{}
	h := &Handlers{Log: zap.NewNop(), Metrics: rec, ConflictRetries: 3}
	c, _ := newTestContext()

	calls := 0
	err := h.withRetry(c, func() error {
		calls++
		if calls < 3 {
			return apperr.New(apperr.KindConflict, "deadlock")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, rec.n)
}

func TestWithRetryGivesUp(t *testing.T) {
	rec := &retryCounter{}
	h := &Handlers{Log: zap.NewNop(), Metrics: rec, ConflictRetries: 2}
	c, _ := newTestContext()

	calls := 0
	err := h.withRetry(c, func() error {
		calls++
		return apperr.New(apperr.KindConflict, "deadlock")
	})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, 3, calls)
}

func TestWithRetryIgnoresOtherErrors(t *testing.T) {
	h := &Handlers{Log: zap.NewNop(), Metrics: &retryCounter{}, ConflictRetries: 5}
	c, _ := newTestContext()

	calls := 0
	err := h.withRetry(c, func() error {
		calls++
		return apperr.InsufficientStock("no stock")
	})
	assert.True(t, apperr.Is(err, apperr.KindInsufficientStock))
	assert.Equal(t, 1, calls)
}

func TestRespondErrorHidesInternals(t *testing.T) {
	h := &Handlers{Log: zap.NewNop()}

	c, rec := newTestContext()
	h.respondError(c, errors.New("dial tcp 10.0.0.5:3306: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body["error"])
	assert.Equal(t, "INTERNAL", body["code"])

	c, rec = newTestContext()
	h.respondError(c, apperr.NotFound("cart not found"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"cart not found","code":"NOT_FOUND"}`, rec.Body.String())
}

func TestParamID(t *testing.T) {
	c, rec := newTestContext()
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	_, ok := paramID(c, "id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, _ = newTestContext()
	c.Params = gin.Params{{Key: "id", Value: "17"}}
	id, ok := paramID(c, "id")
	assert.True(t, ok)
	assert.Equal(t, int64(17), id)
}
