package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/01moynul/storefront-api/internal/auth"
	"github.com/01moynul/storefront-api/internal/cart"
	"github.com/01moynul/storefront-api/internal/handlers"
	"github.com/01moynul/storefront-api/internal/inventory"
	"github.com/01moynul/storefront-api/internal/metrics"
	"github.com/01moynul/storefront-api/internal/products"
	"github.com/01moynul/storefront-api/internal/store/memstore"
	"github.com/01moynul/storefront-api/internal/users"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type api struct {
	t      *testing.T
	router *gin.Engine
}

func newAPI(t *testing.T) *api {
	t.Helper()
	s, err := memstore.New()
	require.NoError(t, err)

	log := zap.NewNop()
	m := metrics.New()
	ledger := inventory.NewLedger(log)
	carts := cart.NewService(s, ledger, log, m)
	h := &handlers.Handlers{
		Carts:           carts,
		Products:        products.NewService(s, ledger, log, m),
		Users:           users.NewService(s, carts, log),
		Tokens:          auth.NewTokenManager("test-secret", time.Hour),
		Log:             log,
		Metrics:         m,
		ConflictRetries: 2,
	}
	return &api{t: t, router: SetupRouter(h, m, log, []string{"http://localhost:5173"})}
}

func (a *api) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// account signs up and logs in, returning the token and the user id.
func (a *api) account(email, role string) (string, int64) {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/v1/authentication/signup", "", gin.H{"email": email, "password": "secret123", "role": role})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/v1/authentication/login", "", gin.H{"email": email, "password": "secret123"})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(a.t, rec)
	user := body["user"].(map[string]interface{})
	return body["accessToken"].(string), int64(user["id"].(float64))
}

func (a *api) createProduct(adminToken string, body gin.H) int64 {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/v1/products", adminToken, body)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return int64(decode(a.t, rec)["id"].(float64))
}

func (a *api) stock(productID int64, token string) int {
	a.t.Helper()
	rec := a.do(http.MethodGet, fmt.Sprintf("/v1/products/%d", productID), token, nil)
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	return int(decode(a.t, rec)["stockQuantity"].(float64))
}

func TestPing(t *testing.T) {
	a := newAPI(t)
	rec := a.do(http.MethodGet, "/v1/ping", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"pong!"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	a := newAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/carts/add", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestReservationFlowOverHTTP(t *testing.T) {
	a := newAPI(t)
	admin, _ := a.account("admin@example.com", "ADMIN")
	u1, _ := a.account("u1@example.com", "")
	u2, _ := a.account("u2@example.com", "")
	p := a.createProduct(admin, gin.H{"name": "Keyboard", "price": "49.90", "stockQuantity": 10})

	rec := a.do(http.MethodPost, "/v1/carts/add", u1, gin.H{"productId": p, "quantity": 6})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	itemID := int64(decode(t, rec)["id"].(float64))
	assert.Equal(t, 4, a.stock(p, u1))

	rec = a.do(http.MethodPost, "/v1/carts/add", u2, gin.H{"productId": p, "quantity": 5})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", decode(t, rec)["code"])
	assert.Equal(t, 4, a.stock(p, u1))

	rec = a.do(http.MethodPatch, fmt.Sprintf("/v1/carts/item/%d", itemID), u1, gin.H{"quantity": 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 6, a.stock(p, u1))

	rec = a.do(http.MethodGet, "/v1/carts", u1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode(t, rec)
	assert.Equal(t, float64(4), view["totalItems"])
	assert.Len(t, view["items"], 1)

	// Another user cannot touch the item.
	rec = a.do(http.MethodDelete, fmt.Sprintf("/v1/carts/item/%d", itemID), u2, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodDelete, fmt.Sprintf("/v1/carts/item/%d", itemID), u1, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 10, a.stock(p, u1))
}

func TestCartValidationAndMissingCart(t *testing.T) {
	a := newAPI(t)
	admin, _ := a.account("admin@example.com", "ADMIN")
	user, _ := a.account("user@example.com", "")
	p := a.createProduct(admin, gin.H{"name": "Mug", "price": 3, "stockQuantity": 2})

	rec := a.do(http.MethodPost, "/v1/carts/add", user, gin.H{"productId": p, "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(http.MethodPost, "/v1/carts/add", user, gin.H{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(http.MethodPost, "/v1/carts/add", user, gin.H{"productId": 999, "quantity": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodDelete, "/v1/carts/clear", user, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "cart not found", decode(t, rec)["error"])

	rec = a.do(http.MethodPatch, "/v1/carts/item/abc", user, gin.H{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodGet, "/v1/carts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClearCartAndAdminView(t *testing.T) {
	a := newAPI(t)
	admin, _ := a.account("admin@example.com", "ADMIN")
	user, userID := a.account("user@example.com", "")
	pa := a.createProduct(admin, gin.H{"name": "A", "price": 1, "stockQuantity": 10})
	pb := a.createProduct(admin, gin.H{"name": "B", "price": 2, "stockQuantity": 10})

	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/carts/add", user, gin.H{"productId": pa, "quantity": 3}).Code)
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/carts/add", user, gin.H{"productId": pb, "quantity": 2}).Code)

	path := fmt.Sprintf("/v1/carts/admin/%d", userID)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, path, user, nil).Code)
	rec := a.do(http.MethodGet, path, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 2)

	rec = a.do(http.MethodDelete, "/v1/carts/clear", user, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, float64(2), body["itemsRemoved"])
	assert.Equal(t, float64(5), body["unitsReleased"])
	assert.Equal(t, 10, a.stock(pa, user))
	assert.Equal(t, 10, a.stock(pb, user))
}

func TestProductVisibilityAndAdminGuards(t *testing.T) {
	a := newAPI(t)
	admin, _ := a.account("admin@example.com", "ADMIN")
	user, _ := a.account("user@example.com", "")
	a.createProduct(admin, gin.H{"name": "Public", "price": 1, "stockQuantity": 1})
	hidden := a.createProduct(admin, gin.H{"name": "Members only", "price": 1, "stockQuantity": 1, "isConnectedOnly": true})

	rec := a.do(http.MethodGet, "/v1/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var anon []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &anon))
	assert.Len(t, anon, 1)

	rec = a.do(http.MethodGet, "/v1/products", user, nil)
	var all []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, fmt.Sprintf("/v1/products/%d", hidden), "", nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, fmt.Sprintf("/v1/products/%d", hidden), user, nil).Code)

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/v1/products", user, gin.H{"name": "X", "price": 1}).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/v1/products", "", gin.H{"name": "X", "price": 1}).Code)

	rec = a.do(http.MethodPatch, fmt.Sprintf("/v1/products/%d/stock", hidden), admin, gin.H{"delta": 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(5), decode(t, rec)["stockQuantity"])

	rec = a.do(http.MethodPatch, fmt.Sprintf("/v1/products/%d/stock", hidden), admin, gin.H{"delta": -9})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteReservedProductIsRefused(t *testing.T) {
	a := newAPI(t)
	admin, _ := a.account("admin@example.com", "ADMIN")
	user, _ := a.account("user@example.com", "")
	p := a.createProduct(admin, gin.H{"name": "Lamp", "price": "12.00", "stockQuantity": 3})

	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/carts/add", user, gin.H{"productId": p, "quantity": 1}).Code)

	rec := a.do(http.MethodDelete, fmt.Sprintf("/v1/products/%d", p), admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "FAILED_PRECONDITION", decode(t, rec)["code"])

	require.Equal(t, http.StatusOK, a.do(http.MethodDelete, "/v1/carts/clear", user, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodDelete, fmt.Sprintf("/v1/products/%d", p), admin, nil).Code)
}

func TestUserRoutes(t *testing.T) {
	a := newAPI(t)
	admin, _ := a.account("admin@example.com", "ADMIN")
	alice, aliceID := a.account("alice@example.com", "")
	_, bobID := a.account("bob@example.com", "")

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/v1/users", alice, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/users", admin, nil).Code)

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, fmt.Sprintf("/v1/users/%d", aliceID), alice, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, fmt.Sprintf("/v1/users/%d", bobID), alice, nil).Code)

	rec := a.do(http.MethodPost, "/v1/authentication/signup", "", gin.H{"email": "alice@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = a.do(http.MethodPost, "/v1/authentication/login", "", gin.H{"email": "alice@example.com", "password": "wrong-one"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodDelete, fmt.Sprintf("/v1/users/%d", bobID), admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, fmt.Sprintf("/v1/users/%d", bobID), admin, nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newAPI(t)
	a.do(http.MethodGet, "/v1/ping", "", nil)

	rec := a.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `storefront_http_requests_total{method="GET",route="/v1/ping",status="200"} 1`)
}
