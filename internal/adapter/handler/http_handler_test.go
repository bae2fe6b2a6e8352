package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/warehouse-inventory/internal/core/domain"
)

type httpClient struct {
	t      *testing.T
	server *httptest.Server
}

func newHTTPClient(t *testing.T, env *testEnv) *httpClient {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "handler_test_total", Help: "test"}))

	router := NewRouter(NewHTTPHandler(env.inventory, env.auth, nil), reg)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &httpClient{t: t, server: server}
}

func (c *httpClient) do(method, path, token string, body any) (*http.Response, []byte) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.server.URL+path, reader)
	require.NoError(c.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, data
}

func (c *httpClient) create(token string, body map[string]any) domain.InventoryRecord {
	c.t.Helper()
	resp, data := c.do(http.MethodPost, "/api/v1/inventory", token, body)
	require.Equal(c.t, http.StatusCreated, resp.StatusCode, string(data))
	var record domain.InventoryRecord
	require.NoError(c.t, json.Unmarshal(data, &record))
	return record
}

func recordPath(id int64, suffix string) string {
	return "/api/v1/inventory/" + strconv.FormatInt(id, 10) + suffix
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	client := newHTTPClient(t, newTestEnv(t))

	resp, body := client.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, body = client.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "handler_test_total")
}

func TestHTTP_RequiresToken(t *testing.T) {
	client := newHTTPClient(t, newTestEnv(t))

	resp, _ := client.do(http.MethodGet, "/api/v1/inventory", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = client.do(http.MethodGet, "/api/v1/inventory", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTP_Login(t *testing.T) {
	client := newHTTPClient(t, newTestEnv(t))

	resp, body := client.do(http.MethodPost, "/api/v1/auth/login", "", LoginHTTPRequest{Name: "bob", Secret: "bob-pw"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var session struct {
		Token     string           `json:"token"`
		Associate domain.Principal `json:"associate"`
	}
	require.NoError(t, json.Unmarshal(body, &session))
	assert.NotEmpty(t, session.Token)
	assert.True(t, session.Associate.IsManager)

	resp, _ = client.do(http.MethodPost, "/api/v1/auth/login", "", LoginHTTPRequest{Name: "bob", Secret: "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTP_Logout(t *testing.T) {
	env := newTestEnv(t)
	client := newHTTPClient(t, env)

	resp, _ := client.do(http.MethodPost, "/api/v1/auth/logout", env.workerToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = client.do(http.MethodGet, "/api/v1/inventory", env.workerToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTP_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	client := newHTTPClient(t, env)

	record := client.create(env.managerToken, map[string]any{
		"label_id":            "ITEM123",
		"product_description": "Test Product",
		"storage_location":    "A1",
		"quantity_on_pallet":  50,
	})
	assert.Equal(t, 50, record.QuantityOnPallet)
	assert.Nil(t, record.ScheduledForDeletion)

	resp, body := client.do(http.MethodPatch, recordPath(record.RecordID, "/quantity"), env.managerToken,
		QuantityHTTPRequest{NewQuantity: domain.IntPtr(75)})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = client.do(http.MethodPatch, recordPath(record.RecordID, "/quantity"), env.workerToken,
		QuantityHTTPRequest{IncreaseQuantity: domain.IntPtr(5)})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = client.do(http.MethodPatch, recordPath(record.RecordID, "/location"), env.workerToken,
		LocationHTTPRequest{NewLocation: "B2"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = client.do(http.MethodDelete, recordPath(record.RecordID, ""), env.workerToken,
		DeleteHTTPRequest{Confirmation: true})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, string(body))

	resp, body = client.do(http.MethodDelete, recordPath(record.RecordID, ""), env.managerToken,
		DeleteHTTPRequest{Confirmation: false})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))

	resp, body = client.do(http.MethodDelete, recordPath(record.RecordID, ""), env.managerToken,
		DeleteHTTPRequest{Confirmation: true})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = client.do(http.MethodGet, recordPath(record.RecordID, ""), env.workerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got domain.InventoryRecord
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, 80, got.QuantityOnPallet)
	assert.Equal(t, "B2", got.StorageLocation)
	assert.NotNil(t, got.ScheduledForDeletion)

	resp, body = client.do(http.MethodGet, recordPath(record.RecordID, "/history"), env.workerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []domain.TransactionRecord
	require.NoError(t, json.Unmarshal(body, &history))
	require.Len(t, history, 5)
	assert.Equal(t, domain.ActionDeleted, history[0].Action)
	assert.Equal(t, domain.ActionCreated, history[4].Action)
}

func TestHTTP_ValidationAndNotFound(t *testing.T) {
	env := newTestEnv(t)
	client := newHTTPClient(t, env)

	resp, body := client.do(http.MethodPost, "/api/v1/inventory", env.workerToken, map[string]any{
		"label_id":            "   ",
		"product_description": "Test Product",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "label_id")

	record := client.create(env.workerToken, map[string]any{"label_id": "X", "product_description": "Y"})

	resp, _ = client.do(http.MethodPatch, recordPath(record.RecordID, "/quantity"), env.workerToken,
		QuantityHTTPRequest{NewQuantity: domain.IntPtr(-1)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = client.do(http.MethodPatch, recordPath(record.RecordID, "/quantity"), env.workerToken,
		QuantityHTTPRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = client.do(http.MethodPatch, recordPath(record.RecordID, "/quantity"), env.workerToken,
		map[string]any{"new_quantity": int64(1) << 32})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = client.do(http.MethodPost, "/api/v1/inventory", env.workerToken, map[string]any{
		"label_id":            "X",
		"product_description": "Y",
		"quantity_on_pallet":  int64(1) << 32,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = client.do(http.MethodGet, "/api/v1/inventory?quantity_on_pallet=4294967296", env.workerToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = client.do(http.MethodGet, recordPath(999999, ""), env.workerToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = client.do(http.MethodGet, "/api/v1/inventory/abc", env.workerToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = client.do(http.MethodPost, "/api/v1/inventory", env.workerToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_DuplicateCreate(t *testing.T) {
	env := newTestEnv(t)
	client := newHTTPClient(t, env)
	body := map[string]any{"request_id": "req-7", "label_id": "X", "product_description": "Y"}

	client.create(env.workerToken, body)
	resp, _ := client.do(http.MethodPost, "/api/v1/inventory", env.workerToken, body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHTTP_Find(t *testing.T) {
	env := newTestEnv(t)
	client := newHTTPClient(t, env)

	client.create(env.workerToken, map[string]any{"label_id": "ITEM123", "product_description": "Test Product"})
	client.create(env.workerToken, map[string]any{"label_id": "ITEM999", "product_description": "Other"})

	resp, body := client.do(http.MethodGet, "/api/v1/inventory?label_id=ITEM1", env.workerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var records []domain.InventoryRecord
	require.NoError(t, json.Unmarshal(body, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "ITEM123", records[0].LabelID)

	resp, body = client.do(http.MethodGet, "/api/v1/inventory?scheduled_for_deletion=true", env.workerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]", strings.TrimSpace(string(body)))

	resp, _ = client.do(http.MethodGet, "/api/v1/inventory?quantity_on_pallet=lots", env.workerToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBearerToken(t *testing.T) {
	token, ok := bearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	token, ok = bearerToken("bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	_, ok = bearerToken("Basic abc")
	assert.False(t, ok)

	_, ok = bearerToken("Bearer ")
	assert.False(t, ok)
}
