package orders

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joao-fontenele/catering-orders/internal/auth"
)

type apiClient struct {
	t      *testing.T
	router http.Handler
	tokens *auth.Tokens
}

func newAPI(t *testing.T, f *fixture) *apiClient {
	t.Helper()
	tokens := auth.NewTokens("test-secret", "catering-orders", time.Hour)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(tokens, zap.NewNop()))
		NewHandler(f.svc, zap.NewNop()).RegisterRoutes(r)
	})
	return &apiClient{t: t, router: r, tokens: tokens}
}

func (c *apiClient) do(as *auth.Identity, method, path, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		raw, _, err := c.tokens.Issue(*as)
		require.NoError(c.t, err)
		req.Header.Set("Authorization", "Bearer "+raw)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const createBody = `{"menu_id":1,"persons":15,"service_date":"2026-06-20","delivery_time":"12:30","address":"12 cours de l'Intendance","city":"Bordeaux","loan_requested":true}`

func TestHandler_QuoteAndCreate(t *testing.T) {
	f := newFixture(t)
	api := newAPI(t, f)

	rec := api.do(&customer, http.MethodPost, "/orders/quote", `{"menu_id":1,"persons":10,"city":"Paris","distance_km":20}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decodeBody(t, rec)
	assert.Equal(t, 16.8, quote["delivery_fee"])
	assert.Equal(t, 216.8, quote["total"])

	rec = api.do(&customer, http.MethodPost, "/orders", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	number := created["number"].(string)
	assert.Regexp(t, `^VG-\d+-[0-9A-F]{8}$`, number)
	assert.Equal(t, "pending", created["status"])
	assert.Equal(t, 270.0, created["total"])
	assert.Equal(t, "12:30", created["delivery_time"])

	rec = api.do(&customer, http.MethodGet, "/orders/"+number, "")
	require.Equal(t, http.StatusOK, rec.Code)
	details := decodeBody(t, rec)
	assert.Len(t, details["history"], 1)
	assert.NotContains(t, details, "cancellation")

	rec = api.do(&stranger, http.MethodGet, "/orders/"+number, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(&employee, http.MethodGet, "/orders/"+number, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(&customer, http.MethodGet, "/orders/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Len(t, mine, 1)
}

func TestHandler_CreateRejections(t *testing.T) {
	tests := []struct {
		name    string
		as      *auth.Identity
		body    string
		want    int
		message string
	}{
		{name: "anonymous", as: nil, body: createBody, want: http.StatusUnauthorized},
		{name: "staff cannot order", as: &employee, body: createBody, want: http.StatusForbidden},
		{name: "empty body", as: &customer, body: "", want: http.StatusBadRequest, message: "invalid request body: body must not be empty"},
		{name: "unknown field", as: &customer, body: `{"menu_id":1,"persons":10,"coupon":"X"}`, want: http.StatusBadRequest},
		{name: "missing date", as: &customer, body: `{"menu_id":1,"persons":10,"address":"a","city":"Bordeaux"}`, want: http.StatusBadRequest, message: "service_date is required"},
		{name: "bad date", as: &customer, body: `{"menu_id":1,"persons":10,"service_date":"20/06/2026","address":"a","city":"Bordeaux"}`, want: http.StatusBadRequest, message: "service_date must match format 2006-01-02"},
		{name: "below minimum", as: &customer, body: `{"menu_id":1,"persons":9,"service_date":"2026-06-20","address":"a","city":"Bordeaux"}`, want: http.StatusBadRequest, message: "persons must be at least 10 for this menu"},
		{name: "headcount too large", as: &customer, body: `{"menu_id":1,"persons":2000000000,"service_date":"2026-06-20","address":"a","city":"Bordeaux"}`, want: http.StatusBadRequest, message: "persons must be at most 10000"},
		{name: "distance too large", as: &customer, body: `{"menu_id":1,"persons":10,"service_date":"2026-06-20","address":"a","city":"Lille","distance_km":1000000}`, want: http.StatusBadRequest, message: "distance_km must be at most 10000"},
		{name: "unknown menu", as: &customer, body: `{"menu_id":77,"persons":9,"service_date":"2026-06-20","address":"a","city":"Bordeaux"}`, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := newAPI(t, f).do(tt.as, http.MethodPost, "/orders", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.message != "" {
				assert.Equal(t, tt.message, decodeBody(t, rec)["error"])
			}
			assert.Empty(t, f.store.state.orders)
		})
	}
}

func TestHandler_CustomerEditAndCancel(t *testing.T) {
	f := newFixture(t)
	api := newAPI(t, f)
	number := decodeBody(t, api.do(&customer, http.MethodPost, "/orders", createBody))["number"].(string)

	rec := api.do(&customer, http.MethodPatch, "/orders/"+number, `{"persons":11,"loan_requested":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decodeBody(t, rec)
	assert.Equal(t, 220.0, edited["total"])
	assert.Equal(t, false, edited["loan_requested"])
	assert.NotContains(t, edited, "loan_deadline")

	rec = api.do(&stranger, http.MethodPost, "/orders/"+number+"/cancel", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(&customer, http.MethodPost, "/orders/"+number+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decodeBody(t, rec)["status"])

	rec = api.do(&customer, http.MethodPost, "/orders/"+number+"/cancel", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "can no longer change")

	rec = api.do(&customer, http.MethodGet, "/orders/"+number, "")
	require.Equal(t, http.StatusOK, rec.Code)
	cancellation := decodeBody(t, rec)["cancellation"].(map[string]any)
	assert.Equal(t, "cancelled by customer", cancellation["reason"])

	rec = api.do(&customer, http.MethodGet, "/orders/VG-1-DEADBEEF", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_StaffWorkflow(t *testing.T) {
	f := newFixture(t)
	api := newAPI(t, f)
	number := decodeBody(t, api.do(&customer, http.MethodPost, "/orders", createBody))["number"].(string)

	rec := api.do(&customer, http.MethodPatch, "/admin/orders/"+number+"/status", `{"status":"accepted"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(&employee, http.MethodPatch, "/admin/orders/"+number+"/status", `{"status":"shipped"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `unknown order status "shipped"`, decodeBody(t, rec)["error"])

	rec = api.do(&employee, http.MethodPatch, "/admin/orders/"+number+"/status", `{"status":"delivered"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cannot move order from pending to delivered", decodeBody(t, rec)["error"])

	for _, s := range []string{"accepted", "in_preparation", "out_for_delivery", "delivered"} {
		rec = api.do(&employee, http.MethodPatch, "/admin/orders/"+number+"/status", `{"status":"`+s+`","comment":"ok"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = api.do(&employee, http.MethodPatch, "/admin/orders/"+number+"/status", `{"status":"completed"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "material not returned yet", decodeBody(t, rec)["error"])

	rec = api.do(&employee, http.MethodPatch, "/admin/orders/"+number+"/status", `{"status":"awaiting_equipment_return"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	f.clock.set(time.Date(2026, 6, 15, 10, 0, 0, 0, paris))
	rec = api.do(&employee, http.MethodPatch, "/admin/orders/"+number+"/material-returned", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decodeBody(t, rec)
	assert.Equal(t, "completed", done["status"])
	assert.Equal(t, true, done["late_penalty"])

	rec = api.do(&employee, http.MethodPost, "/admin/orders/"+number+"/cancel", `{"contact_mode":"email","reason":"too late"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_StaffCancel(t *testing.T) {
	f := newFixture(t)
	api := newAPI(t, f)
	number := decodeBody(t, api.do(&customer, http.MethodPost, "/orders", createBody))["number"].(string)

	rec := api.do(&employee, http.MethodPost, "/admin/orders/"+number+"/cancel", `{"contact_mode":"pigeon","reason":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "contact_mode must be one of [gsm email]", decodeBody(t, rec)["error"])

	rec = api.do(&employee, http.MethodPost, "/admin/orders/"+number+"/cancel", `{"contact_mode":"gsm"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(&employee, http.MethodPost, "/admin/orders/"+number+"/cancel", `{"contact_mode":"gsm","reason":"kitchen flooded"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decodeBody(t, rec)["status"])
	assert.Equal(t, 5, *f.store.stock(trackedMenu))
}

func TestHandler_AdminListing(t *testing.T) {
	f := newFixture(t)
	api := newAPI(t, f)
	api.do(&customer, http.MethodPost, "/orders", createBody)
	api.do(&stranger, http.MethodPost, "/orders", createBody)

	tests := []struct {
		path  string
		want  int
		count int
	}{
		{path: "/admin/orders", want: http.StatusOK, count: 2},
		{path: "/admin/orders?status=pending,accepted", want: http.StatusOK, count: 2},
		{path: "/admin/orders?status=accepted", want: http.StatusOK, count: 0},
		{path: "/admin/orders?q=other%40example", want: http.StatusOK, count: 1},
		{path: "/admin/orders?limit=1", want: http.StatusOK, count: 1},
		{path: "/admin/orders?status=bogus", want: http.StatusBadRequest},
		{path: "/admin/orders?limit=-1", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := api.do(&employee, http.MethodGet, tt.path, "")
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want != http.StatusOK {
				return
			}
			var got []map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Len(t, got, tt.count)
		})
	}

	rec := api.do(&customer, http.MethodGet, "/admin/orders", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_Transitions(t *testing.T) {
	f := newFixture(t)
	api := newAPI(t, f)

	rec := api.do(&customer, http.MethodGet, "/orders/transitions", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(&employee, http.MethodGet, "/orders/transitions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var table map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))
	assert.Equal(t, []string{"awaiting_equipment_return", "completed"}, table["delivered"])
	assert.Empty(t, table["cancelled"])
}
