package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bloomhouse/cartsync/internal/cart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token(context.Context) string { return string(s) }

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]interface{}
}

const cartBody = `{"data":{"items":[{"id":"c-1","productId":"p1","quantity":2,"selectedVariant":"Red","price":80,
"product":{"id":"p1","nameEn":"Roses","nameAr":"ورد","price":100,"finalPrice":80,"image":"r.jpg"}}],"count":2,"total":160}}`

type recorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (r *recorder) add(rec recordedRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, rec)
}

func (r *recorder) all() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.requests...)
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, *recorder) {
	requests := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
		}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			assert.NoError(t, json.Unmarshal(data, &rec.Body))
		}
		requests.add(rec)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, requests
}

func newTestClient(t *testing.T, baseURL string, token string) *Client {
	c, err := NewClient(Config{BaseURL: baseURL + "/api/v1/", Timeout: 2 * time.Second}, staticToken(token))
	require.NoError(t, err)
	return c
}

func TestClient_Operations(t *testing.T) {
	ctx := context.Background()
	srv, requests := newTestServer(t, http.StatusOK, cartBody)
	client := newTestClient(t, srv.URL, "tok")

	tests := []struct {
		name       string
		call       func() (*RemoteCart, error)
		wantMethod string
		wantPath   string
		wantQuery  string
		wantBody   map[string]interface{}
	}{
		{
			name:       "FetchCart",
			call:       func() (*RemoteCart, error) { return client.FetchCart(ctx) },
			wantMethod: http.MethodGet,
			wantPath:   "/api/v1/cart",
		},
		{
			name: "AddItem",
			call: func() (*RemoteCart, error) {
				return client.AddItem(ctx, "p1", 2, AddOptions{SelectedVariant: "Red", CardMessage: "hi"})
			},
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/cart/add",
			wantBody: map[string]interface{}{
				"productId": "p1", "quantity": float64(2), "selectedVariant": "Red",
				"deliveryDate": "", "deliveryTime": "", "cardMessage": "hi", "senderInfo": "",
			},
		},
		{
			name:       "UpdateItem",
			call:       func() (*RemoteCart, error) { return client.UpdateItem(ctx, "c-1", 5) },
			wantMethod: http.MethodPut,
			wantPath:   "/api/v1/cart/update",
			wantBody:   map[string]interface{}{"cartItemId": "c-1", "quantity": float64(5)},
		},
		{
			name:       "RemoveItem",
			call:       func() (*RemoteCart, error) { return client.RemoveItem(ctx, "c-1") },
			wantMethod: http.MethodDelete,
			wantPath:   "/api/v1/cart/remove/c-1",
		},
		{
			name:       "RemoveByProduct with variant",
			call:       func() (*RemoteCart, error) { return client.RemoveByProduct(ctx, "p1", "Deep Red") },
			wantMethod: http.MethodDelete,
			wantPath:   "/api/v1/cart/remove-product/p1",
			wantQuery:  "variant=Deep+Red",
		},
		{
			name:       "RemoveByProduct without variant",
			call:       func() (*RemoteCart, error) { return client.RemoveByProduct(ctx, "p1", "") },
			wantMethod: http.MethodDelete,
			wantPath:   "/api/v1/cart/remove-product/p1",
			wantQuery:  "variant=",
		},
		{
			name:       "ClearCart",
			call:       func() (*RemoteCart, error) { return client.ClearCart(ctx) },
			wantMethod: http.MethodDelete,
			wantPath:   "/api/v1/cart/clear",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(requests.all())
			rc, err := tt.call()
			require.NoError(t, err)
			require.NotNil(t, rc)
			assert.Len(t, rc.Items, 1)

			all := requests.all()
			require.Len(t, all, before+1)
			got := all[before]
			assert.Equal(t, tt.wantMethod, got.Method)
			assert.Equal(t, tt.wantPath, got.Path)
			assert.Equal(t, tt.wantQuery, got.Query)
			assert.Equal(t, "Bearer tok", got.Auth)
			if tt.wantBody != nil {
				assert.Equal(t, tt.wantBody, got.Body)
			}
		})
	}
}

func TestClient_SyncCartBody(t *testing.T) {
	srv, requests := newTestServer(t, http.StatusOK, cartBody)
	client := newTestClient(t, srv.URL, "tok")

	_, err := client.SyncCart(context.Background(), cart.Snapshot{
		{ProductID: "p1", Quantity: 2, SelectedVariant: "Red", Price: 80, DeliveryDate: "2026-10-20", SenderInfo: "Sam"},
	})
	require.NoError(t, err)

	all := requests.all()
	require.Len(t, all, 1)
	items := all[0].Body["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, map[string]interface{}{
		"productId": "p1", "quantity": float64(2), "selectedVariant": "Red", "price": float64(80),
		"deliveryDate": "2026-10-20", "deliveryTime": "", "cardMessage": "", "senderInfo": "Sam",
	}, items[0])
}

func TestClient_NoCredentialSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	srv, requests := newTestServer(t, http.StatusOK, cartBody)
	client := newTestClient(t, srv.URL, "")

	_, err := client.FetchCart(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = client.SyncCart(ctx, cart.Snapshot{{ProductID: "p1", Quantity: 1}})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = client.Count(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	assert.Empty(t, requests.all())
}

func TestClient_ErrorResponses(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{name: "Message is surfaced", status: http.StatusNotFound, body: `{"error":"RESOURCE_NOT_FOUND","message":"Product not found"}`, wantMessage: "Product not found"},
		{name: "Unparseable body falls back", status: http.StatusBadGateway, body: `<html>bad gateway</html>`, wantMessage: genericFailureMessage},
		{name: "Empty message falls back", status: http.StatusInternalServerError, body: `{}`, wantMessage: genericFailureMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.status, tt.body)
			client := newTestClient(t, srv.URL, "tok")

			_, err := client.FetchCart(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRemote)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
		})
	}
}

func TestClient_MalformedSuccessBody(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"data":`)
	client := newTestClient(t, srv.URL, "tok")

	_, err := client.FetchCart(context.Background())
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClient_SuccessWithoutCart(t *testing.T) {
	for _, body := range []string{`{"data":null}`, `{}`, `{"message":"ok"}`} {
		t.Run(body, func(t *testing.T) {
			srv, _ := newTestServer(t, http.StatusOK, body)
			client := newTestClient(t, srv.URL, "tok")

			rc, err := client.AddItem(context.Background(), "p1", 1, AddOptions{})
			assert.ErrorIs(t, err, ErrMalformedResponse)
			assert.Nil(t, rc)

			rc, err = client.FetchCart(context.Background())
			assert.ErrorIs(t, err, ErrMalformedResponse)
			assert.Nil(t, rc)
		})
	}

	srv, _ := newTestServer(t, http.StatusOK, `{"data":{}}`)
	client := newTestClient(t, srv.URL, "tok")
	rc, err := client.FetchCart(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rc.Items, "an explicit empty cart is still a cart")
}

func TestClient_NetworkFailure(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, cartBody)
	client := newTestClient(t, srv.URL, "tok")
	srv.Close()

	_, err := client.FetchCart(context.Background())
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestClient_CountAndProduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/cart/count":
			w.Write([]byte(`{"data":{"count":7}}`))
		case "/api/v1/products/p9":
			assert.Empty(t, r.Header.Get("Authorization"))
			w.Write([]byte(`{"data":{"_id":"p9","name":"Peonies","salePrice":"55"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	counting := newTestClient(t, srv.URL, "tok")
	n, err := counting.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	anonymous := newTestClient(t, srv.URL, "")
	raw, err := anonymous.FetchProduct(context.Background(), "p9")
	require.NoError(t, err)
	p := cart.NormalizeProduct(raw)
	assert.Equal(t, "p9", p.ID)
	assert.Equal(t, 55.0, p.FinalPrice)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{}, staticToken(""))
	assert.Error(t, err)
}
