package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/newmedica/storefront/internal/backend"
	"github.com/newmedica/storefront/internal/domain"
)

type staticTokens string

func (s staticTokens) Token(context.Context) (string, error) {
	if s == "" {
		return "", domain.ErrAuthTokenMissing
	}
	return string(s), nil
}

func newTestClient(t *testing.T, handler http.Handler, token string) *backend.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := backend.NewClient(srv.URL, staticTokens(token),
		backend.WithHTTPClient(srv.Client()),
		backend.WithRetry(backend.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}),
	)
	require.NoError(t, err)
	return client
}

func TestNewClient_RejectsRelativeURL(t *testing.T) {
	t.Parallel()

	_, err := backend.NewClient("/api", nil)
	require.Error(t, err)
}

func TestClient_GetCart_SendsBearerToken(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/v1/cart", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.NotEmpty(t, r.Header.Get("X-Request-ID"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       "cart-1",
			"user_id":  "user-1",
			"items":    []map[string]any{{"id": "item-1", "product_id": "p-1", "quantity": 2, "product": map[string]any{"id": "p-1", "name": "Mask", "price": "12.50"}}},
			"subtotal": "25.00",
			"discount": "0",
			"shipping": "5.00",
			"total":    "30.00",
		})
	}), "tok-1")

	cart, err := client.GetCart(context.Background())
	require.NoError(t, err)
	require.Equal(t, "cart-1", cart.ID)
	require.Len(t, cart.Items, 1)
	require.True(t, cart.Total.Equal(decimal.RequireFromString("30")))
	require.True(t, cart.Items[0].Product.Price.Equal(decimal.RequireFromString("12.5")))
}

func TestClient_MissingTokenFailsWithoutRequest(t *testing.T) {
	t.Parallel()

	var hits int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}), "")

	_, err := client.GetCart(context.Background())
	require.ErrorIs(t, err, domain.ErrAuthTokenMissing)
	require.Zero(t, atomic.LoadInt32(&hits))
}

func TestClient_GetCart_NotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Cart not found"}`)
	}), "tok")

	_, err := client.GetCart(context.Background())
	require.ErrorIs(t, err, domain.ErrCartNotFound)
	require.Equal(t, http.StatusNotFound, backend.StatusCode(err))
	require.Equal(t, "Cart not found", backend.DetailMessage(err, "fallback"))
}

func TestClient_RetriesSafeReadsOnServerError(t *testing.T) {
	t.Parallel()

	var hits int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `[{"id":"o-1","payment_status":"paid","items":[]}]`)
	}), "tok")

	orders, err := client.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, domain.PaymentStatusPaid, orders[0].PaymentStatus)
	require.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestClient_VerifyPaymentIsNotRetried(t *testing.T) {
	t.Parallel()

	var hits int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		require.Equal(t, "/api/v1/orders/verify-payment/cs_test_1", r.URL.Path)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"detail":"Payment not completed"}`)
	}), "tok")

	_, err := client.VerifyPayment(context.Background(), "cs_test_1")
	require.ErrorIs(t, err, domain.ErrPaymentVerifyFailed)
	require.Equal(t, "Payment not completed", backend.DetailMessage(err, ""))
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestClient_AddCartItem_RejectsNonPositiveQuantity(t *testing.T) {
	t.Parallel()

	var hits int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}), "tok")

	err := client.AddCartItem(context.Background(), "p-1", 0)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)
	err = client.UpdateCartItem(context.Background(), "item-1", -1)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)
	require.Zero(t, atomic.LoadInt32(&hits))
}

func TestClient_AddCartItem_Body(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/cart/items", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "p-9", body["product_id"])
		require.EqualValues(t, 3, body["quantity"])
		w.WriteHeader(http.StatusCreated)
	}), "tok")

	require.NoError(t, client.AddCartItem(context.Background(), "p-9", 3))
}

func TestClient_CreateOrder_ForwardsIdempotencyKey(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "submit-key-1", r.Header.Get(backend.HeaderIdempotencyKey))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "stripe", body["payment_method"])
		require.Equal(t, false, body["clear_cart"])

		_, _ = io.WriteString(w, `{"id":"order-1","payment_status":"pending","total_amount":"99.90","items":[]}`)
	}), "tok")

	clearCart := false
	ctx := backend.WithIdempotencyKey(context.Background(), "submit-key-1")
	order, err := client.CreateOrder(ctx, domain.OrderRequest{
		PaymentMethod: domain.PaymentMethodStripe,
		ClearCart:     &clearCart,
	})
	require.NoError(t, err)
	require.Equal(t, "order-1", order.ID)
	require.True(t, order.TotalAmount.Equal(decimal.RequireFromString("99.9")))
}

func TestClient_CreateOrder_ValidationDetailList(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"detail":[{"loc":["body","contact_email"],"msg":"field required"}]}`)
	}), "tok")

	_, err := client.CreateOrder(context.Background(), domain.OrderRequest{PaymentMethod: domain.PaymentMethodFPX})
	require.ErrorIs(t, err, domain.ErrOrderCreateFailed)
	require.Equal(t, "contact_email: field required", backend.DetailMessage(err, ""))
}

func TestClient_Login_FormEncoded(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			require.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
			require.NoError(t, r.ParseForm())
			if r.PostForm.Get("password") != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"detail":"Incorrect email or password"}`)
				return
			}
			require.Equal(t, "jane@example.com", r.PostForm.Get("username"))
			_, _ = io.WriteString(w, `{"access_token":"jwt-1","token_type":"bearer"}`)
		case "/api/v1/users/me":
			require.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
			_, _ = io.WriteString(w, `{"id":"u-1","email":"jane@example.com","firstName":"Jane","userType":"basic"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}), "")

	token, err := client.Login(context.Background(), " jane@example.com ", "secret")
	require.NoError(t, err)
	require.Equal(t, "jwt-1", token)

	user, err := client.Me(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "Jane", user.FirstName)

	_, err = client.Login(context.Background(), "jane@example.com", "wrong")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	require.False(t, errors.Is(err, domain.ErrUnauthorized))
	require.Equal(t, "Incorrect email or password", backend.DetailMessage(err, ""))
}

func TestClient_ListProducts_Query(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		require.Equal(t, "masks", r.URL.Query().Get("category"))
		require.Equal(t, "n95", r.URL.Query().Get("search"))
		require.Equal(t, "price_asc", r.URL.Query().Get("sort_by"))
		_, _ = io.WriteString(w, `[{"id":"p-1","name":"N95","price":"4.20"}]`)
	}), "")

	products, err := client.ListProducts(context.Background(), domain.ProductQuery{Category: "masks", Search: "n95", SortBy: "price_asc"})
	require.NoError(t, err)
	require.Len(t, products, 1)
}

func TestClient_SetPrimaryAddress(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/users/me/addresses/a-2/set-primary", r.URL.Path)
		_, _ = io.WriteString(w, `{"id":"a-2","is_primary":true}`)
	}), "tok")

	address, err := client.SetPrimaryAddress(context.Background(), "a-2")
	require.NoError(t, err)
	require.True(t, address.IsPrimary)
}

func TestClient_EscapesIDsOnce(t *testing.T) {
	t.Parallel()

	var seen []string
	var mu sync.Mutex
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.EscapedPath())
		mu.Unlock()
		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			_, _ = io.WriteString(w, `{"payment_url":"https://pay.test/x"}`)
		}
	}), "tok")

	require.NoError(t, client.RemoveCartItem(context.Background(), "a b/c"))
	_, err := client.RetryPayment(context.Background(), "order 1")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{
		"DELETE /api/v1/cart/items/a%20b%2Fc",
		"POST /api/v1/orders/order%201/retry-payment",
	}, seen)
}
