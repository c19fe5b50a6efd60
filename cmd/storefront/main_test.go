package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/newmedica/storefront/internal/app"
)

const cliToken = "cli-token"

type cliBackend struct {
	mu     sync.Mutex
	orders []map[string]any
}

func (b *cliBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("password") != "secret" {
			respond(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect email or password"})
			return
		}
		respond(w, http.StatusOK, map[string]string{"access_token": cliToken, "token_type": "bearer"})
	})
	mux.HandleFunc("GET /api/v1/users/me", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, map[string]any{
			"id": "user-7", "email": "nurse@newmedica.test", "firstName": "Mei", "lastName": "Tan", "userType": "Basic",
		})
	})
	mux.HandleFunc("GET /api/v1/cart", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, map[string]any{
			"id": "cart-7",
			"items": []map[string]any{{
				"id": "item-1", "product_id": "p-1", "quantity": 3,
				"product": map[string]any{"id": "p-1", "name": "Syringe", "price": "4.20"},
			}},
			"subtotal": "12.60", "discount": "0", "shipping": "0", "total": "12.60",
		})
	})
	mux.HandleFunc("GET /api/v1/users/me/addresses", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, []map[string]any{{
			"id": "addr-1", "first_name": "Mei", "last_name": "Tan", "phone": "0123456789",
			"address1": "1 Jalan Ampang", "city": "Kuala Lumpur", "state": "Kuala Lumpur",
			"postcode": "50450", "country": "Malaysia", "is_primary": true,
		}})
	})
	mux.HandleFunc("POST /api/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.orders = append(b.orders, body)
		b.mu.Unlock()
		respond(w, http.StatusCreated, map[string]any{
			"id": "order-77", "payment_status": "pending", "payment_method": body["payment_method"],
			"subtotal_amount": "12.60", "discount_amount": "0", "shipping_amount": "0", "total_amount": "12.60",
		})
	})
	return mux
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func withBackend(t *testing.T) *cliBackend {
	t.Helper()

	backend := &cliBackend{}
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	original := loadConfig
	t.Cleanup(func() { loadConfig = original })
	loadConfig = func() (app.Config, error) {
		cfg := app.DefaultConfig()
		cfg.BackendURL = srv.URL
		cfg.PaymentProxyURL = srv.URL
		cfg.BackendRetries = 1
		cfg.LogLevel = "error"
		return cfg, nil
	}
	return backend
}

func envWith(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

var credentials = envWith(map[string]string{envEmail: "nurse@newmedica.test", envPassword: "secret"})

func TestRun_Usage(t *testing.T) {
	var stderr bytes.Buffer
	require.Equal(t, 2, run(context.Background(), nil, envWith(nil), &bytes.Buffer{}, &stderr))
	require.Contains(t, stderr.String(), "usage: storefront")
}

func TestRun_UnknownCommand(t *testing.T) {
	withBackend(t)

	var stderr bytes.Buffer
	require.Equal(t, 2, run(context.Background(), []string{"teleport"}, credentials, &bytes.Buffer{}, &stderr))
}

func TestRun_RequiresSession(t *testing.T) {
	withBackend(t)

	var stderr bytes.Buffer
	code := run(context.Background(), []string{"whoami"}, envWith(nil), &bytes.Buffer{}, &stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "not logged in")
}

func TestRun_CartShow(t *testing.T) {
	withBackend(t)

	var stdout bytes.Buffer
	code := run(context.Background(), []string{"cart", "show"}, credentials, &stdout, &bytes.Buffer{})
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "Syringe")
	require.Contains(t, stdout.String(), "total 12.60")
}

func TestRun_DirectCheckoutNavigatesToSuccessPage(t *testing.T) {
	backend := withBackend(t)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"checkout", "-method", "bank_transfer"}, credentials, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	require.Contains(t, stdout.String(), "open http://localhost:3000/orders/success?order_id=order-77")
	require.Contains(t, stdout.String(), "order order-77 total 12.60")

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.orders, 1)
	require.Equal(t, "bank_transfer", backend.orders[0]["payment_method"])
	require.Equal(t, "nurse@newmedica.test", backend.orders[0]["contact_email"])
}

func TestRun_CompleteWithOrderIDNeedsNoLogin(t *testing.T) {
	withBackend(t)

	var stdout bytes.Buffer
	code := run(context.Background(), []string{"complete", "-order-id", "order-77"}, envWith(nil), &stdout, &bytes.Buffer{})
	require.Equal(t, 0, code)
	require.Equal(t, "order order-77 confirmed\n", stdout.String())
}

func TestRun_CompleteWithSessionRequiresLogin(t *testing.T) {
	withBackend(t)

	var stderr bytes.Buffer
	code := run(context.Background(), []string{"complete", "-session-id", "cs_1"}, envWith(nil), &bytes.Buffer{}, &stderr)
	require.Equal(t, 1, code)
	require.True(t, strings.Contains(stderr.String(), "logged in"), stderr.String())
}
