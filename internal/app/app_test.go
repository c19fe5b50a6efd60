package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/newmedica/storefront/internal/paymentproxy"
)

func TestRun_ServesProxyAndHealthUntilCancelled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	cfg.MetricsAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	cfg.GRPCAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	proxyURL := "http://" + cfg.HTTPAddr + paymentproxy.SessionsPath
	require.Eventually(t, func() bool {
		resp, err := http.Post(proxyURL, "application/json", bytes.NewBufferString(`{"items":[]}`))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusBadRequest
	}, 3*time.Second, 50*time.Millisecond, "proxy must reject empty carts")

	conn, err := grpc.NewClient(cfg.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	checkCtx, checkCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer checkCancel()
	resp, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{Service: paymentproxy.ServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	ready, err := http.Get("http://" + cfg.MetricsAddr + "/readyz")
	require.NoError(t, err)
	ready.Body.Close()
	require.Equal(t, http.StatusOK, ready.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.True(t, errors.Is(err, context.Canceled), "unexpected error: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestRun_InvalidHTTPAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:-1"
	cfg.MetricsAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	cfg.GRPCAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))

	err := Run(context.Background(), cfg)
	require.Error(t, err)
}
