package testutils

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// GetFreePort returns a free TCP port on the specified host.
func GetFreePort(t *testing.T, host string) int {
	t.Helper()

	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	require.NoError(t, err, "Setup: failed to listen on tcp")
	defer ln.Close()
	addr, ok := ln.Addr().(*net.TCPAddr)
	require.True(t, ok, "Setup: expected TCPAddr")
	return addr.Port
}

// WaitForHTTP polls url until it answers with wantCode, or fails the test after timeout.
func WaitForHTTP(t *testing.T, url string, wantCode int, timeout time.Duration) {
	t.Helper()

	client := http.Client{Timeout: time.Second}
	require.Eventually(t, func() bool {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == wantCode
	}, timeout, 50*time.Millisecond, fmt.Sprintf("%s did not answer %d in time", url, wantCode))
}
