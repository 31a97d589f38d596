package health_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/BrandonDHaskell/refectory/internal/health"
)

func TestMonitor_Transitions(t *testing.T) {
	m := health.NewMonitor(10)
	assert.Equal(t, health.StatusHealthy, m.Status())
	assert.Nil(t, m.Snapshot().LastUpdate)

	m.Warn("file_check", errors.New("permission denied"))
	assert.Equal(t, health.StatusWarning, m.Status())

	m.Fail("update_process", errors.New("disk full"))
	assert.Equal(t, health.StatusError, m.Status())

	// A warning never hides an error.
	m.Warn("file_check", errors.New("again"))
	assert.Equal(t, health.StatusError, m.Status())

	m.SetDocument("2026-02-15.xlsx")
	m.RecordSuccess()
	snap := m.Snapshot()
	assert.Equal(t, health.StatusHealthy, snap.Status)
	assert.Equal(t, "2026-02-15.xlsx", snap.LastDocument)
	require.NotNil(t, snap.LastUpdate)
	assert.Len(t, snap.RecentErrors, 3, "errors are kept after recovery")
}

func TestMonitor_ErrorListBounded(t *testing.T) {
	m := health.NewMonitor(3)
	for i := 0; i < 5; i++ {
		m.Warn("file_check", fmt.Errorf("e%d", i))
	}
	errs := m.Snapshot().RecentErrors
	require.Len(t, errs, 3)
	assert.Equal(t, "e2", errs[0].Message)
	assert.Equal(t, "e4", errs[2].Message)
}

func TestMonitor_OnChangeFiresOncePerTransition(t *testing.T) {
	m := health.NewMonitor(5)
	var seen []health.Status
	m.OnChange(func(s health.Status) { seen = append(seen, s) })

	m.Warn("a", nil)
	m.Warn("a", nil)
	m.RecordSuccess()
	m.RecordSuccess()

	assert.Equal(t, []health.Status{health.StatusWarning, health.StatusHealthy}, seen)
}

func TestGRPCBridge_ReflectsMonitor(t *testing.T) {
	m := health.NewMonitor(5)
	bridge := health.NewGRPCBridge(m)

	lis := bufconn.Listen(1 << 16)
	srv := grpc.NewServer()
	bridge.Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: health.ServiceName})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())

	m.Fail("update_process", errors.New("boom"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())

	m.RecordSuccess()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())
}

func TestMonitor_ListenerAddedDuringNotifyNotCalledForThatChange(t *testing.T) {
	m := health.NewMonitor(5)
	var late []health.Status
	var first []health.Status
	m.OnChange(func(s health.Status) {
		first = append(first, s)
		if len(first) == 1 {
			m.OnChange(func(s health.Status) { late = append(late, s) })
		}
	})

	m.Fail("update_process", nil)
	m.RecordSuccess()

	assert.Equal(t, []health.Status{health.StatusError, health.StatusHealthy}, first)
	assert.Equal(t, []health.Status{health.StatusHealthy}, late)
}
