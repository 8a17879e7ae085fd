package server

import (
	"context"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/jathurchan/bgerr/engine"
	"github.com/jathurchan/bgerr/errhandler"
	"github.com/jathurchan/bgerr/types"
)

const engineService = "bgerr.Engine"

type spaceFunc = errhandler.SpaceMonitorFunc

func startTestServer(t *testing.T, space errhandler.SpaceMonitor) (*engine.Engine, *Server, healthpb.HealthClient) {
	t.Helper()

	hs := health.NewServer()
	reporter := NewHealthReporter(hs, engineService, nil)

	opts := errhandler.DefaultOptions()
	opts.BackoffBase = time.Millisecond
	opts.BackoffCap = 4 * time.Millisecond
	eng, err := engine.Open(engine.Config{
		DataDir:           t.TempDir(),
		MaxBackgroundJobs: 1,
		Recovery:          opts,
	}, engine.Dependencies{
		SpaceMonitor: space,
		Listeners:    []errhandler.EventListener{reporter},
	})
	require.NoError(t, err)

	srv := New(Config{RetryDelay: time.Second}, eng, hs, nil)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
		_ = eng.Close()
	})
	return eng, srv, healthpb.NewHealthClient(conn)
}

func remoteHealth(t *testing.T, c healthpb.HealthClient) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: engineService})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestServer_HealthTracksRecovery(t *testing.T) {
	enough := make(chan struct{})
	space := spaceFunc(func(context.Context) (bool, error) {
		select {
		case <-enough:
			return true, nil
		default:
			return false, nil
		}
	})
	eng, _, client := startTestServer(t, space)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, remoteHealth(t, client))

	err := eng.Write(context.Background(), func(context.Context) error {
		return &net.OpError{Op: "write", Err: syscall.ENOSPC}
	})
	require.Error(t, err)
	assert.Equal(t, types.SeverityHard, eng.Status().BackgroundError.Severity)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, remoteHealth(t, client))

	close(enough)
	require.Eventually(t, func() bool {
		return remoteHealth(t, client) == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 5*time.Millisecond)
	assert.NoError(t, eng.Admit())
}

func TestServer_Lifecycle(t *testing.T) {
	_, srv, client := startTestServer(t, nil)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, remoteHealth(t, client))

	assert.ErrorIs(t, srv.Serve(bufconn.Listen(1024)), ErrServerAlreadyStarted)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	assert.NoError(t, srv.Stop(ctx))
	assert.ErrorIs(t, srv.Serve(bufconn.Listen(1024)), ErrServerStopped)
}
