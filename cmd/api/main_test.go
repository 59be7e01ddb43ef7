package main

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/eventreg-api/internal/domain/entity"
	"github.com/yourusername/eventreg-api/internal/metrics"
	memRepo "github.com/yourusername/eventreg-api/internal/repository/memory"
	"github.com/yourusername/eventreg-api/internal/service"
	"go.uber.org/zap/zaptest"
)

func TestServe_KeepsAttemptLogUntilRequestsFinish(t *testing.T) {
	attempts := memRepo.NewAttemptRepo()
	attemptLog := service.NewAttemptLog(attempts, 0, metrics.New(prometheus.NewRegistry()), nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		attemptLog.Record(entity.AttemptActionRegister, "ivan@example.com", "203.0.113.7", true, "")
		w.WriteHeader(http.StatusOK)
	})}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() {
		served <- serve(ctx, srv, ln, attemptLog, 5*time.Second, zaptest.NewLogger(t))
	}()

	responded := make(chan error, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err == nil {
			resp.Body.Close()
		}
		responded <- err
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("request did not reach the handler")
	}

	// Остановка начинается, пока запрос еще выполняется
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	require.NoError(t, <-responded)
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after shutdown")
	}

	recorded, err := attempts.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recorded, 1, "Запись завершившегося при остановке запроса сохранена")
	assert.Equal(t, "ivan@example.com", recorded[0].Email)
}

func TestServe_StopsWorkersOnCancel(t *testing.T) {
	attemptLog := service.NewAttemptLog(memRepo.NewAttemptRepo(), 0, metrics.New(prometheus.NewRegistry()), nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	stopped := make(chan struct{})
	worker := func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- serve(ctx, &http.Server{Handler: http.NotFoundHandler()}, ln, attemptLog, time.Second, zaptest.NewLogger(t), worker)
	}()

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return")
	}
	_, open := <-stopped
	assert.False(t, open)
}
