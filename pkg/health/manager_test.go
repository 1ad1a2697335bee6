package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/multibridge/mma/pkg/common"
)

type staticChecker struct {
	name   string
	status common.HealthStatus
}

func (c *staticChecker) HealthCheck(context.Context) *common.ComponentHealth {
	return &common.ComponentHealth{
		Name:      c.name,
		Status:    c.status,
		Timestamp: time.Now(),
	}
}

func TestManagerReadiness(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy with no components", func(t *testing.T) {
		m := NewManager()
		status, components := m.CheckReadiness(ctx)
		assert.Equal(t, common.HealthStatusHealthy, status)
		assert.Empty(t, components)
	})

	t.Run("worst component wins", func(t *testing.T) {
		m := NewManager()
		m.Register(&staticChecker{name: "a", status: common.HealthStatusHealthy})
		m.Register(&staticChecker{name: "b", status: common.HealthStatusDegraded})

		status, components := m.CheckReadiness(ctx)
		assert.Equal(t, common.HealthStatusDegraded, status)
		assert.Len(t, components, 2)

		m.Register(&staticChecker{name: "c", status: common.HealthStatusUnhealthy})
		status, _ = m.CheckReadiness(ctx)
		assert.Equal(t, common.HealthStatusUnhealthy, status)
	})

	t.Run("non-checker components ignored", func(t *testing.T) {
		m := NewManager()
		m.Register("not a checker")
		_, components := m.CheckReadiness(ctx)
		assert.Empty(t, components)
	})
}

func TestHTTPHandlers(t *testing.T) {
	m := NewManager()
	m.Register(&staticChecker{name: "a", status: common.HealthStatusUnhealthy})
	h := NewHTTPHealthServer(m, "0", zap.NewNop().Sugar())

	t.Run("liveness always ok", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.handleLiveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readiness reflects component state", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.handleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "unhealthy")
	})
}
