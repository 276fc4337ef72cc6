package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

const checkTimeout = 2 * time.Second

// Check reports whether a dependency is usable. A nil error means healthy.
type Check func(ctx context.Context) error

// Manager tracks the readiness flag flipped during startup and shutdown
// together with the dependency probes behind /readyz.
type Manager struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks map[string]Check
}

func NewManager(initialReady bool) *Manager {
	m := &Manager{checks: make(map[string]Check)}
	m.ready.Store(initialReady)
	return m
}

func (m *Manager) AddCheck(name string, check Check) {
	m.mu.Lock()
	m.checks[name] = check
	m.mu.Unlock()
}

func (m *Manager) SetReady(ready bool) { m.ready.Store(ready) }

func (m *Manager) IsReady() bool { return m.ready.Load() }

// Probe runs every check in parallel and returns the failures keyed by name.
func (m *Manager) Probe(ctx context.Context) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		wg     sync.WaitGroup
		lock   sync.Mutex
		failed = make(map[string]string)
	)
	for name, check := range m.checks {
		wg.Go(func() {
			if err := check(ctx); err != nil {
				lock.Lock()
				failed[name] = err.Error()
				lock.Unlock()
			}
		})
	}
	wg.Wait()
	return failed
}

func LivenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ReadinessHandler(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.IsReady() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "shutting down"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
		defer cancel()

		if failed := m.Probe(ctx); len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": failed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
