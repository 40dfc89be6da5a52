// Package leader provides distributed leader election backed by Redis
package leader

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"go.povoice.tech/internal/common/metrics"
)

// ElectorConfig holds configuration for leader election
type ElectorConfig struct {
	// InstanceID uniquely identifies this instance (defaults to hostname)
	InstanceID string

	// LockName is the name of the lock to acquire (e.g., "dispatcher-leader")
	LockName string

	// TTL is how long the lock is valid before expiring (default: 30s)
	TTL time.Duration

	// RefreshInterval is how often to refresh the lock while primary (default: 10s)
	RefreshInterval time.Duration
}

// DefaultElectorConfig returns sensible defaults
func DefaultElectorConfig(lockName string) *ElectorConfig {
	instanceID, _ := os.Hostname()
	if instanceID == "" {
		instanceID = "instance-" + time.Now().Format("20060102150405")
	}

	return &ElectorConfig{
		InstanceID:      instanceID,
		LockName:        lockName,
		TTL:             30 * time.Second,
		RefreshInterval: 10 * time.Second,
	}
}

// Elector provides distributed leader election using Redis.
//
// The lock uses the SET NX EX pattern for atomic acquisition:
//
//	SET lockName instanceId NX EX ttlSeconds
//
// If the lock is acquired, the elector becomes primary and refreshes
// the lock periodically to maintain leadership. Only the primary runs
// the dispatch and callback loops, so two instances never pop the same
// batch.
type Elector struct {
	client           redis.UniversalClient
	config           *ElectorConfig
	isPrimary        atomic.Bool
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	onBecomeLeader   func()
	onLoseLeadership func()
}

// NewElector creates a new Redis-based leader elector
func NewElector(client redis.UniversalClient, config *ElectorConfig) *Elector {
	if config == nil {
		config = DefaultElectorConfig("default-leader")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Elector{
		client: client,
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}
}

// OnBecomeLeader sets a callback for when this instance becomes leader
func (e *Elector) OnBecomeLeader(fn func()) {
	e.onBecomeLeader = fn
}

// OnLoseLeadership sets a callback for when this instance loses leadership
func (e *Elector) OnLoseLeadership(fn func()) {
	e.onLoseLeadership = fn
}

// Start begins the leader election process
func (e *Elector) Start(ctx context.Context) error {
	e.wg.Add(1)
	go e.electionLoop()

	slog.Info("Leader election started",
		"instanceId", e.config.InstanceID,
		"lockName", e.config.LockName,
		"ttl", e.config.TTL,
		"refreshInterval", e.config.RefreshInterval)

	return nil
}

// Stop stops the leader election and releases the lock if held
func (e *Elector) Stop() {
	e.cancel()
	e.wg.Wait()

	if e.isPrimary.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.Release(ctx)
	}

	slog.Info("Leader election stopped", "instanceId", e.config.InstanceID)
}

// IsPrimary returns true if this instance is currently the leader
func (e *Elector) IsPrimary() bool {
	return e.isPrimary.Load()
}

// InstanceID returns the instance ID of this elector
func (e *Elector) InstanceID() string {
	return e.config.InstanceID
}

// electionLoop continuously attempts to acquire/refresh the lock
func (e *Elector) electionLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.RefreshInterval)
	defer ticker.Stop()

	e.tryAcquireOrRefresh()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.tryAcquireOrRefresh()
		}
	}
}

// tryAcquireOrRefresh tries to acquire the lock or refresh it if already held
func (e *Elector) tryAcquireOrRefresh() {
	ctx, cancel := context.WithTimeout(e.ctx, 5*time.Second)
	defer cancel()

	wasPrimary := e.isPrimary.Load()

	if wasPrimary {
		if e.refresh(ctx) {
			return
		}
		// Refresh failed, we lost leadership
		e.isPrimary.Store(false)
		metrics.DispatchLeaderState.Set(0)
		slog.Warn("Lost leadership - refresh failed",
			"instanceId", e.config.InstanceID,
			"lockName", e.config.LockName)
		if e.onLoseLeadership != nil {
			e.onLoseLeadership()
		}
	}

	if e.tryAcquire(ctx) {
		if !wasPrimary {
			slog.Info("Acquired leadership",
				"instanceId", e.config.InstanceID,
				"lockName", e.config.LockName)
			if e.onBecomeLeader != nil {
				e.onBecomeLeader()
			}
		}
		e.isPrimary.Store(true)
		metrics.DispatchLeaderState.Set(1)
	}
}

// tryAcquire attempts to acquire the lock using SET NX EX.
// Returns true if the lock was acquired.
func (e *Elector) tryAcquire(ctx context.Context) bool {
	success, err := e.client.SetNX(ctx, e.config.LockName, e.config.InstanceID, e.config.TTL).Result()
	if err != nil {
		slog.Error("Failed to acquire leader lock",
			"error", err,
			"lockName", e.config.LockName)
		return false
	}

	if success {
		slog.Debug("Acquired leader lock",
			"instanceId", e.config.InstanceID,
			"lockName", e.config.LockName)
		return true
	}

	// Lock exists - check if we own it (could be our old lock after restart)
	owner, err := e.client.Get(ctx, e.config.LockName).Result()
	if err != nil {
		if err != redis.Nil {
			slog.Error("Failed to check lock owner", "error", err)
		}
		return false
	}

	if owner == e.config.InstanceID {
		return e.refresh(ctx)
	}

	slog.Debug("Lock held by another instance",
		"instanceId", e.config.InstanceID,
		"owner", owner,
		"lockName", e.config.LockName)

	return false
}

// refreshScript atomically extends the TTL only while we own the lock
var refreshScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("expire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// refresh updates the expiration time on a lock we hold.
// Returns true if the refresh succeeded.
func (e *Elector) refresh(ctx context.Context) bool {
	ttlSeconds := int(e.config.TTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	result, err := refreshScript.Run(ctx, e.client, []string{e.config.LockName}, e.config.InstanceID, ttlSeconds).Int()
	if err != nil {
		slog.Error("Failed to refresh leader lock",
			"error", err,
			"lockName", e.config.LockName)
		return false
	}

	if result == 0 {
		slog.Debug("Lock no longer held by this instance",
			"instanceId", e.config.InstanceID,
			"lockName", e.config.LockName)
		return false
	}

	return true
}

// releaseScript atomically deletes the lock only while we own it
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release explicitly releases the lock
func (e *Elector) Release(ctx context.Context) {
	result, err := releaseScript.Run(ctx, e.client, []string{e.config.LockName}, e.config.InstanceID).Int()
	if err != nil {
		slog.Error("Failed to release leader lock",
			"error", err,
			"lockName", e.config.LockName)
		return
	}

	if result > 0 {
		slog.Info("Released leader lock",
			"instanceId", e.config.InstanceID,
			"lockName", e.config.LockName)
	}

	e.isPrimary.Store(false)
	metrics.DispatchLeaderState.Set(0)
}

// GetCurrentLeader returns the instance ID of the current leader.
// Returns empty string if no leader.
func (e *Elector) GetCurrentLeader(ctx context.Context) (string, error) {
	owner, err := e.client.Get(ctx, e.config.LockName).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return owner, nil
}
