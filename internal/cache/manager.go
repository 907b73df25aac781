package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/2beens/gymsheets/internal/store"
	"github.com/2beens/gymsheets/internal/telemetry/metrics"
	"github.com/2beens/gymsheets/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix    = "gymsheets-cache||"
	cacheVersion = "v1"

	// RefreshInterval is the cadence of the background fill-if-absent loop.
	RefreshInterval = 2 * time.Minute
)

type Type string

const (
	TypeSessions  Type = "sessions"
	TypeExercises Type = "exercises"
	TypePlans     Type = "plans"
	TypeConfig    Type = "config"
	TypeUserInfo  Type = "user-info"
)

// typeExpiry holds per-type entry lifetimes. Session data changes the most,
// so it goes stale the fastest.
var typeExpiry = map[Type]time.Duration{
	TypeSessions:  5 * time.Minute,
	TypeExercises: 30 * time.Minute,
	TypePlans:     30 * time.Minute,
	TypeConfig:    60 * time.Minute,
	TypeUserInfo:  60 * time.Minute,
}

type entry struct {
	Version string          `json:"version"`
	Type    Type            `json:"type"`
	SavedAt time.Time       `json:"savedAt"`
	Value   json.RawMessage `json:"value"`
}

// Syncer is the cache-facing side of the tracker: it executes queued sync
// operations and refills absent cache entries from the remote sheet.
type Syncer interface {
	ProcessSyncOp(ctx context.Context, op Operation) error
	RefreshCache(ctx context.Context, missing []Type) error
	IsAuthenticated(ctx context.Context) bool
}

// Manager is a best-effort expiring cache over the local store, plus the
// FIFO sync queue for remote pushes that failed or happened offline.
type Manager struct {
	kv             store.KVStore
	syncer         Syncer
	metricsManager *metrics.Manager

	online  atomic.Bool
	syncing atomic.Bool

	// concurrent drain requests collapse into one run over a snapshot
	syncGroup singleflight.Group
	queue     *opQueue

	// injectable for unit testing
	NowFunc func() time.Time
}

func NewManager(kv store.KVStore, metricsManager *metrics.Manager) *Manager {
	m := &Manager{
		kv:             kv,
		metricsManager: metricsManager,
		queue:          newOpQueue(),
		NowFunc:        time.Now,
	}
	m.online.Store(true)
	return m
}

// SetSyncer breaks the construction cycle: the tracker needs the cache and
// the cache needs the tracker as its syncer.
func (m *Manager) SetSyncer(syncer Syncer) {
	m.syncer = syncer
}

func entryKey(t Type, id string) string {
	key := keyPrefix + cacheVersion + "||" + string(t)
	if id != "" {
		key += "||" + id
	}
	return key
}

// Get returns the cached raw value for the given type and id. An expired hit
// counts as a miss and evicts the entry.
func (m *Manager) Get(ctx context.Context, t Type, id string) (json.RawMessage, bool) {
	raw, err := m.kv.Get(ctx, entryKey(t, id))
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, false
	}
	if err != nil {
		log.Errorf("cache manager, get [%s/%s]: %s", t, id, err)
		return nil, false
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		log.Warnf("cache manager, unparsable entry [%s/%s], evicting: %s", t, id, err)
		m.Remove(ctx, t, id)
		return nil, false
	}

	expiry, ok := typeExpiry[e.Type]
	if !ok || e.Version != cacheVersion {
		m.Remove(ctx, t, id)
		return nil, false
	}
	// an entry is alive strictly before savedAt+expiry, a read at the
	// boundary itself already misses
	if m.NowFunc().Sub(e.SavedAt) >= expiry {
		log.Tracef("cache manager, expired entry [%s/%s], evicting", t, id)
		m.Remove(ctx, t, id)
		return nil, false
	}

	return e.Value, true
}

// GetInto unmarshals a cached value into dst; a miss leaves dst untouched.
func (m *Manager) GetInto(ctx context.Context, t Type, id string, dst any) bool {
	raw, ok := m.Get(ctx, t, id)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		log.Warnf("cache manager, unmarshal entry [%s/%s]: %s", t, id, err)
		m.Remove(ctx, t, id)
		return false
	}
	return true
}

// Set caches the value. On a store quota failure it runs one ClearOldCache
// pass and retries once, then gives up: the cache is best effort and a value
// that did not fit is simply not cached.
func (m *Manager) Set(ctx context.Context, t Type, id string, value any) error {
	valueJson, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	entryJson, err := json.Marshal(entry{
		Version: cacheVersion,
		Type:    t,
		SavedAt: m.NowFunc(),
		Value:   valueJson,
	})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	key := entryKey(t, id)
	err = m.kv.Set(ctx, key, string(entryJson))
	if !errors.Is(err, store.ErrQuotaExceeded) {
		return err
	}

	log.Warnf("cache manager, store quota hit on [%s/%s], clearing old entries", t, id)
	if err := m.ClearOldCache(ctx); err != nil {
		log.Errorf("cache manager, clear old cache: %s", err)
	}

	if err := m.kv.Set(ctx, key, string(entryJson)); errors.Is(err, store.ErrQuotaExceeded) {
		log.Warnf("cache manager, store quota still exceeded, [%s/%s] not cached", t, id)
		return nil
	} else if err != nil {
		return err
	}
	return nil
}

func (m *Manager) Remove(ctx context.Context, t Type, id string) {
	if err := m.kv.Delete(ctx, entryKey(t, id)); err != nil && !errors.Is(err, store.ErrKeyNotFound) {
		log.Errorf("cache manager, remove [%s/%s]: %s", t, id, err)
	}
}

// ClearAll removes every cache entry of the current version. Other keys in
// the shared store (token, sheet ids, snapshots) are untouched.
func (m *Manager) ClearAll(ctx context.Context) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "cache.manager.clearAll")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	keys, err := m.kv.Keys(ctx, keyPrefix+cacheVersion+"||")
	if err != nil {
		return fmt.Errorf("list cache keys: %w", err)
	}

	for _, key := range keys {
		if delErr := m.kv.Delete(ctx, key); delErr != nil && !errors.Is(delErr, store.ErrKeyNotFound) {
			err = multierr.Append(err, fmt.Errorf("delete %q: %w", key, delErr))
		}
	}
	return err
}

// ClearOldCache purges entries from older cache versions, entries past their
// type expiry, and entries that cannot be parsed at all.
func (m *Manager) ClearOldCache(ctx context.Context) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "cache.manager.clearOldCache")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	keys, err := m.kv.Keys(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("list cache keys: %w", err)
	}

	now := m.NowFunc()
	var cleared int
	for _, key := range keys {
		raw, getErr := m.kv.Get(ctx, key)
		if getErr != nil {
			continue
		}

		purge := false
		var e entry
		if unmarshalErr := json.Unmarshal([]byte(raw), &e); unmarshalErr != nil {
			purge = true
		} else if e.Version != cacheVersion {
			purge = true
		} else if expiry, ok := typeExpiry[e.Type]; !ok || now.Sub(e.SavedAt) >= expiry {
			purge = true
		}

		if !purge {
			continue
		}
		if delErr := m.kv.Delete(ctx, key); delErr != nil && !errors.Is(delErr, store.ErrKeyNotFound) {
			err = multierr.Append(err, fmt.Errorf("delete %q: %w", key, delErr))
			continue
		}
		cleared++
	}

	log.Debugf("cache manager, cleared %d old entries", cleared)
	return err
}

// missingTypes returns the types with no cache entry at all, expired or not.
// Used by the background refresh loop: fill-if-absent, never force-refresh.
func (m *Manager) missingTypes(ctx context.Context) []Type {
	var missing []Type
	for t := range typeExpiry {
		// per-id entries (plans) still count as present via prefix scan
		keys, err := m.kv.Keys(ctx, keyPrefix+cacheVersion+"||"+string(t))
		if err != nil {
			log.Errorf("cache manager, list keys for type %s: %s", t, err)
			continue
		}
		if len(keys) == 0 {
			missing = append(missing, t)
		}
	}
	return missing
}

// StartRefreshLoop periodically refills absent cache entries while the
// service is online, authenticated and not mid-sync. Runs until the context
// is cancelled.
func (m *Manager) StartRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debugln("cache manager, refresh loop stopped")
			return
		case <-ticker.C:
			m.refreshTick(ctx)
		}
	}
}

func (m *Manager) refreshTick(ctx context.Context) {
	if !m.online.Load() || m.syncing.Load() {
		return
	}
	if m.syncer == nil || !m.syncer.IsAuthenticated(ctx) {
		return
	}

	missing := m.missingTypes(ctx)
	if len(missing) == 0 {
		return
	}

	log.Tracef("cache manager, refreshing absent types: %v", missing)
	if err := m.syncer.RefreshCache(ctx, missing); err != nil {
		log.Errorf("cache manager, background refresh: %s", err)
	}
}

// SetOnline flips the connectivity flag. Regaining connectivity immediately
// drains the sync queue.
func (m *Manager) SetOnline(ctx context.Context, online bool) {
	wasOnline := m.online.Swap(online)
	if online && !wasOnline {
		log.Infoln("cache manager, back online, draining sync queue")
		if err := m.ProcessSyncQueue(ctx); err != nil {
			log.Errorf("cache manager, drain sync queue: %s", err)
		}
	}
}

func (m *Manager) IsOnline() bool {
	return m.online.Load()
}
