package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/2beens/gymsheets/internal/cache"
	"github.com/2beens/gymsheets/internal/sheets"
	"github.com/2beens/gymsheets/internal/store"
	"github.com/2beens/gymsheets/internal/telemetry/metrics"
	"github.com/2beens/gymsheets/internal/telemetry/tracing"
	"github.com/2beens/gymsheets/internal/workout"

	log "github.com/sirupsen/logrus"
)

const (
	snapshotSessionsKey  = "gymsheets-data||sessions"
	snapshotExercisesKey = "gymsheets-data||exercises"
	snapshotPlansKey     = "gymsheets-data||plans"

	userEmailKey     = "gymsheets-config||user-email"
	sheetIDKeyPrefix = "gymsheets-config||sheet-id||"
	// single-global sheet id from before per-account mapping
	legacySheetIDKey = "gymsheets-config||sheet-id"
)

var ErrPlanNotFound = errors.New("plan not found")

type SyncStatus string

const (
	SyncNotConnected SyncStatus = "not-connected"
	SyncSignedIn     SyncStatus = "signed-in"
	SyncConnected    SyncStatus = "connected"
)

type sheetRepo interface {
	ReadSessions(ctx context.Context, spreadsheetID string) ([]workout.Session, error)
	WriteSessions(ctx context.Context, spreadsheetID string, sessions []workout.Session) error
	ReadExerciseList(ctx context.Context, spreadsheetID string) ([]string, error)
	WriteExerciseList(ctx context.Context, spreadsheetID string, names []string) error
	CreateSpreadsheet(ctx context.Context, title string) (string, error)
	Probe(ctx context.Context, spreadsheetID string) error
}

type authChecker interface {
	IsAuthenticated(ctx context.Context) bool
	HandleAuthError(ctx context.Context)
}

// Tracker orchestrates the workout data: local store and cache on one side,
// the remote sheet on the other. The sheet is the source of truth, the local
// side keeps the app usable offline.
type Tracker struct {
	kv               store.KVStore
	cache            *cache.Manager
	sheetRepo        sheetRepo
	authChecker      authChecker
	metricsManager   *metrics.Manager
	spreadsheetTitle string

	signedIn atomic.Bool

	// a slow remote load completing after a newer one started is discarded
	sessionsGen  atomic.Uint64
	exercisesGen atomic.Uint64

	// serializes local mutations
	mu sync.Mutex
}

func New(
	kv store.KVStore,
	cacheManager *cache.Manager,
	sheetRepo sheetRepo,
	metricsManager *metrics.Manager,
	spreadsheetTitle string,
) *Tracker {
	return &Tracker{
		kv:               kv,
		cache:            cacheManager,
		sheetRepo:        sheetRepo,
		metricsManager:   metricsManager,
		spreadsheetTitle: spreadsheetTitle,
	}
}

// SetAuthChecker breaks the construction cycle with the auth manager, which
// in turn gets the tracker as its consumer.
func (t *Tracker) SetAuthChecker(a authChecker) {
	t.authChecker = a
}

// SetSignedIn implements the auth consumer side.
func (t *Tracker) SetSignedIn(signedIn bool) {
	t.signedIn.Store(signedIn)
	log.Debugf("tracker, signed in: %t", signedIn)
}

// ClearCache implements the auth consumer side.
func (t *Tracker) ClearCache(ctx context.Context) {
	if err := t.cache.ClearAll(ctx); err != nil {
		log.Errorf("tracker, clear cache: %s", err)
	}
}

// IsAuthenticated implements the cache syncer side.
func (t *Tracker) IsAuthenticated(ctx context.Context) bool {
	return t.authChecker != nil && t.authChecker.IsAuthenticated(ctx)
}

func (t *Tracker) connected(ctx context.Context) (string, bool) {
	if !t.signedIn.Load() {
		return "", false
	}
	sheetID := t.SheetID(ctx)
	return sheetID, sheetID != ""
}

// SyncStatus derives the connection state from the signed-in flag and the
// stored sheet id.
func (t *Tracker) SyncStatus(ctx context.Context) SyncStatus {
	if !t.signedIn.Load() {
		return SyncNotConnected
	}
	if t.SheetID(ctx) == "" {
		return SyncSignedIn
	}
	return SyncConnected
}

// SheetID returns the sheet id stored for the signed-in account, falling
// back to the legacy single-global mapping, or "" when none is known.
func (t *Tracker) SheetID(ctx context.Context) string {
	if email := t.userEmail(ctx); email != "" {
		if id, err := t.kv.Get(ctx, sheetIDKeyPrefix+email); err == nil && id != "" {
			return id
		}
	}
	if id, err := t.kv.Get(ctx, legacySheetIDKey); err == nil {
		return id
	}
	return ""
}

func (t *Tracker) setSheetID(ctx context.Context, sheetID string) error {
	key := legacySheetIDKey
	if email := t.userEmail(ctx); email != "" {
		key = sheetIDKeyPrefix + email
	}
	return t.kv.Set(ctx, key, sheetID)
}

func (t *Tracker) clearSheetID(ctx context.Context) {
	if email := t.userEmail(ctx); email != "" {
		if err := t.kv.Delete(ctx, sheetIDKeyPrefix+email); err != nil && !errors.Is(err, store.ErrKeyNotFound) {
			log.Errorf("tracker, clear sheet id: %s", err)
		}
	}
	if err := t.kv.Delete(ctx, legacySheetIDKey); err != nil && !errors.Is(err, store.ErrKeyNotFound) {
		log.Errorf("tracker, clear legacy sheet id: %s", err)
	}
}

func (t *Tracker) userEmail(ctx context.Context) string {
	email, err := t.kv.Get(ctx, userEmailKey)
	if err != nil {
		return ""
	}
	return email
}

// SetUserInfo stores the signed-in account identity, keying the sheet id
// mapping from here on.
func (t *Tracker) SetUserInfo(ctx context.Context, name, email string) error {
	if err := t.kv.Set(ctx, userEmailKey, email); err != nil {
		return fmt.Errorf("store user email: %w", err)
	}
	if err := t.cache.Set(ctx, cache.TypeUserInfo, "", map[string]string{
		"name":  name,
		"email": email,
	}); err != nil {
		log.Warnf("tracker, cache user info: %s", err)
	}
	return nil
}

// EnsureSpreadsheet probes the stored sheet, creating a fresh one when none
// is stored or the stored one is gone, and returns the usable sheet id.
func (t *Tracker) EnsureSpreadsheet(ctx context.Context) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "tracker.ensureSpreadsheet")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if sheetID := t.SheetID(ctx); sheetID != "" {
		err := t.sheetRepo.Probe(ctx, sheetID)
		switch {
		case err == nil:
			return sheetID, nil
		case errors.Is(err, sheets.ErrNotFound), errors.Is(err, sheets.ErrPermission):
			log.Warnf("tracker, stored sheet %s unusable (%s), creating a new one", sheetID, err)
			t.clearSheetID(ctx)
		default:
			return "", err
		}
	}

	sheetID, err := t.sheetRepo.CreateSpreadsheet(ctx, t.spreadsheetTitle)
	if err != nil {
		return "", err
	}
	if err := t.setSheetID(ctx, sheetID); err != nil {
		return "", fmt.Errorf("store sheet id: %w", err)
	}
	return sheetID, nil
}

// Sessions resolves the session history: remote when connected, then cache,
// then the durable snapshot, then empty. A successful remote read overwrites
// the local copies.
func (t *Tracker) Sessions(ctx context.Context) (_ []workout.Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "tracker.sessions")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if sheetID, ok := t.connected(ctx); ok && t.cache.IsOnline() {
		gen := t.sessionsGen.Add(1)
		sessions, err := t.sheetRepo.ReadSessions(ctx, sheetID)
		if err == nil {
			if t.sessionsGen.Load() == gen {
				t.persistSessions(ctx, sessions)
				t.reconcileExercises(ctx, sessions)
			} else {
				log.Debugf("tracker, discarding stale sessions load (gen %d)", gen)
			}
			return sessions, nil
		}
		t.handleRemoteError(ctx, err)
	}

	var sessions []workout.Session
	if t.cache.GetInto(ctx, cache.TypeSessions, "", &sessions) {
		return sessions, nil
	}
	if ok, err := t.loadSnapshot(ctx, snapshotSessionsKey, &sessions); err != nil {
		return nil, err
	} else if ok {
		return sessions, nil
	}
	return []workout.Session{}, nil
}

// SessionByDate returns the session of one calendar day, empty when nothing
// was logged that day.
func (t *Tracker) SessionByDate(ctx context.Context, date string) (workout.Session, error) {
	sessions, err := t.Sessions(ctx)
	if err != nil {
		return workout.Session{}, err
	}
	for _, session := range sessions {
		if session.Date == date {
			return session, nil
		}
	}
	return workout.Session{Date: date, Entries: []workout.ExerciseEntry{}}, nil
}

// LogExercise appends an entry to the given day's session: local persistence
// first, then the remote push, queued when it cannot happen right now.
func (t *Tracker) LogExercise(ctx context.Context, date string, entry workout.ExerciseEntry) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "tracker.logExercise")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := entry.Validate(); err != nil {
		return err
	}
	if err := (workout.Session{Date: date}).Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sessions, err := t.Sessions(ctx)
	if err != nil {
		return err
	}

	appended := false
	for i := range sessions {
		if sessions[i].Date == date {
			sessions[i].Entries = append(sessions[i].Entries, entry)
			appended = true
			break
		}
	}
	if !appended {
		sessions = append(sessions, workout.Session{Date: date, Entries: []workout.ExerciseEntry{entry}})
		workout.SortSessions(sessions)
	}

	t.persistSessions(ctx, sessions)
	t.reconcileExercises(ctx, sessions)

	if t.metricsManager != nil {
		t.metricsManager.CounterExercisesLogged.Inc()
	}

	t.pushSessions(ctx)
	return nil
}

// pushSessions pushes the local sessions to the sheet when possible, or
// queues the push for later.
func (t *Tracker) pushSessions(ctx context.Context) {
	sheetID, ok := t.connected(ctx)
	if !ok || !t.cache.IsOnline() {
		t.cache.AddToSyncQueue(ctx, cache.Operation{Type: cache.OpPushSessions})
		return
	}

	sessions, found, err := t.localSessions(ctx)
	if err != nil || !found {
		sessions = []workout.Session{}
	}
	if err := t.sheetRepo.WriteSessions(ctx, sheetID, sessions); err != nil {
		log.Warnf("tracker, remote sessions push failed, queueing: %s", err)
		t.handleRemoteError(ctx, err)
		t.cache.AddToSyncQueue(ctx, cache.Operation{Type: cache.OpPushSessions})
	}
}

// Exercises resolves the maintained exercise list, derived from the session
// history when neither remote nor local copies exist.
func (t *Tracker) Exercises(ctx context.Context) (_ []string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "tracker.exercises")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if sheetID, ok := t.connected(ctx); ok && t.cache.IsOnline() {
		gen := t.exercisesGen.Add(1)
		names, err := t.sheetRepo.ReadExerciseList(ctx, sheetID)
		if err == nil {
			names = workout.NormalizeExerciseList(names)
			if t.exercisesGen.Load() == gen {
				t.persistExercises(ctx, names)
			} else {
				log.Debugf("tracker, discarding stale exercises load (gen %d)", gen)
			}
			return names, nil
		}
		t.handleRemoteError(ctx, err)
	}

	var names []string
	if t.cache.GetInto(ctx, cache.TypeExercises, "", &names) {
		return names, nil
	}
	if ok, err := t.loadSnapshot(ctx, snapshotExercisesKey, &names); err != nil {
		return nil, err
	} else if ok {
		return names, nil
	}

	// no maintained list anywhere: derive one from the session history
	sessions, err := t.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	return exercisesFromSessions(nil, sessions), nil
}

// AddExercise adds a name to the maintained list and pushes the list.
func (t *Tracker) AddExercise(ctx context.Context, name string) error {
	normalized := workout.NormalizeExerciseList([]string{name})
	if len(normalized) == 0 {
		return fmt.Errorf("%w: exercise name is required", workout.ErrValidation)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	names, err := t.Exercises(ctx)
	if err != nil {
		return err
	}
	names = workout.NormalizeExerciseList(append(names, normalized[0]))
	t.persistExercises(ctx, names)
	t.pushExercises(ctx)
	return nil
}

func (t *Tracker) pushExercises(ctx context.Context) {
	sheetID, ok := t.connected(ctx)
	if !ok || !t.cache.IsOnline() {
		t.cache.AddToSyncQueue(ctx, cache.Operation{Type: cache.OpPushExerciseList})
		return
	}

	var names []string
	if ok, err := t.loadSnapshot(ctx, snapshotExercisesKey, &names); err != nil || !ok {
		names = []string{}
	}
	if err := t.sheetRepo.WriteExerciseList(ctx, sheetID, names); err != nil {
		log.Warnf("tracker, remote exercise list push failed, queueing: %s", err)
		t.handleRemoteError(ctx, err)
		t.cache.AddToSyncQueue(ctx, cache.Operation{Type: cache.OpPushExerciseList})
	}
}

// reconcileExercises keeps the maintained list a superset of every name in
// the session history. Names are stored with their original casing.
func (t *Tracker) reconcileExercises(ctx context.Context, sessions []workout.Session) {
	var maintained []string
	if !t.cache.GetInto(ctx, cache.TypeExercises, "", &maintained) {
		if _, err := t.loadSnapshot(ctx, snapshotExercisesKey, &maintained); err != nil {
			log.Errorf("tracker, reconcile, load exercises: %s", err)
		}
	}

	union := exercisesFromSessions(maintained, sessions)
	if len(union) != len(maintained) {
		t.persistExercises(ctx, union)
	}
}

func exercisesFromSessions(maintained []string, sessions []workout.Session) []string {
	names := append([]string{}, maintained...)
	for _, session := range sessions {
		for _, entry := range session.Entries {
			names = append(names, entry.Exercise)
		}
	}
	return workout.NormalizeExerciseList(names)
}

// Plans live only locally, the sheet knows nothing about them.
func (t *Tracker) Plans(ctx context.Context) ([]workout.Plan, error) {
	var plans []workout.Plan
	if t.cache.GetInto(ctx, cache.TypePlans, "", &plans) {
		return plans, nil
	}
	if ok, err := t.loadSnapshot(ctx, snapshotPlansKey, &plans); err != nil {
		return nil, err
	} else if ok {
		return plans, nil
	}
	return []workout.Plan{}, nil
}

func (t *Tracker) CreatePlan(ctx context.Context, name string, slots []workout.PlanSlot) (*workout.Plan, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	plan, err := workout.NewPlan(name, slots, t.userEmail(ctx), t.SheetID(ctx))
	if err != nil {
		return nil, err
	}

	plans, err := t.Plans(ctx)
	if err != nil {
		return nil, err
	}
	plans = append(plans, *plan)
	if err := t.persistPlans(ctx, plans); err != nil {
		return nil, err
	}
	return plan, nil
}

func (t *Tracker) UpdatePlan(ctx context.Context, id, name string, slots []workout.PlanSlot) (*workout.Plan, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	plans, err := t.Plans(ctx)
	if err != nil {
		return nil, err
	}

	for i := range plans {
		if plans[i].ID != id {
			continue
		}
		if name != "" {
			plans[i].Name = name
		}
		plans[i].SetSlots(slots)
		if err := t.persistPlans(ctx, plans); err != nil {
			return nil, err
		}
		return &plans[i], nil
	}
	return nil, ErrPlanNotFound
}

func (t *Tracker) DeletePlan(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	plans, err := t.Plans(ctx)
	if err != nil {
		return err
	}

	for i := range plans {
		if plans[i].ID == id {
			plans = append(plans[:i], plans[i+1:]...)
			return t.persistPlans(ctx, plans)
		}
	}
	return ErrPlanNotFound
}

// Import replaces the whole session history with the given JSON array. A
// payload that is not an array of valid sessions is rejected without
// touching the local state.
func (t *Tracker) Import(ctx context.Context, raw []byte) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "tracker.import")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return fmt.Errorf("%w: import payload must be a JSON array of sessions", workout.ErrValidation)
	}

	var sessions []workout.Session
	if err := json.Unmarshal(trimmed, &sessions); err != nil {
		return fmt.Errorf("%w: %s", workout.ErrValidation, err)
	}
	for i, session := range sessions {
		if err := session.Validate(); err != nil {
			return fmt.Errorf("session %d: %w", i, err)
		}
	}
	workout.SortSessions(sessions)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.persistSessions(ctx, sessions)
	t.reconcileExercises(ctx, sessions)
	t.pushSessions(ctx)

	log.Infof("tracker, imported %d sessions", len(sessions))
	return nil
}

// Export returns the whole session history as a JSON array.
func (t *Tracker) Export(ctx context.Context) ([]byte, error) {
	sessions, err := t.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []workout.Session{}
	}
	return json.Marshal(sessions)
}

// SyncNow is the explicit user-triggered sync: drain the queue, then push
// the local state. Unlike the background paths, errors surface to the
// caller.
func (t *Tracker) SyncNow(ctx context.Context) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "tracker.syncNow")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := t.cache.ProcessSyncQueue(ctx); err != nil {
		return err
	}

	sheetID, ok := t.connected(ctx)
	if !ok {
		return fmt.Errorf("not connected to a sheet")
	}

	sessions, found, err := t.localSessions(ctx)
	if err != nil {
		return err
	}
	if !found {
		sessions = []workout.Session{}
	}
	if err := t.sheetRepo.WriteSessions(ctx, sheetID, sessions); err != nil {
		t.handleRemoteError(ctx, err)
		return err
	}

	var names []string
	if ok, err := t.loadSnapshot(ctx, snapshotExercisesKey, &names); err != nil {
		return err
	} else if ok {
		if err := t.sheetRepo.WriteExerciseList(ctx, sheetID, names); err != nil {
			t.handleRemoteError(ctx, err)
			return err
		}
	}
	return nil
}

// ProcessSyncOp implements the cache syncer side: queued pushes write the
// current local state, so replaying an op is always safe.
func (t *Tracker) ProcessSyncOp(ctx context.Context, op cache.Operation) error {
	sheetID, ok := t.connected(ctx)
	if !ok {
		return fmt.Errorf("not connected to a sheet")
	}

	switch op.Type {
	case cache.OpPushSessions:
		sessions, found, err := t.localSessions(ctx)
		if err != nil {
			return err
		}
		if !found {
			sessions = []workout.Session{}
		}
		return t.sheetRepo.WriteSessions(ctx, sheetID, sessions)
	case cache.OpPushExerciseList:
		var names []string
		if _, err := t.loadSnapshot(ctx, snapshotExercisesKey, &names); err != nil {
			return err
		}
		return t.sheetRepo.WriteExerciseList(ctx, sheetID, names)
	default:
		// unknown ops are dropped, retrying cannot help
		log.Errorf("tracker, unknown sync op %q dropped", op.Type)
		return nil
	}
}

// RefreshCache implements the cache syncer side: refill the given absent
// cache types.
func (t *Tracker) RefreshCache(ctx context.Context, missing []cache.Type) error {
	sheetID, ok := t.connected(ctx)
	if !ok {
		return nil
	}

	for _, missingType := range missing {
		switch missingType {
		case cache.TypeSessions:
			sessions, err := t.sheetRepo.ReadSessions(ctx, sheetID)
			if err != nil {
				return err
			}
			t.persistSessions(ctx, sessions)
		case cache.TypeExercises:
			names, err := t.sheetRepo.ReadExerciseList(ctx, sheetID)
			if err != nil {
				return err
			}
			t.persistExercises(ctx, workout.NormalizeExerciseList(names))
		case cache.TypePlans:
			var plans []workout.Plan
			if ok, err := t.loadSnapshot(ctx, snapshotPlansKey, &plans); err == nil && ok {
				if err := t.cache.Set(ctx, cache.TypePlans, "", plans); err != nil {
					log.Warnf("tracker, cache plans: %s", err)
				}
			}
		case cache.TypeConfig:
			if err := t.cache.Set(ctx, cache.TypeConfig, "", map[string]string{
				"sheetId": sheetID,
			}); err != nil {
				log.Warnf("tracker, cache config: %s", err)
			}
		case cache.TypeUserInfo:
			if email := t.userEmail(ctx); email != "" {
				if err := t.cache.Set(ctx, cache.TypeUserInfo, "", map[string]string{
					"email": email,
				}); err != nil {
					log.Warnf("tracker, cache user info: %s", err)
				}
			}
		}
	}
	return nil
}

// handleRemoteError reacts to a failed remote call: auth errors reset the
// sign-in, a gone or forbidden sheet invalidates the stored sheet id.
func (t *Tracker) handleRemoteError(ctx context.Context, err error) {
	switch {
	case errors.Is(err, sheets.ErrAuth):
		log.Warnf("tracker, remote auth error: %s", err)
		if t.authChecker != nil {
			t.authChecker.HandleAuthError(ctx)
		}
	case errors.Is(err, sheets.ErrNotFound), errors.Is(err, sheets.ErrPermission):
		log.Warnf("tracker, stored sheet unusable, clearing sheet id: %s", err)
		t.clearSheetID(ctx)
	default:
		log.Warnf("tracker, remote call failed: %s", err)
	}
}

func (t *Tracker) persistSessions(ctx context.Context, sessions []workout.Session) {
	if err := t.saveSnapshot(ctx, snapshotSessionsKey, sessions); err != nil {
		log.Errorf("tracker, persist sessions snapshot: %s", err)
	}
	if err := t.cache.Set(ctx, cache.TypeSessions, "", sessions); err != nil {
		log.Warnf("tracker, cache sessions: %s", err)
	}
}

func (t *Tracker) persistExercises(ctx context.Context, names []string) {
	if err := t.saveSnapshot(ctx, snapshotExercisesKey, names); err != nil {
		log.Errorf("tracker, persist exercises snapshot: %s", err)
	}
	if err := t.cache.Set(ctx, cache.TypeExercises, "", names); err != nil {
		log.Warnf("tracker, cache exercises: %s", err)
	}
}

func (t *Tracker) persistPlans(ctx context.Context, plans []workout.Plan) error {
	if err := t.saveSnapshot(ctx, snapshotPlansKey, plans); err != nil {
		return err
	}
	if err := t.cache.Set(ctx, cache.TypePlans, "", plans); err != nil {
		log.Warnf("tracker, cache plans: %s", err)
	}
	return nil
}

func (t *Tracker) localSessions(ctx context.Context) ([]workout.Session, bool, error) {
	var sessions []workout.Session
	if t.cache.GetInto(ctx, cache.TypeSessions, "", &sessions) {
		return sessions, true, nil
	}
	found, err := t.loadSnapshot(ctx, snapshotSessionsKey, &sessions)
	return sessions, found, err
}

func (t *Tracker) saveSnapshot(ctx context.Context, key string, value any) error {
	valueJson, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal snapshot %q: %w", key, err)
	}
	return t.kv.Set(ctx, key, string(valueJson))
}

func (t *Tracker) loadSnapshot(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := t.kv.Get(ctx, key)
	if errors.Is(err, store.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load snapshot %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("unmarshal snapshot %q: %w", key, err)
	}
	return true, nil
}
