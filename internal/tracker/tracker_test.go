package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/2beens/gymsheets/internal/cache"
	"github.com/2beens/gymsheets/internal/sheets"
	"github.com/2beens/gymsheets/internal/store"
	"github.com/2beens/gymsheets/internal/telemetry/metrics"
	"github.com/2beens/gymsheets/internal/workout"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authCheckerStub struct {
	authenticated bool
	authErrors    int
}

func (a *authCheckerStub) IsAuthenticated(_ context.Context) bool {
	return a.authenticated
}

func (a *authCheckerStub) HandleAuthError(_ context.Context) {
	a.authErrors++
}

type testEnv struct {
	kv      *store.MemoryStore
	cache   *cache.Manager
	repo    *sheetRepoMock
	tracker *Tracker
	auth    *authCheckerStub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	kv := store.NewMemoryStore()
	cacheManager := cache.NewManager(kv, metrics.NewTestManager())
	repo := newSheetRepoMock()
	tr := New(kv, cacheManager, repo, metrics.NewTestManager(), "Workout Tracker Data")
	cacheManager.SetSyncer(tr)
	authStub := &authCheckerStub{}
	tr.SetAuthChecker(authStub)
	return &testEnv{
		kv:      kv,
		cache:   cacheManager,
		repo:    repo,
		tracker: tr,
		auth:    authStub,
	}
}

func (e *testEnv) connect(t *testing.T, sheetID string) {
	t.Helper()
	e.tracker.SetSignedIn(true)
	e.auth.authenticated = true
	require.NoError(t, e.kv.Set(context.Background(), legacySheetIDKey, sheetID))
}

func benchEntry(weight float64) workout.ExerciseEntry {
	return workout.ExerciseEntry{
		Exercise:   "Bench Press",
		Weight:     weight,
		Sets:       3,
		Reps:       []int{10, 10, 10},
		Difficulty: workout.DifficultyMedium,
	}
}

func TestTracker_Sessions_DefaultEmpty(t *testing.T) {
	env := newTestEnv(t)

	sessions, err := env.tracker.Sessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.Zero(t, env.repo.readSessionsCalls)
}

func TestTracker_Sessions_FromSnapshot(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	snapshot := []workout.Session{{Date: "2026-08-19", Entries: []workout.ExerciseEntry{benchEntry(80)}}}
	snapshotJson, err := json.Marshal(snapshot)
	require.NoError(t, err)
	require.NoError(t, env.kv.Set(ctx, snapshotSessionsKey, string(snapshotJson)))

	sessions, err := env.tracker.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, snapshot, sessions)
}

func TestTracker_Sessions_CacheBeforeSnapshot(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	snapshotJson, err := json.Marshal([]workout.Session{{Date: "2026-08-01"}})
	require.NoError(t, err)
	require.NoError(t, env.kv.Set(ctx, snapshotSessionsKey, string(snapshotJson)))

	cached := []workout.Session{{Date: "2026-08-19", Entries: []workout.ExerciseEntry{benchEntry(80)}}}
	require.NoError(t, env.cache.Set(ctx, cache.TypeSessions, "", cached))

	sessions, err := env.tracker.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, cached, sessions)
}

func TestTracker_Sessions_RemoteWins(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.connect(t, "sheet-1")

	// stale local copies on both levels
	require.NoError(t, env.cache.Set(ctx, cache.TypeSessions, "", []workout.Session{{Date: "2026-08-01"}}))

	remote := []workout.Session{{Date: "2026-08-19", Entries: []workout.ExerciseEntry{benchEntry(80)}}}
	env.repo.setRemoteSessions("sheet-1", remote)

	sessions, err := env.tracker.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, remote, sessions)

	// local copies overwritten by the remote read
	var cached []workout.Session
	require.True(t, env.cache.GetInto(ctx, cache.TypeSessions, "", &cached))
	assert.Equal(t, remote, cached)

	// exercise list reconciled from the freshly read history
	var names []string
	found, err := env.tracker.loadSnapshot(ctx, snapshotExercisesKey, &names)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"Bench Press"}, names)
}

func TestTracker_Sessions_RemoteNotFoundFallsBack(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.connect(t, "sheet-gone")

	cached := []workout.Session{{Date: "2026-08-19", Entries: []workout.ExerciseEntry{benchEntry(80)}}}
	require.NoError(t, env.cache.Set(ctx, cache.TypeSessions, "", cached))

	env.repo.readErr = fmt.Errorf("%w: gone", sheets.ErrNotFound)

	sessions, err := env.tracker.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, cached, sessions)

	// a gone sheet invalidates the stored mapping
	assert.Empty(t, env.tracker.SheetID(ctx))
}

func TestTracker_Sessions_RemoteAuthError(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.connect(t, "sheet-1")

	env.repo.readErr = fmt.Errorf("%w: token rejected", sheets.ErrAuth)

	_, err := env.tracker.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, env.auth.authErrors)
}

func TestTracker_LogExercise_Connected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.connect(t, "sheet-1")

	require.NoError(t, env.tracker.LogExercise(ctx, "2026-08-19", benchEntry(80)))

	remote := env.repo.remoteSessions("sheet-1")
	require.Len(t, remote, 1)
	assert.Equal(t, "2026-08-19", remote[0].Date)
	require.Len(t, remote[0].Entries, 1)

	// second entry of the same day lands in the same session
	require.NoError(t, env.tracker.LogExercise(ctx, "2026-08-19", benchEntry(82.5)))
	remote = env.repo.remoteSessions("sheet-1")
	require.Len(t, remote, 1)
	assert.Len(t, remote[0].Entries, 2)
}

func TestTracker_LogExercise_OfflineQueues(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.connect(t, "sheet-1")
	env.cache.SetOnline(ctx, false)

	require.NoError(t, env.tracker.LogExercise(ctx, "2026-08-19", benchEntry(80)))

	// persisted locally, not pushed, push queued
	assert.Empty(t, env.repo.remoteSessions("sheet-1"))
	assert.Equal(t, 1, env.cache.SyncQueueSize())

	var snapshot []workout.Session
	found, err := env.tracker.loadSnapshot(ctx, snapshotSessionsKey, &snapshot)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, snapshot, 1)

	// connectivity regained: queued push lands remotely
	env.cache.SetOnline(ctx, true)
	assert.Zero(t, env.cache.SyncQueueSize())
	remote := env.repo.remoteSessions("sheet-1")
	require.Len(t, remote, 1)
	assert.Equal(t, "2026-08-19", remote[0].Date)
}

func TestTracker_LogExercise_Validation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	err := env.tracker.LogExercise(ctx, "2026-08-19", workout.ExerciseEntry{Exercise: ""})
	assert.ErrorIs(t, err, workout.ErrValidation)

	err = env.tracker.LogExercise(ctx, "19.08.2026", benchEntry(80))
	assert.ErrorIs(t, err, workout.ErrValidation)
}

func TestTracker_ImportExport(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	// non-array payloads rejected, local state untouched
	err := env.tracker.Import(ctx, []byte(`{"date": "2026-08-19"}`))
	assert.ErrorIs(t, err, workout.ErrValidation)
	sessions, err := env.tracker.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	// invalid session inside the array rejected too
	err = env.tracker.Import(ctx, []byte(`[{"date": "not-a-date"}]`))
	assert.ErrorIs(t, err, workout.ErrValidation)

	imported := []workout.Session{
		{Date: "2026-08-21", Entries: []workout.ExerciseEntry{benchEntry(82.5)}},
		{Date: "2026-08-19", Entries: []workout.ExerciseEntry{benchEntry(80)}},
	}
	importedJson, err := json.Marshal(imported)
	require.NoError(t, err)
	require.NoError(t, env.tracker.Import(ctx, importedJson))

	exported, err := env.tracker.Export(ctx)
	require.NoError(t, err)

	var roundTripped []workout.Session
	require.NoError(t, json.Unmarshal(exported, &roundTripped))
	require.Len(t, roundTripped, 2)
	// import sorts by date
	assert.Equal(t, "2026-08-19", roundTripped[0].Date)
	assert.Equal(t, "2026-08-21", roundTripped[1].Date)
}

func TestTracker_SyncStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	assert.Equal(t, SyncNotConnected, env.tracker.SyncStatus(ctx))

	env.tracker.SetSignedIn(true)
	assert.Equal(t, SyncSignedIn, env.tracker.SyncStatus(ctx))

	require.NoError(t, env.kv.Set(ctx, legacySheetIDKey, "sheet-1"))
	assert.Equal(t, SyncConnected, env.tracker.SyncStatus(ctx))

	env.tracker.SetSignedIn(false)
	assert.Equal(t, SyncNotConnected, env.tracker.SyncStatus(ctx))
}

func TestTracker_SheetID_PerAccount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	require.NoError(t, env.kv.Set(ctx, legacySheetIDKey, "legacy-sheet"))
	assert.Equal(t, "legacy-sheet", env.tracker.SheetID(ctx))

	// once an account is known, its own mapping wins over the legacy one
	require.NoError(t, env.tracker.SetUserInfo(ctx, "Serj", "serj@example.com"))
	require.NoError(t, env.kv.Set(ctx, sheetIDKeyPrefix+"serj@example.com", "serj-sheet"))
	assert.Equal(t, "serj-sheet", env.tracker.SheetID(ctx))
}

func TestTracker_EnsureSpreadsheet(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.tracker.SetSignedIn(true)

	// nothing stored: a fresh sheet is created and remembered
	sheetID, err := env.tracker.EnsureSpreadsheet(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mock-sheet-1", sheetID)
	assert.Equal(t, sheetID, env.tracker.SheetID(ctx))

	// stored and probe passes: same sheet
	sheetID, err = env.tracker.EnsureSpreadsheet(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mock-sheet-1", sheetID)
	assert.Equal(t, 1, env.repo.createdSheets)

	// stored sheet gone: replaced by a new one
	env.repo.probeErr = fmt.Errorf("%w: deleted", sheets.ErrNotFound)
	sheetID, err = env.tracker.EnsureSpreadsheet(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mock-sheet-2", sheetID)
	assert.Equal(t, sheetID, env.tracker.SheetID(ctx))
}

func TestTracker_Exercises_DerivedFromHistory(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	snapshot := []workout.Session{
		{Date: "2026-08-19", Entries: []workout.ExerciseEntry{
			benchEntry(80),
			{Exercise: "Squat", Weight: 100, Sets: 2, Reps: []int{8, 8}, Difficulty: workout.DifficultyHard},
		}},
	}
	snapshotJson, err := json.Marshal(snapshot)
	require.NoError(t, err)
	require.NoError(t, env.kv.Set(ctx, snapshotSessionsKey, string(snapshotJson)))

	names, err := env.tracker.Exercises(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bench Press", "Squat"}, names)
}

func TestTracker_AddExercise(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	require.NoError(t, env.tracker.AddExercise(ctx, " Deadlift "))
	require.NoError(t, env.tracker.AddExercise(ctx, "Bench Press"))
	require.NoError(t, env.tracker.AddExercise(ctx, "Deadlift"))

	names, err := env.tracker.Exercises(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bench Press", "Deadlift"}, names)

	assert.ErrorIs(t, env.tracker.AddExercise(ctx, "  "), workout.ErrValidation)
}

func TestTracker_Plans(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	plans, err := env.tracker.Plans(ctx)
	require.NoError(t, err)
	assert.Empty(t, plans)

	created, err := env.tracker.CreatePlan(ctx, "Push Day", []workout.PlanSlot{
		{Exercise: "Bench Press"},
		{Exercise: "Overhead Press"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	updated, err := env.tracker.UpdatePlan(ctx, created.ID, "Push Day A", []workout.PlanSlot{
		{Exercise: "Overhead Press"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Push Day A", updated.Name)
	require.Len(t, updated.Slots, 1)
	assert.Equal(t, 1, updated.Slots[0].Position)

	_, err = env.tracker.UpdatePlan(ctx, "no-such-plan", "x", nil)
	assert.ErrorIs(t, err, ErrPlanNotFound)

	require.NoError(t, env.tracker.DeletePlan(ctx, created.ID))
	assert.ErrorIs(t, env.tracker.DeletePlan(ctx, created.ID), ErrPlanNotFound)

	plans, err = env.tracker.Plans(ctx)
	require.NoError(t, err)
	assert.Empty(t, plans)
}
