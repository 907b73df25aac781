package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/2beens/gymsheets/internal/auth"
	"github.com/2beens/gymsheets/internal/sheets"
	"github.com/2beens/gymsheets/internal/telemetry/tracing"
	"github.com/2beens/gymsheets/internal/workout"
	"github.com/2beens/gymsheets/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type authService interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) error
	SignOut(ctx context.Context) error
	State(ctx context.Context) auth.State
	Resume(ctx context.Context)
}

type userInfoFetcher func(ctx context.Context) (*auth.UserInfo, error)

type Handler struct {
	tracker       *Tracker
	authService   authService
	analyzer      *workout.Analyzer
	fetchUserInfo userInfoFetcher

	// pending OAuth state nonce, one interactive sign-in at a time
	mu         sync.Mutex
	oauthState string
}

func NewHandler(
	tracker *Tracker,
	authService authService,
	fetchUserInfo userInfoFetcher,
) *Handler {
	return &Handler{
		tracker:       tracker,
		authService:   authService,
		analyzer:      workout.NewAnalyzer(),
		fetchUserInfo: fetchUserInfo,
	}
}

func (handler *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.sessions")
	defer span.End()

	sessions, err := handler.tracker.Sessions(ctx)
	if err != nil {
		handler.writeError(w, "list sessions", err)
		return
	}
	handler.writeJSON(w, sessions)
}

func (handler *Handler) HandleSessionByDate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.sessionByDate")
	defer span.End()

	date := mux.Vars(r)["date"]
	if err := (workout.Session{Date: date}).Validate(); err != nil {
		http.Error(w, "error, bad session date", http.StatusBadRequest)
		return
	}

	session, err := handler.tracker.SessionByDate(ctx, date)
	if err != nil {
		handler.writeError(w, "get session", err)
		return
	}
	handler.writeJSON(w, session)
}

type logExerciseRequest struct {
	Date  string                `json:"date"`
	Entry workout.ExerciseEntry `json:"entry"`
}

func (handler *Handler) HandleLogExercise(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.logExercise")
	defer span.End()

	var req logExerciseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("log exercise, unmarshal json params: %s", err)
		http.Error(w, "log exercise failed", http.StatusBadRequest)
		return
	}

	if err := handler.tracker.LogExercise(ctx, req.Date, req.Entry); err != nil {
		handler.writeError(w, "log exercise", err)
		return
	}
	pkg.WriteResponse(w, pkg.ContentType.JSON, `{"logged": true}`, http.StatusCreated)
}

func (handler *Handler) HandleExercises(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.exercises")
	defer span.End()

	names, err := handler.tracker.Exercises(ctx)
	if err != nil {
		handler.writeError(w, "list exercises", err)
		return
	}
	if names == nil {
		names = []string{}
	}
	handler.writeJSON(w, names)
}

func (handler *Handler) HandleAddExercise(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.addExercise")
	defer span.End()

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "add exercise failed", http.StatusBadRequest)
		return
	}

	if err := handler.tracker.AddExercise(ctx, req.Name); err != nil {
		handler.writeError(w, "add exercise", err)
		return
	}
	pkg.WriteResponse(w, pkg.ContentType.JSON, `{"added": true}`, http.StatusCreated)
}

func (handler *Handler) HandleListPlans(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.plans")
	defer span.End()

	plans, err := handler.tracker.Plans(ctx)
	if err != nil {
		handler.writeError(w, "list plans", err)
		return
	}
	handler.writeJSON(w, plans)
}

type planRequest struct {
	Name  string             `json:"name"`
	Slots []workout.PlanSlot `json:"slots"`
}

func (handler *Handler) HandleCreatePlan(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.createPlan")
	defer span.End()

	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "create plan failed", http.StatusBadRequest)
		return
	}

	plan, err := handler.tracker.CreatePlan(ctx, req.Name, req.Slots)
	if err != nil {
		handler.writeError(w, "create plan", err)
		return
	}

	planJson, err := json.Marshal(plan)
	if err != nil {
		http.Error(w, "create plan failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, planJson, http.StatusCreated)
}

func (handler *Handler) HandleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.updatePlan")
	defer span.End()

	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "update plan failed", http.StatusBadRequest)
		return
	}

	plan, err := handler.tracker.UpdatePlan(ctx, mux.Vars(r)["id"], req.Name, req.Slots)
	if err != nil {
		handler.writeError(w, "update plan", err)
		return
	}
	handler.writeJSON(w, plan)
}

func (handler *Handler) HandleDeletePlan(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.deletePlan")
	defer span.End()

	if err := handler.tracker.DeletePlan(ctx, mux.Vars(r)["id"]); err != nil {
		handler.writeError(w, "delete plan", err)
		return
	}
	pkg.WriteResponse(w, pkg.ContentType.JSON, `{"deleted": true}`, http.StatusOK)
}

func (handler *Handler) HandleRecommendations(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.recommendations")
	defer span.End()

	sessions, err := handler.tracker.Sessions(ctx)
	if err != nil {
		handler.writeError(w, "recommendations", err)
		return
	}
	names, err := handler.tracker.Exercises(ctx)
	if err != nil {
		handler.writeError(w, "recommendations", err)
		return
	}

	handler.writeJSON(w, handler.analyzer.Recommendations(sessions, names))
}

func (handler *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.export")
	defer span.End()

	exported, err := handler.tracker.Export(ctx)
	if err != nil {
		handler.writeError(w, "export", err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="workout-sessions.json"`)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, exported, http.StatusOK)
}

func (handler *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.import")
	defer span.End()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "import failed", http.StatusBadRequest)
		return
	}

	if err := handler.tracker.Import(ctx, payload); err != nil {
		handler.writeError(w, "import", err)
		return
	}
	pkg.WriteResponse(w, pkg.ContentType.JSON, `{"imported": true}`, http.StatusOK)
}

func (handler *Handler) HandleSyncNow(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.syncNow")
	defer span.End()

	if err := handler.tracker.SyncNow(ctx); err != nil {
		handler.writeError(w, "sync", err)
		return
	}
	pkg.WriteResponse(w, pkg.ContentType.JSON, `{"synced": true}`, http.StatusOK)
}

func (handler *Handler) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.syncStatus")
	defer span.End()

	handler.writeJSON(w, struct {
		Status    SyncStatus `json:"status"`
		AuthState auth.State `json:"authState"`
		QueueSize int        `json:"queueSize"`
		Online    bool       `json:"online"`
	}{
		Status:    handler.tracker.SyncStatus(ctx),
		AuthState: handler.authService.State(ctx),
		QueueSize: handler.tracker.cache.SyncQueueSize(),
		Online:    handler.tracker.cache.IsOnline(),
	})
}

// HandleSetOnline is the connectivity signal: clients report when they go
// offline or come back, a regained connection kicks off a queue drain and a
// token check.
func (handler *Handler) HandleSetOnline(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.setOnline")
	defer span.End()

	var req struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "set online failed", http.StatusBadRequest)
		return
	}

	if req.Online {
		handler.authService.Resume(ctx)
	}
	handler.tracker.cache.SetOnline(ctx, req.Online)
	pkg.WriteResponse(w, pkg.ContentType.JSON, `{"ok": true}`, http.StatusOK)
}

func (handler *Handler) HandleAuthURL(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.authURL")
	defer span.End()

	state, err := pkg.GenerateRandomString(24)
	if err != nil {
		http.Error(w, "sign in failed", http.StatusInternalServerError)
		return
	}

	handler.mu.Lock()
	handler.oauthState = state
	handler.mu.Unlock()

	handler.writeJSON(w, struct {
		URL string `json:"url"`
	}{URL: handler.authService.AuthCodeURL(state)})
}

func (handler *Handler) HandleAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.authCallback")
	defer span.End()

	handler.mu.Lock()
	expectedState := handler.oauthState
	handler.oauthState = ""
	handler.mu.Unlock()

	if state := r.URL.Query().Get("state"); expectedState == "" || state != expectedState {
		http.Error(w, "error, auth state mismatch", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "error, auth code empty", http.StatusBadRequest)
		return
	}

	if err := handler.authService.Exchange(ctx, code); err != nil {
		log.Errorf("auth callback, code exchange: %s", err)
		http.Error(w, "sign in failed", http.StatusInternalServerError)
		return
	}

	handler.completeSignIn(ctx)
	pkg.WriteResponse(w, pkg.ContentType.HTML, "<html><body>Signed in, you can close this tab.</body></html>", http.StatusOK)
}

// completeSignIn finishes the sign-in: resolve the account identity and make
// sure a usable spreadsheet exists. Both are best effort, the next explicit
// sync retries them.
func (handler *Handler) completeSignIn(ctx context.Context) {
	if handler.fetchUserInfo != nil {
		if userInfo, err := handler.fetchUserInfo(ctx); err != nil {
			log.Errorf("auth callback, fetch user info: %s", err)
		} else if err := handler.tracker.SetUserInfo(ctx, userInfo.Name, userInfo.Email); err != nil {
			log.Errorf("auth callback, store user info: %s", err)
		}
	}

	if _, err := handler.tracker.EnsureSpreadsheet(ctx); err != nil {
		log.Errorf("auth callback, ensure spreadsheet: %s", err)
	}
}

func (handler *Handler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.tracker.signOut")
	defer span.End()

	if err := handler.authService.SignOut(ctx); err != nil {
		handler.writeError(w, "sign out", err)
		return
	}
	pkg.WriteResponse(w, pkg.ContentType.JSON, `{"signedOut": true}`, http.StatusOK)
}

func (handler *Handler) writeJSON(w http.ResponseWriter, value any) {
	valueJson, err := json.Marshal(value)
	if err != nil {
		log.Errorf("tracker handler, marshal response: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, valueJson, http.StatusOK)
}

func (handler *Handler) writeError(w http.ResponseWriter, action string, err error) {
	log.Errorf("tracker handler, %s: %s", action, err)
	switch {
	case errors.Is(err, workout.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrPlanNotFound):
		http.Error(w, "plan not found", http.StatusNotFound)
	case errors.Is(err, sheets.ErrAuth):
		http.Error(w, "not authorized", http.StatusUnauthorized)
	case errors.Is(err, sheets.ErrPermission):
		http.Error(w, "sheet access forbidden", http.StatusForbidden)
	case errors.Is(err, sheets.ErrNotFound):
		http.Error(w, "sheet not found", http.StatusNotFound)
	case errors.Is(err, sheets.ErrNetwork):
		http.Error(w, "sheet unreachable", http.StatusBadGateway)
	default:
		http.Error(w, "error, "+action+" failed", http.StatusInternalServerError)
	}
}
