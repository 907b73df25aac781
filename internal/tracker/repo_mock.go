package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/2beens/gymsheets/internal/workout"
)

type sheetRepoMock struct {
	mu        sync.Mutex
	sessions  map[string][]workout.Session
	exercises map[string][]string
	sheets    map[string]bool

	createdSheets      int
	readSessionsCalls  int
	writeSessionsCalls int

	readErr   error
	writeErr  error
	probeErr  error
	createErr error
}

func newSheetRepoMock() *sheetRepoMock {
	return &sheetRepoMock{
		sessions:  make(map[string][]workout.Session),
		exercises: make(map[string][]string),
		sheets:    make(map[string]bool),
	}
}

func (r *sheetRepoMock) ReadSessions(_ context.Context, spreadsheetID string) ([]workout.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readSessionsCalls++
	if r.readErr != nil {
		return nil, r.readErr
	}
	return append([]workout.Session(nil), r.sessions[spreadsheetID]...), nil
}

func (r *sheetRepoMock) WriteSessions(_ context.Context, spreadsheetID string, sessions []workout.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeSessionsCalls++
	if r.writeErr != nil {
		return r.writeErr
	}
	r.sessions[spreadsheetID] = append([]workout.Session(nil), sessions...)
	return nil
}

func (r *sheetRepoMock) ReadExerciseList(_ context.Context, spreadsheetID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readErr != nil {
		return nil, r.readErr
	}
	return append([]string(nil), r.exercises[spreadsheetID]...), nil
}

func (r *sheetRepoMock) WriteExerciseList(_ context.Context, spreadsheetID string, names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	r.exercises[spreadsheetID] = append([]string(nil), names...)
	return nil
}

func (r *sheetRepoMock) CreateSpreadsheet(_ context.Context, _ string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return "", r.createErr
	}
	r.createdSheets++
	sheetID := fmt.Sprintf("mock-sheet-%d", r.createdSheets)
	r.sheets[sheetID] = true
	return sheetID, nil
}

func (r *sheetRepoMock) Probe(_ context.Context, spreadsheetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.probeErr
}

func (r *sheetRepoMock) remoteSessions(spreadsheetID string) []workout.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]workout.Session(nil), r.sessions[spreadsheetID]...)
}

func (r *sheetRepoMock) setRemoteSessions(spreadsheetID string, sessions []workout.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[spreadsheetID] = sessions
}
