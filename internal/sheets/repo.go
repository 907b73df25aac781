package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/2beens/gymsheets/internal/telemetry/metrics"
	"github.com/2beens/gymsheets/internal/telemetry/tracing"
	"github.com/2beens/gymsheets/internal/workout"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

const (
	workoutTabName   = "Workout Log"
	exercisesTabName = "Exercise List"

	// over-provisioned read/write windows, headers in row 1
	workoutRange   = workoutTabName + "!A2:G5000"
	exercisesRange = exercisesTabName + "!A2:A1000"
)

// Remote failure taxonomy. Callers branch on these: auth errors clear the
// token, permission and not-found errors invalidate the stored sheet id,
// network errors queue the op for a later retry.
var (
	ErrAuth       = errors.New("sheet access not authorized")
	ErrPermission = errors.New("sheet access forbidden")
	ErrNotFound   = errors.New("sheet not found")
	ErrNetwork    = errors.New("sheet unreachable")
)

// Repo translates sessions and exercise lists to sheet rows and back, and
// owns all remote Google Sheets calls. Writes are full-window overwrites, so
// retrying a write is always safe.
type Repo struct {
	service        *gsheets.Service
	metricsManager *metrics.Manager
}

func NewRepo(
	ctx context.Context,
	tokenSource oauth2.TokenSource,
	metricsManager *metrics.Manager,
) (*Repo, error) {
	service, err := gsheets.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("new sheets service: %w", err)
	}
	return &Repo{
		service:        service,
		metricsManager: metricsManager,
	}, nil
}

// ReadSessions reads the whole workout log window and regroups rows into
// date-keyed sessions.
func (r *Repo) ReadSessions(ctx context.Context, spreadsheetID string) (_ []workout.Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sheets.repo.readSessions")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	resp, err := r.service.Spreadsheets.Values.
		Get(spreadsheetID, workoutRange).
		Context(ctx).
		Do()
	if err != nil {
		return nil, translateError(err)
	}
	r.countRead()

	sessions := rowsToSessions(resp.Values)
	log.Debugf("sheet repo, read %d rows -> %d sessions", len(resp.Values), len(sessions))
	return sessions, nil
}

// WriteSessions overwrites the whole workout log window with the given
// sessions.
func (r *Repo) WriteSessions(ctx context.Context, spreadsheetID string, sessions []workout.Session) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sheets.repo.writeSessions")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	return r.overwrite(ctx, spreadsheetID, workoutRange, sessionsToRows(sessions))
}

func (r *Repo) ReadExerciseList(ctx context.Context, spreadsheetID string) (_ []string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sheets.repo.readExerciseList")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	resp, err := r.service.Spreadsheets.Values.
		Get(spreadsheetID, exercisesRange).
		Context(ctx).
		Do()
	if err != nil {
		return nil, translateError(err)
	}
	r.countRead()

	return rowsToExercises(resp.Values), nil
}

func (r *Repo) WriteExerciseList(ctx context.Context, spreadsheetID string, names []string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sheets.repo.writeExerciseList")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	return r.overwrite(ctx, spreadsheetID, exercisesRange, exercisesToRows(names))
}

// overwrite clears the window and writes the new rows from its first cell.
func (r *Repo) overwrite(ctx context.Context, spreadsheetID, valuesRange string, rows [][]interface{}) error {
	if _, err := r.service.Spreadsheets.Values.
		Clear(spreadsheetID, valuesRange, &gsheets.ClearValuesRequest{}).
		Context(ctx).
		Do(); err != nil {
		return translateError(err)
	}

	if len(rows) > 0 {
		if _, err := r.service.Spreadsheets.Values.
			Update(spreadsheetID, valuesRange, &gsheets.ValueRange{Values: rows}).
			ValueInputOption("RAW").
			Context(ctx).
			Do(); err != nil {
			return translateError(err)
		}
	}

	r.countWrite()
	log.Debugf("sheet repo, wrote %d rows to %s", len(rows), valuesRange)
	return nil
}

// CreateSpreadsheet bootstraps a fresh spreadsheet with the workout log and
// exercise list tabs, headers included, and returns its id.
func (r *Repo) CreateSpreadsheet(ctx context.Context, title string) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sheets.repo.createSpreadsheet")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	created, err := r.service.Spreadsheets.
		Create(&gsheets.Spreadsheet{
			Properties: &gsheets.SpreadsheetProperties{Title: title},
			Sheets: []*gsheets.Sheet{
				{Properties: &gsheets.SheetProperties{Title: workoutTabName}},
				{Properties: &gsheets.SheetProperties{Title: exercisesTabName}},
			},
		}).
		Context(ctx).
		Do()
	if err != nil {
		return "", translateError(err)
	}

	if err := r.writeHeaders(ctx, created.SpreadsheetId); err != nil {
		return "", err
	}

	log.Infof("sheet repo, created spreadsheet %s (%q)", created.SpreadsheetId, title)
	return created.SpreadsheetId, nil
}

func (r *Repo) writeHeaders(ctx context.Context, spreadsheetID string) error {
	headers := map[string][]interface{}{
		workoutTabName + "!A1:G1": workoutHeaderRow,
		exercisesTabName + "!A1":  exercisesHeaderRow,
	}
	for headerRange, row := range headers {
		if _, err := r.service.Spreadsheets.Values.
			Update(spreadsheetID, headerRange, &gsheets.ValueRange{Values: [][]interface{}{row}}).
			ValueInputOption("RAW").
			Context(ctx).
			Do(); err != nil {
			return translateError(err)
		}
	}
	return nil
}

// Probe checks that the spreadsheet exists and is readable, and adds any of
// the two expected tabs that are missing.
func (r *Repo) Probe(ctx context.Context, spreadsheetID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sheets.repo.probe")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	spreadsheet, err := r.service.Spreadsheets.
		Get(spreadsheetID).
		Fields("spreadsheetId,sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return translateError(err)
	}

	existing := make(map[string]bool, len(spreadsheet.Sheets))
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil {
			existing[sheet.Properties.Title] = true
		}
	}

	var addRequests []*gsheets.Request
	for _, tab := range []string{workoutTabName, exercisesTabName} {
		if !existing[tab] {
			addRequests = append(addRequests, &gsheets.Request{
				AddSheet: &gsheets.AddSheetRequest{
					Properties: &gsheets.SheetProperties{Title: tab},
				},
			})
		}
	}
	if len(addRequests) == 0 {
		return nil
	}

	log.Infof("sheet repo, adding %d missing tabs to %s", len(addRequests), spreadsheetID)
	if _, err := r.service.Spreadsheets.
		BatchUpdate(spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
			Requests: addRequests,
		}).
		Context(ctx).
		Do(); err != nil {
		return translateError(err)
	}
	return r.writeHeaders(ctx, spreadsheetID)
}

// translateError maps remote failures onto the package sentinels. Unmatched
// API errors (rate limits, 5xx) pass through wrapped.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrAuth, apiErr.Message)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrPermission, apiErr.Message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
		default:
			return fmt.Errorf("sheet api error: %w", err)
		}
	}

	return fmt.Errorf("%w: %s", ErrNetwork, err)
}

func (r *Repo) countRead() {
	if r.metricsManager != nil {
		r.metricsManager.CounterSheetReads.Inc()
	}
}

func (r *Repo) countWrite() {
	if r.metricsManager != nil {
		r.metricsManager.CounterSheetWrites.Inc()
	}
}
