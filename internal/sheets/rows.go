package sheets

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/2beens/gymsheets/internal/workout"

	log "github.com/sirupsen/logrus"
)

// Workout log row schema, one row per exercise entry:
//
//	Date | Exercise | Weight | Sets | Reps | Difficulty | Notes
//
// Reps are "+"-joined per set (e.g. "12+10+8"). Difficulty holds the display
// label. Notes may be blank, so a row needs at least 6 populated cells.
const (
	colDate = iota
	colExercise
	colWeight
	colSets
	colReps
	colDifficulty
	colNotes
	columnsPerRow

	minPopulatedCells = 6
)

var workoutHeaderRow = []interface{}{
	"Date", "Exercise", "Weight", "Sets", "Reps", "Difficulty", "Notes",
}

// sessionsToRows flattens sessions into sheet rows, sessions sorted by date,
// entries in logged order.
func sessionsToRows(sessions []workout.Session) [][]interface{} {
	sorted := make([]workout.Session, len(sessions))
	copy(sorted, sessions)
	workout.SortSessions(sorted)

	var rows [][]interface{}
	for _, session := range sorted {
		for _, entry := range session.Entries {
			rows = append(rows, entryToRow(session.Date, entry))
		}
	}
	return rows
}

func entryToRow(date string, entry workout.ExerciseEntry) []interface{} {
	repsParts := make([]string, len(entry.Reps))
	for i, reps := range entry.Reps {
		repsParts[i] = strconv.Itoa(reps)
	}
	return []interface{}{
		date,
		entry.Exercise,
		strconv.FormatFloat(entry.Weight, 'f', -1, 64),
		strconv.Itoa(entry.Sets),
		strings.Join(repsParts, "+"),
		entry.Difficulty.Display(),
		entry.Notes,
	}
}

// rowsToSessions regroups rows by date. Rows with fewer than 6 populated
// cells are skipped with a warning, sheet edits by hand happen.
func rowsToSessions(rows [][]interface{}) []workout.Session {
	byDate := make(map[string]*workout.Session)
	var dates []string

	for i, row := range rows {
		entryDate, entry, err := rowToEntry(row)
		if err != nil {
			log.Warnf("sheet repo, skipping row %d: %s", i+2, err)
			continue
		}

		session, ok := byDate[entryDate]
		if !ok {
			session = &workout.Session{Date: entryDate}
			byDate[entryDate] = session
			dates = append(dates, entryDate)
		}
		session.Entries = append(session.Entries, *entry)
	}

	sessions := make([]workout.Session, 0, len(dates))
	for _, date := range dates {
		sessions = append(sessions, *byDate[date])
	}
	workout.SortSessions(sessions)
	return sessions
}

func rowToEntry(row []interface{}) (string, *workout.ExerciseEntry, error) {
	cells := make([]string, columnsPerRow)
	populated := 0
	for i := 0; i < columnsPerRow && i < len(row); i++ {
		cells[i] = strings.TrimSpace(fmt.Sprint(row[i]))
		if cells[i] != "" {
			populated++
		}
	}
	if populated < minPopulatedCells {
		return "", nil, fmt.Errorf("only %d populated cells", populated)
	}

	weight, err := strconv.ParseFloat(strings.ReplaceAll(cells[colWeight], ",", "."), 64)
	if err != nil {
		return "", nil, fmt.Errorf("bad weight %q", cells[colWeight])
	}

	sets, err := strconv.Atoi(cells[colSets])
	if err != nil || sets < 1 {
		return "", nil, fmt.Errorf("bad sets %q", cells[colSets])
	}

	var reps []int
	for _, part := range strings.Split(cells[colReps], "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		repCount, err := strconv.Atoi(part)
		if err != nil {
			return "", nil, fmt.Errorf("bad reps %q", cells[colReps])
		}
		reps = append(reps, repCount)
	}
	if len(reps) == 0 {
		return "", nil, fmt.Errorf("bad reps %q", cells[colReps])
	}

	return cells[colDate], &workout.ExerciseEntry{
		Exercise:   cells[colExercise],
		Weight:     weight,
		Sets:       sets,
		Reps:       reps,
		Difficulty: workout.ParseDifficulty(cells[colDifficulty]),
		Notes:      cells[colNotes],
	}, nil
}

var exercisesHeaderRow = []interface{}{"Exercise"}

func exercisesToRows(names []string) [][]interface{} {
	rows := make([][]interface{}, 0, len(names))
	for _, name := range names {
		rows = append(rows, []interface{}{name})
	}
	return rows
}

func rowsToExercises(rows [][]interface{}) []string {
	var names []string
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		name := strings.TrimSpace(fmt.Sprint(row[0]))
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}
