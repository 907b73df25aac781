package sheets

import (
	"testing"

	"github.com/2beens/gymsheets/internal/workout"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionsToRows(t *testing.T) {
	sessions := []workout.Session{
		{
			// later date first, rows come out date-sorted
			Date: "2026-08-21",
			Entries: []workout.ExerciseEntry{
				{
					Exercise:   "Deadlift",
					Weight:     120,
					Sets:       3,
					Reps:       []int{5, 5, 5},
					Difficulty: workout.DifficultyHard,
				},
			},
		},
		{
			Date: "2026-08-19",
			Entries: []workout.ExerciseEntry{
				{
					Exercise:   "Bench Press",
					Weight:     82.5,
					Sets:       3,
					Reps:       []int{12, 10, 8},
					Difficulty: workout.DifficultyMedium,
					Notes:      "paused reps",
				},
				{
					Exercise:   "Squat",
					Weight:     100,
					Sets:       2,
					Reps:       []int{8, 8},
					Difficulty: workout.DifficultyVeryHard,
				},
			},
		},
	}

	rows := sessionsToRows(sessions)
	require.Len(t, rows, 3)

	assert.Equal(t,
		[]interface{}{"2026-08-19", "Bench Press", "82.5", "3", "12+10+8", "Medium", "paused reps"},
		rows[0],
	)
	assert.Equal(t,
		[]interface{}{"2026-08-19", "Squat", "100", "2", "8+8", "Very Hard", ""},
		rows[1],
	)
	assert.Equal(t,
		[]interface{}{"2026-08-21", "Deadlift", "120", "3", "5+5+5", "Hard", ""},
		rows[2],
	)
}

func TestRowsToSessions_RoundTrip(t *testing.T) {
	original := []workout.Session{
		{
			Date: "2026-08-19",
			Entries: []workout.ExerciseEntry{
				{
					Exercise:   "Bench Press",
					Weight:     82.5,
					Sets:       3,
					Reps:       []int{12, 10, 8},
					Difficulty: workout.DifficultyEasy,
					Notes:      "felt strong",
				},
				{
					Exercise:   "Squat",
					Weight:     100,
					Sets:       2,
					Reps:       []int{8, 8},
					Difficulty: workout.DifficultyMedium,
				},
			},
		},
		{
			Date: "2026-08-21",
			Entries: []workout.ExerciseEntry{
				{
					Exercise:   "Deadlift",
					Weight:     120,
					Sets:       3,
					Reps:       []int{5, 5, 5},
					Difficulty: workout.DifficultyVeryHard,
				},
			},
		},
	}

	roundTripped := rowsToSessions(sessionsToRows(original))
	assert.Equal(t, original, roundTripped)
}

func TestRowsToSessions_SkipsSparseRows(t *testing.T) {
	rows := [][]interface{}{
		{"2026-08-19", "Bench Press", "80", "3", "10+10+10", "Medium", ""},
		// 5 populated cells, skipped
		{"2026-08-19", "Squat", "100", "3", "", "", ""},
		// empty row, skipped
		{},
		{"2026-08-19", "Deadlift", "120", "3", "5+5+5", "Hard", ""},
	}

	sessions := rowsToSessions(rows)
	require.Len(t, sessions, 1)
	require.Len(t, sessions[0].Entries, 2)
	assert.Equal(t, "Bench Press", sessions[0].Entries[0].Exercise)
	assert.Equal(t, "Deadlift", sessions[0].Entries[1].Exercise)
}

func TestRowsToSessions_RegroupsScatteredDates(t *testing.T) {
	rows := [][]interface{}{
		{"2026-08-21", "Deadlift", "120", "3", "5+5+5", "Hard", ""},
		{"2026-08-19", "Bench Press", "80", "3", "10+10+10", "Medium", ""},
		{"2026-08-21", "Row", "60", "3", "12+12+12", "Easy", ""},
	}

	sessions := rowsToSessions(rows)
	require.Len(t, sessions, 2)
	assert.Equal(t, "2026-08-19", sessions[0].Date)
	require.Len(t, sessions[1].Entries, 2)
	assert.Equal(t, "Deadlift", sessions[1].Entries[0].Exercise)
	assert.Equal(t, "Row", sessions[1].Entries[1].Exercise)
}

func TestRowToEntry_TolerantParsing(t *testing.T) {
	// comma decimal separator, label casing and whitespace all tolerated
	date, entry, err := rowToEntry([]interface{}{
		" 2026-08-19 ", "Bench Press", "82,5", "3", " 12+10+8 ", "VERY hard!!", "",
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-08-19", date)
	assert.Equal(t, 82.5, entry.Weight)
	assert.Equal(t, []int{12, 10, 8}, entry.Reps)
	assert.Equal(t, workout.DifficultyVeryHard, entry.Difficulty)
}

func TestRowToEntry_BadCells(t *testing.T) {
	testCases := []struct {
		name string
		row  []interface{}
	}{
		{
			name: "bad weight",
			row:  []interface{}{"2026-08-19", "Bench", "heavy", "3", "10+10", "Medium", "x"},
		},
		{
			name: "bad sets",
			row:  []interface{}{"2026-08-19", "Bench", "80", "zero", "10+10", "Medium", "x"},
		},
		{
			name: "bad reps",
			row:  []interface{}{"2026-08-19", "Bench", "80", "3", "ten", "Medium", "x"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := rowToEntry(tc.row)
			assert.Error(t, err)
		})
	}
}

func TestRowsToExercises(t *testing.T) {
	names := rowsToExercises([][]interface{}{
		{"Bench Press"},
		{"  "},
		{},
		{"Squat"},
	})
	assert.Equal(t, []string{"Bench Press", "Squat"}, names)
}
