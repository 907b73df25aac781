package workout

import (
	"strings"
)

const (
	// weight plates come in 1.25 kg pairs, so suggestions move in 2.5 kg steps
	WeightStep = 2.5

	minAvgRepsForIncrease = 10
)

type Action string

const (
	ActionIncrease Action = "increase"
	ActionMaintain Action = "maintain"
	ActionDecrease Action = "decrease"
)

type Recommendation struct {
	Exercise string  `json:"exercise"`
	Action   Action  `json:"action"`
	Weight   float64 `json:"weight"`
	Reason   string  `json:"reason,omitempty"`
}

// Analyzer derives per-exercise progression suggestions from the session
// history.
type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Recommendations produces one suggestion per given exercise name. History
// lookups match names case insensitively, so "bench press" rows count
// towards "Bench Press".
func (a *Analyzer) Recommendations(sessions []Session, exercises []string) []Recommendation {
	sorted := make([]Session, len(sessions))
	copy(sorted, sessions)
	SortSessions(sorted)

	recommendations := make([]Recommendation, 0, len(exercises))
	for _, exercise := range exercises {
		recommendations = append(recommendations, a.recommend(sorted, exercise))
	}
	return recommendations
}

// recommend applies the progression rules to the last two sessions in which
// the exercise appears:
//   - both felt easy or very easy with avg reps >= 10: increase the weight
//   - both felt very hard: back the weight off
//   - anything else, or fewer than two sessions of history: maintain
func (a *Analyzer) recommend(sorted []Session, exercise string) Recommendation {
	history := lastOccurrences(sorted, exercise, 2)

	if len(history) == 0 {
		return Recommendation{
			Exercise: exercise,
			Action:   ActionMaintain,
			Reason:   "no history for this exercise yet",
		}
	}

	last := history[len(history)-1]
	if len(history) < 2 {
		return Recommendation{
			Exercise: exercise,
			Action:   ActionMaintain,
			Weight:   last.Weight,
			Reason:   "only one session of history",
		}
	}

	previous := history[0]

	increase := last.Difficulty.EasyOrBetter() && previous.Difficulty.EasyOrBetter() &&
		last.AvgReps() >= minAvgRepsForIncrease && previous.AvgReps() >= minAvgRepsForIncrease
	if increase {
		return Recommendation{
			Exercise: exercise,
			Action:   ActionIncrease,
			Weight:   last.Weight + WeightStep,
			Reason:   "two consecutive easy sessions with high reps",
		}
	}

	if last.Difficulty == DifficultyVeryHard && previous.Difficulty == DifficultyVeryHard {
		weight := last.Weight - WeightStep
		if weight < 0 {
			weight = 0
		}
		return Recommendation{
			Exercise: exercise,
			Action:   ActionDecrease,
			Weight:   weight,
			Reason:   "two consecutive very hard sessions",
		}
	}

	return Recommendation{
		Exercise: exercise,
		Action:   ActionMaintain,
		Weight:   last.Weight,
	}
}

// lastOccurrences returns the exercise's entry from each of the last n
// sessions containing it, oldest first. Within one session the latest entry
// wins.
func lastOccurrences(sorted []Session, exercise string, n int) []ExerciseEntry {
	var occurrences []ExerciseEntry
	for i := len(sorted) - 1; i >= 0 && len(occurrences) < n; i-- {
		for j := len(sorted[i].Entries) - 1; j >= 0; j-- {
			entry := sorted[i].Entries[j]
			if strings.EqualFold(entry.Exercise, exercise) {
				occurrences = append(occurrences, entry)
				break
			}
		}
	}

	// collected newest first, flip to oldest first
	for i, j := 0, len(occurrences)-1; i < j; i, j = i+1, j-1 {
		occurrences[i], occurrences[j] = occurrences[j], occurrences[i]
	}
	return occurrences
}
