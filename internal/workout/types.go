package workout

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the session date format, both in the API and in the sheet.
const DateLayout = "2006-01-02"

var ErrValidation = errors.New("validation error")

type Difficulty string

const (
	DifficultyVeryEasy Difficulty = "very-easy"
	DifficultyEasy     Difficulty = "easy"
	DifficultyMedium   Difficulty = "medium"
	DifficultyHard     Difficulty = "hard"
	DifficultyVeryHard Difficulty = "very-hard"
)

var difficultyDisplay = map[Difficulty]string{
	DifficultyVeryEasy: "Very Easy",
	DifficultyEasy:     "Easy",
	DifficultyMedium:   "Medium",
	DifficultyHard:     "Hard",
	DifficultyVeryHard: "Very Hard",
}

// Display returns the human readable label used in the sheet cells.
func (d Difficulty) Display() string {
	if label, ok := difficultyDisplay[d]; ok {
		return label
	}
	return difficultyDisplay[DifficultyMedium]
}

func (d Difficulty) Valid() bool {
	_, ok := difficultyDisplay[d]
	return ok
}

// EasyOrBetter reports whether the entry felt easy or very easy, the
// precondition for a weight increase suggestion.
func (d Difficulty) EasyOrBetter() bool {
	return d == DifficultyVeryEasy || d == DifficultyEasy
}

// ParseDifficulty maps free-form difficulty text to the enum. Substring
// match, case insensitive; "very hard" is checked before "hard" so the
// longer label wins. Anything unrecognized falls back to medium.
func ParseDifficulty(raw string) Difficulty {
	lowered := strings.ToLower(raw)
	switch {
	case strings.Contains(lowered, "very easy"), strings.Contains(lowered, "very-easy"):
		return DifficultyVeryEasy
	case strings.Contains(lowered, "very hard"), strings.Contains(lowered, "very-hard"):
		return DifficultyVeryHard
	case strings.Contains(lowered, "easy"):
		return DifficultyEasy
	case strings.Contains(lowered, "hard"):
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}

// ExerciseEntry is one logged set group: a single exercise performed at one
// weight for a number of sets.
type ExerciseEntry struct {
	Exercise   string     `json:"exercise"`
	Weight     float64    `json:"weight"`
	Sets       int        `json:"sets"`
	Reps       []int      `json:"reps"`
	Difficulty Difficulty `json:"difficulty"`
	Notes      string     `json:"notes,omitempty"`
	LoggedAt   time.Time  `json:"loggedAt,omitempty"`
}

func (e ExerciseEntry) Validate() error {
	if strings.TrimSpace(e.Exercise) == "" {
		return fmt.Errorf("%w: exercise name is required", ErrValidation)
	}
	if e.Weight < 0 {
		return fmt.Errorf("%w: weight must not be negative", ErrValidation)
	}
	if e.Sets < 1 {
		return fmt.Errorf("%w: sets must be at least 1", ErrValidation)
	}
	if len(e.Reps) == 0 {
		return fmt.Errorf("%w: at least one reps count is required", ErrValidation)
	}
	for _, reps := range e.Reps {
		if reps < 0 {
			return fmt.Errorf("%w: reps must not be negative", ErrValidation)
		}
	}
	if e.Difficulty != "" && !e.Difficulty.Valid() {
		return fmt.Errorf("%w: unknown difficulty %q", ErrValidation, e.Difficulty)
	}
	return nil
}

// AvgReps is the mean reps across the entry's sets.
func (e ExerciseEntry) AvgReps() float64 {
	if len(e.Reps) == 0 {
		return 0
	}
	var total int
	for _, reps := range e.Reps {
		total += reps
	}
	return float64(total) / float64(len(e.Reps))
}

// Session holds all entries of one calendar day, in logged order.
type Session struct {
	Date    string          `json:"date"`
	Entries []ExerciseEntry `json:"entries"`
}

func (s Session) Validate() error {
	if _, err := time.Parse(DateLayout, s.Date); err != nil {
		return fmt.Errorf("%w: bad session date %q", ErrValidation, s.Date)
	}
	for i, entry := range s.Entries {
		if err := entry.Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}

// SortSessions orders sessions by date ascending, in place.
func SortSessions(sessions []Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Date < sessions[j].Date
	})
}

// NormalizeExerciseList returns the list sorted and deduplicated, blank
// names dropped. Names keep their original casing.
func NormalizeExerciseList(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	normalized := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		normalized = append(normalized, name)
	}
	sort.Strings(normalized)
	return normalized
}

// PlanSlot is one position in a workout plan. Positions are 1-based and
// dense, renumbered after every edit.
type PlanSlot struct {
	Position int    `json:"position"`
	Exercise string `json:"exercise"`
}

type Plan struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Slots          []PlanSlot `json:"slots"`
	CreatedAt      time.Time  `json:"createdAt"`
	CreatedBy      string     `json:"createdBy,omitempty"`
	CreatorSheetID string     `json:"creatorSheetId,omitempty"`
}

func NewPlan(name string, slots []PlanSlot, createdBy, creatorSheetID string) (*Plan, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: plan name is required", ErrValidation)
	}
	plan := &Plan{
		ID:             uuid.NewString(),
		Name:           name,
		CreatedAt:      time.Now(),
		CreatedBy:      createdBy,
		CreatorSheetID: creatorSheetID,
	}
	plan.SetSlots(slots)
	return plan, nil
}

// SetSlots replaces the plan's slots, dropping blank exercises and
// renumbering positions 1..n in the given order.
func (p *Plan) SetSlots(slots []PlanSlot) {
	renumbered := make([]PlanSlot, 0, len(slots))
	for _, slot := range slots {
		if strings.TrimSpace(slot.Exercise) == "" {
			continue
		}
		slot.Position = len(renumbered) + 1
		renumbered = append(renumbered, slot)
	}
	p.Slots = renumbered
}
