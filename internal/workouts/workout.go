package workouts

import "time"

type ItemType string

const (
	ItemTypeExercise ItemType = "exercise"
	ItemTypeSuperset ItemType = "superset"
	ItemTypeCircuit  ItemType = "circuit"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeExercise, ItemTypeSuperset, ItemTypeCircuit:
		return true
	}
	return false
}

// IsGroup reports whether the item owns group items instead of sets.
func (t ItemType) IsGroup() bool {
	return t == ItemTypeSuperset || t == ItemTypeCircuit
}

// Set is one recorded effort. All measurement fields are optional;
// which ones are meaningful is decided by the owning exercise's
// capability flags, not here.
type Set struct {
	ID          int      `json:"id,omitempty"`
	Reps        *int     `json:"reps,omitempty"`
	Weight      *float64 `json:"weight,omitempty"`
	DurationSec *int     `json:"durationSec,omitempty"`
	DistanceM   *float64 `json:"distanceM,omitempty"`
	Intervals   *int     `json:"intervals,omitempty"`
	WorkSec     *int     `json:"workSec,omitempty"`
	RestSec     *int     `json:"restSec,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
}

// GroupItem is one exercise slot inside a superset or circuit.
type GroupItem struct {
	ID         int   `json:"id,omitempty"`
	ExerciseID int   `json:"exerciseId"`
	OrderIndex int   `json:"orderIndex"`
	Sets       []Set `json:"sets"`
}

type WorkoutItem struct {
	ID         int         `json:"id,omitempty"`
	ItemType   ItemType    `json:"itemType"`
	ExerciseID *int        `json:"exerciseId,omitempty"`
	OrderIndex int         `json:"orderIndex"`
	Sets       []Set       `json:"sets,omitempty"`
	GroupItems []GroupItem `json:"groupItems,omitempty"`
}

// Workout is the aggregate root. Items form the tree
// workout -> items -> {sets | group items -> sets}.
type Workout struct {
	ID        int           `json:"id"`
	UserID    int           `json:"userId"`
	Date      string        `json:"date"`
	Title     *string       `json:"title,omitempty"`
	Notes     *string       `json:"notes,omitempty"`
	CreatedAt *time.Time    `json:"createdAt,omitempty"`
	Items     []WorkoutItem `json:"items,omitempty"`

	// distinct referenced exercise names, filled only for summary listings
	ExerciseNames []string `json:"exerciseNames,omitempty"`
}

// Payload is the client shape shared by create and full replace.
type Payload struct {
	Date  string        `json:"date"`
	Title *string       `json:"title"`
	Notes *string       `json:"notes"`
	Items []WorkoutItem `json:"items"`
}

// DayKey buckets a workout date to its calendar day, the first 10
// characters of the date string.
func DayKey(date string) string {
	if len(date) > 10 {
		return date[:10]
	}
	return date
}
