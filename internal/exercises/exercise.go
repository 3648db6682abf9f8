package exercises

// Exercise categories.
const (
	CategoryWeights    = "weights"
	CategoryCardio     = "cardio"
	CategoryHiit       = "hiit"
	CategoryPlyometric = "plyometric"
	CategoryMobility   = "mobility"
)

func ValidCategory(category string) bool {
	switch category {
	case CategoryWeights, CategoryCardio, CategoryHiit, CategoryPlyometric, CategoryMobility:
		return true
	}
	return false
}

// Capabilities is the flag set deciding which set fields are
// meaningful for an exercise. A plain bitset, no hierarchy.
type Capabilities struct {
	HasLoad      bool `json:"hasLoad"`
	HasReps      bool `json:"hasReps"`
	HasDuration  bool `json:"hasDuration"`
	HasIntervals bool `json:"hasIntervals"`
}

type Exercise struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	MuscleGroup *string `json:"muscleGroup,omitempty"`
	Equipment   *string `json:"equipment,omitempty"`
	YoutubeURL  *string `json:"youtubeUrl,omitempty"`
	CreatedByID *int    `json:"createdById,omitempty"`
	Capabilities
}
