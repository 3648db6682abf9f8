package workouts

import (
	"context"
	"sort"

	"github.com/heracles-fit/heracles/internal/exercises"
	"github.com/heracles-fit/heracles/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// Progression chart modes.
const (
	ModeLoad     = "load"
	ModeDuration = "duration"
)

type analyzerRepo interface {
	ListTrees(ctx context.Context, userID int) ([]Workout, error)
	ProgressionRows(ctx context.Context, userID, exerciseID int) ([]ProgressionRow, error)
}

type analyzerCatalog interface {
	Get(ctx context.Context, id int) (*exercises.Exercise, error)
}

type StatsResponse struct {
	VolumeByDay         map[string]float64 `json:"volumeByDay"`
	CardioDurationByDay map[string]int     `json:"cardioDurationByDay"`
}

type ProgressionPoint struct {
	Date        string   `json:"date"`
	TopWeight   *float64 `json:"topWeight"`
	TopVolume   *float64 `json:"topVolume"`
	Est1RM      *float64 `json:"est1rm"`
	DurationSec int      `json:"durationSec"`
}

type ProgressionResponse struct {
	Mode       string             `json:"mode"`
	Name       string             `json:"name"`
	ExerciseID int                `json:"exerciseId"`
	Data       []ProgressionPoint `json:"data"`
}

// Analyzer walks workout trees to produce daily aggregates and
// per-exercise progression series. Read-only.
type Analyzer struct {
	repo    analyzerRepo
	catalog analyzerCatalog
}

func NewAnalyzer(repo analyzerRepo, catalog analyzerCatalog) *Analyzer {
	return &Analyzer{
		repo:    repo,
		catalog: catalog,
	}
}

// Stats computes per-day volume and cardio-duration totals over all of
// the user's workouts. A set with both weight and reps contributes
// weight*reps to the day's volume; a set with a duration contributes
// to the day's cardio total. The two accumulate independently, a
// single set can contribute to both. Days without contributions are
// absent, not zero-filled.
func (a *Analyzer) Stats(ctx context.Context, userID int) (_ *StatsResponse, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.workouts.stats")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	workouts, err := a.repo.ListTrees(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &StatsResponse{
		VolumeByDay:         make(map[string]float64),
		CardioDurationByDay: make(map[string]int),
	}

	for _, workout := range workouts {
		day := DayKey(workout.Date)
		for _, item := range workout.Items {
			for _, set := range item.Sets {
				accumulateSet(stats, day, set)
			}
			for _, groupItem := range item.GroupItems {
				for _, set := range groupItem.Sets {
					accumulateSet(stats, day, set)
				}
			}
		}
	}

	return stats, nil
}

func accumulateSet(stats *StatsResponse, day string, set Set) {
	if set.Weight != nil && set.Reps != nil && *set.Weight != 0 && *set.Reps != 0 {
		stats.VolumeByDay[day] += *set.Weight * float64(*set.Reps)
	}
	if set.DurationSec != nil && *set.DurationSec != 0 {
		stats.CardioDurationByDay[day] += *set.DurationSec
	}
}

// Progression builds the per-day series for one exercise: top weight,
// top volume, estimated 1RM (Epley: weight * (1 + reps/30)) and summed
// duration. Left-join rows for items with zero sets are skipped.
func (a *Analyzer) Progression(ctx context.Context, userID, exerciseID int) (_ *ProgressionResponse, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.workouts.progression")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))
	span.SetAttributes(attribute.Int("exercise.id", exerciseID))

	exercise, err := a.catalog.Get(ctx, exerciseID)
	if err != nil {
		return nil, err
	}

	rows, err := a.repo.ProgressionRows(ctx, userID, exerciseID)
	if err != nil {
		return nil, err
	}

	pointsByDay := make(map[string]*ProgressionPoint)
	for _, row := range rows {
		if row.SetID == nil {
			// left-join miss, item without sets
			continue
		}

		day := DayKey(row.Date)
		point, ok := pointsByDay[day]
		if !ok {
			point = &ProgressionPoint{Date: day}
			pointsByDay[day] = point
		}

		if row.Weight != nil {
			if point.TopWeight == nil || *row.Weight > *point.TopWeight {
				weight := *row.Weight
				point.TopWeight = &weight
			}

			if row.Reps != nil && *row.Reps > 0 {
				volume := *row.Weight * float64(*row.Reps)
				if point.TopVolume == nil || volume > *point.TopVolume {
					point.TopVolume = &volume
				}
				est1rm := *row.Weight * (1 + float64(*row.Reps)/30)
				if point.Est1RM == nil || est1rm > *point.Est1RM {
					point.Est1RM = &est1rm
				}
			}
		}

		if row.DurationSec != nil {
			point.DurationSec += *row.DurationSec
		}
	}

	days := make([]string, 0, len(pointsByDay))
	for day := range pointsByDay {
		days = append(days, day)
	}
	sort.Strings(days)

	data := make([]ProgressionPoint, 0, len(days))
	for _, day := range days {
		data = append(data, *pointsByDay[day])
	}

	mode := ModeLoad
	if !exercise.HasLoad && exercise.HasDuration {
		mode = ModeDuration
	}

	return &ProgressionResponse{
		Mode:       mode,
		Name:       exercise.Name,
		ExerciseID: exercise.ID,
		Data:       data,
	}, nil
}
