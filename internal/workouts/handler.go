package workouts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/heracles-fit/heracles/internal/auth"
	"github.com/heracles-fit/heracles/internal/exercises"
	"github.com/heracles-fit/heracles/internal/telemetry/metrics"
	"github.com/heracles-fit/heracles/internal/telemetry/tracing"
	"github.com/heracles-fit/heracles/pkg"
)

//go:generate mockgen -source=$GOFILE -destination=workouts_mocks_test.go -package=workouts_test

type workoutsRepo interface {
	Create(ctx context.Context, workout Workout) (int, error)
	Get(ctx context.Context, id int) (*Workout, error)
	ListByUser(ctx context.Context, userID int, from, to string) ([]Workout, error)
	ListTrees(ctx context.Context, userID int) ([]Workout, error)
	ExerciseNames(ctx context.Context, workoutID int) ([]string, error)
	ProgressionRows(ctx context.Context, userID, exerciseID int) ([]ProgressionRow, error)
	Replace(ctx context.Context, workout Workout) error
	Delete(ctx context.Context, id int) error
}

type exerciseCatalog interface {
	Get(ctx context.Context, id int) (*exercises.Exercise, error)
}

type SaveWorkoutResponse struct {
	Ok        bool `json:"ok"`
	WorkoutID int  `json:"workoutId"`
}

type OkResponse struct {
	Ok bool `json:"ok"`
}

type Handler struct {
	repo           workoutsRepo
	catalog        exerciseCatalog
	analyzer       *Analyzer
	metricsManager *metrics.Manager
}

func NewHandler(repo workoutsRepo, catalog exerciseCatalog, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		repo:           repo,
		catalog:        catalog,
		analyzer:       NewAnalyzer(repo, catalog),
		metricsManager: metricsManager,
	}
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.list")
	defer span.End()

	identity := auth.FromContext(ctx)
	if identity == nil {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	query := r.URL.Query()
	workouts, err := handler.repo.ListByUser(ctx, identity.ID, query.Get("from"), query.Get("to"))
	if err != nil {
		log.Errorf("list workouts for user %d: %s", identity.ID, err)
		http.Error(w, "failed to get workouts", http.StatusInternalServerError)
		return
	}

	if summary := query.Get("summary"); summary == "1" || summary == "true" {
		for i := range workouts {
			names, err := handler.repo.ExerciseNames(ctx, workouts[i].ID)
			if err != nil {
				log.Errorf("exercise names for workout %d: %s", workouts[i].ID, err)
				http.Error(w, "failed to get workouts", http.StatusInternalServerError)
				return
			}
			workouts[i].ExerciseNames = names
		}
	}

	workoutsJson, err := json.Marshal(workouts)
	if err != nil {
		log.Errorf("marshal workouts: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, workoutsJson, http.StatusOK)
}

func (handler *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.create")
	defer span.End()

	identity := auth.FromContext(ctx)
	if identity == nil {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var payload Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Tracef("new workout, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if fieldErrors := ValidatePayload(payload); fieldErrors != nil {
		pkg.WriteErrorResponse(w, pkg.ErrorResponse{
			Error:  "validation failed",
			Fields: fieldErrors,
		}, http.StatusBadRequest)
		return
	}

	items, err := handler.pruneItems(ctx, payload.Items)
	if err != nil {
		log.Errorf("prune workout items: %s", err)
		http.Error(w, "failed to create workout", http.StatusInternalServerError)
		return
	}

	workoutID, err := handler.repo.Create(ctx, Workout{
		UserID: identity.ID,
		Date:   payload.Date,
		Title:  payload.Title,
		Notes:  payload.Notes,
		Items:  items,
	})
	if err != nil {
		log.Errorf("create workout for user %d: %s", identity.ID, err)
		http.Error(w, "failed to create workout", http.StatusInternalServerError)
		return
	}

	handler.metricsManager.CounterWorkoutsCreated.Inc()

	respJson, err := json.Marshal(SaveWorkoutResponse{Ok: true, WorkoutID: workoutID})
	if err != nil {
		log.Errorf("marshal create workout response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusCreated)
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.get")
	defer span.End()

	workout, ok := handler.ownedWorkout(ctx, w, r)
	if !ok {
		return
	}

	workoutJson, err := json.Marshal(workout)
	if err != nil {
		log.Errorf("marshal workout: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, workoutJson, http.StatusOK)
}

func (handler *Handler) HandleReplace(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.replace")
	defer span.End()

	workout, ok := handler.ownedWorkout(ctx, w, r)
	if !ok {
		return
	}

	var payload Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Tracef("replace workout, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if fieldErrors := ValidatePayload(payload); fieldErrors != nil {
		pkg.WriteErrorResponse(w, pkg.ErrorResponse{
			Error:  "validation failed",
			Fields: fieldErrors,
		}, http.StatusBadRequest)
		return
	}

	items, err := handler.pruneItems(ctx, payload.Items)
	if err != nil {
		log.Errorf("prune workout items: %s", err)
		http.Error(w, "failed to replace workout", http.StatusInternalServerError)
		return
	}

	if err := handler.repo.Replace(ctx, Workout{
		ID:     workout.ID,
		UserID: workout.UserID,
		Date:   payload.Date,
		Title:  payload.Title,
		Notes:  payload.Notes,
		Items:  items,
	}); err != nil {
		if errors.Is(err, ErrWorkoutNotFound) {
			pkg.WriteJSONError(w, "workout not found", http.StatusNotFound)
			return
		}
		log.Errorf("replace workout %d: %s", workout.ID, err)
		http.Error(w, "failed to replace workout", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(SaveWorkoutResponse{Ok: true, WorkoutID: workout.ID})
	if err != nil {
		log.Errorf("marshal replace workout response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.delete")
	defer span.End()

	workout, ok := handler.ownedWorkout(ctx, w, r)
	if !ok {
		return
	}

	if err := handler.repo.Delete(ctx, workout.ID); err != nil {
		if errors.Is(err, ErrWorkoutNotFound) {
			pkg.WriteJSONError(w, "workout not found", http.StatusNotFound)
			return
		}
		log.Errorf("delete workout %d: %s", workout.ID, err)
		http.Error(w, "failed to delete workout", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(OkResponse{Ok: true})
	if err != nil {
		log.Errorf("marshal delete workout response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

func (handler *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.stats")
	defer span.End()

	identity := auth.FromContext(ctx)
	if identity == nil {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	stats, err := handler.analyzer.Stats(ctx, identity.ID)
	if err != nil {
		log.Errorf("stats for user %d: %s", identity.ID, err)
		http.Error(w, "failed to get stats", http.StatusInternalServerError)
		return
	}

	statsJson, err := json.Marshal(stats)
	if err != nil {
		log.Errorf("marshal stats: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, statsJson, http.StatusOK)
}

func (handler *Handler) HandleProgression(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.progression")
	defer span.End()

	identity := auth.FromContext(ctx)
	if identity == nil {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	exerciseIDStr := r.URL.Query().Get("exerciseId")
	if exerciseIDStr == "" {
		pkg.WriteJSONError(w, "exerciseId is required", http.StatusBadRequest)
		return
	}
	exerciseID, err := strconv.Atoi(exerciseIDStr)
	if err != nil {
		pkg.WriteJSONError(w, "exerciseId must be a number", http.StatusBadRequest)
		return
	}

	progression, err := handler.analyzer.Progression(ctx, identity.ID, exerciseID)
	if err != nil {
		if errors.Is(err, exercises.ErrExerciseNotFound) {
			pkg.WriteJSONError(w, "exercise not found", http.StatusNotFound)
			return
		}
		log.Errorf("progression for user %d, exercise %d: %s", identity.ID, exerciseID, err)
		http.Error(w, "failed to get progression", http.StatusInternalServerError)
		return
	}

	progressionJson, err := json.Marshal(progression)
	if err != nil {
		log.Errorf("marshal progression: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, progressionJson, http.StatusOK)
}

// ownedWorkout loads the workout from the path id and enforces the
// ownership rule. Every authorization failure renders as not-found so
// existence never leaks to non-owners.
func (handler *Handler) ownedWorkout(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Workout, bool) {
	identity := auth.FromContext(ctx)
	if identity == nil {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	idStr := mux.Vars(r)["id"]
	id, err := strconv.Atoi(idStr)
	if err != nil {
		pkg.WriteJSONError(w, "error, id NaN", http.StatusBadRequest)
		return nil, false
	}

	workout, err := handler.repo.Get(ctx, id)
	if errors.Is(err, ErrWorkoutNotFound) {
		pkg.WriteJSONError(w, "workout not found", http.StatusNotFound)
		return nil, false
	} else if err != nil {
		log.Errorf("get workout %d: %s", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}

	if !identity.IsAdmin() && workout.UserID != identity.ID {
		pkg.WriteJSONError(w, "workout not found", http.StatusNotFound)
		return nil, false
	}

	return workout, true
}

// pruneItems drops set fields that are illegal for the owning
// exercise's capabilities. Unknown exercise ids are tolerated, their
// sets pass through unpruned.
func (handler *Handler) pruneItems(ctx context.Context, items []WorkoutItem) ([]WorkoutItem, error) {
	capsCache := make(map[int]*exercises.Capabilities)
	capsFor := func(exerciseID int) (*exercises.Capabilities, error) {
		if caps, ok := capsCache[exerciseID]; ok {
			return caps, nil
		}
		exercise, err := handler.catalog.Get(ctx, exerciseID)
		if errors.Is(err, exercises.ErrExerciseNotFound) {
			capsCache[exerciseID] = nil
			return nil, nil
		} else if err != nil {
			return nil, err
		}
		capsCache[exerciseID] = &exercise.Capabilities
		return &exercise.Capabilities, nil
	}

	pruned := make([]WorkoutItem, len(items))
	for i, item := range items {
		pruned[i] = item

		if item.ItemType == ItemTypeExercise && item.ExerciseID != nil {
			caps, err := capsFor(*item.ExerciseID)
			if err != nil {
				return nil, err
			}
			if caps != nil {
				sets := make([]Set, len(item.Sets))
				for j, set := range item.Sets {
					sets[j] = PruneSet(set, *caps)
				}
				pruned[i].Sets = sets
			}
			continue
		}

		if len(item.GroupItems) > 0 {
			groupItems := make([]GroupItem, len(item.GroupItems))
			copy(groupItems, item.GroupItems)
			for g, groupItem := range groupItems {
				caps, err := capsFor(groupItem.ExerciseID)
				if err != nil {
					return nil, err
				}
				if caps == nil {
					continue
				}
				sets := make([]Set, len(groupItem.Sets))
				for j, set := range groupItem.Sets {
					sets[j] = PruneSet(set, *caps)
				}
				groupItems[g].Sets = sets
			}
			pruned[i].GroupItems = groupItems
		}
	}

	return pruned, nil
}
