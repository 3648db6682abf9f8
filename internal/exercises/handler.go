package exercises

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/coocood/freecache"
	"github.com/heracles-fit/heracles/internal/auth"
	"github.com/heracles-fit/heracles/internal/telemetry/tracing"
	"github.com/heracles-fit/heracles/pkg"
)

//go:generate mockgen -source=$GOFILE -destination=exercises_mocks_test.go -package=exercises_test

type exercisesRepo interface {
	Add(ctx context.Context, exercise Exercise) (*Exercise, error)
	Get(ctx context.Context, id int) (*Exercise, error)
	ListAll(ctx context.Context) ([]Exercise, error)
	Update(ctx context.Context, exercise *Exercise) error
	Delete(ctx context.Context, id int) error
}

const (
	catalogCacheKey       = "exercises-catalog"
	catalogCacheTTLSec    = 300
	CatalogCacheSizeBytes = 1024 * 1024
)

type DeleteExerciseResponse struct {
	DeletedID int `json:"deletedId"`
}

type UpdateExerciseRequest struct {
	Name         *string `json:"name"`
	Category     *string `json:"category"`
	MuscleGroup  *string `json:"muscleGroup"`
	Equipment    *string `json:"equipment"`
	YoutubeURL   *string `json:"youtubeUrl"`
	HasLoad      *bool   `json:"hasLoad"`
	HasReps      *bool   `json:"hasReps"`
	HasDuration  *bool   `json:"hasDuration"`
	HasIntervals *bool   `json:"hasIntervals"`
}

type Handler struct {
	repo  exercisesRepo
	cache *freecache.Cache
}

func NewHandler(repo exercisesRepo, cache *freecache.Cache) *Handler {
	return &Handler{
		repo:  repo,
		cache: cache,
	}
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercises.list")
	defer span.End()

	if cached, err := handler.cache.Get([]byte(catalogCacheKey)); err == nil {
		pkg.WriteResponseBytes(w, pkg.ContentType.JSON, cached, http.StatusOK)
		return
	}

	exercises, err := handler.repo.ListAll(ctx)
	if err != nil {
		log.Errorf("list exercises error: %s", err)
		http.Error(w, "failed to get exercises", http.StatusInternalServerError)
		return
	}

	exercisesJson, err := json.Marshal(exercises)
	if err != nil {
		log.Errorf("marshal exercises error: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := handler.cache.Set([]byte(catalogCacheKey), exercisesJson, catalogCacheTTLSec); err != nil {
		log.Warnf("failed to cache exercises catalog: %s", err)
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, exercisesJson, http.StatusOK)
}

func (handler *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercises.add")
	defer span.End()

	identity := auth.FromContext(ctx)
	if identity == nil || !identity.IsAdmin() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var exercise Exercise
	if err := json.NewDecoder(r.Body).Decode(&exercise); err != nil {
		log.Tracef("new exercise, unmarshal json params: %s", err)
		http.Error(w, "add exercise failed", http.StatusBadRequest)
		return
	}

	if exercise.Name == "" {
		http.Error(w, "error, exercise name empty", http.StatusBadRequest)
		return
	}
	if !ValidCategory(exercise.Category) {
		http.Error(w, "error, unknown exercise category", http.StatusBadRequest)
		return
	}

	exercise.CreatedByID = &identity.ID

	addedExercise, err := handler.repo.Add(ctx, exercise)
	if err != nil {
		log.Errorf("failed to add new exercise [%s]: %s", exercise.Name, err)
		http.Error(w, "error, failed to add new exercise", http.StatusInternalServerError)
		return
	}

	handler.invalidateCatalogCache()

	addedExJson, err := json.Marshal(addedExercise)
	if err != nil {
		log.Errorf("failed to marshal new exercise: %s", err)
		http.Error(w, "error, failed to add new exercise", http.StatusInternalServerError)
		return
	}

	log.Debugf("new exercise added: %s", addedExJson)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedExJson, http.StatusCreated)
}

func (handler *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercises.update")
	defer span.End()

	identity := auth.FromContext(ctx)
	if identity == nil || !identity.IsAdmin() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	id, err := exerciseIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req UpdateExerciseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("update exercise, unmarshal json params: %s", err)
		http.Error(w, "update exercise failed", http.StatusBadRequest)
		return
	}

	exercise, err := handler.repo.Get(ctx, id)
	if errors.Is(err, ErrExerciseNotFound) {
		http.Error(w, "exercise not found", http.StatusNotFound)
		return
	} else if err != nil {
		log.Errorf("failed to get exercise %d: %s", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if req.Name != nil {
		exercise.Name = *req.Name
	}
	if req.Category != nil {
		if !ValidCategory(*req.Category) {
			http.Error(w, "error, unknown exercise category", http.StatusBadRequest)
			return
		}
		exercise.Category = *req.Category
	}
	if req.MuscleGroup != nil {
		exercise.MuscleGroup = req.MuscleGroup
	}
	if req.Equipment != nil {
		exercise.Equipment = req.Equipment
	}
	if req.YoutubeURL != nil {
		exercise.YoutubeURL = req.YoutubeURL
	}
	if req.HasLoad != nil {
		exercise.HasLoad = *req.HasLoad
	}
	if req.HasReps != nil {
		exercise.HasReps = *req.HasReps
	}
	if req.HasDuration != nil {
		exercise.HasDuration = *req.HasDuration
	}
	if req.HasIntervals != nil {
		exercise.HasIntervals = *req.HasIntervals
	}

	if exercise.Name == "" {
		http.Error(w, "error, exercise name empty", http.StatusBadRequest)
		return
	}

	if err := handler.repo.Update(ctx, exercise); err != nil {
		log.Errorf("failed to update exercise %d: %s", id, err)
		http.Error(w, "error, failed to update exercise", http.StatusInternalServerError)
		return
	}

	handler.invalidateCatalogCache()

	updatedJson, err := json.Marshal(exercise)
	if err != nil {
		log.Errorf("failed to marshal updated exercise: %s", err)
		http.Error(w, "failed to marshal updated exercise", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, updatedJson, http.StatusOK)
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercises.delete")
	defer span.End()

	identity := auth.FromContext(ctx)
	if identity == nil || !identity.IsAdmin() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	id, err := exerciseIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := handler.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrExerciseNotFound) {
			http.Error(w, "exercise not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to delete exercise %d: %s", id, err)
		http.Error(w, "exercise not deleted", http.StatusInternalServerError)
		return
	}

	handler.invalidateCatalogCache()

	deleteRespJson, err := json.Marshal(DeleteExerciseResponse{
		DeletedID: id,
	})
	if err != nil {
		log.Errorf("failed to marshal delete response: %s", err)
		http.Error(w, "failed to marshal delete response", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, string(deleteRespJson))
}

func (handler *Handler) invalidateCatalogCache() {
	handler.cache.Del([]byte(catalogCacheKey))
}

func exerciseIDParam(r *http.Request) (int, error) {
	idStr := mux.Vars(r)["id"]
	if idStr == "" {
		return 0, errors.New("error, id empty")
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return 0, errors.New("error, id NaN")
	}
	return id, nil
}
