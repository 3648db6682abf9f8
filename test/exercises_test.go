package test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/heracles-fit/heracles/internal/exercises"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) createExercise(
	ctx context.Context, t *testing.T, adminToken string, exercise exercises.Exercise,
) exercises.Exercise {
	t.Helper()

	resp := s.doRequest(ctx, t, http.MethodPost, "/api/exercises", adminToken, exercise)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created exercises.Exercise
	decodeResponse(t, resp, &created)
	require.NotZero(t, created.ID)
	return created
}

func (s *IntegrationTestSuite) TestExercisesCatalog() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	admin := s.adminLogin(ctx, t)
	user := s.registerUser(ctx, t, uniqueEmail("catalog", 1), "Catalog User", "secret-pass")

	created := s.createExercise(ctx, t, admin.Token, exercises.Exercise{
		Name:     "Catalog Bench Press",
		Category: exercises.CategoryWeights,
		Capabilities: exercises.Capabilities{
			HasLoad: true,
			HasReps: true,
		},
	})

	t.Run("non admin cannot add", func(t *testing.T) {
		resp := s.doRequest(ctx, t, http.MethodPost, "/api/exercises", user.Token, exercises.Exercise{
			Name:     "Sneaky Exercise",
			Category: exercises.CategoryWeights,
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("unknown category rejected", func(t *testing.T) {
		resp := s.doRequest(ctx, t, http.MethodPost, "/api/exercises", admin.Token, exercises.Exercise{
			Name:     "Yoga Flow",
			Category: "stretchiness",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("catalog visible to all users", func(t *testing.T) {
		resp := s.doRequest(ctx, t, http.MethodGet, "/api/exercises", user.Token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var catalog []exercises.Exercise
		decodeResponse(t, resp, &catalog)

		var found bool
		for _, exercise := range catalog {
			if exercise.ID == created.ID {
				found = true
				assert.Equal(t, created.Name, exercise.Name)
				assert.True(t, exercise.HasLoad)
				assert.True(t, exercise.HasReps)
				assert.False(t, exercise.HasDuration)
			}
		}
		assert.True(t, found)
	})

	t.Run("update flags and list again", func(t *testing.T) {
		hasDuration := true
		resp := s.doRequest(ctx, t,
			http.MethodPut, fmt.Sprintf("/api/exercises/%d", created.ID), admin.Token,
			exercises.UpdateExerciseRequest{HasDuration: &hasDuration},
		)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var updated exercises.Exercise
		decodeResponse(t, resp, &updated)
		assert.True(t, updated.HasDuration)

		// the cached catalog must have been invalidated by the update
		listResp := s.doRequest(ctx, t, http.MethodGet, "/api/exercises", user.Token, nil)
		require.Equal(t, http.StatusOK, listResp.StatusCode)
		var catalog []exercises.Exercise
		decodeResponse(t, listResp, &catalog)
		for _, exercise := range catalog {
			if exercise.ID == created.ID {
				assert.True(t, exercise.HasDuration)
			}
		}
	})

	t.Run("delete", func(t *testing.T) {
		deletable := s.createExercise(ctx, t, admin.Token, exercises.Exercise{
			Name:     "Deletable Exercise",
			Category: exercises.CategoryMobility,
		})

		resp := s.doRequest(ctx, t,
			http.MethodDelete, fmt.Sprintf("/api/exercises/%d", deletable.ID), admin.Token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var deleteResp exercises.DeleteExerciseResponse
		decodeResponse(t, resp, &deleteResp)
		assert.Equal(t, deletable.ID, deleteResp.DeletedID)
	})
}
