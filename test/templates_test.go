package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/heracles-fit/heracles/internal/templates"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) TestTemplates() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	user := s.registerUser(ctx, t, uniqueEmail("templater", 1), "Templater", "secret-pass")
	stranger := s.registerUser(ctx, t, uniqueEmail("templater", 2), "Other Templater", "secret-pass")

	itemsBlob := `[{"itemType":"exercise","exerciseId":12345,"sets":[{"reps":5}]}]`

	var created templates.Template
	t.Run("create", func(t *testing.T) {
		resp := s.doRequest(ctx, t, http.MethodPost, "/api/templates", user.Token, templates.SaveTemplateRequest{
			Name:  "push day",
			Items: json.RawMessage(itemsBlob),
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		decodeResponse(t, resp, &created)
		require.NotZero(t, created.ID)
		// items are stored opaque, unknown exercise ids included
		assert.JSONEq(t, itemsBlob, string(created.Items))
	})

	t.Run("list", func(t *testing.T) {
		resp := s.doRequest(ctx, t, http.MethodGet, "/api/templates", user.Token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var list []templates.Template
		decodeResponse(t, resp, &list)
		require.Len(t, list, 1)
		assert.Equal(t, created.ID, list[0].ID)
	})

	t.Run("stranger sees nothing", func(t *testing.T) {
		listResp := s.doRequest(ctx, t, http.MethodGet, "/api/templates", stranger.Token, nil)
		require.Equal(t, http.StatusOK, listResp.StatusCode)
		var list []templates.Template
		decodeResponse(t, listResp, &list)
		assert.Empty(t, list)

		getResp := s.doRequest(ctx, t,
			http.MethodGet, fmt.Sprintf("/api/templates/%d", created.ID), stranger.Token, nil)
		defer getResp.Body.Close()
		assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
	})

	t.Run("update", func(t *testing.T) {
		resp := s.doRequest(ctx, t,
			http.MethodPut, fmt.Sprintf("/api/templates/%d", created.ID), user.Token,
			templates.SaveTemplateRequest{Name: "pull day"},
		)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var updated templates.Template
		decodeResponse(t, resp, &updated)
		assert.Equal(t, "pull day", updated.Name)
		assert.JSONEq(t, `[]`, string(updated.Items))
	})

	t.Run("delete", func(t *testing.T) {
		resp := s.doRequest(ctx, t,
			http.MethodDelete, fmt.Sprintf("/api/templates/%d", created.ID), user.Token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NoError(t, resp.Body.Close())

		getResp := s.doRequest(ctx, t,
			http.MethodGet, fmt.Sprintf("/api/templates/%d", created.ID), user.Token, nil)
		defer getResp.Body.Close()
		assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
	})
}
