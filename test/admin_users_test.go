package test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/heracles-fit/heracles/internal/users"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) TestAdminUserManagement() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	admin := s.adminLogin(ctx, t)
	user := s.registerUser(ctx, t, uniqueEmail("managed", 1), "Managed User", "secret-pass")

	t.Run("non admin cannot list users", func(t *testing.T) {
		resp := s.doRequest(ctx, t, http.MethodGet, "/api/admin/users", user.Token, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("admin lists users", func(t *testing.T) {
		resp := s.doRequest(ctx, t, http.MethodGet, "/api/admin/users", admin.Token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var list []users.User
		decodeResponse(t, resp, &list)
		assert.GreaterOrEqual(t, len(list), 2)
	})

	t.Run("promote then demote", func(t *testing.T) {
		resp := s.doRequest(ctx, t,
			http.MethodPost, fmt.Sprintf("/api/admin/users/%d/promote", user.User.ID), admin.Token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NoError(t, resp.Body.Close())

		// two admins now, demoting the fresh one is fine
		role := "USER"
		demoteResp := s.doRequest(ctx, t,
			http.MethodPut, fmt.Sprintf("/api/admin/users/%d", user.User.ID), admin.Token,
			users.UpdateUserRequest{Role: &role},
		)
		require.Equal(t, http.StatusOK, demoteResp.StatusCode)
		assert.NoError(t, demoteResp.Body.Close())
	})

	t.Run("last admin cannot be demoted", func(t *testing.T) {
		role := "USER"
		resp := s.doRequest(ctx, t,
			http.MethodPut, fmt.Sprintf("/api/admin/users/%d", admin.User.ID), admin.Token,
			users.UpdateUserRequest{Role: &role},
		)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("admin cannot delete own account", func(t *testing.T) {
		resp := s.doRequest(ctx, t,
			http.MethodDelete, fmt.Sprintf("/api/admin/users/%d", admin.User.ID), admin.Token, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("delete user cascades", func(t *testing.T) {
		doomed := s.registerUser(ctx, t, uniqueEmail("doomed", 1), "Doomed User", "secret-pass")

		resp := s.doRequest(ctx, t,
			http.MethodDelete, fmt.Sprintf("/api/admin/users/%d", doomed.User.ID), admin.Token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NoError(t, resp.Body.Close())

		// their token still parses but the account is gone
		loginResp := s.doRequest(ctx, t, http.MethodPost, "/api/auth/login", "", users.LoginRequest{
			Email:    doomed.User.Email,
			Password: "secret-pass",
		})
		defer loginResp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, loginResp.StatusCode)
	})
}
