package test

import (
	"context"
	"net/http"
	"testing"

	"github.com/heracles-fit/heracles/internal/users"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) TestLogin() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cases := map[string]struct {
		loginReq           users.LoginRequest
		expectedStatusCode int
	}{
		"good creds": {
			loginReq: users.LoginRequest{
				Email:    testAdminEmail,
				Password: testAdminPassword,
			},
			expectedStatusCode: http.StatusOK,
		},
		"bad password": {
			loginReq: users.LoginRequest{
				Email:    testAdminEmail,
				Password: "bad-password",
			},
			expectedStatusCode: http.StatusUnauthorized,
		},
		"unknown email": {
			loginReq: users.LoginRequest{
				Email:    "nobody@heracles.fit",
				Password: testAdminPassword,
			},
			expectedStatusCode: http.StatusUnauthorized,
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			resp := s.doRequest(ctx, t, http.MethodPost, "/api/auth/login", "", tc.loginReq)
			defer resp.Body.Close()
			require.Equal(t, tc.expectedStatusCode, resp.StatusCode)

			if tc.expectedStatusCode == http.StatusOK {
				var authResp users.AuthResponse
				decodeResponse(t, resp, &authResp)
				assert.NotEmpty(t, authResp.Token)
				assert.Equal(t, tc.loginReq.Email, authResp.User.Email)
			}
		})
	}

	t.Run("rate limiting", func(t *testing.T) {
		// simulate a login brute force attack, config allows
		// 10 attempts per minute
		require.NoError(t, s.redisDataCleanup(ctx))

		loginReq := users.LoginRequest{
			Email:    "attacker@heracles.fit",
			Password: "guess-attempt",
		}
		for i := 1; i <= 15; i++ {
			resp := s.doRequest(ctx, t, http.MethodPost, "/api/auth/login", "", loginReq)
			if i <= 10 {
				require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "iteration: %d", i)
			} else {
				require.Equal(t, http.StatusTooManyRequests, resp.StatusCode, "iteration: %d", i)
			}
			assert.NoError(t, resp.Body.Close())
		}

		require.NoError(t, s.redisDataCleanup(ctx))
	})
}

func (s *IntegrationTestSuite) TestRegister() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	authResp := s.registerUser(ctx, t, uniqueEmail("register", 1), "Reg User", "secret-pass")
	assert.Equal(t, "USER", authResp.User.Role)

	t.Run("duplicate email", func(t *testing.T) {
		resp := s.doRequest(ctx, t, http.MethodPost, "/api/auth/register", "", users.RegisterRequest{
			Email:    authResp.User.Email,
			Name:     "Someone Else",
			Password: "other-pass",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("invalid payload", func(t *testing.T) {
		resp := s.doRequest(ctx, t, http.MethodPost, "/api/auth/register", "", users.RegisterRequest{
			Email:    "not-an-email",
			Name:     "",
			Password: "123",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("token works against protected routes", func(t *testing.T) {
		resp := s.doRequest(ctx, t, http.MethodGet, "/api/workouts", authResp.Token, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("missing token rejected", func(t *testing.T) {
		resp := s.doRequest(ctx, t, http.MethodGet, "/api/workouts", "", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
