package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/heracles-fit/heracles/internal/users"

	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) doRequest(
	ctx context.Context,
	t *testing.T,
	method, path, token string,
	body interface{},
) *http.Response {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		bodyJson, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(bodyJson)
	}

	req, err := http.NewRequestWithContext(ctx, method, serverEndpoint+path, reqBody)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(respBytes, target), "body: %s", respBytes)
}

func (s *IntegrationTestSuite) doLogin(ctx context.Context, t *testing.T, email, password string) users.AuthResponse {
	t.Helper()

	resp := s.doRequest(ctx, t, http.MethodPost, "/api/auth/login", "", users.LoginRequest{
		Email:    email,
		Password: password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var authResp users.AuthResponse
	decodeResponse(t, resp, &authResp)
	require.NotEmpty(t, authResp.Token)
	return authResp
}

func (s *IntegrationTestSuite) adminLogin(ctx context.Context, t *testing.T) users.AuthResponse {
	t.Helper()
	return s.doLogin(ctx, t, testAdminEmail, testAdminPassword)
}

// registerUser creates a fresh user account and returns its auth response.
func (s *IntegrationTestSuite) registerUser(ctx context.Context, t *testing.T, email, name, password string) users.AuthResponse {
	t.Helper()

	resp := s.doRequest(ctx, t, http.MethodPost, "/api/auth/register", "", users.RegisterRequest{
		Email:    email,
		Name:     name,
		Password: password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var authResp users.AuthResponse
	decodeResponse(t, resp, &authResp)
	require.NotEmpty(t, authResp.Token)
	require.Equal(t, email, authResp.User.Email)
	return authResp
}

func uniqueEmail(prefix string, n int) string {
	return fmt.Sprintf("%s-%d@heracles.fit", prefix, n)
}
