package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kinship/internal/config"
	"kinship/internal/lock"
	"kinship/internal/repository"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "Correct-Horse-9"

type testEnv struct {
	server *Server
	app    *fiber.App
	store  *repository.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	cfg := &config.Config{
		Env:         "test",
		JWTSecret:   "test-secret",
		JWTTTLHours: 1,
	}
	s, err := NewServerWithDeps(cfg, Deps{
		Store:    store,
		Locker:   lock.NewLocalLocker(time.Second),
		HashCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	return &testEnv{server: s, app: s.NewApp(), store: store}
}

// do sends a request with an optional JSON body and bearer token and
// decodes the JSON response into out when out is non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out), "%s %s", method, path)
	}
	return resp.StatusCode
}

type account struct {
	ID    uint
	Token string
}

func (e *testEnv) signup(t *testing.T, username string) account {
	t.Helper()
	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID uint `json:"id"`
		} `json:"user"`
	}
	status := e.do(t, http.MethodPost, "/api/auth/signup", "", fiber.Map{
		"username": username,
		"password": testPassword,
	}, &resp)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, resp.Token)
	return account{ID: resp.User.ID, Token: resp.Token}
}

func (e *testEnv) befriend(t *testing.T, a, b account) {
	t.Helper()
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, fmt.Sprintf("/api/friends/requests/%d", b.ID), a.Token, nil, nil))
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, fmt.Sprintf("/api/friends/requests/%d/accept", a.ID), b.Token, nil, nil))
}

func TestHumanizeParam(t *testing.T) {
	tests := []struct {
		param    string
		expected string
	}{
		{"id", "ID"},
		{"userId", "user ID"},
		{"commentId", "comment ID"},
		{"something", "something"},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			assert.Equal(t, tt.expected, humanizeParam(tt.param))
		})
	}
}

func TestParsePagination(t *testing.T) {
	app := fiber.New()
	app.Get("/items", func(c *fiber.Ctx) error {
		p := parsePagination(c)
		return c.JSON(fiber.Map{"limit": p.Limit, "offset": p.Offset})
	})

	tests := []struct {
		query  string
		limit  float64
		offset float64
	}{
		{"", defaultPaginationLimit, 0},
		{"?limit=10&offset=30", 10, 30},
		{"?limit=1000", maxPaginationLimit, 0},
		{"?limit=-4&offset=-2", defaultPaginationLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/items"+tt.query, nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			var body map[string]float64
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.limit, body["limit"])
			assert.Equal(t, tt.offset, body["offset"])
		})
	}
}

func TestParseID_Invalid(t *testing.T) {
	e := newTestEnv(t)
	alice := e.signup(t, "alice")

	var body map[string]any
	status := e.do(t, http.MethodGet, "/api/users/abc", alice.Token, nil, &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid ID", body["error"])

	status = e.do(t, http.MethodPost, "/api/friends/requests/0", alice.Token, nil, &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid user ID", body["error"])
}
