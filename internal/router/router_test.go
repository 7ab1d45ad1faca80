package router

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-lukins/compforge/internal/auth"
	"github.com/m-lukins/compforge/internal/db/memorystorage"
	"github.com/m-lukins/compforge/internal/ipchecker"
	"github.com/m-lukins/compforge/internal/logger"
	"github.com/m-lukins/compforge/internal/models"
	"github.com/m-lukins/compforge/internal/project"
	"github.com/m-lukins/compforge/internal/service"
	"github.com/m-lukins/compforge/internal/user"
)

const (
	testCookieName = "compforge_session"
	testSigningKey = "supersecretkey"
)

func newTestServer(t *testing.T, trustedSubnet string) *httptest.Server {
	t.Helper()

	require.NoError(t, logger.Init("debug"))

	db, err := memorystorage.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	authHandler := auth.New(db, testCookieName, []byte(testSigningKey), time.Hour)
	ipChecker, err := ipchecker.New(trustedSubnet)
	require.NoError(t, err)

	server := httptest.NewServer(New(service.New(db), authHandler, ipChecker))
	t.Cleanup(server.Close)

	return server
}

func newTestClient(server *httptest.Server) *resty.Client {
	return resty.New().SetBaseURL(server.URL)
}

// signupAndSignin registers a fresh user and signs it in, so the client's
// cookie jar holds a valid session afterwards.
func signupAndSignin(t *testing.T, client *resty.Client, username string) *user.User {
	t.Helper()

	resp, err := client.R().
		SetBody(models.SignupRequest{
			Username: username,
			Email:    username + "@example.com",
			Password: "Passw0rd1",
		}).
		Post("/auth/signup")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode())

	var usr user.User
	resp, err = client.R().
		SetBody(models.SigninRequest{Identifier: username, Password: "Passw0rd1"}).
		SetResult(&usr).
		Post("/auth/signin")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	require.NotEmpty(t, usr.ID)

	return &usr
}

func TestSignup(t *testing.T) {
	server := newTestServer(t, "")
	client := newTestClient(server)

	resp, err := client.R().
		SetBody(models.SignupRequest{
			Username: "alice",
			Email:    "alice@example.com",
			Password: "Passw0rd1",
		}).
		Post("/auth/signup")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode())
	assert.NotContains(t, string(resp.Body()), "password", "hashes must never appear in responses")

	t.Run("duplicate username conflicts", func(t *testing.T) {
		resp, err := client.R().
			SetBody(models.SignupRequest{
				Username: "alice",
				Email:    "other@example.com",
				Password: "Passw0rd1",
			}).
			Post("/auth/signup")
		require.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode())
	})

	t.Run("invalid email is rejected", func(t *testing.T) {
		resp, err := client.R().
			SetBody(models.SignupRequest{
				Username: "bob",
				Email:    "not-an-email",
				Password: "Passw0rd1",
			}).
			Post("/auth/signup")
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	})

	t.Run("short password is rejected", func(t *testing.T) {
		resp, err := client.R().
			SetBody(models.SignupRequest{
				Username: "bob",
				Email:    "bob@example.com",
				Password: "short",
			}).
			Post("/auth/signup")
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	})
}

func TestSigninAndSignout(t *testing.T) {
	server := newTestServer(t, "")
	client := newTestClient(server)

	signupAndSignin(t, client, "alice")

	resp, err := client.R().Get("/profile")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode(), "the session cookie authenticates follow-up requests")

	t.Run("wrong password gets a uniform 401", func(t *testing.T) {
		var body models.MessageResponse
		resp, err := client.R().
			SetBody(models.SigninRequest{Identifier: "alice", Password: "wrong"}).
			SetError(&body).
			Post("/auth/signin")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
		assert.Contains(t, body.Message, "unauthenticated")
	})

	t.Run("unknown identifier gets the same 401", func(t *testing.T) {
		resp, err := client.R().
			SetBody(models.SigninRequest{Identifier: "nobody", Password: "Passw0rd1"}).
			Post("/auth/signin")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
	})

	t.Run("signout clears the session", func(t *testing.T) {
		resp, err := client.R().Post("/auth/signout")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())

		resp, err = client.R().Get("/profile")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
	})
}

func TestAuthRequired(t *testing.T) {
	server := newTestServer(t, "")
	client := newTestClient(server)

	for _, route := range []struct {
		method string
		url    string
	}{
		{http.MethodGet, "/profile"},
		{http.MethodGet, "/projects"},
		{http.MethodPost, "/projects"},
		{http.MethodGet, "/projects/favorites"},
		{http.MethodGet, "/projects/components"},
		{http.MethodDelete, "/projects/some-id"},
	} {
		resp, err := client.R().Execute(route.method, route.url)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode(),
			"%s %s must require a session", route.method, route.url)
	}

	t.Run("garbage token is rejected", func(t *testing.T) {
		resp, err := client.R().
			SetHeader("Authorization", "not-a-jwt").
			Get("/profile")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
	})
}

func TestProjectLifecycle(t *testing.T) {
	server := newTestServer(t, "")
	client := newTestClient(server)

	signupAndSignin(t, client, "alice")

	var created project.Project
	resp, err := client.R().
		SetBody(models.CreateProjectRequest{
			Name:        "Demo",
			Description: "demo project",
			Components: []models.ComponentInput{
				{Name: "Btn", Code: "<button/>"},
			},
		}).
		SetResult(&created).
		Post("/projects")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode())
	require.NotEmpty(t, created.ID)
	require.Len(t, created.Components, 1)

	t.Run("missing description is rejected", func(t *testing.T) {
		resp, err := client.R().
			SetBody(map[string]string{"name": "NoDescription"}).
			Post("/projects")
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	})

	t.Run("list contains the project", func(t *testing.T) {
		var projects []project.Project
		resp, err := client.R().SetResult(&projects).Get("/projects")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
		require.Len(t, projects, 1)
		assert.Equal(t, "Demo", projects[0].Name)
	})

	t.Run("patch updates only the supplied fields", func(t *testing.T) {
		var patched project.Project
		resp, err := client.R().
			SetBody(map[string]string{"name": "Renamed"}).
			SetResult(&patched).
			Put("/projects/" + created.ID)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
		assert.Equal(t, "Renamed", patched.Name)
		assert.Equal(t, "demo project", patched.Description)
	})

	t.Run("unknown patch fields are rejected", func(t *testing.T) {
		resp, err := client.R().
			SetBody(map[string]string{"name": "X", "userId": "someone-else"}).
			Put("/projects/" + created.ID)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	})

	t.Run("unknown project id is 404", func(t *testing.T) {
		resp, err := client.R().Get("/projects/no-such-id")
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	})

	t.Run("delete returns the snapshot and cascades", func(t *testing.T) {
		var body models.DeleteProjectResponse
		resp, err := client.R().
			SetResult(&body).
			Delete("/projects/" + created.ID)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
		require.NotNil(t, body.DeletedProject)
		assert.Equal(t, created.ID, body.DeletedProject.ID)
		assert.Len(t, body.DeletedProject.Components, 1)

		resp, err = client.R().Get("/projects/" + created.ID)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	})
}

func TestComponentLifecycle(t *testing.T) {
	server := newTestServer(t, "")
	client := newTestClient(server)

	signupAndSignin(t, client, "alice")

	var proj project.Project
	resp, err := client.R().
		SetBody(models.CreateProjectRequest{Name: "Demo", Description: "d"}).
		SetResult(&proj).
		Post("/projects")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode())

	var comp project.Component
	resp, err = client.R().
		SetBody(models.ComponentInput{Name: "Btn", Code: "<button/>"}).
		SetResult(&comp).
		Post("/projects/" + proj.ID + "/components")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode())
	require.NotEmpty(t, comp.ID)
	assert.False(t, comp.Favorite)

	componentURL := "/projects/" + proj.ID + "/components/" + comp.ID

	t.Run("toggle favorite flips the flag", func(t *testing.T) {
		var toggled project.Component
		resp, err := client.R().SetResult(&toggled).Put(componentURL + "/favorite")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
		assert.True(t, toggled.Favorite)
	})

	t.Run("favorites are a bare array annotated with the parent project", func(t *testing.T) {
		resp, err := client.R().SetDoNotParseResponse(true).Get("/projects/favorites")
		require.NoError(t, err)
		defer resp.RawBody().Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode())

		raw, err := io.ReadAll(resp.RawBody())
		require.NoError(t, err)

		var favorites []project.ComponentWithProject
		require.NoError(t, json.Unmarshal(raw, &favorites), "the body must be a plain array")
		require.Len(t, favorites, 1)
		assert.Equal(t, comp.ID, favorites[0].ID)
		assert.Equal(t, proj.ID, favorites[0].ProjectID)
		assert.Equal(t, "Demo", favorites[0].ProjectName)
	})

	t.Run("the all-components view keeps its envelope", func(t *testing.T) {
		var body models.ComponentsListResponse
		resp, err := client.R().SetResult(&body).Get("/projects/components")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
		require.Len(t, body.Components, 1)
		assert.Equal(t, comp.ID, body.Components[0].ID)
	})

	t.Run("patch with unknown fields is rejected", func(t *testing.T) {
		resp, err := client.R().
			SetBody(map[string]string{"id": "forged"}).
			Put(componentURL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	})

	t.Run("patch updates the code", func(t *testing.T) {
		var patched project.Component
		resp, err := client.R().
			SetBody(map[string]string{"code": "<button>ok</button>"}).
			SetResult(&patched).
			Put(componentURL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
		assert.Equal(t, "<button>ok</button>", patched.Code)
		assert.Equal(t, "Btn", patched.Name)
	})

	t.Run("delete removes the component", func(t *testing.T) {
		resp, err := client.R().Delete(componentURL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())

		resp, err = client.R().Get(componentURL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode())

		var favorites []project.ComponentWithProject
		resp, err = client.R().SetResult(&favorites).Get("/projects/favorites")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
		assert.Empty(t, favorites)
	})
}

func TestOwnershipIsolation(t *testing.T) {
	server := newTestServer(t, "")

	aliceClient := newTestClient(server)
	signupAndSignin(t, aliceClient, "alice")

	var proj project.Project
	resp, err := aliceClient.R().
		SetBody(models.CreateProjectRequest{Name: "Private", Description: "d"}).
		SetResult(&proj).
		Post("/projects")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode())

	malloryClient := newTestClient(server)
	mallory := signupAndSignin(t, malloryClient, "mallory")

	t.Run("foreign project reads as absent", func(t *testing.T) {
		resp, err := malloryClient.R().Get("/projects/" + proj.ID)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	})

	t.Run("foreign project cannot be deleted", func(t *testing.T) {
		resp, err := malloryClient.R().Delete("/projects/" + proj.ID)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode())

		resp, err = aliceClient.R().Get("/projects/" + proj.ID)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
	})

	t.Run("foreign profile cannot be updated", func(t *testing.T) {
		var aliceProfile user.User
		resp, err := aliceClient.R().SetResult(&aliceProfile).Get("/profile")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode())
		require.NotEqual(t, mallory.ID, aliceProfile.ID)

		resp, err = malloryClient.R().
			SetBody(map[string]string{
				"username": "hacked",
				"email":    "hacked@example.com",
			}).
			Put("/profile/" + aliceProfile.ID)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode())
	})
}

func TestProfileRoutes(t *testing.T) {
	server := newTestServer(t, "")
	client := newTestClient(server)

	usr := signupAndSignin(t, client, "alice")

	t.Run("update own profile", func(t *testing.T) {
		var updated user.User
		resp, err := client.R().
			SetBody(map[string]string{
				"username": "alice2",
				"email":    "alice2@example.com",
				"avatar":   "https://example.com/a.png",
			}).
			SetResult(&updated).
			Put("/profile/" + usr.ID)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
		assert.Equal(t, "alice2", updated.Username)
	})

	t.Run("omitted avatar survives a profile patch", func(t *testing.T) {
		var updated user.User
		resp, err := client.R().
			SetBody(map[string]string{"username": "alice3"}).
			SetResult(&updated).
			Put("/profile/" + usr.ID)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
		assert.Equal(t, "alice3", updated.Username)
		assert.Equal(t, "alice2@example.com", updated.Email)
		assert.Equal(t, "https://example.com/a.png", updated.Avatar)
	})

	t.Run("unknown profile patch fields are rejected", func(t *testing.T) {
		resp, err := client.R().
			SetBody(map[string]string{"username": "alice4", "id": "forged"}).
			Put("/profile/" + usr.ID)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	})

	t.Run("malformed email is rejected", func(t *testing.T) {
		resp, err := client.R().
			SetBody(map[string]string{"email": "not-an-email"}).
			Put("/profile/" + usr.ID)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	})

	t.Run("change password", func(t *testing.T) {
		resp, err := client.R().
			SetBody(models.ChangePasswordRequest{
				CurrentPassword: "wrong",
				NewPassword:     "NewPassw0rd",
			}).
			Put("/profile/password")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())

		resp, err = client.R().
			SetBody(models.ChangePasswordRequest{
				CurrentPassword: "Passw0rd1",
				NewPassword:     "NewPassw0rd",
			}).
			Put("/profile/password")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
	})

	t.Run("update visibility", func(t *testing.T) {
		var updated user.User
		resp, err := client.R().
			SetBody(models.UpdateVisibilityRequest{Visibility: "private"}).
			SetResult(&updated).
			Put("/profile/visibility")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
		assert.Equal(t, "private", updated.Visibility)

		resp, err = client.R().
			SetBody(map[string]string{"visibility": "invisible"}).
			Put("/profile/visibility")
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	})
}

func TestInternalStats(t *testing.T) {
	t.Run("allowed from the trusted subnet", func(t *testing.T) {
		server := newTestServer(t, "127.0.0.0/8")
		client := newTestClient(server)
		signupAndSignin(t, client, "alice")

		var stats models.InternalStatsResponse
		resp, err := client.R().SetResult(&stats).Get("/internal/stats")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
		assert.Equal(t, int64(1), stats.Users)
	})

	t.Run("rejected from outside the subnet", func(t *testing.T) {
		server := newTestServer(t, "127.0.0.0/8")
		client := newTestClient(server)

		resp, err := client.R().
			SetHeader("X-Real-IP", "8.8.8.8").
			Get("/internal/stats")
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode())
	})

	t.Run("rejected when no subnet is configured", func(t *testing.T) {
		server := newTestServer(t, "")
		client := newTestClient(server)

		resp, err := client.R().Get("/internal/stats")
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode())
	})
}

func TestGzipResponses(t *testing.T) {
	server := newTestServer(t, "")
	client := newTestClient(server)

	resp, err := client.R().
		SetDoNotParseResponse(true).
		SetHeader("Accept-Encoding", "gzip").
		SetBody(models.SignupRequest{
			Username: "alice",
			Email:    "alice@example.com",
			Password: "Passw0rd1",
		}).
		Post("/auth/signup")
	require.NoError(t, err)
	defer resp.RawBody().Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode())
	require.Equal(t, "gzip", resp.Header().Get("Content-Encoding"))

	reader, err := gzip.NewReader(resp.RawBody())
	require.NoError(t, err)
	decompressed, err := io.ReadAll(reader)
	require.NoError(t, err)

	var usr user.User
	require.NoError(t, json.Unmarshal(decompressed, &usr))
	assert.Equal(t, "alice", usr.Username)
}

func TestGzipRequests(t *testing.T) {
	server := newTestServer(t, "")
	client := newTestClient(server)

	payload, err := json.Marshal(models.SignupRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "Passw0rd1",
	})
	require.NoError(t, err)

	var compressed bytes.Buffer
	gzipWriter := gzip.NewWriter(&compressed)
	_, err = gzipWriter.Write(payload)
	require.NoError(t, err)
	require.NoError(t, gzipWriter.Close())

	resp, err := client.R().
		SetHeader("Content-Encoding", "gzip").
		SetHeader("Content-Type", "application/json").
		SetBody(compressed.Bytes()).
		Post("/auth/signup")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode())
}
