// Package router wires the HTTP surface of the service: route
// registration, request decoding and validation, and translation of
// service-layer errors into HTTP statuses with {"message"} bodies.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/m-lukins/compforge/internal/auth"
	"github.com/m-lukins/compforge/internal/gzippedhttp"
	"github.com/m-lukins/compforge/internal/ipchecker"
	"github.com/m-lukins/compforge/internal/logger"
	"github.com/m-lukins/compforge/internal/models"
	"github.com/m-lukins/compforge/internal/project"
	"github.com/m-lukins/compforge/internal/user"
)

type appService interface {
	Register(ctx context.Context, req models.SignupRequest) (*user.User, error)
	Authenticate(ctx context.Context, req models.SigninRequest) (*user.User, error)

	GetProfile(ctx context.Context, userID string) (*user.User, error)
	UpdateProfile(
		ctx context.Context,
		requesterID string,
		targetUserID string,
		patch models.ProfilePatch,
	) (*user.User, error)
	ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error
	UpdateVisibility(ctx context.Context, userID string, visibility string) (*user.User, error)

	ListProjects(ctx context.Context, ownerID string) ([]project.Project, error)
	CreateProject(
		ctx context.Context,
		ownerID string,
		req models.CreateProjectRequest,
	) (*project.Project, error)
	GetProject(ctx context.Context, ownerID, projectID string) (*project.Project, error)
	UpdateProject(
		ctx context.Context,
		ownerID string,
		projectID string,
		patch models.ProjectPatch,
	) (*project.Project, error)
	DeleteProject(ctx context.Context, ownerID, projectID string) (*project.Project, error)

	ListComponents(ctx context.Context, ownerID, projectID string) ([]project.Component, error)
	CreateComponent(
		ctx context.Context,
		ownerID string,
		projectID string,
		input models.ComponentInput,
	) (*project.Component, error)
	GetComponent(ctx context.Context, ownerID, projectID, componentID string) (*project.Component, error)
	UpdateComponent(
		ctx context.Context,
		ownerID string,
		projectID string,
		componentID string,
		patch models.ComponentPatch,
	) (*project.Component, error)
	DeleteComponent(ctx context.Context, ownerID, projectID, componentID string) error
	ToggleFavorite(ctx context.Context, ownerID, projectID, componentID string) (*project.Component, error)

	ListAllComponents(ctx context.Context, ownerID string) ([]project.ComponentWithProject, error)
	ListFavoriteComponents(ctx context.Context, ownerID string) ([]project.ComponentWithProject, error)

	GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error)
	Ping(ctx context.Context) error
}

type authenticator interface {
	AuthenticateUser(h http.Handler) http.Handler
	BuildJWTString(userID string) (string, error)
	SetSessionCookie(response http.ResponseWriter, tokenString string)
	ClearSessionCookie(response http.ResponseWriter)
}

// Router holds the dependencies of the HTTP handlers.
type Router struct {
	service   appService
	auth      authenticator
	ipChecker *ipchecker.IPChecker
	validate  *validator.Validate
}

// New builds the chi mux with all application routes and middleware.
func New(
	service appService,
	authHandler authenticator,
	ipChecker *ipchecker.IPChecker,
) http.Handler {
	rt := &Router{
		service:   service,
		auth:      authHandler,
		ipChecker: ipChecker,
		validate:  validator.New(),
	}

	router := chi.NewRouter()
	router.Use(logger.WithLoggingHTTPMiddleware)
	router.Use(gzippedhttp.WithGzip)

	router.Post(`/auth/signup`, rt.postSignup)
	router.Post(`/auth/signin`, rt.postSignin)
	router.Get(`/ping`, rt.getPing)
	router.Get(`/internal/stats`, rt.getInternalStats)

	router.Group(func(authenticated chi.Router) {
		authenticated.Use(rt.auth.AuthenticateUser)

		authenticated.Post(`/auth/signout`, rt.postSignout)

		authenticated.Get(`/profile`, rt.getProfile)
		authenticated.Put(`/profile/password`, rt.putProfilePassword)
		authenticated.Put(`/profile/visibility`, rt.putProfileVisibility)
		authenticated.Put(`/profile/{id}`, rt.putProfile)

		authenticated.Get(`/projects`, rt.getProjects)
		authenticated.Post(`/projects`, rt.postProjects)
		authenticated.Get(`/projects/favorites`, rt.getFavoriteComponents)
		authenticated.Get(`/projects/components`, rt.getAllComponents)
		authenticated.Get(`/projects/{projectID}`, rt.getProject)
		authenticated.Put(`/projects/{projectID}`, rt.putProject)
		authenticated.Delete(`/projects/{projectID}`, rt.deleteProject)

		authenticated.Get(`/projects/{projectID}/components`, rt.getProjectComponents)
		authenticated.Post(`/projects/{projectID}/components`, rt.postProjectComponents)
		authenticated.Get(`/projects/{projectID}/components/{componentID}`, rt.getComponent)
		authenticated.Put(`/projects/{projectID}/components/{componentID}`, rt.putComponent)
		authenticated.Delete(`/projects/{projectID}/components/{componentID}`, rt.deleteComponent)
		authenticated.Put(`/projects/{projectID}/components/{componentID}/favorite`, rt.putToggleFavorite)
	})

	return router
}

func writeJSON(response http.ResponseWriter, status int, payload interface{}) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	if err := json.NewEncoder(response).Encode(payload); err != nil {
		logger.Log.Debugln("Error encoding the response payload: ", err)
	}
}

// writeError maps the service error taxonomy onto HTTP statuses.
// Errors outside the taxonomy are reported as 500 with a generic
// message; details are only logged.
func writeError(response http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, models.ErrUnauthorized):
		status = http.StatusUnauthorized
		message = err.Error()
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
		message = err.Error()
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, models.ErrConflict):
		status = http.StatusConflict
		message = err.Error()
	default:
		logger.Log.Errorln("internal error: ", err)
	}

	writeJSON(response, status, models.MessageResponse{Message: message})
}

func (rt *Router) decodeAndValidate(request *http.Request, target interface{}) error {
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		return models.ErrValidation
	}
	if err := rt.validate.Struct(target); err != nil {
		return models.ErrValidation
	}

	return nil
}

// decodeStrict rejects unknown fields. It is used for patch bodies so
// immutable fields (id, createdAt, owner) cannot be smuggled in.
func decodeStrict(request *http.Request, target interface{}) error {
	decoder := json.NewDecoder(request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return models.ErrValidation
	}

	return nil
}

func callerID(request *http.Request) string {
	userID, _ := auth.UserIDFromContext(request.Context())
	return userID
}

func (rt *Router) postSignup(response http.ResponseWriter, request *http.Request) {
	var req models.SignupRequest
	if err := rt.decodeAndValidate(request, &req); err != nil {
		writeError(response, err)
		return
	}

	usr, err := rt.service.Register(request.Context(), req)
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusCreated, usr)
}

func (rt *Router) postSignin(response http.ResponseWriter, request *http.Request) {
	var req models.SigninRequest
	if err := rt.decodeAndValidate(request, &req); err != nil {
		writeError(response, err)
		return
	}

	usr, err := rt.service.Authenticate(request.Context(), req)
	if err != nil {
		writeError(response, err)
		return
	}

	tokenString, err := rt.auth.BuildJWTString(usr.ID)
	if err != nil {
		writeError(response, err)
		return
	}
	rt.auth.SetSessionCookie(response, tokenString)

	writeJSON(response, http.StatusOK, usr)
}

func (rt *Router) postSignout(response http.ResponseWriter, request *http.Request) {
	rt.auth.ClearSessionCookie(response)
	writeJSON(response, http.StatusOK, models.MessageResponse{Message: "Signed out successfully"})
}

func (rt *Router) getProfile(response http.ResponseWriter, request *http.Request) {
	usr, err := rt.service.GetProfile(request.Context(), callerID(request))
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, usr)
}

func (rt *Router) putProfile(response http.ResponseWriter, request *http.Request) {
	var patch models.ProfilePatch
	if err := decodeStrict(request, &patch); err != nil {
		writeError(response, err)
		return
	}
	if err := rt.validate.Struct(&patch); err != nil {
		writeError(response, models.ErrValidation)
		return
	}

	usr, err := rt.service.UpdateProfile(
		request.Context(),
		callerID(request),
		chi.URLParam(request, "id"),
		patch,
	)
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, usr)
}

func (rt *Router) putProfilePassword(response http.ResponseWriter, request *http.Request) {
	var req models.ChangePasswordRequest
	if err := rt.decodeAndValidate(request, &req); err != nil {
		writeError(response, err)
		return
	}

	if err := rt.service.ChangePassword(request.Context(), callerID(request), req); err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, models.MessageResponse{Message: "Password updated successfully"})
}

func (rt *Router) putProfileVisibility(response http.ResponseWriter, request *http.Request) {
	var req models.UpdateVisibilityRequest
	if err := rt.decodeAndValidate(request, &req); err != nil {
		writeError(response, err)
		return
	}

	usr, err := rt.service.UpdateVisibility(request.Context(), callerID(request), req.Visibility)
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, usr)
}

func (rt *Router) getProjects(response http.ResponseWriter, request *http.Request) {
	projects, err := rt.service.ListProjects(request.Context(), callerID(request))
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, projects)
}

func (rt *Router) postProjects(response http.ResponseWriter, request *http.Request) {
	var req models.CreateProjectRequest
	if err := rt.decodeAndValidate(request, &req); err != nil {
		writeError(response, err)
		return
	}

	proj, err := rt.service.CreateProject(request.Context(), callerID(request), req)
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusCreated, proj)
}

func (rt *Router) getProject(response http.ResponseWriter, request *http.Request) {
	proj, err := rt.service.GetProject(
		request.Context(),
		callerID(request),
		chi.URLParam(request, "projectID"),
	)
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, proj)
}

func (rt *Router) putProject(response http.ResponseWriter, request *http.Request) {
	var patch models.ProjectPatch
	if err := decodeStrict(request, &patch); err != nil {
		writeError(response, err)
		return
	}

	proj, err := rt.service.UpdateProject(
		request.Context(),
		callerID(request),
		chi.URLParam(request, "projectID"),
		patch,
	)
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, proj)
}

func (rt *Router) deleteProject(response http.ResponseWriter, request *http.Request) {
	proj, err := rt.service.DeleteProject(
		request.Context(),
		callerID(request),
		chi.URLParam(request, "projectID"),
	)
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, models.DeleteProjectResponse{
		Message:        "Project deleted successfully",
		DeletedProject: proj,
	})
}

func (rt *Router) getProjectComponents(response http.ResponseWriter, request *http.Request) {
	components, err := rt.service.ListComponents(
		request.Context(),
		callerID(request),
		chi.URLParam(request, "projectID"),
	)
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, components)
}

func (rt *Router) postProjectComponents(response http.ResponseWriter, request *http.Request) {
	var input models.ComponentInput
	if err := rt.decodeAndValidate(request, &input); err != nil {
		writeError(response, err)
		return
	}

	comp, err := rt.service.CreateComponent(
		request.Context(),
		callerID(request),
		chi.URLParam(request, "projectID"),
		input,
	)
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusCreated, comp)
}

func (rt *Router) getComponent(response http.ResponseWriter, request *http.Request) {
	comp, err := rt.service.GetComponent(
		request.Context(),
		callerID(request),
		chi.URLParam(request, "projectID"),
		chi.URLParam(request, "componentID"),
	)
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, comp)
}

func (rt *Router) putComponent(response http.ResponseWriter, request *http.Request) {
	var patch models.ComponentPatch
	if err := decodeStrict(request, &patch); err != nil {
		writeError(response, err)
		return
	}

	comp, err := rt.service.UpdateComponent(
		request.Context(),
		callerID(request),
		chi.URLParam(request, "projectID"),
		chi.URLParam(request, "componentID"),
		patch,
	)
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, comp)
}

func (rt *Router) deleteComponent(response http.ResponseWriter, request *http.Request) {
	err := rt.service.DeleteComponent(
		request.Context(),
		callerID(request),
		chi.URLParam(request, "projectID"),
		chi.URLParam(request, "componentID"),
	)
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, models.MessageResponse{Message: "Component deleted successfully"})
}

func (rt *Router) putToggleFavorite(response http.ResponseWriter, request *http.Request) {
	comp, err := rt.service.ToggleFavorite(
		request.Context(),
		callerID(request),
		chi.URLParam(request, "projectID"),
		chi.URLParam(request, "componentID"),
	)
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, comp)
}

// getFavoriteComponents returns a bare array; only the all-components
// view is wrapped in an envelope.
func (rt *Router) getFavoriteComponents(response http.ResponseWriter, request *http.Request) {
	components, err := rt.service.ListFavoriteComponents(request.Context(), callerID(request))
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, components)
}

func (rt *Router) getAllComponents(response http.ResponseWriter, request *http.Request) {
	components, err := rt.service.ListAllComponents(request.Context(), callerID(request))
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, models.ComponentsListResponse{Components: components})
}

func (rt *Router) getPing(response http.ResponseWriter, request *http.Request) {
	if err := rt.service.Ping(request.Context()); err != nil {
		writeError(response, err)
		return
	}

	response.WriteHeader(http.StatusOK)
}

func (rt *Router) getInternalStats(response http.ResponseWriter, request *http.Request) {
	if rt.ipChecker.IsTrustedSubnetEmpty() {
		writeError(response, models.ErrForbidden)
		return
	}

	clientIP, err := rt.ipChecker.GetClientIP(request)
	if err != nil || !rt.ipChecker.Check(clientIP) {
		writeError(response, models.ErrForbidden)
		return
	}

	stats, err := rt.service.GetInternalStats(request.Context())
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, stats)
}
