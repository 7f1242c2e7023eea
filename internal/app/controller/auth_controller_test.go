package controller

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/bloomhouse/cartsync/internal/app/repository"
	"github.com/bloomhouse/cartsync/internal/app/service"
	"github.com/bloomhouse/cartsync/internal/db"
	"github.com/bloomhouse/cartsync/internal/middleware"
	"github.com/bloomhouse/cartsync/pkg/util"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAuthControllerTest(t *testing.T) (*gin.Engine, service.AuthService) {
	gin.SetMode(gin.TestMode)

	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	authService := service.NewAuthService(
		repository.NewUserRepository(testDB),
		testSecret,
		15*time.Minute,
		7*24*time.Hour,
	)

	ctrl := NewAuthController(authService)
	authMiddleware := middleware.NewAuthMiddleware(testSecret)

	router := gin.New()
	router.POST("/register", ctrl.Register)
	router.POST("/login", ctrl.Login)
	router.GET("/me", authMiddleware.Authenticate(), ctrl.GetMe)
	router.PUT("/me", authMiddleware.Authenticate(), ctrl.UpdateMe)

	return router, authService
}

type authPayload struct {
	Data struct {
		User struct {
			ID     string `json:"id"`
			Email  string `json:"email"`
			Locale string `json:"locale"`
		} `json:"user"`
		Tokens util.TokenPair `json:"tokens"`
	} `json:"data"`
}

func TestAuthController_Register_Success(t *testing.T) {
	router, _ := setupAuthControllerTest(t)

	w := perform(router, http.MethodPost, "/register", "", RegisterRequest{
		Email:    "test@example.com",
		Password: "password123",
		Name:     "Test User",
		Locale:   "ar",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var payload authPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.NotEmpty(t, payload.Data.User.ID)
	assert.Equal(t, "ar", payload.Data.User.Locale)
	assert.NotEmpty(t, payload.Data.Tokens.AccessToken)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestAuthController_Register_Errors(t *testing.T) {
	router, authService := setupAuthControllerTest(t)

	_, _, err := authService.Register(service.RegisterInput{Email: "taken@example.com", Password: "password123", Name: "Taken"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		body     RegisterRequest
		status   int
		wantCode string
	}{
		{
			name:     "invalid email",
			body:     RegisterRequest{Email: "invalid-email", Password: "password123", Name: "Test"},
			status:   http.StatusBadRequest,
			wantCode: "VALIDATION_INVALID_INPUT",
		},
		{
			name:     "short password",
			body:     RegisterRequest{Email: "new@example.com", Password: "short", Name: "Test"},
			status:   http.StatusBadRequest,
			wantCode: "VALIDATION_TOO_SHORT",
		},
		{
			name:     "duplicate email",
			body:     RegisterRequest{Email: "taken@example.com", Password: "password456", Name: "Again"},
			status:   http.StatusConflict,
			wantCode: "AUTH_EMAIL_EXISTS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(router, http.MethodPost, "/register", "", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, w))
		})
	}
}

func TestAuthController_Login(t *testing.T) {
	router, authService := setupAuthControllerTest(t)

	_, _, err := authService.Register(service.RegisterInput{Email: "test@example.com", Password: "password123", Name: "Test User"})
	require.NoError(t, err)

	w := perform(router, http.MethodPost, "/login", "", LoginRequest{Email: "test@example.com", Password: "password123"})
	require.Equal(t, http.StatusOK, w.Code)

	var payload authPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	token := payload.Data.Tokens.AccessToken
	require.NotEmpty(t, token)

	w = perform(router, http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test@example.com")

	w = perform(router, http.MethodPost, "/login", "", LoginRequest{Email: "test@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_INVALID_CREDENTIALS", decodeError(t, w))
}

func TestAuthController_UpdateMe(t *testing.T) {
	router, authService := setupAuthControllerTest(t)

	user, tokens, err := authService.Register(service.RegisterInput{Email: "test@example.com", Password: "password123", Name: "Test User"})
	require.NoError(t, err)

	w := perform(router, http.MethodPut, "/me", tokens.AccessToken, UpdateProfileRequest{Name: "Layla", Locale: "ar"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"locale":"ar"`)

	w = perform(router, http.MethodPut, "/me", tokens.AccessToken, UpdateProfileRequest{Locale: "xx"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	reloaded, err := authService.GetUserByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Layla", reloaded.Name)
}

func TestAuthController_GetMe_NoToken(t *testing.T) {
	router, _ := setupAuthControllerTest(t)

	w := perform(router, http.MethodGet, "/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
