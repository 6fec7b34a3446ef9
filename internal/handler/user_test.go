package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-churiwal/api-sentinel/internal/models"
)

type fakeUserDirectory struct {
	users []models.User
}

func (f *fakeUserDirectory) ListUsers(ctx context.Context) ([]models.User, error) {
	return f.users, nil
}

func (f *fakeUserDirectory) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	for i := range f.users {
		if f.users[i].ID.String() == id {
			return &f.users[i], nil
		}
	}
	return nil, nil
}

func newUserRouter(directory UserDirectory) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewUserHandler(directory)
	router.GET("/admin/users", h.List)
	router.GET("/admin/user/:id", h.Get)
	return router
}

func TestListUsers(t *testing.T) {
	directory := &fakeUserDirectory{users: []models.User{
		{ID: uuid.New(), Email: "ops@example.com", Role: "admin", PasswordHash: "$2a$10$secret"},
		{ID: uuid.New(), Email: "dev@example.com", Role: "user", PasswordHash: "$2a$10$secret"},
	}}
	router := newUserRouter(directory)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/users", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)
	assert.Contains(t, w.Body.String(), "ops@example.com")
	assert.NotContains(t, w.Body.String(), "secret", "password hashes must never serialize")
}

func TestGetUser(t *testing.T) {
	known := models.User{ID: uuid.New(), Email: "ops@example.com", Role: "admin"}
	router := newUserRouter(&fakeUserDirectory{users: []models.User{known}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/user/"+known.ID.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ops@example.com")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/user/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
