package handler

import (
	"context"
	"net/http"

	"github.com/aman-churiwal/api-sentinel/internal/models"
	"github.com/gin-gonic/gin"
)

// UserDirectory is the read side of the operator account store.
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

type UserHandler struct {
	directory UserDirectory
}

func NewUserHandler(directory UserDirectory) *UserHandler {
	return &UserHandler{directory: directory}
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.directory.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.directory.GetUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, user)
}
