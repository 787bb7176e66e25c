package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/presence"
	"messenger-service/internal/repositories"
)

// UserHandler exposes the user directory.
type UserHandler struct {
	users    repositories.UserRepository
	presence *presence.Store
}

func NewUserHandler(users repositories.UserRepository, presence *presence.Store) *UserHandler {
	return &UserHandler{users: users, presence: presence}
}

// ListUsers returns every user except the caller, with their live
// presence flag.
func (h *UserHandler) ListUsers(c *gin.Context) {
	userID := c.GetInt("userID")

	users, err := h.users.ListUsers(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}

	for i := range users {
		online, err := h.presence.Online(c.Request.Context(), users[i].ID)
		if err != nil {
			// Presence is advisory; the listing must not fail on it.
			continue
		}
		users[i].Online = online
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}
