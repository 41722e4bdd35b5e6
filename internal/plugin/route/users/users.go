package users

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bourracho/chat-registry/internal/conversations"
	"github.com/bourracho/chat-registry/internal/model"
	registryroute "github.com/bourracho/chat-registry/internal/registry/route"
	registrystore "github.com/bourracho/chat-registry/internal/registry/store"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "users",
		Order: 10,
		Type:  registryroute.RouteTypeMain,
		Loader: func(r *gin.Engine, m registryroute.Mount) error {
			MountRoutes(r, m.Registry, m.Auth, m.Admin...)
			return nil
		},
	})
}

// MountRoutes mounts the user directory routes. Registration is open; every
// other route runs behind auth, and admin changes additionally behind admin.
func MountRoutes(r *gin.Engine, registry *conversations.Registry, auth gin.HandlerFunc, admin ...gin.HandlerFunc) {
	r.POST("/v1/users", func(c *gin.Context) {
		registerUser(c, registry)
	})

	g := r.Group("/v1/users", auth)
	g.GET("", func(c *gin.Context) {
		listUsers(c, registry)
	})
	g.GET("/:userId", func(c *gin.Context) {
		getUser(c, registry)
	})
	adminChain := append(append([]gin.HandlerFunc{}, admin...), func(c *gin.Context) {
		setAdmin(c, registry)
	})
	g.PATCH("/:userId/admin", adminChain...)
}

func registerUser(c *gin.Context, registry *conversations.Registry) {
	var req struct {
		ID          string  `json:"id"`
		DisplayName string  `json:"display_name" binding:"required"`
		Pseudo      *string `json:"pseudo"`
		Location    *string `json:"location"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	ctx := c.Request.Context()
	if existing, err := registry.GetUser(ctx, req.ID); err == nil {
		c.JSON(http.StatusOK, existing)
		return
	}
	user := model.User{ID: req.ID, DisplayName: req.DisplayName, Pseudo: req.Pseudo, Location: req.Location}
	if err := registry.RegisterUser(ctx, user); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func listUsers(c *gin.Context, registry *conversations.Registry) {
	var ids []string
	if raw := strings.TrimSpace(c.Query("ids")); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": registry.ListUsers(c.Request.Context(), ids...)})
}

func getUser(c *gin.Context, registry *conversations.Registry) {
	user, err := registry.GetUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func setAdmin(c *gin.Context, registry *conversations.Registry) {
	var req struct {
		IsAdmin *bool `json:"is_admin" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	user, err := registry.SetUserAdmin(c.Request.Context(), c.Param("userId"), *req.IsAdmin)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func handleError(c *gin.Context, err error) {
	var invalid *registrystore.InvalidArgumentError
	var validation *registrystore.ValidationError
	var notFound *registrystore.NotFoundError
	var conflict *registrystore.ConflictError

	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": invalid.Field})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"code": "conflict", "error": err.Error()})
	default:
		log.Error("Request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
