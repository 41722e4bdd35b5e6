package conversations

import (
	"encoding/json"
	"errors"
	"net/http"

	registry "github.com/bourracho/chat-registry/internal/conversations"
	"github.com/bourracho/chat-registry/internal/model"
	registryroute "github.com/bourracho/chat-registry/internal/registry/route"
	registrystore "github.com/bourracho/chat-registry/internal/registry/store"
	"github.com/bourracho/chat-registry/internal/security"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "conversations",
		Order: 20,
		Type:  registryroute.RouteTypeMain,
		Loader: func(r *gin.Engine, m registryroute.Mount) error {
			MountRoutes(r, m.Registry, m.Auth)
			return nil
		},
	})
}

// MountRoutes mounts conversation lifecycle, metadata and membership routes.
func MountRoutes(r *gin.Engine, reg *registry.Registry, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.POST("/conversations", func(c *gin.Context) {
		createConversation(c, reg)
	})
	g.GET("/conversations", func(c *gin.Context) {
		listConversations(c, reg)
	})
	g.GET("/conversations/:conversationId", func(c *gin.Context) {
		getConversation(c, reg)
	})
	g.PATCH("/conversations/:conversationId", func(c *gin.Context) {
		updateConversation(c, reg)
	})
	g.POST("/conversations/:conversationId/join", func(c *gin.Context) {
		joinConversation(c, reg)
	})
	g.GET("/conversations/:conversationId/users", func(c *gin.Context) {
		listMembers(c, reg)
	})
	g.POST("/conversations/:conversationId/users", func(c *gin.Context) {
		addMember(c, reg)
	})
}

type createRequest struct {
	Metadata struct {
		ID       *string `json:"id"`
		Name     string  `json:"name"`
		IsLocked *bool   `json:"is_locked"`
	} `json:"metadata"`
	// Store selects the backend kind only. Connection parameters always come
	// from the server configuration.
	Store *struct {
		Type registrystore.Kind `json:"type" binding:"required"`
	} `json:"store"`
}

func createConversation(c *gin.Context, reg *registry.Registry) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	md := model.DefaultMetadata()
	md.ID = req.Metadata.ID
	md.Name = req.Metadata.Name
	if req.Metadata.IsLocked != nil {
		md.IsLocked = *req.Metadata.IsLocked
	}
	var descriptor *registrystore.Descriptor
	if req.Store != nil {
		descriptor = &registrystore.Descriptor{Type: req.Store.Type}
	}

	ctx := c.Request.Context()
	cid, err := reg.CreateConversation(ctx, security.GetUserID(c), md, descriptor)
	if err != nil {
		handleError(c, err)
		return
	}
	created, err := reg.GetMetadata(ctx, cid)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func listConversations(c *gin.Context, reg *registry.Registry) {
	list, err := reg.ListConversations(c.Request.Context(), security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func getConversation(c *gin.Context, reg *registry.Registry) {
	cid, ok := requireMember(c, reg)
	if !ok {
		return
	}
	md, err := reg.GetMetadata(c.Request.Context(), cid)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, md)
}

func updateConversation(c *gin.Context, reg *registry.Registry) {
	cid, ok := requireMember(c, reg)
	if !ok {
		return
	}
	var raw map[string]json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	patch, err := model.ParseMetadataPatch(raw)
	if err != nil {
		handleError(c, err)
		return
	}
	md, err := reg.UpdateMetadata(c.Request.Context(), cid, patch)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, md)
}

func joinConversation(c *gin.Context, reg *registry.Registry) {
	if err := reg.JoinConversation(c.Request.Context(), security.GetUserID(c), c.Param("conversationId")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func listMembers(c *gin.Context, reg *registry.Registry) {
	cid, ok := requireMember(c, reg)
	if !ok {
		return
	}
	users, err := reg.GetUsers(c.Request.Context(), cid)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users})
}

func addMember(c *gin.Context, reg *registry.Registry) {
	cid, ok := requireMember(c, reg)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	if err := reg.AddUserIDToConversation(c.Request.Context(), req.UserID, cid); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// requireMember resolves the conversation path parameter and rejects callers
// that are not members of it.
func requireMember(c *gin.Context, reg *registry.Registry) (string, bool) {
	cid := c.Param("conversationId")
	member, err := reg.IsMember(c.Request.Context(), cid, security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return "", false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": "not a member of conversation " + cid})
		return "", false
	}
	return cid, true
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
