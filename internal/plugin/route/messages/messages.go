package messages

import (
	"errors"
	"net/http"
	"time"

	"github.com/bourracho/chat-registry/internal/conversations"
	"github.com/bourracho/chat-registry/internal/model"
	registryroute "github.com/bourracho/chat-registry/internal/registry/route"
	registrystore "github.com/bourracho/chat-registry/internal/registry/store"
	"github.com/bourracho/chat-registry/internal/security"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "messages",
		Order: 30,
		Type:  registryroute.RouteTypeMain,
		Loader: func(r *gin.Engine, m registryroute.Mount) error {
			MountRoutes(r, m.Registry, m.Auth)
			return nil
		},
	})
}

// MountRoutes mounts the message log routes of a conversation. Every route
// requires the caller to be a member of the conversation.
func MountRoutes(r *gin.Engine, registry *conversations.Registry, auth gin.HandlerFunc) {
	g := r.Group("/v1/conversations/:conversationId/messages", auth, requireMember(registry))

	g.GET("", func(c *gin.Context) {
		listMessages(c, registry)
	})
	g.POST("", func(c *gin.Context) {
		appendMessage(c, registry)
	})
	g.GET("/:messageId", func(c *gin.Context) {
		getMessage(c, registry)
	})
	g.PATCH("/:messageId", func(c *gin.Context) {
		editMessage(c, registry)
	})
	g.POST("/:messageId/reacts", func(c *gin.Context) {
		addReact(c, registry)
	})
}

func listMessages(c *gin.Context, registry *conversations.Registry) {
	msgs, err := registry.GetMessages(c.Request.Context(), c.Param("conversationId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": msgs})
}

func appendMessage(c *gin.Context, registry *conversations.Registry) {
	var req struct {
		ID        string     `json:"id"`
		Content   string     `json:"content" binding:"required"`
		Timestamp *time.Time `json:"timestamp"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	msg := model.Message{ID: req.ID, Content: req.Content, IssuerID: security.GetUserID(c)}
	if req.Timestamp != nil {
		msg.Timestamp = req.Timestamp.UTC().Truncate(time.Millisecond)
	}
	added, err := registry.AddMessage(c.Request.Context(), msg, c.Param("conversationId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, added)
}

func getMessage(c *gin.Context, registry *conversations.Registry) {
	msg, err := registry.GetMessage(c.Request.Context(), c.Param("conversationId"), c.Param("messageId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func editMessage(c *gin.Context, registry *conversations.Registry) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	cid, mid := c.Param("conversationId"), c.Param("messageId")

	current, err := registry.GetMessage(ctx, cid, mid)
	if err != nil {
		handleError(c, err)
		return
	}
	if current.IssuerID != security.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": "only the issuer can edit a message"})
		return
	}
	edited, err := registry.EditMessage(ctx, cid, mid, req.Content)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, edited)
}

func addReact(c *gin.Context, registry *conversations.Registry) {
	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	react := model.React{Emoji: req.Emoji, IssuerID: security.GetUserID(c)}
	msg, err := registry.AddReact(c.Request.Context(), react, c.Param("conversationId"), c.Param("messageId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func requireMember(registry *conversations.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.Param("conversationId")
		member, err := registry.IsMember(c.Request.Context(), cid, security.GetUserID(c))
		if err != nil {
			handleError(c, err)
			c.Abort()
			return
		}
		if !member {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": "not a member of conversation " + cid})
			return
		}
		c.Next()
	}
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
