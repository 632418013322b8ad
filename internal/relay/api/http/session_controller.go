package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/feliven/coffeetable/internal/relay/repository"
	"github.com/feliven/coffeetable/internal/relay/service"
	"github.com/feliven/coffeetable/internal/session"
)

type SessionController struct {
	sessions service.SessionInteractor
	// apiKey gates the session endpoints; empty means open, for local use.
	apiKey string
}

func NewSessionController(sessions service.SessionInteractor, apiKey string) *SessionController {
	return &SessionController{
		sessions: sessions,
		apiKey:   apiKey,
	}
}

// RequireKey enforces the bearer key on the session group.
func (c *SessionController) RequireKey(ctx *gin.Context) {
	if c.apiKey == "" {
		ctx.Next()
		return
	}

	auth := ctx.GetHeader("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == auth || token != c.apiKey {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing api key"})
		return
	}
	ctx.Next()
}

func (c *SessionController) CreateSession(ctx *gin.Context) {
	var opts session.CreateOptions
	if err := ctx.ShouldBindJSON(&opts); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	sess, err := c.sessions.Create(ctx.Request.Context(), opts)
	if err != nil {
		ctx.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, sess)
}

func (c *SessionController) GetSession(ctx *gin.Context) {
	sess, err := c.sessions.Get(ctx.Request.Context(), ctx.Param("sessionID"))
	if err != nil {
		ctx.JSON(sessionErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	if !sess.Active {
		ctx.JSON(http.StatusGone, gin.H{"error": "session no longer active"})
		return
	}
	ctx.JSON(http.StatusOK, sess)
}

func (c *SessionController) EndSession(ctx *gin.Context) {
	if err := c.sessions.Terminate(ctx.Request.Context(), ctx.Param("sessionID")); err != nil {
		ctx.JSON(sessionErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	ctx.Status(http.StatusNoContent)
}

func sessionErrorStatus(err error) int {
	if errors.Is(err, repository.ErrSessionNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
