package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(roomController *RoomController, sessionController *SessionController, corsOrigins []string) *gin.Engine {
	router := gin.Default()

	config := cors.DefaultConfig()
	if len(corsOrigins) > 0 {
		config.AllowOrigins = corsOrigins
	} else {
		config.AllowAllOrigins = true
	}
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"}
	router.Use(cors.New(config))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	if sessionController != nil {
		sessions := api.Group("/sessions")
		sessions.Use(sessionController.RequireKey)
		sessions.POST("", sessionController.CreateSession)
		sessions.GET("/:sessionID", sessionController.GetSession)
		sessions.DELETE("/:sessionID", sessionController.EndSession)
	}

	if roomController != nil {
		rooms := api.Group("/rooms")
		rooms.POST("", roomController.CreateRoom)
		rooms.GET("/:code", roomController.ResolveRoom)
		rooms.POST("/:code/events", roomController.AppendEvent)
		rooms.GET("/:code/events", roomController.ListEvents)
		rooms.GET("/:code/ws", roomController.JoinRoom)
	}

	return router
}
