package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/strandapp/strand/server/middlewares"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"
)

// RouterConfig controls the middleware stack around the handlers.
type RouterConfig struct {
	// ServiceName tags traces emitted by the gin integration.
	ServiceName string

	// BypassAuth skips jwt validation; the caller supplies the "sub" header
	// directly. Local development and tests only.
	BypassAuth bool
}

// NewRouter assembles the full http surface: REST endpoints plus the
// websocket event stream.
func NewRouter(config RouterConfig, handlers *Handlers, channels *EventChannels) *gin.Engine {
	// Default comes with the Logger and Recovery middleware attached.
	router := gin.Default()

	router.Use(cors.Default())
	router.Use(gintrace.Middleware(config.ServiceName))
	if !config.BypassAuth {
		router.Use(middlewares.JWT())
	}

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	router.GET("/chats", handlers.ListChats)
	router.POST("/chats", handlers.FindOrCreateChat)
	router.POST("/chats/:id/messages", handlers.SendMessage)
	router.POST("/chats/:id/read", handlers.MarkChatRead)

	router.GET("/stories", handlers.StoryRail)
	router.POST("/stories", handlers.PostStory)
	router.POST("/stories/:id/view", handlers.ViewStory)

	router.GET("/feed", handlers.Feed)
	router.POST("/posts", handlers.CreatePost)
	router.GET("/posts/:id/comments", handlers.ListComments)
	router.POST("/posts/:id/like", handlers.LikePost)
	router.DELETE("/posts/:id/like", handlers.UnlikePost)
	router.POST("/posts/:id/mute", handlers.MutePost)

	router.POST("/media", handlers.UploadMedia)

	router.POST("/users/:id/follow", handlers.FollowUser)
	router.DELETE("/users/:id/follow", handlers.UnfollowUser)

	router.GET("/events", EventStreamHandler(channels))

	return router
}
