package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/corpusd/corpusd/internal/middleware"
	"github.com/corpusd/corpusd/internal/pkg/response"
)

type RouterDeps struct {
	Auth        *AuthHandler
	Config      *ConfigHandler
	Catalog     *CatalogHandler
	Selections  *SelectionHandler
	Credentials *CredentialHandler
	Search      *SearchHandler
	Users       *UserHandler
	Migrations  *MigrationHandler
	JWTSecret   []byte
	AuthEnabled bool
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})
	api.POST("/auth/token", middleware.RateLimit(time.Second), deps.Auth.Token)

	authGroup := api.Group("")
	authGroup.Use(middleware.Auth(deps.JWTSecret, deps.AuthEnabled))

	authGroup.GET("/config", deps.Config.GetDynamic)
	authGroup.GET("/config/static", deps.Config.GetStatic)

	authGroup.GET("/documents", deps.Catalog.List)
	authGroup.GET("/documents/:hash", deps.Catalog.Get)

	authGroup.GET("/selections/effective", deps.Selections.Effective)
	authGroup.PUT("/selections/documents/:id", deps.Selections.SetUserDefault)
	authGroup.DELETE("/selections/documents/:id", deps.Selections.ClearUserDefault)
	authGroup.PUT("/selections/conversations/:conversation_id/documents/:id", deps.Selections.SetConversationOverride)
	authGroup.DELETE("/selections/conversations/:conversation_id/documents/:id", deps.Selections.ClearConversationOverride)

	authGroup.GET("/credentials", deps.Credentials.List)
	authGroup.PUT("/credentials/:provider", deps.Credentials.Put)
	authGroup.DELETE("/credentials/:provider", deps.Credentials.Delete)

	authGroup.POST("/search", deps.Search.Search)

	authGroup.GET("/profile", deps.Users.GetProfile)
	authGroup.PATCH("/profile", deps.Users.UpdateProfile)

	adminGroup := authGroup.Group("")
	adminGroup.Use(middleware.AdminOnly())
	adminGroup.PATCH("/config", deps.Config.Update)
	adminGroup.GET("/config/audit", deps.Config.ListAudit)
	adminGroup.POST("/documents", deps.Catalog.Register)
	adminGroup.DELETE("/documents/:hash", deps.Catalog.Delete)
	adminGroup.POST("/documents/:hash/restore", deps.Catalog.Restore)
	adminGroup.DELETE("/documents/:hash/purge", deps.Catalog.Purge)
	adminGroup.GET("/migrations/:source", deps.Migrations.Get)
}
