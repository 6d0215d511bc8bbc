package server

import (
	"github.com/gin-contrib/cors"
	"go.uber.org/fx"

	"github.com/teeinfer/gateway/internal/auth"
	"github.com/teeinfer/gateway/internal/orgs"
	"github.com/teeinfer/gateway/internal/server/api"
	"github.com/teeinfer/gateway/internal/server/middleware"
)

type Handlers struct {
	fx.In

	Chat          *api.ChatCompletionHandlers
	Models        *api.ModelsHandlers
	Responses     *api.ResponsesHandlers
	Conversations *api.ConversationsHandlers
	Attestation   *api.AttestationHandlers
	System        *api.SystemHandlers
}

type Services struct {
	fx.In

	Auth     *auth.Service
	OrgStore orgs.Store
}

// SetupRoutes wires every route group: an always-public health group, and
// an API-key-authed /v1 group carrying every inference and resource
// operation. There is no session/JWT admin plane yet (see DESIGN.md).
func SetupRoutes(srv *Server, handlers Handlers, services Services) {
	srv.Use(middleware.WithTracing(), middleware.AccessLog())

	if srv.Config.CORS.Enabled {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = srv.Config.CORS.AllowedOrigins
		corsConfig.AllowMethods = srv.Config.CORS.AllowedMethods
		corsConfig.AllowHeaders = srv.Config.CORS.AllowedHeaders
		corsConfig.ExposeHeaders = srv.Config.CORS.ExposedHeaders
		corsConfig.AllowCredentials = srv.Config.CORS.AllowCredentials
		corsConfig.MaxAge = srv.Config.CORS.MaxAge

		corsHandler := cors.New(corsConfig)
		srv.Use(corsHandler)
		srv.OPTIONS("*any", corsHandler)
	}

	public := srv.Group("", middleware.Timeout(srv.Config.RequestTimeout))
	{
		public.GET("/health", handlers.System.Health)
	}

	apiGroup := srv.Group("/v1",
		middleware.Timeout(srv.Config.LLMRequestTimeout),
		middleware.WithAPIKeyAuth(services.Auth, services.OrgStore),
	)
	{
		apiGroup.POST("/chat/completions", handlers.Chat.ChatCompletion)
		apiGroup.POST("/completions", handlers.Chat.Completion)
		apiGroup.GET("/models", handlers.Models.ListModels)

		apiGroup.POST("/responses", handlers.Chat.CreateResponse)
		apiGroup.GET("/responses/:id", handlers.Responses.GetResponse)
		apiGroup.POST("/responses/:id/cancel", handlers.Responses.CancelResponse)
		apiGroup.GET("/responses/:id/input_items", handlers.Responses.ListInputItems)

		apiGroup.POST("/conversations", handlers.Conversations.CreateConversation)
		apiGroup.GET("/conversations/:id", handlers.Conversations.GetConversation)
		apiGroup.POST("/conversations/:id/clone", handlers.Conversations.CloneConversation)
		apiGroup.DELETE("/conversations/:id", handlers.Conversations.DeleteConversation)

		apiGroup.POST("/attestation/verify", handlers.Attestation.VerifySignature)
	}
}
