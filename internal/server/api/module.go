package api

import "go.uber.org/fx"

// Module provides every HTTP handler group; SetupRoutes assembles them
// into route groups once the server and its middleware are ready.
var Module = fx.Module("api",
	fx.Provide(NewChatCompletionHandlers),
	fx.Provide(NewModelsHandlers),
	fx.Provide(NewResponsesHandlers),
	fx.Provide(NewConversationsHandlers),
	fx.Provide(NewAttestationHandlers),
	fx.Provide(NewSystemHandlers),
)
