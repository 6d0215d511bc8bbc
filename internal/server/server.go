package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/teeinfer/gateway/internal/config"
	"github.com/teeinfer/gateway/internal/log"
	"github.com/teeinfer/gateway/internal/server/api"
	"github.com/teeinfer/gateway/internal/server/middleware"
)

// New builds the gin engine with panic recovery as the only always-on
// middleware; routes and the rest of the middleware chain are wired by
// SetupRoutes once every handler dependency is available.
func New(cfg config.Config) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.Recovery())

	return &Server{Config: cfg, Engine: engine}
}

type Server struct {
	*gin.Engine

	Config config.Config
	server *http.Server
}

func (srv *Server) Run() error {
	log.Info(context.Background(), "starting server",
		log.String("name", srv.Config.Name),
		log.String("host", srv.Config.Host),
		log.Int("port", srv.Config.Port),
	)

	addr := fmt.Sprintf("%s:%d", srv.Config.Host, srv.Config.Port)

	writeTimeout := srv.Config.RequestTimeout
	if srv.Config.LLMRequestTimeout > writeTimeout {
		writeTimeout = srv.Config.LLMRequestTimeout
	}

	srv.server = &http.Server{
		Addr:         addr,
		Handler:      srv.Engine,
		ReadTimeout:  srv.Config.ReadTimeout,
		WriteTimeout: writeTimeout,
	}

	err := srv.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (srv *Server) Shutdown(ctx context.Context) error {
	if srv.server == nil {
		return nil
	}

	return srv.server.Shutdown(ctx)
}

// Run builds and runs the fx app from the server constructor, the api
// handler module and the route wiring invoke. cmd/gatewayd supplies the
// rest through opts: config, logging, the domain services
// (wiring.Module), metrics and the process's lifecycle hooks.
func Run(opts ...fx.Option) {
	app := fx.New(
		append([]fx.Option{
			fx.NopLogger,
			fx.Provide(New),
			api.Module,
			fx.Invoke(SetupRoutes),
		}, opts...)...,
	)
	app.Run()
}
