package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/andreazorzetto/yh/highlight"
	"github.com/hokaccha/go-prettyjson"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"gopkg.in/yaml.v3"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teeinfer/gateway/internal/config"
	"github.com/teeinfer/gateway/internal/log"
	"github.com/teeinfer/gateway/internal/metrics"
	"github.com/teeinfer/gateway/internal/providerpool"
	"github.com/teeinfer/gateway/internal/server"
	"github.com/teeinfer/gateway/internal/wiring"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			handleConfigCommand()
			return
		case "version", "--version", "-v":
			fmt.Println("gatewayd (dev build)")
			return
		}
	}

	startServer()
}

type fxLogger struct{}

func (l *fxLogger) LogEvent(event fxevent.Event) {
	log.Debug(context.Background(), "fx event", log.Any("event", event))
}

func startServer() {
	server.Run(
		fx.WithLogger(func() fxevent.Logger {
			return &fxLogger{}
		}),
		fx.Provide(config.Load),
		fx.Invoke(func(cfg config.Config) { log.SetGlobalConfig(cfg.Log) }),
		fx.Provide(log.New),
		wiring.Module,
		fx.Provide(metrics.NewProvider),
		fx.Invoke(registerLifecycle),
	)
}

// registerLifecycle appends the process-level hooks that don't belong to
// any single domain package: starting/stopping the HTTP listener, the
// Provider Pool's discovery loop, the metrics provider and the pgx pool.
func registerLifecycle(
	lc fx.Lifecycle,
	srv *server.Server,
	pool *providerpool.Pool,
	dbPool *pgxpool.Pool,
	meterProvider *sdkmetric.MeterProvider,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if meterProvider == nil {
				return nil
			}

			_, err := metrics.SetupMetrics(meterProvider, srv.Config.Name)

			return err
		},
		OnStop: func(ctx context.Context) error {
			if meterProvider == nil {
				return nil
			}

			return meterProvider.Shutdown(ctx)
		},
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// fx cancels the start context once startup completes, so the
			// discovery loop gets its own context; OnStop ends it.
			pool.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			pool.Stop()
			return nil
		},
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Run(); err != nil {
					log.Error(context.Background(), "server run error", log.Cause(err))
					os.Exit(1)
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil {
				log.Error(context.Background(), "server shutdown error", log.Cause(err))
			}

			dbPool.Close()

			return nil
		},
	})
}

func handleConfigCommand() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: gatewayd config <preview>")
		os.Exit(1)
	}

	switch os.Args[2] {
	case "preview":
		configPreview()
	default:
		fmt.Println("Usage: gatewayd config <preview>")
		os.Exit(1)
	}
}

func configPreview() {
	format := "yml"

	for i := 3; i < len(os.Args); i++ {
		if os.Args[i] == "--format" || os.Args[i] == "-f" {
			if i+1 < len(os.Args) {
				format = os.Args[i+1]
			}
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var output string

	switch format {
	case "json":
		b, err := prettyjson.Marshal(cfg)
		if err != nil {
			fmt.Printf("Failed to preview config: %v\n", err)
			os.Exit(1)
		}

		output = string(b)
	case "yml", "yaml":
		b, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Printf("Failed to preview config: %v\n", err)
			os.Exit(1)
		}

		output, err = highlight.Highlight(bytes.NewBuffer(b))
		if err != nil {
			fmt.Printf("Failed to preview config: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Printf("Unsupported format: %s\n", format)
		os.Exit(1)
	}

	fmt.Println(output)
}
