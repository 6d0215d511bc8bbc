package catalog

import (
	"context"
	"reflect"

	"github.com/zhenzou/executors"

	"github.com/teeinfer/gateway/internal/log"
)

type errorHandler struct{}

func (errorHandler) CatchError(runnable executors.Runnable, err error) {
	log.Error(context.Background(), "catalog refresh task error", log.Cause(err))
}

type rejectionHandler struct{}

func (rejectionHandler) RejectExecution(runnable executors.Runnable, _ executors.Executor) error {
	log.Error(context.Background(), "catalog refresh task rejected", log.String("runnable", reflect.ValueOf(runnable).String()))
	return nil
}

// RefreshScheduler drives Catalog.Refresh off a pooled scheduled executor
// on a cron rule.
type RefreshScheduler struct {
	executor   executors.ScheduledExecutor
	cancelFunc context.CancelFunc
}

// NewRefreshScheduler builds the scheduler but does not start it; call
// Start once the catalog has been loaded for the first time.
func NewRefreshScheduler(logger *log.Logger) *RefreshScheduler {
	return &RefreshScheduler{
		executor: executors.NewPoolScheduleExecutor(
			executors.WithMaxConcurrent(1),
			executors.WithErrorHandler(errorHandler{}),
			executors.WithRejectionHandler(rejectionHandler{}),
			executors.WithLogger(logger.AsSlog()),
		),
	}
}

// Start loads cat synchronously, so the gateway never serves traffic
// against an empty catalog, then schedules subsequent reloads on cron.
func (s *RefreshScheduler) Start(ctx context.Context, cat *Catalog, cron string) error {
	if err := cat.Refresh(ctx); err != nil {
		return err
	}

	cancel, err := s.executor.ScheduleFuncAtCronRate(
		func(ctx context.Context) {
			if err := cat.Refresh(ctx); err != nil {
				log.Error(ctx, "catalog refresh failed", log.Cause(err))
			}
		},
		executors.CRONRule{Expr: cron},
	)
	if err != nil {
		return err
	}

	s.cancelFunc = cancel

	return nil
}

// Stop cancels the scheduled task and shuts the executor down.
func (s *RefreshScheduler) Stop(ctx context.Context) error {
	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	return s.executor.Shutdown(ctx)
}
