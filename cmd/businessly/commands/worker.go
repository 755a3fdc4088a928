package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/businessly/businessly/internal/entities"
)

// errNoDispatch guards the worker's orchestrator, which never receives
// webhook deliveries itself.
var errNoDispatch = errors.New("worker does not accept webhook deliveries")

type noDispatch struct{}

func (noDispatch) Dispatch(context.Context, entities.InboundEvent) error { return errNoDispatch }

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued inbound messages from Redis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.Worker.RedisURL == "" {
				return errors.New("worker needs REDIS_URL")
			}

			worker, err := newAsynqWorker(a)
			if err != nil {
				return err
			}
			orch := a.orchestrator(noDispatch{})
			return worker.Run(ctx, func(ctx context.Context, evt entities.InboundEvent) { orch.Process(ctx, evt) })
		},
	}
}
