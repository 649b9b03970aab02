package main

import (
	"errors"

	"github.com/spf13/cobra"
	temporalworker "go.temporal.io/sdk/worker"

	"example.com/farmstand/internal/checkout"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the checkout Temporal worker on its own",
	Long: `Runs the checkout workflow and activities without serving browsers.
Activities act for a browser through the bearer token mirrored in the shared
sqlite database, so the worker must point at the same --db as serve.`,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, _ []string) error {
	rt, err := bootstrap(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	if !rt.cfg.TemporalEnabled() {
		return errors.New("worker needs a Temporal frontend: set --temporal or FARMSTAND_TEMPORAL_HOST_PORT")
	}

	c, err := rt.dialTemporal()
	if err != nil {
		return err
	}
	defer c.Close()

	w := checkout.RegisterWorker(c, rt.resolver(), rt.logger)
	rt.logger.Info("checkout worker running", "task_queue", checkout.TaskQueue, "namespace", rt.cfg.Temporal.Namespace)
	return w.Run(temporalworker.InterruptCh())
}
