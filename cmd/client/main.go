// cmd/client runs the fan-out client.
//
// Example:
//
//	./client --id c1 --servers localhost:5001,localhost:5002 --interval 1 --limit 10
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"replicated-counter/internal/client"
	"replicated-counter/internal/cmdutil"
)

func main() {
	var (
		id       string
		servers  []string
		interval int
		limit    int
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Send requests to a group of counter replicas",
		PreRun: func(cmd *cobra.Command, args []string) {
			cmdutil.BindEnv(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cmdutil.Logger(verbose)
			defer logger.Sync()

			cl := client.New(client.Config{
				ID:        cmdutil.DefaultID(id),
				Hostports: servers,
				Interval:  time.Duration(interval) * time.Second,
			}, logger)

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				cl.Start(limit)
				cl.Wait()
				stop()
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				cl.Stop()
				return nil
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&id, "id", "i", "", "client identifier")
	cmd.Flags().StringSliceVar(&servers, "servers", nil, "comma-separated server host:ports")
	cmd.Flags().IntVar(&interval, "interval", 0, "request interval in seconds")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "request limit (0 runs unbounded)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "human-readable logging")
	cmd.MarkFlagRequired("servers")
	cmd.MarkFlagRequired("interval")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
