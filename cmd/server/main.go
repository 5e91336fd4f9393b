// cmd/server runs one replica of the replicated counter.
//
// Example — active trio on one host:
//
//	./server --id s1 --port 5001 --peers localhost:5002,localhost:5003 --interval 2 --active
//	./server --id s2 --port 5002 --peers localhost:5001,localhost:5003 --interval 2 --active
//	./server --id s3 --port 5003 --peers localhost:5001,localhost:5002 --interval 2 --active
//
// Drop --active for passive replication; the group elects a primary and the
// interval becomes the checkpoint cadence.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"replicated-counter/internal/admin"
	"replicated-counter/internal/cmdutil"
	"replicated-counter/internal/replica"
)

func main() {
	var (
		id        string
		host      string
		port      int
		peers     []string
		interval  int
		active    bool
		verbose   bool
		adminAddr string
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run a replica of the replicated counter",
		PreRun: func(cmd *cobra.Command, args []string) {
			cmdutil.BindEnv(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			id = cmdutil.DefaultID(id)
			logger := cmdutil.Logger(verbose)
			defer logger.Sync()

			rep := replica.New(replica.Config{
				ID:       id,
				Host:     host,
				Port:     port,
				Peers:    peers,
				Interval: time.Duration(interval) * time.Second,
				Active:   active,
			}, logger)
			if err := rep.Start(); err != nil {
				return err
			}

			adm := admin.New(logger)
			adm.Health("server", id, func() gin.H {
				status := rep.Status()
				return gin.H{
					"hostport":     rep.Hostport(),
					"active":       rep.IsActive(),
					"primary":      status.Primary,
					"ready":        status.Ready,
					"sum":          status.Sum,
					"num_requests": status.NumRequests,
				}
			})

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return adm.Serve(ctx, adminAddr) })
			g.Go(func() error {
				<-ctx.Done()
				rep.Stop()
				return nil
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&id, "id", "i", "", "server identifier")
	cmd.Flags().StringVar(&host, "host", "", "bind host (defaults to the machine hostname)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "server TCP port")
	cmd.Flags().StringSliceVar(&peers, "peers", nil, "comma-separated peer host:ports")
	cmd.Flags().IntVar(&interval, "interval", 0, "checkpoint interval in seconds")
	cmd.Flags().BoolVarP(&active, "active", "a", false, "active replication instead of primary/backup")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "human-readable logging")
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "admin HTTP address (disabled when empty)")
	cmd.MarkFlagRequired("port")
	cmd.MarkFlagRequired("interval")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
