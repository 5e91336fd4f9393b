// cmd/lfd runs a local fault detector watching one replica.
//
// Example:
//
//	./lfd --id lfd1 --server localhost:5001 --gfd localhost:6000 --interval 2
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
	"replicated-counter/internal/detect"
)

func main() {
	var (
		id        string
		server    string
		gfd       string
		interval  int
		verbose   bool
		adminAddr string
	)

	cmd := &cobra.Command{
		Use:   "lfd",
		Short: "Heartbeat one replica and report liveness to the GFD",
		PreRun: func(cmd *cobra.Command, args []string) {
			cmdutil.BindEnv(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			id = cmdutil.DefaultID(id)
			logger := cmdutil.Logger(verbose)
			defer logger.Sync()

			lfd := detect.NewLFD(detect.LFDConfig{
				ID:       id,
				Server:   server,
				GFD:      gfd,
				Interval: time.Duration(interval) * time.Second,
			}, logger)
			if err := lfd.Start(); err != nil {
				return err
			}

			adm := admin.New(logger)
			adm.Health("lfd", id, func() gin.H {
				return gin.H{"server": server, "member": lfd.IsMember()}
			})

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return adm.Serve(ctx, adminAddr) })
			g.Go(func() error {
				<-ctx.Done()
				lfd.Stop()
				return nil
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&id, "id", "i", "", "LFD identifier")
	cmd.Flags().StringVar(&server, "server", "", "watched replica host:port")
	cmd.Flags().StringVar(&gfd, "gfd", "", "GFD host:port")
	cmd.Flags().IntVar(&interval, "interval", 0, "heartbeat interval in seconds")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "human-readable logging")
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "admin HTTP address (disabled when empty)")
	cmd.MarkFlagRequired("server")
	cmd.MarkFlagRequired("gfd")
	cmd.MarkFlagRequired("interval")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
