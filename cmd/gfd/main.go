// cmd/gfd runs the global fault detector.
//
// Example:
//
//	./gfd --id gfd1 --port 6000 --rm localhost:7000
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

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
		host      string
		port      int
		rm        string
		verbose   bool
		adminAddr string
	)

	cmd := &cobra.Command{
		Use:   "gfd",
		Short: "Aggregate LFD reports and relay membership to the RM",
		PreRun: func(cmd *cobra.Command, args []string) {
			cmdutil.BindEnv(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			id = cmdutil.DefaultID(id)
			logger := cmdutil.Logger(verbose)
			defer logger.Sync()

			gfd := detect.NewGFD(detect.GFDConfig{
				ID:   id,
				Host: host,
				Port: port,
				RM:   rm,
			}, logger)
			if err := gfd.Start(); err != nil {
				return err
			}

			adm := admin.New(logger)
			adm.Health("gfd", id, func() gin.H {
				return gin.H{"hostport": gfd.Hostport(), "members": len(gfd.Members())}
			})
			adm.Engine().GET("/members", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"members": gfd.Members()})
			})

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return adm.Serve(ctx, adminAddr) })
			g.Go(func() error {
				<-ctx.Done()
				gfd.Stop()
				return nil
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&id, "id", "i", "", "GFD identifier")
	cmd.Flags().StringVar(&host, "host", "", "bind host (defaults to the machine hostname)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "GFD TCP port")
	cmd.Flags().StringVar(&rm, "rm", "", "RM host:port")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "human-readable logging")
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "admin HTTP address (disabled when empty)")
	cmd.MarkFlagRequired("port")
	cmd.MarkFlagRequired("rm")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
