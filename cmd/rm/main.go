// cmd/rm runs the replication manager.
//
// Example:
//
//	./rm --id rm1 --port 7000
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
	"replicated-counter/internal/manager"
)

func main() {
	var (
		id        string
		host      string
		port      int
		verbose   bool
		adminAddr string
	)

	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Maintain the fleet membership view above the GFD",
		PreRun: func(cmd *cobra.Command, args []string) {
			cmdutil.BindEnv(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			id = cmdutil.DefaultID(id)
			logger := cmdutil.Logger(verbose)
			defer logger.Sync()

			rm := manager.New(manager.Config{
				ID:   id,
				Host: host,
				Port: port,
			}, logger)
			if err := rm.Start(); err != nil {
				return err
			}

			adm := admin.New(logger)
			adm.Health("rm", id, func() gin.H {
				return gin.H{"hostport": rm.Hostport(), "members": len(rm.Members())}
			})
			adm.Engine().GET("/members", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"members": rm.Members()})
			})

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return adm.Serve(ctx, adminAddr) })
			g.Go(func() error {
				<-ctx.Done()
				rm.Stop()
				return nil
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&id, "id", "i", "", "RM identifier")
	cmd.Flags().StringVar(&host, "host", "", "bind host (defaults to the machine hostname)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "RM TCP port")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "human-readable logging")
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "admin HTTP address (disabled when empty)")
	cmd.MarkFlagRequired("port")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
