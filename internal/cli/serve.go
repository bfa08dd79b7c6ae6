package cli

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"go-forecast-pipeline/internal/api"
	"go-forecast-pipeline/internal/api/handler"
	"go-forecast-pipeline/pkg/router"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scenario API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			p, err := a.provider()
			if err != nil {
				return err
			}
			defer p.Close()

			h := handler.New(p)
			r := router.New(a.log)
			api.RegisterRoutes(r, h)
			r.Handle("/metrics", promhttp.Handler())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = r.Start(ctx, addr)
			// let scheduled runs persist their stage before the store closes
			h.Wait()
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr)")
	return cmd
}
