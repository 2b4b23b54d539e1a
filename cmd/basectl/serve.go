package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/eventbase/pkg/health"
	"github.com/cuemby/eventbase/pkg/log"
	"github.com/cuemby/eventbase/pkg/manager"
	"github.com/cuemby/eventbase/pkg/stats"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a Manager and expose it over HTTP",
	Long: `serve keeps a Manager running and exposes /metrics, /healthz and
/readyz for operators. It opens no base by itself; /readyz reports only on
bases held by this process's Manager.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		httpAddr, _ := cmd.Flags().GetString("http-addr")

		cfg, err := managerConfig(cmd)
		if err != nil {
			return err
		}

		mgr := manager.New(cfg)

		mux := http.NewServeMux()
		mux.Handle("/metrics", stats.Handler())
		mux.Handle("/", health.Handler(mgr))

		errCh := make(chan error, 1)
		go func() {
			log.Logger.Info().Str("addr", httpAddr).Msg("basectl: http listener starting")
			if err := http.ListenAndServe(httpAddr, mux); err != nil {
				errCh <- fmt.Errorf("http listener: %w", err)
			}
		}()

		fmt.Printf("basectl serving on %s (metrics, healthz, readyz)\n", httpAddr)
		fmt.Println("press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nshutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\n%v\n", err)
		}

		if err := mgr.CloseAll(); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		fmt.Println("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("http-addr", "127.0.0.1:9090", "Address for the metrics/health HTTP server")
}
