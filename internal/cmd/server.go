package cmd

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rudransh-shrivastava/p2p-ci/internal/index"
	"github.com/rudransh-shrivastava/p2p-ci/internal/logger"
	"github.com/spf13/cobra"
)

func newServerCmd() *cobra.Command {
	var (
		host     string
		port     int
		maxConns int
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "runs the index server",
		Long:  `runs the index server until interrupted, peers register with it and publish their documents`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.NewLogger()

			srv, err := index.NewServer(index.Config{
				Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
				MaxConns: maxConns,
				Logger:   log,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = srv.Start(ctx)
			if shutdownErr := srv.Shutdown(); shutdownErr != nil {
				log.WithError(shutdownErr).Warn("Shutdown incomplete")
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "address to listen on, empty for all interfaces")
	cmd.Flags().IntVar(&port, "port", serverPortDefault(), "port to listen on ($"+envServerPort+")")
	cmd.Flags().IntVar(&maxConns, "max-conns", 0, "maximum concurrent peer sessions, 0 for the default")
	return cmd
}
