package cmd

import (
	"context"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rudransh-shrivastava/p2p-ci/internal/cli"
	"github.com/rudransh-shrivastava/p2p-ci/internal/db"
	"github.com/rudransh-shrivastava/p2p-ci/internal/logger"
	"github.com/rudransh-shrivastava/p2p-ci/internal/peer"
	"github.com/rudransh-shrivastava/p2p-ci/internal/store"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

type peerOptions struct {
	serverHost    string
	serverPort    int
	uploadAddr    string
	advertiseHost string
	seed          int
	dbPath        string
}

func newPeerCmd() *cobra.Command {
	var opts peerOptions

	cmd := &cobra.Command{
		Use:   "peer",
		Short: "runs a peer with an interactive prompt",
		Long:  `runs a peer: registers with the index server, serves local documents and reads commands from stdin`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPeer(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.serverHost, "server-host", serverHostDefault(), "index server host ($"+envServerHost+")")
	cmd.Flags().IntVar(&opts.serverPort, "server-port", serverPortDefault(), "index server port ($"+envServerPort+")")
	cmd.Flags().StringVar(&opts.uploadAddr, "upload-addr", ":0", "address the upload server binds")
	cmd.Flags().StringVar(&opts.advertiseHost, "advertise-host", "", "host announced to the index server, defaults to the hostname")
	cmd.Flags().IntVar(&opts.seed, "seed", 0, "number of random documents to create at startup")
	cmd.Flags().StringVar(&opts.dbPath, "db", db.MemoryPath, "sqlite file holding local documents")
	return cmd
}

func runPeer(cmd *cobra.Command, opts peerOptions) error {
	log := logger.NewLogger()

	gdb, err := db.Open(opts.dbPath, store.Models()...)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(gdb) }()

	docs := store.NewDocumentStore(gdb)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.seed > 0 {
		r := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		if _, err := store.Seed(ctx, docs, opts.seed, r); err != nil {
			return err
		}
		log.WithField("documents", opts.seed).Info("Seeded local documents")
	}

	node, err := peer.New(peer.Config{
		ServerAddr:    net.JoinHostPort(opts.serverHost, strconv.Itoa(opts.serverPort)),
		UploadAddr:    opts.uploadAddr,
		AdvertiseHost: opts.advertiseHost,
		Documents:     docs,
		Logger:        log,
	})
	if err != nil {
		return err
	}

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := node.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Shutdown incomplete")
		}
	}
	defer shutdown()

	if err := node.Start(ctx); err != nil {
		return err
	}

	prompt := cli.NewCLI(node, cmd.InOrStdin(), cmd.OutOrStdout(), nil)
	prompt.Progress = cmd.ErrOrStderr()

	done := make(chan error, 1)
	go func() {
		done <- prompt.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info("Interrupted")
		return nil
	case err := <-done:
		return err
	}
}
