package cmd

import (
	"os"
	"strconv"

	"github.com/rudransh-shrivastava/p2p-ci/internal/logger"
	"github.com/rudransh-shrivastava/p2p-ci/internal/protocol"
	"github.com/spf13/cobra"
)

const (
	envServerHost = "P2PCI_SERVER_HOST"
	envServerPort = "P2PCI_SERVER_PORT"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "p2pci",
		Short:         "P2P-CI index server and peer",
		Long:          `p2pci runs the P2P-CI index server or a peer that shares documents through it`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServerCmd())
	root.AddCommand(newPeerCmd())
	return root
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logger.NewLogger().Fatal(err)
	}
}

func serverHostDefault() string {
	if v := os.Getenv(envServerHost); v != "" {
		return v
	}
	return "localhost"
}

func serverPortDefault() int {
	if v := os.Getenv(envServerPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			return port
		}
	}
	return protocol.DefaultServerPort
}
