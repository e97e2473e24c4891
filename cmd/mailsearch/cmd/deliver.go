package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mailsearch/internal/delivery/lmtp"
	"mailsearch/internal/delivery/storage"
)

func (a *app) newDeliverCmd() *cobra.Command {
	var unixSocket, tcpAddr string

	cmd := &cobra.Command{
		Use:   "deliver",
		Short: "Accept mail over LMTP and store it for searching",
		Long: `Run an LMTP listener. Each accepted recipient's local part names the
user and messages land in delivery.default_folder. The listener stops on
SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if cmd.Flags().Changed("socket") {
				a.cfg.LMTP.UnixSocket = unixSocket
			}
			if cmd.Flags().Changed("tcp") {
				a.cfg.LMTP.TCPAddress = tcpAddr
			}

			database, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			server := lmtp.NewServer(a.cfg, storage.NewStorage(database, a.logger), a.logger)
			if err := server.Listen(); err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- server.Serve() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				a.logger.Info("received shutdown signal")
				if err := server.Shutdown(); err != nil {
					a.logger.Error("error during shutdown", zap.Error(err))
				}
				return <-errCh
			}
		},
	}

	cmd.Flags().StringVar(&unixSocket, "socket", "", "path to the UNIX socket (overrides lmtp.unix_socket)")
	cmd.Flags().StringVar(&tcpAddr, "tcp", "", "TCP address to bind, e.g. 127.0.0.1:24 (overrides lmtp.tcp_address)")
	return cmd
}
