package main

import (
	"github.com/spf13/cobra"

	"github.com/xhad/docrag/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve ingestion and streaming chat over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := config.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		srv := server.New(server.Config{
			Addr:           addr,
			AllowedOrigin:  config.Server.AllowedOrigin,
			MaxUploadBytes: int64(config.Server.MaxUploadMB) << 20,
			Collection:     config.Store.Collection,
		}, a.ingester, a.answerer)

		return srv.ListenAndServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
