package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/trilhas/internal/bootstrap"
	mcpserver "github.com/felixgeelhaar/trilhas/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the engine as MCP tools for one account",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, app.Close()) }()

		account, _ := cmd.Flags().GetString("account")
		admin, _ := cmd.Flags().GetBool("admin")
		srv, err := newMCPServer(app, account, admin)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if addr, _ := cmd.Flags().GetString("http"); addr != "" {
			app.Logger.Info("serving MCP over HTTP", "addr", addr, "account_id", account)
			return srv.ServeHTTP(ctx, addr)
		}
		return srv.ServeStdio(ctx)
	},
}

// newMCPServer exposes app's engine as MCP tools acting for account.
func newMCPServer(app *bootstrap.App, account string, admin bool) (*mcpserver.Server, error) {
	return mcpserver.NewServer(mcpserver.Config{
		Engine:    app.Service,
		AccountID: account,
		Locale:    app.Config.Catalog.DefaultLocale,
		Admin:     admin,
		Version:   Version,
	})
}

func init() {
	mcpCmd.Flags().String("account", "", "Account UUID the tools act for (required)")
	mcpCmd.Flags().Bool("admin", false, "Expose trilhas_grant and trilhas_reset")
	mcpCmd.Flags().String("http", "", "Serve over HTTP on this address instead of stdio")
	_ = mcpCmd.MarkFlagRequired("account")
}
