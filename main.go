package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/config"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/logging"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/query"
	"github.com/withObsrvr/ttp-processor-demo/stellar-ledger-query/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	cfgFile string
	ledger  string
	query   string
	address string
	name    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "stellar-ledger-query",
		Short: "Query Stellar ledgers from the public data lake",
		Long: `Query Stellar ledgers from the public data lake.

Ledgers are downloaded from the archive, decompressed and decoded. Ledgers
not archived yet are fetched from the live RPC node. Results are printed as
JSON on stdout; logs go to stderr.

Examples:
  stellar-ledger-query --ledger 50000000 --query transactions
  stellar-ledger-query --ledger 63864-63900 --query address --address GABC...
  stellar-ledger-query --ledger -999 --query transactions
  stellar-ledger-query --ledger 59424051-59424060 --query contract --address CAB1...
  stellar-ledger-query --ledger 59424051-59424060 --query function --name work
  stellar-ledger-query balance --address GABC... --token usdc
  stellar-ledger-query serve --port 8080`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.ledger == "" {
				return fmt.Errorf("--ledger is required (N, A-B or -N)")
			}
			kind, err := query.ParseKind(opts.query)
			if err != nil {
				return err
			}

			return withApp(cmd, opts.cfgFile, "query", func(ctx context.Context, a *app) error {
				res, err := a.service.QueryLedgers(ctx, query.Request{
					Ledger:   opts.ledger,
					Kind:     kind,
					Address:  opts.address,
					Function: opts.name,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "YAML config file (defaults plus environment when empty)")
	cmd.Flags().StringVarP(&opts.ledger, "ledger", "l", "", "ledger, range A-B, or -N for the N most recent ledgers")
	cmd.Flags().StringVarP(&opts.query, "query", "q", string(query.KindAll), "query type: all, transactions, address, contract or function")
	cmd.Flags().StringVarP(&opts.address, "address", "a", "", "account, muxed account or contract address to filter by")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "contract function name for --query function")

	cmd.AddCommand(newBalanceCmd(opts), newServeCmd(opts))
	return cmd
}

func newBalanceCmd(root *rootOptions) *cobra.Command {
	var address, token string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Simulate a token balance lookup on the RPC node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root.cfgFile, "balance", func(ctx context.Context, a *app) error {
				bal, err := a.service.Balance(ctx, address, token)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), bal)
			})
		},
	}
	cmd.Flags().StringVarP(&address, "address", "a", "", "holder address (G... or C...)")
	cmd.Flags().StringVarP(&token, "token", "t", "", "token contract id or xlm, usdc, kale")
	cmd.MarkFlagRequired("address")
	cmd.MarkFlagRequired("token")
	return cmd
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root.cfgFile, "serve", func(ctx context.Context, a *app) error {
				if cmd.Flags().Changed("port") {
					a.cfg.Server.Port = port
				}
				srv := server.New(a.service, server.Config{
					Port:            a.cfg.Server.Port,
					ReadTimeout:     a.cfg.Server.ReadTimeout,
					WriteTimeout:    a.cfg.Server.WriteTimeout,
					ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
					Health:          a.health,
				}, a.logger)
				return srv.Run(ctx)
			})
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port (overrides config)")
	return cmd
}

// withApp loads configuration, builds the components and runs fn until it
// returns or the process is interrupted.
func withApp(cmd *cobra.Command, cfgFile, mode string, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Failed to close archive store", zap.Error(err))
		}
	}()

	logging.LogStartup(logger, logging.StartupConfig{
		Mode:           mode,
		ArchiveBackend: cfg.Archive.Backend,
		ArchiveURL:     a.archiveLocation(),
		RPCEndpoint:    cfg.RPC.ArchiveURL,
		Network:        cfg.RPC.NetworkPassphrase,
		Concurrency:    cfg.Query.Concurrency,
		Port:           cfg.Server.Port,
	})

	return fn(ctx, a)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
