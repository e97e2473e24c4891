// Package cmd implements the mailsearch command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mailsearch/internal/conf"
	"mailsearch/internal/db"
	"mailsearch/internal/logging"
	"mailsearch/internal/search"
)

// app holds the state shared by every subcommand of one invocation.
type app struct {
	cfgFile string
	user    string
	useUID  bool

	cfg    *conf.Config
	logger *zap.Logger
}

// ExecuteContext runs the command line with the given context.
func ExecuteContext(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "mailsearch",
		Short: "Search, sort and thread mailboxes in a relational mail store",
		Long: `mailsearch evaluates IMAP SEARCH, SORT and THREAD commands against
mailboxes kept in SQLite, PostgreSQL or MySQL.

Search keys use IMAP syntax. Literals containing spaces are quoted:
  mailsearch search INBOX 'OR FROM alice (SUBJECT "project plan" UNSEEN)'`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: /etc/mailsearch/mailsearch.yaml, ./config/mailsearch.yaml or ./mailsearch.yaml)")
	root.PersistentFlags().StringVar(&a.user, "user", "", "mailbox owner (default: import.user from the config)")
	root.PersistentFlags().BoolVar(&a.useUID, "uid", false, "report UIDs instead of sequence numbers")

	root.AddCommand(
		a.newInitCmd(),
		a.newImportCmd(),
		a.newSearchCmd(),
		a.newSortCmd(),
		a.newThreadCmd(),
		a.newDeliverCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := conf.LoadConfig(a.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	if a.user == "" {
		a.user = cfg.Import.User
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	a.logger = logger

	if cfg.Metrics.Enabled {
		a.serveMetrics(cmd.Context())
	}
	return nil
}

// serveMetrics exposes the Prometheus registry until ctx is done.
func (a *app) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.logger.Info("metrics endpoint listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics endpoint stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// openDB connects to the configured store and makes sure the schema exists.
func (a *app) openDB(ctx context.Context) (*db.DB, error) {
	dbCfg := a.cfg.Database
	if dbCfg.Driver == db.DriverSQLite && dbCfg.DSN != ":memory:" {
		if dir := filepath.Dir(dbCfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("create data directory %s: %w", dir, err)
			}
		}
	}

	database, err := db.Open(dbCfg.Driver, dbCfg.DSN)
	if err != nil {
		return nil, err
	}
	database.SetMaxOpenConns(dbCfg.MaxOpenConns)

	if err := database.InitSchema(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return database, nil
}

// engineOptions returns the search engine settings from the config.
func (a *app) engineOptions() (search.Options, error) {
	strategy, err := search.ParseStrategy(a.cfg.Search.Strategy)
	if err != nil {
		return search.Options{}, err
	}
	return search.Options{
		Strategy:        strategy,
		InListThreshold: a.cfg.Search.InListThreshold,
		Logger:          a.logger,
	}, nil
}

// mailbox looks up a mailbox of the selected user.
func (a *app) mailbox(ctx context.Context, database *db.DB, name string) (*db.Mailbox, error) {
	userID, err := database.GetUserByName(ctx, a.user)
	if err != nil {
		return nil, err
	}
	mbox, err := database.GetMailboxByName(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	return mbox, nil
}
