package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitsync/internal/config"
	"github.com/mmynk/splitsync/internal/models"
	"github.com/mmynk/splitsync/internal/session"
	"github.com/mmynk/splitsync/internal/storage"
	"github.com/mmynk/splitsync/internal/storage/driver"
	"github.com/mmynk/splitsync/internal/storage/remote"
	"github.com/mmynk/splitsync/pkg/logging"
)

const storeRemote = "remote"

// cli carries flags and the opened store across commands.
type cli struct {
	configPath string
	storeKind  string
	serverURL  string
	sqlitePath string
	currency   string
	verbose    bool

	cfg   *config.Config
	store storage.Store

	// openStore is replaced in tests.
	openStore func(ctx context.Context, c *cli) (storage.Store, error)
}

// Execute runs splitctl with the process arguments.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{openStore: defaultOpenStore}
	err := c.execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func (c *cli) execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	defer func() {
		if c.store != nil {
			c.store.Close()
			c.store = nil
		}
	}()
	return root.ExecuteContext(ctx)
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "splitctl",
		Short:         "Share group expenses and see who owes whom",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			c.applyFlags(cmd, cfg)
			c.cfg = cfg

			logging.Setup(logLevel(cfg, c.verbose))

			store, err := c.openStore(cmd.Context(), c)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			c.store = store
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default ./splitsync.yaml if present)")
	flags.StringVar(&c.storeKind, "store", storeRemote, "where ledgers live: remote, sqlite, postgres or memory")
	flags.StringVar(&c.serverURL, "server", "", "server URL for the remote store (default client.server_url)")
	flags.StringVar(&c.sqlitePath, "sqlite", "", "database file for the sqlite store (default store.sqlite_path)")
	flags.StringVar(&c.currency, "currency", "", "currency code used to display amounts (default display.currency)")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "log sync activity")

	root.AddCommand(
		c.newCmd(),
		c.showCmd(),
		c.renameCmd(),
		c.personCmd(),
		c.expenseCmd(),
		c.settleCmd(),
		c.watchCmd(),
	)
	return root
}

// applyFlags lets explicit flags win over the configuration.
func (c *cli) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Client.ServerURL = c.serverURL
	}
	if flags.Changed("sqlite") {
		cfg.Store.SQLitePath = c.sqlitePath
	}
	if flags.Changed("currency") {
		cfg.Display.Currency = c.currency
	}
}

// logLevel is log.level from the configuration, or debug with --verbose.
func logLevel(cfg *config.Config, verbose bool) string {
	if verbose {
		return "debug"
	}
	return cfg.Log.Level
}

func defaultOpenStore(ctx context.Context, c *cli) (storage.Store, error) {
	if c.storeKind == storeRemote {
		slog.Debug("Using remote store", "server", c.cfg.Client.ServerURL)
		return remote.New(c.cfg.Client.ServerURL, nil), nil
	}
	storeCfg := c.cfg.Store
	storeCfg.Driver = c.storeKind
	return driver.Open(ctx, storeCfg)
}

// openSession starts a sync session for groupID, or creates a new group
// when groupID is empty.
func (c *cli) openSession(ctx context.Context, groupID string, opts ...session.Option) (*session.Coordinator, error) {
	base := []session.Option{
		session.WithDebounce(c.cfg.Sync.Debounce),
		session.WithEchoWindow(c.cfg.Sync.EchoWindow),
		session.WithLogger(slog.Default()),
	}
	sess := session.New(c.store, append(base, opts...)...)
	if err := sess.Start(ctx, groupID); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

// edit loads a group, applies fn and writes the result before returning.
func (c *cli) edit(cmd *cobra.Command, groupID string, fn func(sess *session.Coordinator, l *models.Ledger) error) error {
	ctx := cmd.Context()
	sess, err := c.openSession(ctx, groupID)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := fn(sess, sess.Snapshot()); err != nil {
		return err
	}
	if err := sess.Flush(ctx); err != nil {
		return fmt.Errorf("failed to save group %s: %w", groupID, err)
	}
	return nil
}
