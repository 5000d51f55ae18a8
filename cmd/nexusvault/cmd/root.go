package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/0xn1ku/nexusvault/internal/config"
	"github.com/0xn1ku/nexusvault/internal/logger"
)

// cli carries state shared by every subcommand of one invocation.
type cli struct {
	v       *viper.Viper
	envFile string
}

// load reads the env file and environment, with flags bound onto c.v taking
// precedence.
func (c *cli) load() (*config.Config, *slog.Logger, error) {
	if err := config.LoadEnvFile(c.envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.FromViper(c.v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(cfg.Env, cfg.Logger.Level), nil
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}
	root := &cobra.Command{
		Use:   "nexusvault",
		Short: "NexusVault unlocks a passphrase-sealed secret bundle",
		Long: `NexusVault keeps a site's credentials in a sealed payload that only the
right passphrase opens, next to the portfolio records the site serves.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.envFile, "env-file", "", "dotenv file to load (default .env when present)")
	flags.String("env", "", "runtime environment: local, dev or prod")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("store-url", "", "record store URL (https, postgres, mongodb, bbolt or memory)")
	flags.String("store-key", "", "API key for https stores")
	flags.String("payload", "", "sealed payload: inline, a file path or an s3:// URL")
	_ = c.v.BindPFlag("env", flags.Lookup("env"))
	_ = c.v.BindPFlag("logger.level", flags.Lookup("log-level"))
	_ = c.v.BindPFlag("store.url", flags.Lookup("store-url"))
	_ = c.v.BindPFlag("store.key", flags.Lookup("store-key"))
	_ = c.v.BindPFlag("payload.location", flags.Lookup("payload"))

	root.AddCommand(
		newServerCmd(c),
		newSealCmd(c),
		newUnlockCmd(c),
		newRecordsCmd(c),
		newVersionCmd(),
	)
	return root
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
