package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chaingraph/indexer/service/logger"
)

var quietLogs bool

func init() {
	cobra.OnInitialize(setDefaults, initLogger)

	rootCmd.PersistentFlags().BoolVarP(&quietLogs, "quiet", "q", false, "hide debug logs")

	rootCmd.AddCommand(dispatcherCmd)
	rootCmd.AddCommand(runtimeCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(deployCmd)
}

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "Run the multi-chain indexing platform",
	Long:  `A multi-chain blockchain indexing platform: chain readers, a streaming dispatcher, per-indexer runtimes, and the catalog that tracks them.`,
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.For(nil).Fatal(err)
	}
}

func setDefaults() {
	viper.SetDefault("ENV", "local")
	viper.SetDefault("POSTGRES_HOST", "0.0.0.0")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "postgres")
	viper.SetDefault("POSTGRES_PASSWORD", "")
	viper.SetDefault("POSTGRES_DB", "indexer")
	viper.SetDefault("IPFS_URL", "https://ipfs.io")
	viper.SetDefault("CHAIN_READER_URL", "ws://localhost:4001/stream")
	viper.SetDefault("DISPATCHER_PORT", 4001)
	viper.SetDefault("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	viper.SetDefault("ETHEREUM_RPC_URL", "")
	viper.SetDefault("SUBSTRATE_RPC_URL", "")
	viper.SetDefault("MIGRATIONS_DIR", "db/migrations")
	viper.SetDefault("SHARD", "primary")
	viper.SetDefault("BLOCK_BATCH_SIZE", 10)
	viper.SetDefault("FINALITY_MARGIN", 100)
	viper.SetDefault("START_BLOCK", 0)
	viper.SetDefault("MAX_API_VERSION", "0.0.5")
	viper.SetDefault("STATS_REFRESH_INTERVAL", 300)
	viper.SetDefault("GRAPHQL_METADATA_URL", "")

	viper.AutomaticEnv()
}

func initLogger() {
	logger.InitWithGCPDefaults()
	if quietLogs {
		logger.SetLoggerOptions(func(l *logrus.Logger) {
			l.SetLevel(logrus.WarnLevel)
		})
	}
}
