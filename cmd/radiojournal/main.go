package main

import (
	"errors"
	"os"

	"github.com/radiojournal/backend/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "radiojournal",
		Short:        "Radio station play journal",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(
		newServeCommand(),
		newPollCommand(),
		newCreateTableCommand(),
		newCreateStationCommand(),
		newIssueTokenCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("store-driver", defaults.GetString("store.driver"), "Journal store (dynamodb, sqlite)")
	cmd.PersistentFlags().String("store-table", defaults.GetString("store.table"), "Journal table name")
	cmd.PersistentFlags().String("sqlite-path", defaults.GetString("store.sqlite_path"), "SQLite database path")
	cmd.PersistentFlags().String("aws-region", defaults.GetString("aws.region"), "AWS region")
	cmd.PersistentFlags().String("aws-endpoint", defaults.GetString("aws.endpoint"), "DynamoDB endpoint override")
	cmd.PersistentFlags().String("signing-secret", "", "Admin token signing secret (overrides env)")

	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "store.driver", "store-driver")
	bindFlag(cmd, "store.table", "store-table")
	bindFlag(cmd, "store.sqlite_path", "sqlite-path")
	bindFlag(cmd, "aws.region", "aws-region")
	bindFlag(cmd, "aws.endpoint", "aws-endpoint")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}
