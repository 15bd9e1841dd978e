/*
	Copyright 2023 Markus Papenbrock
*/

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	garageCmd "github.com/xrpracing/racegarage/pkg/cmd/garage"
	raceCmd "github.com/xrpracing/racegarage/pkg/cmd/race"
	walletCmd "github.com/xrpracing/racegarage/pkg/cmd/wallet"
	"github.com/xrpracing/racegarage/pkg/config"
	"github.com/xrpracing/racegarage/pkg/errs"
	"github.com/xrpracing/racegarage/pkg/utils"
	"github.com/xrpracing/racegarage/version"
)

const envPrefix = "RGC"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "rgc",
	Short:         "Client for the racegarage testnet racing game",
	Long:          ``,
	Version:       version.FullVersion,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", errs.Message(err))
		os.Exit(1)
	}
}

//nolint:funlen,lll // flag definitions
func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.rgc.yml)")

	pf.StringVar(&config.BackendURL, "backend-url", "http://localhost:8000",
		"Base URL of the game backend")
	pf.StringVar(&config.APIPrefix, "api-prefix", "/race",
		"Path prefix of the racing endpoints")
	pf.StringVar(&config.RequestTimeout, "request-timeout", "30s",
		"Timeout for a single backend request")
	pf.StringVar(&config.LedgerURL, "ledger-url", "wss://s.altnet.rippletest.net:51233",
		"Websocket URL of the ledger node")
	pf.StringVar(&config.FaucetURL, "faucet-url", "https://faucet.altnet.rippletest.net",
		"URL of the testnet faucet")
	pf.StringVar(&config.ValidationTimeout, "validation-timeout", "60s",
		"Max wait for a submitted transaction to be validated")
	pf.StringVar(&config.ExtensionURL, "extension-url", "http://localhost:8765",
		"URL of the signer extension bridge")
	pf.StringVar(&config.JournalPath, "journal", "~/.rgc/journal.db",
		"Path of the local wallet journal")
	pf.StringVar(&config.KeyringService, "keyring-service", "racegarage",
		"Service name used in the OS keyring")
	pf.StringVar(&config.SecretsFallback, "secrets-file", "",
		"File used to store seeds when no OS keyring is available")
	pf.StringVar(&config.NatsURL, "nats-url", "",
		"NATS server for publishing lifecycle events (disabled if empty)")
	pf.StringVar(&config.NatsSubject, "nats-subject", "racegarage",
		"Subject prefix for published events")
	pf.StringVar(&config.MinBackendVersion, "min-backend-version", utils.MinBackendVersion,
		"Minimum accepted backend version")
	pf.StringVar(&config.WaitForServices, "wait-for-services", "0s",
		"Duration to wait for the backend to be ready")
	pf.StringVar(&config.LogLevel, "log-level", "",
		"controls the log level (debug, info, warn, error, fatal)")
	pf.StringVar(&config.LogFormat, "log-format", "text",
		"controls the log output format (json, text)")
	pf.StringVar(&config.LogFilter, "log-filter", "",
		"zapfilter rules, e.g. '*:lifecycle* warn+:*'")
	pf.BoolVar(&config.EnableTelemetry, "enable-telemetry", false,
		"writes broadcast metrics to stderr")
	pf.StringVar(&config.OpponentsFile, "opponents-file", "",
		"YAML file with the opponent pool")

	pf.StringVar(&config.TrainFee, "train-fee", "1", "train fee in XRP")
	pf.StringVar(&config.EntryFee, "entry-fee", "1", "race entry fee in XRP")
	pf.StringVar(&config.CreateFee, "create-fee", "1", "car creation fee in XRP")
	pf.StringVar(&config.PrizeAmount, "prize-amount", "100", "race prize in XRP")
	pf.StringVar(&config.RefundAmount, "refund-amount", "0.5", "refund for a sold car in XRP if the backend reports none")
	pf.StringVar(&config.InitialFund, "initial-fund", "10", "XRP requested from the faucet for a new wallet")

	pf.IntVar(&config.NumOpponents, "opponents", 4, "number of opponents in the local race")
	pf.Float64Var(&config.OpponentSpeedMin, "opponent-speed-min", 2.8, "lower bound of opponent speeds")
	pf.Float64Var(&config.OpponentSpeedMax, "opponent-speed-max", 4.2, "upper bound (exclusive) of opponent speeds")
	pf.Float64Var(&config.DefaultPlayerSpeed, "default-speed", 3.0, "player speed without a speed test")
	pf.Float64Var(&config.SpeedReadingScale, "speed-scale", 75, "divisor converting km/h readings to simulation speed")

	// add commands here
	rootCmd.AddCommand(walletCmd.NewWalletCmd())
	rootCmd.AddCommand(garageCmd.NewGarageCmd())
	rootCmd.AddCommand(raceCmd.NewTrainCmd())
	rootCmd.AddCommand(raceCmd.NewTestCmd())
	rootCmd.AddCommand(raceCmd.NewRaceCmd())
	rootCmd.AddCommand(raceCmd.NewLatestCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".rgc" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".rgc")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	bindAll(rootCmd, viper.GetViper())
}

func bindAll(cmd *cobra.Command, v *viper.Viper) {
	bindFlags(cmd, v)
	for _, c := range cmd.Commands() {
		bindAll(c, v)
	}
}

// Bind each cobra flag to its associated viper configuration
// (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// Environment variables can't have dashes in them, so bind them to their
		// equivalent keys with underscores, e.g. --backend-url to RGC_BACKEND_URL
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name,
				fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				fmt.Fprintf(os.Stderr, "Could not bind env var %s: %v", f.Name, err)
			}
		}
		// Apply the viper config value to the flag when the flag is not set and viper
		// has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				fmt.Fprintf(os.Stderr, "Could set flag value for %s: %v", f.Name, err)
			}
		}
	})
}
