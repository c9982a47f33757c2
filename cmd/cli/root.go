package cli

import (
	"errors"
	"fmt"
	"os"

	"sweepnspect/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "sweepnspect",
	Short: "SweepNspect operations core",
	Long: `SweepNspect operations core: classifies inbound email, routes alerts
over SMS and the live dashboard, and runs automation rules against
business events.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
}

func initConfig() {
	config.SetupViper(viper.GetViper(), cfgFile)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Println("Error reading config file:", err)
		}
	}
}
