package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"sweepnspect/internal/config"
	"sweepnspect/internal/store"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	dataDir string
	driver  string
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy JSON-file collections into the SQL record store",
	RunE:  migrate,
}

func main() {
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.Flags().StringVar(&dataDir, "data-dir", "", "source directory (defaults to store.data_dir)")
	rootCmd.Flags().StringVar(&driver, "driver", "postgres", "target driver: postgres or sqlite")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "list collections without writing")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func migrate(cmd *cobra.Command, args []string) error {
	config.SetupViper(viper.GetViper(), cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := config.InitLogger(cfg)
	if err != nil {
		return err
	}

	if dataDir == "" {
		dataDir = cfg.Store.DataDir
	}
	src, err := store.NewJSONStore(dataDir)
	if err != nil {
		return err
	}
	names, err := src.Collections()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		logger.Infof("No collections found in %s", src.Dir())
		return nil
	}
	if dryRun {
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	}

	dsn := cfg.Store.Database.DSN()
	if driver == "sqlite" {
		dsn = cfg.Store.Database.Name
	}
	dst, err := store.OpenSQL(driver, dsn, false)
	if err != nil {
		return err
	}
	defer dst.Close()

	n, err := store.Copy(context.Background(), src, dst, names)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"source": src.Dir(), "driver": driver, "collections": n}).Info("Migration completed")
	return nil
}
