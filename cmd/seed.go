package cmd

import (
	"log"

	"github.com/arafat3300/propmatch/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var seedCmd = &cobra.Command{
	Use:   "seed <catalog-file>",
	Short: "Load a JSON property catalog into the store",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		runSeed(args[0])
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(path string) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	store, err := openStore(config, logger)
	if err != nil {
		logger.Fatal("opening store", zap.Error(err))
	}
	defer store.Close()

	seeded, err := seedFromFile(store, path)
	if err != nil {
		logger.Fatal("seeding store", zap.Error(err))
	}

	total, err := store.CountProperties()
	if err != nil {
		logger.Fatal("counting properties", zap.Error(err))
	}

	logger.Info("seeded store",
		zap.String("path", path),
		zap.Int("loaded", seeded),
		zap.Int("total", total),
	)
}
