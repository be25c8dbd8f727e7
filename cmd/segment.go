package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/arafat3300/propmatch/internal/ai/gemini"
	"github.com/arafat3300/propmatch/internal/logger"
	"github.com/arafat3300/propmatch/internal/scoring"
	"github.com/arafat3300/propmatch/internal/search"
	"github.com/arafat3300/propmatch/internal/secrets"
	"github.com/arafat3300/propmatch/internal/segment"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var segmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Cluster users by interaction behavior and assign properties to the resulting segments",
	Run: func(cmd *cobra.Command, _ []string) {
		runSegment(cmd)
	},
}

func init() {
	rootCmd.AddCommand(segmentCmd)

	segmentCmd.Flags().IntP("clusters", "k", 0, "fixed cluster count (0 selects it by silhouette score)")
	segmentCmd.Flags().BoolP("auto-approve", "y", false, "replace stored assignments without asking for confirmation")

	viper.BindPFlag("segment.clusters", segmentCmd.Flags().Lookup("clusters"))
}

func runSegment(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting propmatch segmentation", zap.String("version", version))

	store, err := openStore(config, logger)
	if err != nil {
		logger.Fatal("opening store", zap.Error(err))
	}
	defer store.Close()

	snapshot, err := store.SnapshotCatalog()
	if err != nil {
		logger.Fatal("loading catalog snapshot", zap.Error(err))
	}

	users, err := store.ListUsers()
	if err != nil {
		logger.Fatal("loading users", zap.Error(err))
	}

	interactions, err := store.ListInteractions(snapshot)
	if err != nil {
		logger.Fatal("loading interactions", zap.Error(err))
	}

	logger.Info("loaded segmentation input",
		zap.Int("users", len(users)),
		zap.Int("interactions", len(interactions)),
		zap.Int("properties", snapshot.Len()),
	)

	rows := segment.BuildUserFeatures(users, interactions)

	labeler := newLabeler(ctx, config, logger)

	engine := segment.NewEngine(labeler, logger)

	result, err := engine.Segment(ctx, rows, clusterCount(cmd, config))
	if err != nil {
		logger.Fatal("segmentation failed", zap.Error(err))
	}

	assignController := search.New(
		scoring.New(scoring.ClusterWeights()),
		logger,
		search.WithRungLimit(segment.AssignmentRungLimit()),
	)

	propertyClusters, err := segment.AssignProperties(assignController, snapshot, result.Profiles)
	if err != nil {
		logger.Fatal("assigning properties to clusters", zap.Error(err))
	}

	logger.Info("segmentation complete",
		zap.Int("k", result.K),
		zap.Int("assigned_users", len(result.Assignments)),
		zap.Int("assigned_properties", len(propertyClusters)),
	)

	// Persisting rewrites the previous assignment set, so ask first.
	if cmd.Flag("auto-approve").Value.String() == "false" {
		confirm := promptui.Select{
			Label: fmt.Sprintf("Replace stored cluster assignments with %d new clusters?", result.K),
			Items: []string{"Yes", "No"},
		}
		_, answer, err := confirm.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		if answer != "Yes" {
			logger.Info("exiting", zap.String("reason", "got no from prompt, assignments unchanged"))
			return
		}
	}

	if err := store.ReplaceAssignments(result.Profiles, result.Assignments, propertyClusters); err != nil {
		logger.Fatal("persisting cluster assignments", zap.Error(err))
	}

	logger.Info("persisted cluster assignments", zap.Int("clusters", len(result.Profiles)))
}

func clusterCount(cmd *cobra.Command, config *Config) int {
	if k, err := cmd.Flags().GetInt("clusters"); err == nil && k > 0 {
		return k
	}
	if config != nil && config.Segment != nil && config.Segment.Clusters > 0 {
		return config.Segment.Clusters
	}
	return 0
}

// newLabeler builds the Gemini-backed cluster labeler. Labeling is optional:
// any setup failure degrades to placeholder labels instead of aborting the
// run.
func newLabeler(ctx context.Context, config *Config, logger *zap.Logger) segment.Labeler {
	if config == nil || config.AI == nil || !config.AI.Enabled {
		return nil
	}

	if config.AI.Gemini == nil {
		logger.Warn("skipping cluster labeling", zap.String("reason", "gemini configuration is required when ai is enabled"))
		return nil
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: strings.TrimSpace(config.AI.Gemini.APIKeyFile),
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		logger.Warn("skipping cluster labeling",
			zap.Error(err),
			zap.String("hint", "set ai.gemini.api-key-file or GEMINI_API_KEY"),
		)
		return nil
	}

	genLogger := logger.With(
		zap.String("provider", "gemini"),
		zap.String("model", config.AI.Gemini.Model),
		zap.Int("ai_retry_attempts", config.AI.Gemini.MaxRetries),
	)

	generator, err := gemini.NewGenerator(ctx, apiKey, config.AI.Gemini.Model, config.AI.Gemini.MaxRetries, genLogger)
	if err != nil {
		logger.Warn("skipping cluster labeling", zap.Error(err))
		return nil
	}

	return gemini.NewLabeler(generator, genLogger, config.AI.Gemini.MaxLogLength)
}
