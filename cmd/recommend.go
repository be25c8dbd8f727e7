package cmd

import (
	"errors"
	"log"

	"github.com/arafat3300/propmatch/internal/logger"
	"github.com/arafat3300/propmatch/internal/scoring"
	"github.com/arafat3300/propmatch/internal/search"
	"github.com/arafat3300/propmatch/internal/segment"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend catalog properties from a user's favorites history",
	Run: func(cmd *cobra.Command, _ []string) {
		runRecommend(cmd)
	},
}

func init() {
	rootCmd.AddCommand(recommendCmd)

	recommendCmd.Flags().Int64P("user", "u", 0, "user id whose favorites seed the recommendations")
	recommendCmd.Flags().IntP("top-k", "k", 0, "number of matches to return")
	recommendCmd.Flags().BoolP("auto-approve", "y", false, "save recommendations without asking for confirmation")
}

// runRecommend is the direct-history complement to segmentation: instead of
// a cluster profile standing in for the user, the user's own favorites are
// folded into a preference and matched against everything not yet favorited.
func runRecommend(cmd *cobra.Command) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting propmatch recommend", zap.String("version", version))

	userID, err := cmd.Flags().GetInt64("user")
	if err != nil {
		logger.Fatal("reading user flag", zap.Error(err))
	}
	if userID == 0 {
		logger.Fatal("recommending requires --user")
	}

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
	var user *segment.User
	for i := range users {
		if users[i].ID == userID {
			user = &users[i]
			break
		}
	}
	if user == nil {
		logger.Fatal("unknown user", zap.Int64("user_id", userID))
	}

	interactions, err := store.ListInteractions(snapshot)
	if err != nil {
		logger.Fatal("loading interactions", zap.Error(err))
	}
	var favorites []segment.Interaction
	for _, in := range interactions {
		if in.UserID == userID && in.Weight >= segment.FavoriteWeight {
			favorites = append(favorites, in)
		}
	}

	row := segment.BuildUserFeatures([]segment.User{*user}, favorites)[0]
	if !row.HasHistory() {
		logger.Info("exiting", zap.String("reason", "user has no favorites to build a profile from"))
		return
	}

	pref := row.ToPreference()
	logger.Debug("derived profile",
		zap.Float64("price_target", pref.PriceTarget),
		zap.String("type", pref.Type),
		zap.String("city", pref.City),
		zap.String("sale_rent", pref.SaleRent),
	)

	favoriteIDs, err := store.FavoriteIDs(userID)
	if err != nil {
		logger.Fatal("loading favorites", zap.Error(err))
	}
	seen := make(map[string]bool, len(favoriteIDs))
	for _, id := range favoriteIDs {
		seen[id] = true
	}
	candidates := snapshot.Without(seen)
	if candidates.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "every catalog property is already favorited"))
		return
	}

	controller := search.New(scoring.New(scoring.ClusterWeights()), logger)

	matches, err := controller.Search(pref, candidates, recommendTopK(cmd, config))
	if err != nil {
		logger.Fatal("recommendation search failed", zap.Error(err))
	}
	if len(matches) == 0 {
		logger.Info("exiting", zap.String("reason", "no matches even after relaxing every constraint"))
		return
	}

	for i, m := range matches {
		logger.Info("recommendation",
			zap.Int("rank", i+1),
			zap.String("property_id", m.Property.ID),
			zap.Float64("score", m.Score),
			zap.Float64("price", m.Property.Price),
			zap.String("city", m.Property.City),
		)
	}

	action := PromptSave
	for {
		var err error
		if cmd.Flag("auto-approve").Value.String() == "false" {
			_, action, err = searchPrompt.Run()
			if err != nil {
				logger.Fatal("exiting", zap.Error(err))
			}
		}

		if err := handleSearchAction(action, cmd, store, logger, matches); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}

		if cmd.Flag("auto-approve").Value.String() == "true" {
			return
		}
	}
}

func recommendTopK(cmd *cobra.Command, config *Config) int {
	if k, err := cmd.Flags().GetInt("top-k"); err == nil && k > 0 {
		return k
	}
	return config.searchTopK()
}
