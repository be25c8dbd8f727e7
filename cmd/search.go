package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/arafat3300/propmatch/internal/catalog"
	"github.com/arafat3300/propmatch/internal/logger"
	"github.com/arafat3300/propmatch/internal/profile"
	"github.com/arafat3300/propmatch/internal/scoring"
	"github.com/arafat3300/propmatch/internal/search"
	"github.com/arafat3300/propmatch/internal/storage"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptSave          = "Save as recommendations"
	PromptExit          = "Exit"
	PromptBreakdown     = "Show score breakdown"
	PromptMatchesToFile = "Dump matches to file"
)

var errExit = errors.New("exit requested")

var searchPrompt = promptui.Select{
	Label: "Proceed?",
	Items: []string{PromptSave, PromptExit, PromptBreakdown, PromptMatchesToFile},
}

var searchCmd = &cobra.Command{
	Use:   "search <answers-file>",
	Short: "Match a questionnaire answers file against the property catalog",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSearch(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Int64P("user", "u", 0, "user id to record saved recommendations against")
	searchCmd.Flags().IntP("top-k", "k", 0, "number of matches to return")
	searchCmd.Flags().BoolP("auto-approve", "y", false, "save recommendations without asking for confirmation")

	viper.BindPFlag("search.top-k", searchCmd.Flags().Lookup("top-k"))
}

func runSearch(cmd *cobra.Command, answersPath string) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting propmatch search", zap.String("version", version))

	answers, err := readAnswers(answersPath)
	if err != nil {
		logger.Fatal("reading answers file", zap.Error(err))
	}

	pref := profile.Normalize(profile.CleanAnswers(answers))
	logger.Debug("normalized profile",
		zap.Float64("price_target", pref.PriceTarget),
		zap.String("type", pref.Type),
		zap.String("city", pref.City),
		zap.String("payment", pref.PaymentOption),
		zap.Strings("features", pref.Features),
	)

	store, err := openStore(config, logger)
	if err != nil {
		logger.Fatal("opening store", zap.Error(err))
	}
	defer store.Close()

	snapshot, err := store.SnapshotCatalog()
	if err != nil {
		logger.Fatal("loading catalog snapshot", zap.Error(err))
	}
	logger.Info("loaded catalog snapshot", zap.Int("count", snapshot.Len()))

	controller := search.New(scoring.New(config.searchWeights()), logger)

	matches, err := controller.Search(pref, snapshot, config.searchTopK())
	if err != nil {
		logger.Fatal("search failed", zap.Error(err))
	}

	if len(matches) == 0 {
		logger.Info("exiting", zap.String("reason", "no matches even after relaxing every constraint"))
		return
	}

	for i, m := range matches {
		logger.Info("match",
			zap.Int("rank", i+1),
			zap.String("property_id", m.Property.ID),
			zap.Float64("score", m.Score),
			zap.Float64("price", m.Property.Price),
			zap.String("city", m.Property.City),
		)
	}

	if cmd.Flag("auto-approve").Value.String() == "true" {
		if userID, _ := cmd.Flags().GetInt64("user"); userID == 0 {
			logger.Info("exiting", zap.String("reason", "auto-approve without --user, nothing to save"))
			return
		}
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

func handleSearchAction(action string, cmd *cobra.Command, store *storage.Store, logger *zap.Logger, matches []search.Match) error {
	switch action {
	case PromptSave:
		userID, err := cmd.Flags().GetInt64("user")
		if err != nil {
			return err
		}
		if userID == 0 {
			return errors.New("saving recommendations requires --user")
		}
		if err := store.SaveRecommendations(userID, matches); err != nil {
			return fmt.Errorf("saving recommendations: %w", err)
		}
		logger.Info("saved recommendations",
			zap.Int64("user_id", userID),
			zap.Int("count", len(matches)),
		)
		return errExit
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	case PromptBreakdown:
		breakdown := make(map[string]map[string]float64, len(matches))
		for _, m := range matches {
			breakdown[m.Property.ID] = m.SubScores
		}
		pretty, _ := json.MarshalIndent(breakdown, "", "  ")
		logger.Info(string(pretty), zap.Int("matches count", len(matches)))
		return nil
	case PromptMatchesToFile:
		matched := &catalog.Properties{}
		for _, m := range matches {
			matched.Items = append(matched.Items, m.Property)
		}
		filename, err := matched.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

// readAnswers loads the questionnaire answers, one per line. Blank lines are
// kept so answer positions stay aligned with the question order.
func readAnswers(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("answers file %q is empty", path)
	}
	return lines, nil
}
