package cmd

import (
	"log"

	"github.com/arafat3300/propmatch/internal/scoring"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "propmatch"
)

type Config struct {
	StorePath   string         `mapstructure:"store-path"`
	CatalogFile string         `mapstructure:"catalog-file"`
	Search      *SearchConfig  `mapstructure:"search"`
	Segment     *SegmentConfig `mapstructure:"segment"`
	AI          *AIConfig      `mapstructure:"ai"`
}

type SearchConfig struct {
	TopK    int              `mapstructure:"top-k"`
	Weights *scoring.Weights `mapstructure:"weights"`
}

type SegmentConfig struct {
	// Clusters fixes the cluster count. Zero or unset selects it
	// automatically by silhouette score.
	Clusters int `mapstructure:"clusters"`
}

type AIConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Gemini  *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "propmatch is a cli for matching buyer profiles to property listings and segmenting users",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("store-path", "PROPMATCH_STORE"); err != nil {
		log.Fatalf("binding PROPMATCH_STORE environment variable: %v", err)
	}
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is propmatch.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Only the commands touching the store need a config file.
	if searchCmd.CalledAs() == "" && recommendCmd.CalledAs() == "" && segmentCmd.CalledAs() == "" && seedCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}

func (c *Config) storePath() string {
	if c != nil && c.StorePath != "" {
		return c.StorePath
	}
	if path := viper.GetString("store-path"); path != "" {
		return path
	}
	return app + ".db"
}

func (c *Config) searchWeights() scoring.Weights {
	if c != nil && c.Search != nil && c.Search.Weights != nil && c.Search.Weights.Sum() > 0 {
		return *c.Search.Weights
	}
	return scoring.DirectWeights()
}

func (c *Config) searchTopK() int {
	if c != nil && c.Search != nil && c.Search.TopK > 0 {
		return c.Search.TopK
	}
	return 0
}
