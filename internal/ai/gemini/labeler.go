package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/arafat3300/propmatch/internal/segment"
	"github.com/arafat3300/propmatch/internal/util"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

//go:embed prompt.md
var promptTemplate string

const defaultMaxLogLength = 200

// Labeler generates human-readable cluster names and descriptions from
// aggregate segment statistics.
type Labeler struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewLabeler(generator contentGenerator, logger *zap.Logger, maxLogLength int) *Labeler {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Labeler{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

// Label builds the cluster prompt, queries the generator, and parses the
// Name/Description response.
func (l *Labeler) Label(ctx context.Context, profile *segment.ClusterProfile) (*segment.Label, error) {
	if profile == nil {
		return nil, fmt.Errorf("cluster profile is required")
	}

	statsJSON, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal cluster stats: %w", err)
	}

	prompt := buildPrompt(string(statsJSON))

	if l.logger != nil {
		l.logger.Debug("gemini label request",
			zap.Int("cluster_id", profile.ClusterID),
			zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
			zap.String("prompt_preview", util.TruncateForLog(prompt, l.maxLogLen)),
		)
	}

	raw, err := l.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	if l.logger != nil {
		l.logger.Debug("gemini label response",
			zap.Int("cluster_id", profile.ClusterID),
			zap.String("response_preview", util.TruncateForLog(raw, l.maxLogLen)),
		)
	}

	label, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	label.Raw = raw
	return label, nil
}

func buildPrompt(clusterJSON string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Cluster:\n{{CLUSTER_JSON}}\n\nName:\nDescription:"
	}
	return strings.ReplaceAll(template, "{{CLUSTER_JSON}}", clusterJSON)
}

// parseResponse splits the model output at the Name:/Description: markers and
// strips the markdown decoration models like to add.
func parseResponse(raw string) (*segment.Label, error) {
	_, afterName, ok := strings.Cut(raw, "Name:")
	if !ok {
		return nil, fmt.Errorf("response has no Name section")
	}
	namePart, descPart, ok := strings.Cut(afterName, "Description:")
	if !ok {
		return nil, fmt.Errorf("response has no Description section")
	}

	name := cleanName(namePart)
	if name == "" {
		return nil, fmt.Errorf("response has an empty name")
	}

	return &segment.Label{
		Name:        name,
		Description: cleanDescription(descPart),
	}, nil
}

func cleanName(s string) string {
	s = strings.NewReplacer(
		"\n", "",
		"**", "",
		"_", "",
		"-", " ",
		":", "",
		";", "",
		",", "",
		".", "",
		"!", "",
		"?", "",
		"'", "",
		`"`, "",
	).Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func cleanDescription(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "**", "")
	return strings.Join(strings.Fields(s), " ")
}
