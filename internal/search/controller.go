package search

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/arafat3300/propmatch/internal/catalog"
	"github.com/arafat3300/propmatch/internal/profile"
	"github.com/arafat3300/propmatch/internal/scoring"
)

// ErrEmptyCatalog reports a search attempted against an empty snapshot. An
// exhausted ladder is not an error: it returns an empty, valid result list.
var ErrEmptyCatalog = errors.New("catalog snapshot is empty")

const defaultTopK = 5

// Match is one ranked search result.
type Match struct {
	Property  *catalog.Property  `json:"property"`
	Score     float64            `json:"score"`
	SubScores map[string]float64 `json:"sub_scores"`
}

// Step describes the outcome of one rung, mirroring the filter-step stats
// logged by the pipeline.
type Step struct {
	Rung    string
	Initial int
	Dropped int
	Left    int
}

// Controller runs the relaxation ladder over an immutable catalog snapshot.
// Each request is independent and shares no mutable state, so one controller
// may serve concurrent searches.
type Controller struct {
	scorer  *scoring.Scorer
	logger  *zap.Logger
	maxRung int
}

// Option configures a Controller.
type Option func(*Controller)

// WithRungLimit caps how deep the ladder may descend. Cluster-based property
// assignment uses this to avoid the catalog-wide fallback rung.
func WithRungLimit(n int) Option {
	return func(c *Controller) { c.maxRung = n }
}

func New(scorer *scoring.Scorer, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{scorer: scorer, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search produces up to topK matches, relaxing constraints rung by rung until
// at least one property survives. Only available/approved properties are
// eligible at every rung. Results are ordered by score descending with ties
// broken by ascending identifier, independent of catalog input order.
func (c *Controller) Search(pref *profile.Preference, snapshot *catalog.Properties, topK int) ([]Match, error) {
	if pref == nil {
		return nil, errors.New("normalization: preference is required")
	}
	if err := pref.Validate(); err != nil {
		return nil, fmt.Errorf("normalization: %w", err)
	}
	if snapshot.Len() == 0 {
		return nil, ErrEmptyCatalog
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	eligible := snapshot.EligibleOnly()
	eligible.SortByID()

	rungs := Ladder()
	if c.maxRung > 0 && c.maxRung < len(rungs) {
		rungs = rungs[:c.maxRung]
	}

	for _, rung := range rungs {
		survivors := rung.Apply(pref, eligible)

		step := Step{
			Rung:    rung.Name(),
			Initial: eligible.Len(),
			Dropped: eligible.Len() - survivors.Len(),
			Left:    survivors.Len(),
		}
		if c.logger != nil {
			c.logger.Debug("relaxation rung",
				zap.String("rung", step.Rung),
				zap.Int("initial", step.Initial),
				zap.Int("dropped", step.Dropped),
				zap.Int("left", step.Left),
			)
		}

		if survivors.Len() == 0 {
			continue
		}

		matches := c.rank(pref, survivors)
		if len(matches) > topK {
			matches = matches[:topK]
		}

		if c.logger != nil {
			c.logger.Info("search resolved",
				zap.String("rung", rung.Name()),
				zap.Int("candidates", survivors.Len()),
				zap.Int("returned", len(matches)),
			)
		}
		return matches, nil
	}

	if c.logger != nil {
		c.logger.Info("search exhausted relaxation ladder", zap.Int("rungs", len(rungs)))
	}
	return []Match{}, nil
}

// rank re-scores every survivor so sub-scores stay inspectable regardless of
// which rung resolved the search.
func (c *Controller) rank(pref *profile.Preference, survivors *catalog.Properties) []Match {
	matches := make([]Match, 0, survivors.Len())
	for _, p := range survivors.Items {
		res := c.scorer.Score(pref, p)
		matches = append(matches, Match{
			Property:  p,
			Score:     res.Score,
			SubScores: res.SubScores,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Property.ID < matches[j].Property.ID
	})

	return matches
}
