package segment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/arafat3300/propmatch/internal/catalog"
	"github.com/arafat3300/propmatch/internal/profile"
	"github.com/arafat3300/propmatch/internal/search"
)

// ErrNoUsers reports a segmentation attempt over an empty user table.
var ErrNoUsers = errors.New("no users to segment")

const (
	// DefaultSeed fixes the k-means initialization so repeated runs over the
	// same data produce the same partition.
	DefaultSeed = 42

	minAutoClusters = 2
	maxAutoClusters = 10

	// assignTopK bounds how many representative properties each cluster
	// pulls during property assignment.
	assignTopK = 10

	// assignRungLimit keeps cluster-based assignment on the precise rungs:
	// falling through to the whole catalog would assign every property to
	// every cluster.
	assignRungLimit = 4
)

// Label is a human-readable name and description for a behavioral segment.
type Label struct {
	Name        string
	Description string
	Raw         string
}

// PlaceholderLabel is used whenever generation is unavailable. Labeling is
// best-effort: a failed label never aborts a segmentation run.
func PlaceholderLabel() *Label {
	return &Label{
		Name:        "Unnamed Cluster",
		Description: "Cluster Description Unavailable",
	}
}

// Labeler names a cluster from its aggregate profile.
type Labeler interface {
	Label(ctx context.Context, profile *ClusterProfile) (*Label, error)
}

// ClusterProfile is the aggregate preference summary of one segment: mean
// numeric behavior plus modal categorical choices, with a post-hoc label.
type ClusterProfile struct {
	ClusterID int     `json:"cluster_id"`
	Size      int     `json:"size"`
	AvgAge    float64 `json:"avg_age"`

	AvgPrice            float64 `json:"avg_price"`
	AvgArea             float64 `json:"avg_area"`
	AvgBedrooms         float64 `json:"avg_bedrooms"`
	AvgInstallmentYears float64 `json:"avg_installment_years"`
	AvgDeliveryIn       float64 `json:"avg_delivery_in"`
	FurnishedRatio      float64 `json:"furnished_ratio"`
	SaleRatio           float64 `json:"sale_ratio"`

	CommonJob     string `json:"common_job"`
	CommonCountry string `json:"common_country"`
	FavType       string `json:"favorite_type"`
	FavCity       string `json:"favorite_city"`
	FavPayment    string `json:"favorite_payment_option"`
	FavSaleRent   string `json:"favorite_sale_rent"`
	FavFinishing  string `json:"preferred_finishing"`

	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToPreference coerces the profile into the shape the scorer and search
// controller consume: flexibility bands around the numeric means, modal
// values as categorical targets.
func (cp *ClusterProfile) ToPreference() *profile.Preference {
	pref := profile.New()

	if cp.AvgPrice > 0 {
		pref.PriceTarget = cp.AvgPrice
		pref.PriceRange = profile.BandAround(cp.AvgPrice)
	}
	if cp.AvgArea > 0 {
		pref.AreaTarget = cp.AvgArea
		pref.AreaRange = profile.BandAround(cp.AvgArea)
	}
	if cp.AvgBedrooms > 0 {
		pref.Bedrooms = int(math.Round(cp.AvgBedrooms))
	}
	if cp.AvgInstallmentYears > 0 {
		pref.InstallmentYears = cp.AvgInstallmentYears
	}
	if cp.AvgDeliveryIn > 0 {
		pref.DeliveryIn = cp.AvgDeliveryIn
	}

	pref.Type = cp.FavType
	pref.City = cp.FavCity
	pref.PaymentOption = cp.FavPayment
	pref.SaleRent = cp.FavSaleRent
	pref.Finishing = cp.FavFinishing

	return pref
}

// Result is the outcome of one segmentation run.
type Result struct {
	K                int               `json:"k"`
	Profiles         []*ClusterProfile `json:"profiles"`
	Assignments      map[int64]int     `json:"assignments"`
	SilhouetteScores map[int]float64   `json:"silhouette_scores,omitempty"`
	Rows             []UserFeatureRow  `json:"-"`
}

// Engine runs the periodic clustering batch. A single run is synchronous
// over an in-memory snapshot; callers must serialize runs against the same
// catalog because persisting assignments rewrites the previous ones.
type Engine struct {
	labeler Labeler
	logger  *zap.Logger
	seed    int64
}

func NewEngine(labeler Labeler, logger *zap.Logger) *Engine {
	return &Engine{labeler: labeler, logger: logger, seed: DefaultSeed}
}

// Segment partitions the users into k clusters. k <= 0 selects k
// automatically by maximizing the silhouette score over 2..10 (ties go to
// the smaller k).
func (e *Engine) Segment(ctx context.Context, rows []UserFeatureRow, k int) (*Result, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("clustering: %w", ErrNoUsers)
	}

	matrix := FeatureMatrix(rows)

	result := &Result{Rows: rows}
	if k <= 0 {
		auto, scores := e.selectK(matrix)
		k = auto
		result.SilhouetteScores = scores
		if e.logger != nil {
			e.logger.Info("selected cluster count by silhouette",
				zap.Int("k", k),
				zap.Float64("score", scores[k]),
			)
		}
	}
	if k > len(rows) {
		k = len(rows)
	}
	result.K = k

	assignments := kmeans(matrix, k, e.seed)

	result.Assignments = make(map[int64]int, len(rows))
	for i, row := range rows {
		result.Assignments[row.UserID] = assignments[i]
	}

	result.Profiles = buildProfiles(rows, assignments, k)
	e.labelProfiles(ctx, result.Profiles)

	if e.logger != nil {
		for _, cp := range result.Profiles {
			e.logger.Info("cluster profile",
				zap.Int("cluster_id", cp.ClusterID),
				zap.Int("size", cp.Size),
				zap.String("name", cp.Name),
				zap.Float64("avg_price", cp.AvgPrice),
				zap.String("favorite_city", cp.FavCity),
			)
		}
	}

	return result, nil
}

// selectK evaluates candidate cluster counts once per run and keeps the one
// with the best silhouette.
func (e *Engine) selectK(matrix [][]float64) (int, map[int]float64) {
	maxK := maxAutoClusters
	if n := len(matrix); maxK > n-1 {
		maxK = n - 1
	}
	if maxK < minAutoClusters {
		return minAutoClusters, nil
	}

	scores := make(map[int]float64, maxK-minAutoClusters+1)
	bestK, bestScore := minAutoClusters, math.Inf(-1)
	for k := minAutoClusters; k <= maxK; k++ {
		assignments := kmeans(matrix, k, e.seed)
		score := silhouetteScore(matrix, assignments, k)
		scores[k] = score
		if score > bestScore {
			bestK, bestScore = k, score
		}
	}
	return bestK, scores
}

func buildProfiles(rows []UserFeatureRow, assignments []int, k int) []*ClusterProfile {
	type agg struct {
		size   int
		ageSum float64
		ageN   int
		sums   map[string]float64
		counts map[string]int
		modes  map[string]map[string]float64
	}

	aggs := make([]*agg, k)
	for c := range aggs {
		aggs[c] = &agg{
			sums:   make(map[string]float64),
			counts: make(map[string]int),
			modes:  make(map[string]map[string]float64),
		}
	}

	addNum := func(a *agg, key string, v float64) {
		if math.IsNaN(v) {
			return
		}
		a.sums[key] += v
		a.counts[key]++
	}

	for i, row := range rows {
		a := aggs[assignments[i]]
		a.size++
		if !math.IsNaN(row.Age) {
			a.ageSum += row.Age
			a.ageN++
		}
		addNum(a, "price", row.AvgPrice)
		addNum(a, "area", row.AvgArea)
		addNum(a, "bedrooms", row.AvgBedrooms)
		addNum(a, "installment", row.AvgInstallmentYears)
		addNum(a, "delivery", row.AvgDeliveryIn)
		addNum(a, "furnished", row.FurnishedRatio)
		addNum(a, "sale", row.SaleRatio)

		addMode(a.modes, "job", row.Job, 1)
		addMode(a.modes, "country", row.Country, 1)
		addMode(a.modes, "type", row.FavType, 1)
		addMode(a.modes, "city", row.FavCity, 1)
		addMode(a.modes, "payment", row.FavPayment, 1)
		addMode(a.modes, "sale_rent", row.FavSaleRent, 1)
		addMode(a.modes, "finishing", row.FavFinishing, 1)
	}

	mean := func(a *agg, key string) float64 {
		if a.counts[key] == 0 {
			return 0
		}
		return a.sums[key] / float64(a.counts[key])
	}

	profiles := make([]*ClusterProfile, 0, k)
	for c, a := range aggs {
		cp := &ClusterProfile{
			ClusterID:           c,
			Size:                a.size,
			AvgPrice:            mean(a, "price"),
			AvgArea:             mean(a, "area"),
			AvgBedrooms:         mean(a, "bedrooms"),
			AvgInstallmentYears: mean(a, "installment"),
			AvgDeliveryIn:       mean(a, "delivery"),
			FurnishedRatio:      mean(a, "furnished"),
			SaleRatio:           mean(a, "sale"),
			CommonJob:           topMode(a.modes, "job"),
			CommonCountry:       topMode(a.modes, "country"),
			FavType:             topMode(a.modes, "type"),
			FavCity:             topMode(a.modes, "city"),
			FavPayment:          topMode(a.modes, "payment"),
			FavSaleRent:         topMode(a.modes, "sale_rent"),
			FavFinishing:        topMode(a.modes, "finishing"),
		}
		if a.ageN > 0 {
			cp.AvgAge = a.ageSum / float64(a.ageN)
		}
		profiles = append(profiles, cp)
	}

	return profiles
}

func (e *Engine) labelProfiles(ctx context.Context, profiles []*ClusterProfile) {
	for _, cp := range profiles {
		label := PlaceholderLabel()
		if e.labeler != nil {
			generated, err := e.labeler.Label(ctx, cp)
			if err != nil {
				if e.logger != nil {
					e.logger.Warn("cluster labeling failed, using placeholder",
						zap.Int("cluster_id", cp.ClusterID),
						zap.Error(err),
					)
				}
			} else if generated != nil {
				label = generated
			}
		}
		cp.Name = label.Name
		cp.Description = label.Description
	}
}

// AssignProperties scores the eligible catalog against every cluster profile
// through the precise rungs of the relaxation ladder and assigns each
// matched property to its best-scoring cluster.
func AssignProperties(controller *search.Controller, snapshot *catalog.Properties, profiles []*ClusterProfile) (map[string]int, error) {
	type best struct {
		cluster int
		score   float64
	}
	assigned := make(map[string]best)

	ordered := append([]*ClusterProfile(nil), profiles...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ClusterID < ordered[j].ClusterID })

	for _, cp := range ordered {
		matches, err := controller.Search(cp.ToPreference(), snapshot, assignTopK)
		if err != nil {
			return nil, fmt.Errorf("scoring cluster %d: %w", cp.ClusterID, err)
		}
		for _, m := range matches {
			current, ok := assigned[m.Property.ID]
			if !ok || m.Score > current.score {
				assigned[m.Property.ID] = best{cluster: cp.ClusterID, score: m.Score}
			}
		}
	}

	out := make(map[string]int, len(assigned))
	for id, b := range assigned {
		out[id] = b.cluster
	}
	return out, nil
}

// AssignmentRungLimit is the search option property assignment should be
// configured with.
func AssignmentRungLimit() int { return assignRungLimit }
