package segment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/arafat3300/propmatch/internal/catalog"
	"github.com/arafat3300/propmatch/internal/scoring"
	"github.com/arafat3300/propmatch/internal/search"
)

type stubLabeler struct {
	err    error
	called int
}

func (s *stubLabeler) Label(_ context.Context, cp *ClusterProfile) (*Label, error) {
	s.called++
	if s.err != nil {
		return nil, s.err
	}
	return &Label{
		Name:        fmt.Sprintf("Segment %d", cp.ClusterID),
		Description: "test description",
	}, nil
}

// budgetAndLuxuryRows builds two clearly separated behavioral groups.
func budgetAndLuxuryRows(perGroup int) []UserFeatureRow {
	var rows []UserFeatureRow
	for i := 0; i < perGroup; i++ {
		rows = append(rows, UserFeatureRow{
			UserID: int64(i + 1), Age: 28, Engagement: 2, TotalFavorites: 2,
			AvgPrice: 1_000_000, AvgArea: 90, AvgBedrooms: 2,
			PricePerArea: 1_000_000.0 / 90, FurnishedRatio: 0, SaleRatio: 1,
			AvgInstallmentYears: 5, AvgDeliveryIn: 2, InvestmentScore: 0.8,
			Job: "engineer", Country: "egypt",
			FavType: "apartment", FavCity: "cairo", FavPayment: "installment",
			FavSaleRent: "sale", FavFinishing: "finished",
		})
	}
	for i := 0; i < perGroup; i++ {
		rows = append(rows, UserFeatureRow{
			UserID: int64(100 + i + 1), Age: 52, Engagement: 8, TotalFavorites: 8,
			AvgPrice: 20_000_000, AvgArea: 450, AvgBedrooms: 5,
			PricePerArea: 20_000_000.0 / 450, FurnishedRatio: 1, SaleRatio: 1,
			AvgInstallmentYears: math.NaN(), AvgDeliveryIn: 0, InvestmentScore: 0.6,
			Job: "executive", Country: "uae",
			FavType: "villa", FavCity: "dubai", FavPayment: "cash",
			FavSaleRent: "sale", FavFinishing: "furnished",
		})
	}
	return rows
}

func TestSegmentAutoSelectsK(t *testing.T) {
	rows := budgetAndLuxuryRows(10)
	engine := NewEngine(nil, zap.NewNop())

	result, err := engine.Segment(context.Background(), rows, 0)
	if err != nil {
		t.Fatalf("Segment() = %v", err)
	}

	if result.K != 2 {
		t.Fatalf("auto-selected K = %d, want 2", result.K)
	}
	if len(result.Assignments) != len(rows) {
		t.Fatalf("got %d assignments, want %d", len(result.Assignments), len(rows))
	}
	if len(result.SilhouetteScores) == 0 {
		t.Fatal("auto selection should report candidate silhouette scores")
	}

	// The two behavioral groups must land in different clusters.
	budget := result.Assignments[1]
	luxury := result.Assignments[101]
	if budget == luxury {
		t.Fatalf("groups merged into cluster %d", budget)
	}
	for _, row := range rows {
		want := budget
		if row.UserID > 100 {
			want = luxury
		}
		if result.Assignments[row.UserID] != want {
			t.Fatalf("user %d assigned to %d, want %d", row.UserID, result.Assignments[row.UserID], want)
		}
	}
}

func TestSegmentIsReproducible(t *testing.T) {
	rows := budgetAndLuxuryRows(8)
	engine := NewEngine(nil, zap.NewNop())

	first, err := engine.Segment(context.Background(), rows, 0)
	if err != nil {
		t.Fatalf("Segment() = %v", err)
	}
	second, err := engine.Segment(context.Background(), rows, 0)
	if err != nil {
		t.Fatalf("Segment() = %v", err)
	}

	if first.K != second.K {
		t.Fatalf("K differs across runs: %d vs %d", first.K, second.K)
	}
	if !reflect.DeepEqual(first.Assignments, second.Assignments) {
		t.Fatalf("assignments differ across runs:\n%v\n%v", first.Assignments, second.Assignments)
	}
}

func TestSegmentFixedK(t *testing.T) {
	rows := budgetAndLuxuryRows(5)
	engine := NewEngine(nil, zap.NewNop())

	result, err := engine.Segment(context.Background(), rows, 3)
	if err != nil {
		t.Fatalf("Segment() = %v", err)
	}
	if result.K != 3 {
		t.Fatalf("K = %d, want 3", result.K)
	}
	if len(result.Profiles) != 3 {
		t.Fatalf("got %d profiles, want 3", len(result.Profiles))
	}
	if result.SilhouetteScores != nil {
		t.Fatal("fixed k should not compute candidate silhouettes")
	}
}

func TestSegmentClampsKToUserCount(t *testing.T) {
	rows := budgetAndLuxuryRows(1)
	engine := NewEngine(nil, zap.NewNop())

	result, err := engine.Segment(context.Background(), rows, 10)
	if err != nil {
		t.Fatalf("Segment() = %v", err)
	}
	if result.K != 2 {
		t.Fatalf("K = %d, want 2 for two users", result.K)
	}
}

func TestSegmentNoUsers(t *testing.T) {
	engine := NewEngine(nil, zap.NewNop())
	if _, err := engine.Segment(context.Background(), nil, 2); !errors.Is(err, ErrNoUsers) {
		t.Fatalf("Segment() = %v, want ErrNoUsers", err)
	}
}

func TestSegmentPlaceholderLabelsWithoutLabeler(t *testing.T) {
	rows := budgetAndLuxuryRows(3)
	engine := NewEngine(nil, zap.NewNop())

	result, err := engine.Segment(context.Background(), rows, 2)
	if err != nil {
		t.Fatalf("Segment() = %v", err)
	}
	for _, cp := range result.Profiles {
		if cp.Name != "Unnamed Cluster" || cp.Description != "Cluster Description Unavailable" {
			t.Fatalf("profile %d label = %q/%q, want placeholder", cp.ClusterID, cp.Name, cp.Description)
		}
	}
}

func TestSegmentPlaceholderLabelsOnLabelerError(t *testing.T) {
	rows := budgetAndLuxuryRows(3)
	labeler := &stubLabeler{err: errors.New("quota exceeded")}
	engine := NewEngine(labeler, zap.NewNop())

	result, err := engine.Segment(context.Background(), rows, 2)
	if err != nil {
		t.Fatalf("labeling failure must not abort segmentation: %v", err)
	}
	if labeler.called != 2 {
		t.Fatalf("labeler called %d times, want 2", labeler.called)
	}
	for _, cp := range result.Profiles {
		if cp.Name != "Unnamed Cluster" {
			t.Fatalf("profile %d name = %q, want placeholder", cp.ClusterID, cp.Name)
		}
	}
}

func TestSegmentAppliesGeneratedLabels(t *testing.T) {
	rows := budgetAndLuxuryRows(3)
	engine := NewEngine(&stubLabeler{}, zap.NewNop())

	result, err := engine.Segment(context.Background(), rows, 2)
	if err != nil {
		t.Fatalf("Segment() = %v", err)
	}
	for _, cp := range result.Profiles {
		want := fmt.Sprintf("Segment %d", cp.ClusterID)
		if cp.Name != want {
			t.Fatalf("profile name = %q, want %q", cp.Name, want)
		}
		if cp.Description != "test description" {
			t.Fatalf("profile description = %q", cp.Description)
		}
	}
}

func TestSegmentProfilesAggregatePerCluster(t *testing.T) {
	rows := budgetAndLuxuryRows(4)
	engine := NewEngine(nil, zap.NewNop())

	result, err := engine.Segment(context.Background(), rows, 2)
	if err != nil {
		t.Fatalf("Segment() = %v", err)
	}

	budgetCluster := result.Assignments[1]
	for _, cp := range result.Profiles {
		if cp.Size != 4 {
			t.Fatalf("cluster %d size = %d, want 4", cp.ClusterID, cp.Size)
		}
		if cp.ClusterID == budgetCluster {
			if cp.AvgPrice != 1_000_000 || cp.FavCity != "cairo" || cp.FavType != "apartment" {
				t.Fatalf("budget profile = %+v", cp)
			}
		} else {
			if cp.AvgPrice != 20_000_000 || cp.FavCity != "dubai" || cp.FavType != "villa" {
				t.Fatalf("luxury profile = %+v", cp)
			}
		}
	}
}

func TestClusterProfileToPreference(t *testing.T) {
	cp := &ClusterProfile{
		AvgPrice:    2_000_000,
		AvgArea:     120,
		AvgBedrooms: 2.6,
		FavType:     "apartment",
		FavCity:     "cairo",
		FavPayment:  "installment",
		FavSaleRent: "sale",
	}

	pref := cp.ToPreference()
	if pref.PriceTarget != 2_000_000 {
		t.Fatalf("PriceTarget = %v", pref.PriceTarget)
	}
	if pref.PriceRange.Min != 1_500_000 || pref.PriceRange.Max != 2_500_000 {
		t.Fatalf("PriceRange = %+v, want [1500000, 2500000]", pref.PriceRange)
	}
	if pref.Bedrooms != 3 {
		t.Fatalf("Bedrooms = %d, want 3 (rounded from 2.6)", pref.Bedrooms)
	}
	if pref.Type != "apartment" || pref.City != "cairo" || pref.SaleRent != "sale" {
		t.Fatalf("categorical targets = %+v", pref)
	}
	if err := pref.Validate(); err != nil {
		t.Fatalf("coerced preference failed validation: %v", err)
	}
}

func TestAssignProperties(t *testing.T) {
	profiles := []*ClusterProfile{
		{
			ClusterID: 0, AvgPrice: 1_000_000, AvgArea: 90, AvgBedrooms: 2,
			FavType: "apartment", FavCity: "cairo", FavSaleRent: "sale",
		},
		{
			ClusterID: 1, AvgPrice: 20_000_000, AvgArea: 450, AvgBedrooms: 5,
			FavType: "villa", FavCity: "dubai", FavSaleRent: "sale",
		},
	}

	snapshot := &catalog.Properties{Items: []*catalog.Property{
		{
			ID: "c1", Price: 1_050_000, Area: 95, Bedrooms: 2,
			Type: "apartment", City: "cairo", SaleRent: "sale",
			Status: catalog.StatusAvailable,
		},
		{
			ID: "d1", Price: 19_000_000, Area: 420, Bedrooms: 5,
			Type: "villa", City: "dubai", SaleRent: "sale",
			Status: catalog.StatusAvailable,
		},
		{
			ID: "x1", Price: 500_000_000, Area: 10_000, Bedrooms: 40,
			Type: "island", City: "nowhere", SaleRent: "sale",
			Status: catalog.StatusAvailable,
		},
	}}

	controller := search.New(
		scoring.New(scoring.ClusterWeights()),
		zap.NewNop(),
		search.WithRungLimit(AssignmentRungLimit()),
	)

	assignments, err := AssignProperties(controller, snapshot, profiles)
	if err != nil {
		t.Fatalf("AssignProperties() = %v", err)
	}

	if got := assignments["c1"]; got != 0 {
		t.Fatalf("c1 assigned to %d, want 0", got)
	}
	if got := assignments["d1"]; got != 1 {
		t.Fatalf("d1 assigned to %d, want 1", got)
	}
}

// Direct-history recommendation: a user's own favorites fold into a
// preference that ranks similar, not-yet-favorited properties first.
func TestDirectHistoryRecommendation(t *testing.T) {
	favorite := &catalog.Property{
		ID: "f1", Price: 2_000_000, Area: 120, Bedrooms: 3,
		Type: "apartment", City: "cairo", SaleRent: "sale",
		Status: catalog.StatusAvailable,
	}
	similar := &catalog.Property{
		ID: "s1", Price: 2_100_000, Area: 115, Bedrooms: 3,
		Type: "apartment", City: "cairo", SaleRent: "sale",
		Status: catalog.StatusAvailable,
	}
	distant := &catalog.Property{
		ID: "v1", Price: 30_000_000, Area: 500, Bedrooms: 6,
		Type: "villa", City: "dubai", SaleRent: "sale",
		Status: catalog.StatusAvailable,
	}
	snapshot := &catalog.Properties{Items: []*catalog.Property{favorite, similar, distant}}

	row := BuildUserFeatures(
		[]User{{ID: 1}},
		[]Interaction{{UserID: 1, Property: favorite, Weight: FavoriteWeight}},
	)[0]
	if !row.HasHistory() {
		t.Fatalf("favorite did not register as history: %+v", row)
	}

	candidates := snapshot.Without(map[string]bool{favorite.ID: true})
	controller := search.New(scoring.New(scoring.ClusterWeights()), zap.NewNop())

	matches, err := controller.Search(row.ToPreference(), candidates, 5)
	if err != nil {
		t.Fatalf("Search() = %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("no recommendations for a user with history")
	}
	if matches[0].Property.ID != "s1" {
		t.Fatalf("top recommendation = %q, want s1", matches[0].Property.ID)
	}
	for _, m := range matches {
		if m.Property.ID == favorite.ID {
			t.Fatal("already-favorited property recommended again")
		}
	}
}
