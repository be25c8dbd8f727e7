package segment

import (
	"math"
	"testing"

	"github.com/arafat3300/propmatch/internal/catalog"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBuildUserFeaturesWeightedAggregation(t *testing.T) {
	favorite := &catalog.Property{
		ID: "f1", Price: 1_000_000, Area: 100, Bedrooms: 3,
		Type: "apartment", City: "cairo", PaymentOption: "cash",
		SaleRent: "sale", Furnished: true, InstallmentYears: 5, Finishing: "Finished",
	}
	recommended := &catalog.Property{
		ID: "r1", Price: 2_000_000, Area: 150, Bedrooms: 2,
		Type: "villa", City: "giza", PaymentOption: "installment",
		SaleRent: "rent",
	}

	users := []User{{ID: 7, Job: "Engineer", Country: "Egypt", Age: 34}}
	interactions := []Interaction{
		{UserID: 7, Property: favorite, Weight: FavoriteWeight},
		{UserID: 7, Property: recommended, Weight: RecommendedWeight},
	}

	rows := BuildUserFeatures(users, interactions)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	row := rows[0]

	weightSum := FavoriteWeight + RecommendedWeight

	if !almostEqual(row.Engagement, weightSum) {
		t.Fatalf("Engagement = %v, want %v", row.Engagement, weightSum)
	}
	if row.TotalFavorites != 1 {
		t.Fatalf("TotalFavorites = %v, want 1", row.TotalFavorites)
	}

	wantPrice := (1*1_000_000 + RecommendedWeight*2_000_000) / weightSum
	if !almostEqual(row.AvgPrice, wantPrice) {
		t.Fatalf("AvgPrice = %v, want %v", row.AvgPrice, wantPrice)
	}

	wantBedrooms := (1*3 + RecommendedWeight*2) / weightSum
	if !almostEqual(row.AvgBedrooms, wantBedrooms) {
		t.Fatalf("AvgBedrooms = %v, want %v", row.AvgBedrooms, wantBedrooms)
	}

	// Only the favorite is a sale, so the sale ratio is its share of the weight.
	if !almostEqual(row.SaleRatio, 1/weightSum) {
		t.Fatalf("SaleRatio = %v, want %v", row.SaleRatio, 1/weightSum)
	}
	if !almostEqual(row.FurnishedRatio, 1/weightSum) {
		t.Fatalf("FurnishedRatio = %v, want %v", row.FurnishedRatio, 1/weightSum)
	}

	// The heavier interaction decides every mode.
	if row.FavType != "apartment" || row.FavCity != "cairo" || row.FavSaleRent != "sale" {
		t.Fatalf("modes = %q/%q/%q, want apartment/cairo/sale", row.FavType, row.FavCity, row.FavSaleRent)
	}
	// Installment horizon and finishing come from sale interactions only.
	if !almostEqual(row.AvgInstallmentYears, 5) {
		t.Fatalf("AvgInstallmentYears = %v, want 5", row.AvgInstallmentYears)
	}
	if row.FavFinishing != "finished" {
		t.Fatalf("FavFinishing = %q, want %q", row.FavFinishing, "finished")
	}

	if row.Job != "engineer" || row.Country != "egypt" {
		t.Fatalf("demographics = %q/%q, want engineer/egypt", row.Job, row.Country)
	}
}

func TestBuildUserFeaturesNoHistory(t *testing.T) {
	rows := BuildUserFeatures([]User{{ID: 1, Age: 0}}, nil)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}

	row := rows[0]
	if !math.IsNaN(row.AvgPrice) || !math.IsNaN(row.Engagement) || !math.IsNaN(row.Age) {
		t.Fatalf("numeric fields should be NaN without history: %+v", row)
	}
	if row.FavType != "" || row.FavCity != "" {
		t.Fatalf("categorical fields should be empty without history: %+v", row)
	}
}

func TestUserFeatureRowToPreference(t *testing.T) {
	favorite := &catalog.Property{
		ID: "f1", Price: 2_000_000, Area: 120, Bedrooms: 3,
		Type: "apartment", City: "cairo", PaymentOption: "installment",
		SaleRent: "sale", InstallmentYears: 5, DeliveryIn: 2, Finishing: "Finished",
	}
	users := []User{{ID: 4, Age: 30}}
	interactions := []Interaction{{UserID: 4, Property: favorite, Weight: FavoriteWeight}}

	row := BuildUserFeatures(users, interactions)[0]
	if !row.HasHistory() {
		t.Fatalf("row with a favorite should have history: %+v", row)
	}

	pref := row.ToPreference()
	if pref.PriceTarget != 2_000_000 {
		t.Fatalf("PriceTarget = %v, want 2000000", pref.PriceTarget)
	}
	if pref.PriceRange.Min != 1_500_000 || pref.PriceRange.Max != 2_500_000 {
		t.Fatalf("PriceRange = %+v, want [1500000, 2500000]", pref.PriceRange)
	}
	if pref.AreaTarget != 120 || pref.Bedrooms != 3 {
		t.Fatalf("AreaTarget/Bedrooms = %v/%v, want 120/3", pref.AreaTarget, pref.Bedrooms)
	}
	if pref.InstallmentYears != 5 || pref.DeliveryIn != 2 {
		t.Fatalf("InstallmentYears/DeliveryIn = %v/%v, want 5/2", pref.InstallmentYears, pref.DeliveryIn)
	}
	if pref.Type != "apartment" || pref.City != "cairo" || pref.SaleRent != "sale" || pref.Finishing != "finished" {
		t.Fatalf("categoricals = %q/%q/%q/%q", pref.Type, pref.City, pref.SaleRent, pref.Finishing)
	}
	if err := pref.Validate(); err != nil {
		t.Fatalf("derived preference should validate: %v", err)
	}
}

func TestUserFeatureRowToPreferenceNoHistory(t *testing.T) {
	row := BuildUserFeatures([]User{{ID: 9}}, nil)[0]
	if row.HasHistory() {
		t.Fatalf("row without interactions should have no history: %+v", row)
	}

	// NaN aggregates must not leak into the preference as targets.
	pref := row.ToPreference()
	if pref.PriceTarget != 0 || pref.AreaTarget != 0 || pref.Bedrooms != 0 {
		t.Fatalf("targets should stay unset: %+v", pref)
	}
	if err := pref.Validate(); err != nil {
		t.Fatalf("empty preference should validate: %v", err)
	}
}

func TestInvestmentScore(t *testing.T) {
	row := UserFeatureRow{SaleRatio: 1, AvgInstallmentYears: 5}
	if got := investmentScore(row); !almostEqual(got, 0.8) {
		t.Fatalf("investmentScore = %v, want 0.8", got)
	}

	// Horizon contribution caps at ten years.
	row = UserFeatureRow{SaleRatio: 1, AvgInstallmentYears: 25}
	if got := investmentScore(row); !almostEqual(got, 1.0) {
		t.Fatalf("investmentScore = %v, want 1.0", got)
	}

	row = UserFeatureRow{SaleRatio: math.NaN(), AvgInstallmentYears: math.NaN()}
	if got := investmentScore(row); got != 0 {
		t.Fatalf("investmentScore with no data = %v, want 0", got)
	}
}

func TestTopModeTieBreaksLexicographically(t *testing.T) {
	modes := make(map[string]map[string]float64)
	addMode(modes, "city", "giza", 1)
	addMode(modes, "city", "cairo", 1)

	if got := topMode(modes, "city"); got != "cairo" {
		t.Fatalf("topMode = %q, want %q", got, "cairo")
	}

	addMode(modes, "city", "giza", 0.5)
	if got := topMode(modes, "city"); got != "giza" {
		t.Fatalf("topMode after extra weight = %q, want %q", got, "giza")
	}
}

func TestImputeMean(t *testing.T) {
	col := []float64{1, math.NaN(), 3}
	imputeMean(col)
	if col[1] != 2 {
		t.Fatalf("imputed value = %v, want 2", col[1])
	}
}

func TestClipIQRCapsOutliers(t *testing.T) {
	col := []float64{1, 2, 3, 4, 100}
	clipIQR(col)

	// q1=2, q3=4, so the upper fence is 4 + 1.5*2 = 7.
	if col[4] != 7 {
		t.Fatalf("clipped outlier = %v, want 7", col[4])
	}
	for i, v := range col[:4] {
		if v != []float64{1, 2, 3, 4}[i] {
			t.Fatalf("in-fence value %d changed to %v", i, v)
		}
	}
}

func TestScaleMinMax(t *testing.T) {
	col := []float64{10, 20, 30}
	scaleMinMax(col)
	want := []float64{0, 0.5, 1}
	for i := range col {
		if !almostEqual(col[i], want[i]) {
			t.Fatalf("scaled col = %v, want %v", col, want)
		}
	}

	flat := []float64{5, 5, 5}
	scaleMinMax(flat)
	for _, v := range flat {
		if v != 0 {
			t.Fatalf("constant column should scale to zeros, got %v", flat)
		}
	}
}

func TestFeatureMatrixShapeAndBounds(t *testing.T) {
	rows := []UserFeatureRow{
		{UserID: 1, Age: 30, AvgPrice: 1_000_000, FavCity: "cairo", FavType: "apartment"},
		{UserID: 2, Age: 45, AvgPrice: 5_000_000, FavCity: "dubai", FavType: "villa"},
		{UserID: 3, Age: math.NaN(), AvgPrice: math.NaN()},
	}
	// Unset numerics behave as missing.
	for i := range rows {
		if rows[i].Engagement == 0 {
			rows[i].Engagement = math.NaN()
		}
	}

	matrix := FeatureMatrix(rows)
	if len(matrix) != 3 {
		t.Fatalf("matrix has %d rows, want 3", len(matrix))
	}

	width := len(matrix[0])
	for i, vec := range matrix {
		if len(vec) != width {
			t.Fatalf("row %d has width %d, want %d", i, len(vec), width)
		}
		for j, v := range vec {
			if math.IsNaN(v) {
				t.Fatalf("matrix[%d][%d] is NaN", i, j)
			}
			if v < 0 || v > 1 {
				t.Fatalf("matrix[%d][%d] = %v, out of [0,1]", i, j, v)
			}
		}
	}

	// Same input must produce the same encoding.
	again := FeatureMatrix(rows)
	for i := range matrix {
		for j := range matrix[i] {
			if matrix[i][j] != again[i][j] {
				t.Fatalf("matrix differs between identical calls at [%d][%d]", i, j)
			}
		}
	}
}
