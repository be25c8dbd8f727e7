package segment

import (
	"math"
	"sort"
	"strings"

	"github.com/arafat3300/propmatch/internal/catalog"
	"github.com/arafat3300/propmatch/internal/profile"
)

// Interaction weights. Favoriting is an explicit signal; a past
// recommendation is a much weaker one.
const (
	FavoriteWeight    = 1.0
	RecommendedWeight = 0.43
)

// User is the demographic slice of a user record needed for segmentation.
type User struct {
	ID      int64
	Job     string
	Country string
	Age     float64
}

// Interaction ties a user to a property with a preference weight.
type Interaction struct {
	UserID   int64
	Property *catalog.Property
	Weight   float64
}

// UserFeatureRow is one user's aggregated behavioral profile. Numeric fields
// are NaN when the user has no interaction history; categorical fields are
// empty.
type UserFeatureRow struct {
	UserID              int64
	Age                 float64
	TotalFavorites      float64
	Engagement          float64
	AvgPrice            float64
	AvgArea             float64
	AvgBedrooms         float64
	PricePerArea        float64
	FurnishedRatio      float64
	SaleRatio           float64
	AvgInstallmentYears float64
	AvgDeliveryIn       float64
	InvestmentScore     float64

	Job          string
	Country      string
	FavType      string
	FavCity      string
	FavPayment   string
	FavSaleRent  string
	FavFinishing string
}

// HasHistory reports whether any interaction signal reached the row. A row
// without history aggregates to all-NaN numerics and cannot seed a search.
func (r UserFeatureRow) HasHistory() bool {
	return !math.IsNaN(r.Engagement) && r.Engagement > 0
}

// ToPreference coerces the row into the shape the scorer and search
// controller consume, the same way a cluster profile is coerced: flexibility
// bands around the aggregated means, modal values as categorical targets.
// NaN fields stay unset.
func (r UserFeatureRow) ToPreference() *profile.Preference {
	pref := profile.New()

	if r.AvgPrice > 0 {
		pref.PriceTarget = r.AvgPrice
		pref.PriceRange = profile.BandAround(r.AvgPrice)
	}
	if r.AvgArea > 0 {
		pref.AreaTarget = r.AvgArea
		pref.AreaRange = profile.BandAround(r.AvgArea)
	}
	if r.AvgBedrooms > 0 {
		pref.Bedrooms = int(math.Round(r.AvgBedrooms))
	}
	if r.AvgInstallmentYears > 0 {
		pref.InstallmentYears = r.AvgInstallmentYears
	}
	if r.AvgDeliveryIn > 0 {
		pref.DeliveryIn = r.AvgDeliveryIn
	}

	pref.Type = r.FavType
	pref.City = r.FavCity
	pref.PaymentOption = r.FavPayment
	pref.SaleRent = r.FavSaleRent
	pref.Finishing = r.FavFinishing

	return pref
}

// BuildUserFeatures folds weighted interactions into one feature row per
// user. Users without history still get a row so every user lands in a
// cluster.
func BuildUserFeatures(users []User, interactions []Interaction) []UserFeatureRow {
	type acc struct {
		weightSum     float64
		favorites     float64
		priceSum      float64
		areaSum       float64
		bedroomsSum   float64
		furnishedSum  float64
		saleWeight    float64
		installSum    float64
		installWeight float64
		deliverySum   float64
		modes         map[string]map[string]float64
	}

	byUser := make(map[int64]*acc, len(users))
	for _, in := range interactions {
		if in.Property == nil || in.Weight <= 0 {
			continue
		}
		a := byUser[in.UserID]
		if a == nil {
			a = &acc{modes: make(map[string]map[string]float64)}
			byUser[in.UserID] = a
		}

		w := in.Weight
		p := in.Property

		a.weightSum += w
		if w >= FavoriteWeight {
			a.favorites++
		}
		a.priceSum += w * p.Price
		a.areaSum += w * p.Area
		a.bedroomsSum += w * float64(p.Bedrooms)
		if p.Furnished {
			a.furnishedSum += w
		}

		addMode(a.modes, "type", p.Type, w)
		addMode(a.modes, "city", p.City, w)
		addMode(a.modes, "payment", p.PaymentOption, w)
		addMode(a.modes, "sale_rent", p.SaleRent, w)

		if strings.EqualFold(strings.TrimSpace(p.SaleRent), "sale") {
			a.saleWeight += w
			if p.InstallmentYears > 0 {
				a.installSum += w * p.InstallmentYears
				a.installWeight += w
			}
			a.deliverySum += w * p.DeliveryIn
			addMode(a.modes, "finishing", p.Finishing, w)
		}
	}

	rows := make([]UserFeatureRow, 0, len(users))
	for _, u := range users {
		row := UserFeatureRow{
			UserID:  u.ID,
			Age:     u.Age,
			Job:     strings.ToLower(strings.TrimSpace(u.Job)),
			Country: strings.ToLower(strings.TrimSpace(u.Country)),

			TotalFavorites:      math.NaN(),
			Engagement:          math.NaN(),
			AvgPrice:            math.NaN(),
			AvgArea:             math.NaN(),
			AvgBedrooms:         math.NaN(),
			PricePerArea:        math.NaN(),
			FurnishedRatio:      math.NaN(),
			SaleRatio:           math.NaN(),
			AvgInstallmentYears: math.NaN(),
			AvgDeliveryIn:       math.NaN(),
			InvestmentScore:     math.NaN(),
		}
		if u.Age <= 0 {
			row.Age = math.NaN()
		}

		if a, ok := byUser[u.ID]; ok && a.weightSum > 0 {
			row.TotalFavorites = a.favorites
			row.Engagement = a.weightSum
			row.AvgPrice = a.priceSum / a.weightSum
			row.AvgArea = a.areaSum / a.weightSum
			row.AvgBedrooms = a.bedroomsSum / a.weightSum
			row.FurnishedRatio = a.furnishedSum / a.weightSum
			row.SaleRatio = a.saleWeight / a.weightSum

			if row.AvgArea > 0 {
				row.PricePerArea = row.AvgPrice / row.AvgArea
			}
			if a.installWeight > 0 {
				row.AvgInstallmentYears = a.installSum / a.installWeight
			}
			if a.saleWeight > 0 {
				row.AvgDeliveryIn = a.deliverySum / a.saleWeight
			}
			row.InvestmentScore = investmentScore(row)

			row.FavType = topMode(a.modes, "type")
			row.FavCity = topMode(a.modes, "city")
			row.FavPayment = topMode(a.modes, "payment")
			row.FavSaleRent = topMode(a.modes, "sale_rent")
			row.FavFinishing = topMode(a.modes, "finishing")
		}

		rows = append(rows, row)
	}

	return rows
}

// investmentScore composites sale orientation with financing horizon: users
// who favorite long-installment sale properties behave like investors.
func investmentScore(row UserFeatureRow) float64 {
	sale := row.SaleRatio
	if math.IsNaN(sale) {
		sale = 0
	}
	horizon := 0.0
	if !math.IsNaN(row.AvgInstallmentYears) {
		horizon = math.Min(1, row.AvgInstallmentYears/10)
	}
	return sale*0.6 + horizon*0.4
}

func addMode(modes map[string]map[string]float64, field, value string, w float64) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return
	}
	if modes[field] == nil {
		modes[field] = make(map[string]float64)
	}
	modes[field][value] += w
}

// topMode picks the heaviest value, breaking ties lexicographically so runs
// are reproducible.
func topMode(modes map[string]map[string]float64, field string) string {
	values := modes[field]
	if len(values) == 0 {
		return ""
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best := keys[0]
	for _, k := range keys[1:] {
		if values[k] > values[best] {
			best = k
		}
	}
	return best
}

// numericColumns defines the fixed order of numeric features in the matrix.
var numericColumns = []func(UserFeatureRow) float64{
	func(r UserFeatureRow) float64 { return r.Age },
	func(r UserFeatureRow) float64 { return r.TotalFavorites },
	func(r UserFeatureRow) float64 { return r.Engagement },
	func(r UserFeatureRow) float64 { return r.AvgPrice },
	func(r UserFeatureRow) float64 { return r.AvgArea },
	func(r UserFeatureRow) float64 { return r.AvgBedrooms },
	func(r UserFeatureRow) float64 { return r.PricePerArea },
	func(r UserFeatureRow) float64 { return r.FurnishedRatio },
	func(r UserFeatureRow) float64 { return r.SaleRatio },
	func(r UserFeatureRow) float64 { return r.AvgInstallmentYears },
	func(r UserFeatureRow) float64 { return r.AvgDeliveryIn },
	func(r UserFeatureRow) float64 { return r.InvestmentScore },
}

func categoricalValues(r UserFeatureRow) []string {
	return []string{r.Job, r.Country, r.FavType, r.FavCity, r.FavPayment, r.FavSaleRent, r.FavFinishing}
}

const numCategoricalColumns = 7

// FeatureMatrix turns rows into a numeric matrix ready for clustering:
// missing numerics are imputed with the column mean, outliers clipped to the
// 1.5×IQR fences, everything scaled to [0,1], and categoricals one-hot
// encoded over the distinct values observed (sorted, so encoding is stable).
func FeatureMatrix(rows []UserFeatureRow) [][]float64 {
	n := len(rows)
	if n == 0 {
		return nil
	}

	numeric := make([][]float64, len(numericColumns))
	for ci, get := range numericColumns {
		col := make([]float64, n)
		for i, r := range rows {
			col[i] = get(r)
		}
		imputeMean(col)
		clipIQR(col)
		scaleMinMax(col)
		numeric[ci] = col
	}

	// Collect distinct categorical values per column.
	vocab := make([]map[string]int, numCategoricalColumns)
	widths := make([]int, numCategoricalColumns)
	for ci := 0; ci < numCategoricalColumns; ci++ {
		seen := make(map[string]struct{})
		for _, r := range rows {
			v := categoricalValues(r)[ci]
			if v == "" {
				v = "unknown"
			}
			seen[v] = struct{}{}
		}
		keys := make([]string, 0, len(seen))
		for k := range seen {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		index := make(map[string]int, len(keys))
		for i, k := range keys {
			index[k] = i
		}
		vocab[ci] = index
		widths[ci] = len(keys)
	}

	matrix := make([][]float64, n)
	for i, r := range rows {
		var vec []float64
		for ci := range numericColumns {
			vec = append(vec, numeric[ci][i])
		}
		cats := categoricalValues(r)
		for ci := 0; ci < numCategoricalColumns; ci++ {
			oneHot := make([]float64, widths[ci])
			v := cats[ci]
			if v == "" {
				v = "unknown"
			}
			oneHot[vocab[ci][v]] = 1
			vec = append(vec, oneHot...)
		}
		matrix[i] = vec
	}

	return matrix
}

func imputeMean(col []float64) {
	var sum float64
	var count int
	for _, v := range col {
		if !math.IsNaN(v) {
			sum += v
			count++
		}
	}
	mean := 0.0
	if count > 0 {
		mean = sum / float64(count)
	}
	for i, v := range col {
		if math.IsNaN(v) {
			col[i] = mean
		}
	}
}

// clipIQR caps values outside the Tukey fences so a single extreme favoriter
// cannot dominate the scaled feature.
func clipIQR(col []float64) {
	sorted := append([]float64(nil), col...)
	sort.Float64s(sorted)

	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1
	if iqr <= 0 {
		return
	}

	lo := q1 - 1.5*iqr
	hi := q3 + 1.5*iqr
	for i, v := range col {
		if v < lo {
			col[i] = lo
		} else if v > hi {
			col[i] = hi
		}
	}
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func scaleMinMax(col []float64) {
	min, max := col[0], col[0]
	for _, v := range col[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max == min {
		for i := range col {
			col[i] = 0
		}
		return
	}
	for i, v := range col {
		col[i] = (v - min) / (max - min)
	}
}
