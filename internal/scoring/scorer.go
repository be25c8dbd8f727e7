package scoring

import (
	"math"
	"strings"

	"github.com/arafat3300/propmatch/internal/catalog"
	"github.com/arafat3300/propmatch/internal/profile"
)

// Sub-score keys, stable across presets so callers can inspect any result.
const (
	SubPrice       = "price"
	SubArea        = "area"
	SubBedrooms    = "bedrooms"
	SubBathrooms   = "bathrooms"
	SubType        = "type"
	SubCity        = "city"
	SubPayment     = "payment_option"
	SubSaleRent    = "sale_rent"
	SubFinishing   = "finishing"
	SubAmenities   = "amenities"
	SubInstallment = "installment_years"
	SubDelivery    = "delivery_in"
)

// Neutral sub-scores for partial data. A missing property attribute demotes
// without eliminating; a missing preference target neither helps nor hurts.
const (
	neutralMissingValue  = 0.4
	neutralMissingTarget = 0.5
)

// Result carries a bounded similarity score plus the per-attribute
// sub-scores it was combined from.
type Result struct {
	Score     float64            `json:"score"`
	SubScores map[string]float64 `json:"sub_scores"`
}

// Scorer computes a weighted multi-attribute similarity between one
// preference (or coerced cluster profile) and one property. It never filters:
// hard inclusion and exclusion belong to the search controller.
type Scorer struct {
	weights Weights
}

func New(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Score is a pure function of its inputs and always returns a value in [0,1].
func (s *Scorer) Score(pref *profile.Preference, p *catalog.Property) Result {
	subs := map[string]float64{
		SubPrice:       proximityScore(pref.PriceTarget, p.Price),
		SubArea:        proximityScore(pref.AreaTarget, p.Area),
		SubBedrooms:    ordinalScore(pref.Bedrooms, p.Bedrooms),
		SubBathrooms:   ordinalScore(pref.Bathrooms, p.Bathrooms),
		SubType:        categoricalScore(pref.Type, p.Type),
		SubCity:        categoricalScore(pref.City, p.City),
		SubPayment:     categoricalScore(pref.PaymentOption, p.PaymentOption),
		SubSaleRent:    categoricalScore(pref.SaleRent, p.SaleRent),
		SubFinishing:   categoricalScore(pref.Finishing, p.Finishing),
		SubAmenities:   amenitiesScore(pref.Features, p),
		SubInstallment: proximityScore(pref.InstallmentYears, p.InstallmentYears),
		SubDelivery:    proximityScore(pref.DeliveryIn, p.DeliveryIn),
	}

	contributions := []struct {
		key    string
		weight float64
	}{
		{SubPrice, s.weights.Price},
		{SubArea, s.weights.Area},
		{SubBedrooms, s.weights.Bedrooms},
		{SubBathrooms, s.weights.Bathrooms},
		{SubType, s.weights.Type},
		{SubCity, s.weights.City},
		{SubPayment, s.weights.PaymentOption},
		{SubSaleRent, s.weights.SaleRent},
		{SubFinishing, s.weights.Finishing},
		{SubAmenities, s.weights.Amenities},
		{SubInstallment, s.weights.InstallmentYears},
		{SubDelivery, s.weights.DeliveryIn},
	}

	var sum, sumW float64
	for _, c := range contributions {
		if c.weight <= 0 {
			continue
		}
		sum += c.weight * subs[c.key]
		sumW += c.weight
	}

	if sumW <= 0 {
		return Result{Score: neutralMissingTarget, SubScores: subs}
	}

	return Result{Score: clamp01(sum / sumW), SubScores: subs}
}

// proximityScore tiers by distance from the target: within ±30% scores 1.0,
// ±50% scores 0.8, ±70% scores 0.6, with a 0.4 floor so a numeric mismatch
// demotes a candidate instead of eliminating it.
func proximityScore(target, value float64) float64 {
	if target <= 0 {
		return neutralMissingTarget
	}
	if value <= 0 {
		return neutralMissingValue
	}

	switch {
	case value >= target*0.7 && value <= target*1.3:
		return 1.0
	case value >= target*0.5 && value <= target*1.5:
		return 0.8
	case value >= target*0.3 && value <= target*1.7:
		return 0.6
	default:
		return 0.4
	}
}

// ordinalScore tiers room counts by absolute distance from the target.
func ordinalScore(target, value int) float64 {
	if target <= 0 {
		return neutralMissingTarget
	}
	if value <= 0 {
		return neutralMissingValue
	}

	switch diff := int(math.Abs(float64(value - target))); {
	case diff <= 1:
		return 1.0
	case diff <= 2:
		return 0.8
	case diff <= 3:
		return 0.6
	default:
		return 0.4
	}
}

// categoricalScore matches case-insensitively on a prefix in either
// direction, so "apart" and "apartment" agree.
func categoricalScore(want, have string) float64 {
	want = strings.ToLower(strings.TrimSpace(want))
	have = strings.ToLower(strings.TrimSpace(have))

	if want == "" || have == "" {
		return neutralMissingTarget
	}
	if strings.HasPrefix(have, want) || strings.HasPrefix(want, have) {
		return 1.0
	}
	return 0.0
}

// amenitiesScore is the fraction of requested features the property carries.
func amenitiesScore(requested []string, p *catalog.Property) float64 {
	if len(requested) == 0 {
		return 1.0
	}

	matched := 0
	for _, feature := range requested {
		if p.HasAmenity(feature) {
			matched++
		}
	}
	return float64(matched) / float64(len(requested))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
