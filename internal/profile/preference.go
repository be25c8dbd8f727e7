package profile

import (
	"fmt"
	"math"
	"strings"
)

// flexPercent is the band applied around point targets when deriving search
// ranges. Kept at 25 to preserve the established search behavior.
const flexPercent = 25.0

// Range is an inclusive numeric interval. The zero value is not valid; use
// FullRange for "unknown".
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// FullRange covers every non-negative value and stands for "not specified".
func FullRange() Range {
	return Range{Min: 0, Max: math.Inf(1)}
}

// NewRange validates and constructs an interval.
func NewRange(min, max float64) (Range, error) {
	if min < 0 || max < 0 {
		return Range{}, fmt.Errorf("range bounds must not be negative: [%v, %v]", min, max)
	}
	if min > max {
		return Range{}, fmt.Errorf("range min %v exceeds max %v", min, max)
	}
	return Range{Min: min, Max: max}, nil
}

// Bounded reports whether the range constrains anything at all.
func (r Range) Bounded() bool {
	return r.Min > 0 || !math.IsInf(r.Max, 1)
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// BandAround returns the ±flexPercent interval around a point target.
func BandAround(value float64) Range {
	if value <= 0 {
		return FullRange()
	}
	return Range{
		Min: value * (1 - flexPercent/100),
		Max: value * (1 + flexPercent/100),
	}
}

// Preference is the normalized target of a search. Point targets are kept
// alongside the derived ranges: scoring works off the targets, hard filters
// off the ranges. Empty strings and zero counts mean "not specified".
type Preference struct {
	PriceTarget float64 `json:"price_target"`
	PriceRange  Range   `json:"price_range"`
	AreaTarget  float64 `json:"area_target"`
	AreaRange   Range   `json:"area_range"`

	Type          string `json:"type,omitempty"`
	City          string `json:"city,omitempty"`
	PaymentOption string `json:"payment_option,omitempty"`
	SaleRent      string `json:"sale_rent,omitempty"`
	Finishing     string `json:"finishing,omitempty"`

	Bedrooms  int `json:"bedrooms,omitempty"`
	Bathrooms int `json:"bathrooms,omitempty"`

	Features []string `json:"features,omitempty"`

	InstallmentYears float64 `json:"installment_years,omitempty"`
	InstallmentRange Range   `json:"installment_range"`
	DeliveryIn       float64 `json:"delivery_in,omitempty"`
	DeliveryRange    Range   `json:"delivery_range"`
	DownPayment      float64 `json:"down_payment,omitempty"`
	DownPaymentRange Range   `json:"down_payment_range"`
}

// New returns a preference with every interval open.
func New() *Preference {
	return &Preference{
		PriceRange:       FullRange(),
		AreaRange:        FullRange(),
		InstallmentRange: FullRange(),
		DeliveryRange:    FullRange(),
		DownPaymentRange: FullRange(),
	}
}

// Validate fails fast on malformed input so a bad preference never silently
// skews ranking.
func (p *Preference) Validate() error {
	ranges := map[string]Range{
		"price":        p.PriceRange,
		"area":         p.AreaRange,
		"installment":  p.InstallmentRange,
		"delivery":     p.DeliveryRange,
		"down payment": p.DownPaymentRange,
	}
	for name, r := range ranges {
		if r.Min < 0 || r.Max < 0 {
			return fmt.Errorf("%s range must not be negative: [%v, %v]", name, r.Min, r.Max)
		}
		if r.Min > r.Max {
			return fmt.Errorf("%s range min %v exceeds max %v", name, r.Min, r.Max)
		}
	}
	if p.Bedrooms < 0 {
		return fmt.Errorf("bedrooms must not be negative: %d", p.Bedrooms)
	}
	if p.Bathrooms < 0 {
		return fmt.Errorf("bathrooms must not be negative: %d", p.Bathrooms)
	}
	for _, t := range []float64{p.PriceTarget, p.AreaTarget, p.InstallmentYears, p.DeliveryIn, p.DownPayment} {
		if t < 0 {
			return fmt.Errorf("numeric target must not be negative: %v", t)
		}
	}
	return nil
}

// Answers renders the preference back into the twelve-answer shape consumed
// by Normalize. Normalize(p.Answers()) yields an equal record.
func (p *Preference) Answers() []string {
	answers := make([]string, answerCount)
	for i := range answers {
		answers[i] = notSpecified
	}

	if p.Type != "" {
		answers[ansType] = p.Type
	}
	if p.Bedrooms > 0 {
		answers[ansRooms] = fmt.Sprintf("%d", p.Bedrooms)
	}
	if p.PriceTarget > 0 {
		answers[ansBudget] = fmt.Sprintf("%d", int64(p.PriceTarget))
	}
	if p.PaymentOption == PaymentInstallment {
		if p.InstallmentYears > 0 {
			answers[ansFinancing] = fmt.Sprintf("yes, installment over %g years", p.InstallmentYears)
		} else {
			answers[ansFinancing] = "yes, installment"
		}
	}
	if len(p.Features) > 0 {
		answers[ansAmenities] = strings.Join(p.Features, "; ")
	}
	if p.DeliveryIn > 0 {
		answers[ansTimeline] = fmt.Sprintf("%g", p.DeliveryIn)
	}
	if p.City != "" {
		answers[ansLocation] = p.City
	}
	if p.AreaTarget > 0 {
		answers[ansUnitType] = fmt.Sprintf("%g sqm", p.AreaTarget)
	}
	if p.DownPayment > 0 {
		answers[ansDownPayment] = fmt.Sprintf("%d", int64(p.DownPayment))
	}
	if p.Bathrooms > 0 {
		answers[ansBathrooms] = fmt.Sprintf("%d", p.Bathrooms)
	}
	if p.Finishing != "" {
		answers[ansFinishing] = p.Finishing
	}

	return answers
}
