package search

import (
	"strings"

	"github.com/arafat3300/propmatch/internal/catalog"
	"github.com/arafat3300/propmatch/internal/profile"
)

// constraints selects which hard filters a rung applies. Every rung keeps
// strictly fewer constraints than the one before it, so survivor sets only
// grow as the ladder descends.
type constraints struct {
	price       bool
	area        bool
	rooms       bool
	installment bool
	delivery    bool
	downPayment bool
	amenities   bool
	payment     bool
	propType    bool
	city        bool
}

// Rung is one relaxation step: a named constraint set applied to the catalog.
type Rung struct {
	name string
	c    constraints
}

func (r Rung) Name() string { return r.name }

// Apply returns the survivors of this rung's hard filters.
func (r Rung) Apply(pref *profile.Preference, ps *catalog.Properties) *catalog.Properties {
	out := &catalog.Properties{}
	for _, p := range ps.Items {
		if r.keep(pref, p) {
			out.Items = append(out.Items, p)
		}
	}
	return out
}

func (r Rung) keep(pref *profile.Preference, p *catalog.Property) bool {
	c := r.c

	if c.price && pref.PriceRange.Bounded() && !pref.PriceRange.Contains(p.Price) {
		return false
	}
	if c.area && pref.AreaRange.Bounded() && !pref.AreaRange.Contains(p.Area) {
		return false
	}
	if c.installment && pref.InstallmentRange.Bounded() && !pref.InstallmentRange.Contains(p.InstallmentYears) {
		return false
	}
	if c.delivery && pref.DeliveryRange.Bounded() && !pref.DeliveryRange.Contains(p.DeliveryIn) {
		return false
	}
	if c.downPayment && pref.DownPaymentRange.Bounded() && !pref.DownPaymentRange.Contains(p.DownPayment) {
		return false
	}
	if c.rooms {
		if !withinRoomBand(pref.Bedrooms, p.Bedrooms) {
			return false
		}
		if !withinRoomBand(pref.Bathrooms, p.Bathrooms) {
			return false
		}
	}
	if c.propType && !categoricalEqual(pref.Type, p.Type) {
		return false
	}
	if c.payment && !categoricalEqual(pref.PaymentOption, p.PaymentOption) {
		return false
	}
	if c.city && !categoricalEqual(pref.City, p.City) {
		return false
	}
	if c.amenities && len(pref.Features) > 0 && !hasAnyAmenity(pref.Features, p) {
		return false
	}

	return true
}

// withinRoomBand accepts counts within ±1 of the requested value. An unset
// request or an unrecorded property count never filters.
func withinRoomBand(want, have int) bool {
	if want <= 0 || have <= 0 {
		return true
	}
	min := want - 1
	if min < 1 {
		min = 1
	}
	return have >= min && have <= want+1
}

func categoricalEqual(want, have string) bool {
	if want == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(want), strings.TrimSpace(have))
}

func hasAnyAmenity(requested []string, p *catalog.Property) bool {
	for _, feature := range requested {
		if p.HasAmenity(feature) {
			return true
		}
	}
	return false
}

// Ladder returns the fixed fallback sequence. The rung order is a behavioral
// contract: it controls which results degrade first, so it must not be
// reordered.
func Ladder() []Rung {
	all := constraints{
		price:       true,
		area:        true,
		rooms:       true,
		installment: true,
		delivery:    true,
		downPayment: true,
		amenities:   true,
		payment:     true,
		propType:    true,
		city:        true,
	}

	noType := all
	noType.propType = false

	noTypeNoCity := noType
	noTypeNoCity.city = false

	return []Rung{
		{name: "all_filters", c: all},
		{name: "drop_type", c: noType},
		{name: "drop_city", c: noTypeNoCity},
		{name: "price_only", c: constraints{price: true}},
		{name: "unfiltered", c: constraints{}},
	}
}
