package catalog

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Property statuses eligible for search and cluster assignment.
const (
	StatusAvailable = "available"
	StatusApproved  = "approved"
)

// Property is a single catalog entry. Records are immutable snapshots: the
// lifecycle (creation, approval, delisting) is owned by the external store.
type Property struct {
	ID               string   `json:"id"`
	Price            float64  `json:"price"`
	Area             float64  `json:"area"`
	Type             string   `json:"type"`
	City             string   `json:"city"`
	Bedrooms         int      `json:"bedrooms"`
	Bathrooms        int      `json:"bathrooms"`
	PaymentOption    string   `json:"payment_option"`
	SaleRent         string   `json:"sale_rent"`
	Furnished        bool     `json:"furnished"`
	InstallmentYears float64  `json:"installment_years"`
	DeliveryIn       float64  `json:"delivery_in"`
	DownPayment      float64  `json:"down_payment"`
	Finishing        string   `json:"finishing"`
	Status           string   `json:"status"`
	Amenities        []string `json:"amenities"`
}

// Eligible reports whether the property may appear in search results.
func (p *Property) Eligible() bool {
	status := strings.ToLower(strings.TrimSpace(p.Status))
	return status == StatusAvailable || status == StatusApproved
}

// HasAmenity reports whether the property carries the given amenity tag,
// compared case-insensitively.
func (p *Property) HasAmenity(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, a := range p.Amenities {
		if strings.ToLower(strings.TrimSpace(a)) == tag {
			return true
		}
	}
	return false
}

// Properties is an in-memory catalog snapshot.
type Properties struct {
	Items []*Property
}

func (ps *Properties) Len() int {
	if ps == nil {
		return 0
	}
	return len(ps.Items)
}

func (ps *Properties) FindByID(id string) *Property {
	for _, p := range ps.Items {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// EligibleOnly returns a new snapshot holding only available/approved entries.
func (ps *Properties) EligibleOnly() *Properties {
	out := &Properties{}
	for _, p := range ps.Items {
		if p.Eligible() {
			out.Items = append(out.Items, p)
		}
	}
	return out
}

// Without returns a new snapshot with the identified entries removed. The
// receiver is not modified.
func (ps *Properties) Without(ids map[string]bool) *Properties {
	out := &Properties{}
	for _, p := range ps.Items {
		if ids[p.ID] {
			continue
		}
		out.Items = append(out.Items, p)
	}
	return out
}

// SortByID orders the snapshot by ascending identifier. Search results must
// not depend on catalog input order, so controllers sort once up front.
func (ps *Properties) SortByID() {
	sort.Slice(ps.Items, func(i, j int) bool { return ps.Items[i].ID < ps.Items[j].ID })
}

// Cities returns the distinct lower-cased cities present in the snapshot.
func (ps *Properties) Cities() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range ps.Items {
		city := strings.ToLower(strings.TrimSpace(p.City))
		if city == "" {
			continue
		}
		if _, ok := seen[city]; ok {
			continue
		}
		seen[city] = struct{}{}
		out = append(out, city)
	}
	sort.Strings(out)
	return out
}

func (ps *Properties) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "properties_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ps); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// FromFile loads a catalog snapshot from a JSON seed file.
func FromFile(path string) (*Properties, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return FromRecords(records)
}

// FromRecords decodes loosely-typed records, as produced by JSON seeds or
// external feeds, into a snapshot. Unknown keys are ignored.
func FromRecords(records []map[string]any) (*Properties, error) {
	var items []*Property

	cfg := &mapstructure.DecoderConfig{
		Metadata: nil,
		Result:   &items,
		TagName:  "json",
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(records); err != nil {
		return nil, err
	}

	return &Properties{Items: items}, nil
}
