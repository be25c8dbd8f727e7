package scoring

// Weights defines the convex combination applied to attribute sub-scores.
// Each preset sums to 1.0; a zero weight removes an attribute from the final
// score while keeping its sub-score available for inspection.
type Weights struct {
	Price            float64 `mapstructure:"price" json:"price"`
	Area             float64 `mapstructure:"area" json:"area"`
	Bedrooms         float64 `mapstructure:"bedrooms" json:"bedrooms"`
	Bathrooms        float64 `mapstructure:"bathrooms" json:"bathrooms"`
	Type             float64 `mapstructure:"type" json:"type"`
	City             float64 `mapstructure:"city" json:"city"`
	PaymentOption    float64 `mapstructure:"payment-option" json:"payment_option"`
	SaleRent         float64 `mapstructure:"sale-rent" json:"sale_rent"`
	Finishing        float64 `mapstructure:"finishing" json:"finishing"`
	Amenities        float64 `mapstructure:"amenities" json:"amenities"`
	InstallmentYears float64 `mapstructure:"installment-years" json:"installment_years"`
	DeliveryIn       float64 `mapstructure:"delivery-in" json:"delivery_in"`
}

// DirectWeights favors the numeric constraints a user stated explicitly.
func DirectWeights() Weights {
	return Weights{
		Price:            0.22,
		Area:             0.14,
		Bedrooms:         0.10,
		Bathrooms:        0.06,
		Type:             0.10,
		City:             0.10,
		PaymentOption:    0.08,
		Amenities:        0.12,
		InstallmentYears: 0.04,
		DeliveryIn:       0.04,
	}
}

// ClusterWeights favors the categorical profile of a behavioral segment,
// where numeric means are soft aggregates rather than stated constraints.
func ClusterWeights() Weights {
	return Weights{
		Type:             0.15,
		City:             0.15,
		SaleRent:         0.15,
		Finishing:        0.15,
		Price:            0.15,
		Area:             0.10,
		Bedrooms:         0.10,
		InstallmentYears: 0.025,
		DeliveryIn:       0.025,
	}
}

// Sum returns the total of all weights. A valid preset sums to 1.0.
func (w Weights) Sum() float64 {
	return w.Price + w.Area + w.Bedrooms + w.Bathrooms +
		w.Type + w.City + w.PaymentOption + w.SaleRent + w.Finishing +
		w.Amenities + w.InstallmentYears + w.DeliveryIn
}
