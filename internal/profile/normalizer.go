package profile

import (
	"regexp"
	"strconv"
	"strings"
)

// The twelve fixed intake questions, in order. The normalizer is positional:
// callers must keep answers aligned with these slots.
const (
	ansType = iota
	ansRooms
	ansBudget
	ansFinancing
	ansAmenities
	ansTimeline
	ansLocation
	ansUnitType
	ansMeeting
	ansDownPayment
	ansBathrooms
	ansFinishing

	answerCount = 12
)

const notSpecified = "not specified"

// Payment options produced by normalization.
const (
	PaymentCash        = "cash"
	PaymentInstallment = "installment"
)

// amenitySynonyms canonicalizes the most common amenity spellings. Tokens
// outside the table are capitalized verbatim.
var amenitySynonyms = map[string]string{
	"gym":        "Gym",
	"security":   "Security",
	"parking":    "Parking",
	"pool":       "Pool",
	"fireplace":  "Fireplace",
	"dishwasher": "Dishwasher",
	"hardwood":   "Hardwood",
	"elevator":   "Elevator",
	"balcony":    "Balcony",
	"garden":     "Garden",
}

var (
	reNumber    = regexp.MustCompile(`\d+(\.\d+)?`)
	reInteger   = regexp.MustCompile(`\d+`)
	reAreaUnit  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:sqm|m2|square meter|sq\.?\s*m\.?)`)
	reNumbering = regexp.MustCompile(`^\d+\.\s*`)
	reTrailing  = regexp.MustCompile(`[.,]+$`)
)

// CleanAnswers strips list numbering ("3. ...") and trailing punctuation from
// raw transcript answers before normalization.
func CleanAnswers(answers []string) []string {
	out := make([]string, 0, len(answers))
	for _, a := range answers {
		a = reNumbering.ReplaceAllString(strings.TrimSpace(a), "")
		a = reTrailing.ReplaceAllString(a, "")
		out = append(out, strings.TrimSpace(a))
	}
	return out
}

// Normalize converts the ordered free-text answers into a Preference. It is
// total: malformed or missing values come back unset, never as an error.
// Fewer than twelve answers are padded with "not specified".
func Normalize(answers []string) *Preference {
	for len(answers) < answerCount {
		answers = append(answers, notSpecified)
	}

	p := New()

	p.Type = parseCategorical(answers[ansType])
	p.Bedrooms = parseCount(answers[ansRooms])
	p.Bathrooms = parseCount(answers[ansBathrooms])
	p.City = parseCategorical(answers[ansLocation])
	p.Finishing = capitalize(parseCategorical(answers[ansFinishing]))
	p.Features = parseFeatures(answers[ansAmenities])

	if price := parsePrice(answers[ansBudget]); price > 0 {
		p.PriceTarget = price
		p.PriceRange = BandAround(price)
	}

	// Area is often mentioned in passing rather than in its own slot, so every
	// answer is scanned for a value next to a unit marker.
	for _, ans := range answers {
		if m := reAreaUnit.FindStringSubmatch(ans); m != nil {
			if area, err := strconv.ParseFloat(m[1], 64); err == nil && area > 0 {
				p.AreaTarget = area
				p.AreaRange = BandAround(area)
			}
			break
		}
	}

	p.PaymentOption = PaymentCash
	financing := strings.ToLower(answers[ansFinancing])
	if strings.Contains(financing, "yes") || strings.Contains(financing, "installment") {
		p.PaymentOption = PaymentInstallment
	}
	if strings.Contains(financing, "installment") {
		if years := parseNumber(answers[ansFinancing]); years > 0 {
			p.InstallmentYears = years
			p.InstallmentRange = Range{Min: years, Max: years}
		}
	}

	if delivery := parseNumber(answers[ansTimeline]); delivery > 0 {
		p.DeliveryIn = delivery
		p.DeliveryRange = Range{Min: delivery, Max: delivery}
	}

	if down := parsePrice(answers[ansDownPayment]); down > 0 {
		p.DownPayment = down
		p.DownPaymentRange = Range{Min: down, Max: down}
	}

	return p
}

// parseCategorical lower-cases and trims a free-text answer, treating any
// mention of "not specified" as unset.
func parseCategorical(answer string) string {
	if strings.Contains(strings.ToLower(answer), notSpecified) {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(answer))
}

// parsePrice extracts the first numeric token, applying a trailing "million"
// multiplier. Currency markers and thousands separators are ignored.
func parsePrice(answer string) float64 {
	cleaned := strings.ToLower(answer)
	cleaned = strings.ReplaceAll(cleaned, "egp", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")

	m := reNumber.FindString(cleaned)
	if m == "" {
		return 0
	}
	value, err := strconv.ParseFloat(m, 64)
	if err != nil || value < 0 {
		return 0
	}
	if strings.Contains(cleaned, "million") {
		value *= 1_000_000
	}
	return value
}

func parseCount(answer string) int {
	if strings.Contains(strings.ToLower(answer), notSpecified) {
		return 0
	}
	m := reInteger.FindString(answer)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parseNumber(answer string) float64 {
	m := reNumber.FindString(answer)
	if m == "" {
		return 0
	}
	value, err := strconv.ParseFloat(m, 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

// parseFeatures splits an amenity answer on ";" or ",", mapping each token
// through the synonym table.
func parseFeatures(answer string) []string {
	if strings.Contains(strings.ToLower(answer), notSpecified) {
		return nil
	}

	var features []string
	for _, token := range strings.FieldsFunc(answer, func(r rune) bool { return r == ';' || r == ',' }) {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		if canonical, ok := amenitySynonyms[token]; ok {
			features = append(features, canonical)
			continue
		}
		features = append(features, capitalize(token))
	}
	return features
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
	return string(runes)
}
