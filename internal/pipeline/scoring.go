package pipeline

import (
	"math"
	"sort"
	"strings"
	"time"

	"coachhire-ai/internal/domain/model"
)

const (
	proximityRadiusKm = 200.0
	responseHorizonH  = 48.0
	scoreEpsilon      = 1e-9
)

// RankedBid is a submitted bid with its weighted score (0..100).
type RankedBid struct {
	SupplierQuoteID string             `json:"supplierQuoteId"`
	SupplierID      string             `json:"supplierId"`
	Score           float64            `json:"score"`
	PricePence      int64              `json:"pricePence"`
	SubmittedAt     time.Time          `json:"submittedAt"`
	Components      map[string]float64 `json:"components,omitempty"`
}

// ScoreBids scores every submitted bid against the weights and returns them
// best first. Ties go to the lower price, then the earlier submission, then
// the smaller quote id, so the order is total and stable.
func ScoreBids(e *model.Enquiry, quotes []*model.SupplierQuote, suppliers map[string]*model.Supplier, w model.SupplierWeights) []RankedBid {
	var lowest int64
	for _, q := range quotes {
		if q.Status == model.SupplierQuoteSubmitted && q.PricePence > 0 && (lowest == 0 || q.PricePence < lowest) {
			lowest = q.PricePence
		}
	}
	out := make([]RankedBid, 0, len(quotes))
	for _, q := range quotes {
		if q.Status != model.SupplierQuoteSubmitted {
			continue
		}
		s := suppliers[q.SupplierID]
		if s == nil {
			s = &model.Supplier{ID: q.SupplierID}
		}
		c := map[string]float64{
			"rating":               ratingScore(s.Rating),
			"priceCompetitiveness": priceScore(lowest, q.PricePence),
			"reliability":          clamp01(s.Reliability) * 100,
			"proximity":            proximityScore(e, s),
			"responseTime":         responseScore(s.AvgResponseHours),
			"fleetMatch":           fleetScore(e, q.VehicleType, q.Capacity),
		}
		rb := RankedBid{
			SupplierQuoteID: q.ID,
			SupplierID:      q.SupplierID,
			Score:           weighted(w, c),
			PricePence:      q.PricePence,
			Components:      c,
		}
		if q.SubmittedAt != nil {
			rb.SubmittedAt = *q.SubmittedAt
		}
		out = append(out, rb)
	}
	sort.SliceStable(out, func(i, j int) bool { return bidLess(out[i], out[j]) })
	for i := range out {
		out[i].Score = round2(out[i].Score)
	}
	return out
}

func bidLess(a, b RankedBid) bool {
	if math.Abs(a.Score-b.Score) > scoreEpsilon {
		return a.Score > b.Score
	}
	if a.PricePence != b.PricePence {
		return a.PricePence < b.PricePence
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.SupplierQuoteID < b.SupplierQuoteID
}

// RankedSupplier is a candidate for the bid shortlist.
type RankedSupplier struct {
	SupplierID string  `json:"supplierId"`
	Name       string  `json:"name"`
	Score      float64 `json:"score"`
	Rating     float64 `json:"rating"`
	DistanceKm float64 `json:"distanceKm,omitempty"`
	FleetMatch bool    `json:"fleetMatch"`
}

// RankSuppliers orders active suppliers for an enquiry with the same weights
// as bid scoring minus price, which is unknown before bidding.
func RankSuppliers(e *model.Enquiry, suppliers []*model.Supplier, w model.SupplierWeights) []RankedSupplier {
	w.PriceCompetitiveness = 0
	out := make([]RankedSupplier, 0, len(suppliers))
	for _, s := range suppliers {
		if !s.Active {
			continue
		}
		fleet := supplierFleetScore(e, s)
		c := map[string]float64{
			"rating":       ratingScore(s.Rating),
			"reliability":  clamp01(s.Reliability) * 100,
			"proximity":    proximityScore(e, s),
			"responseTime": responseScore(s.AvgResponseHours),
			"fleetMatch":   fleet,
		}
		rs := RankedSupplier{SupplierID: s.ID, Name: s.Name, Score: weighted(w, c), Rating: s.Rating, FleetMatch: fleet == 100}
		if d, ok := distanceKm(e, s); ok {
			rs.DistanceKm = math.Round(d*10) / 10
		}
		out = append(out, rs)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if math.Abs(out[i].Score-out[j].Score) > scoreEpsilon {
			return out[i].Score > out[j].Score
		}
		return out[i].SupplierID < out[j].SupplierID
	})
	for i := range out {
		out[i].Score = round2(out[i].Score)
	}
	return out
}

func weighted(w model.SupplierWeights, c map[string]float64) float64 {
	total := w.Sum()
	if total <= 0 {
		return 0
	}
	sum := w.Rating*c["rating"] +
		w.PriceCompetitiveness*c["priceCompetitiveness"] +
		w.Reliability*c["reliability"] +
		w.Proximity*c["proximity"] +
		w.ResponseTime*c["responseTime"] +
		w.FleetMatch*c["fleetMatch"]
	return sum / total
}

// round2 is applied after ranking; order is decided on the exact sums.
func round2(v float64) float64 { return math.Round(v*100) / 100 }

func ratingScore(r float64) float64 { return clamp01(r/5) * 100 }

func priceScore(lowest, price int64) float64 {
	if lowest <= 0 || price <= 0 {
		return 0
	}
	return float64(lowest) / float64(price) * 100
}

func responseScore(hours float64) float64 {
	if hours <= 0 {
		return 100
	}
	return clamp01(1-hours/responseHorizonH) * 100
}

func proximityScore(e *model.Enquiry, s *model.Supplier) float64 {
	d, ok := distanceKm(e, s)
	if !ok {
		return 50
	}
	return clamp01(1-d/proximityRadiusKm) * 100
}

func fleetScore(e *model.Enquiry, vehicle string, capacity int) float64 {
	typeOK := e.VehicleType == "" || strings.EqualFold(e.VehicleType, vehicle)
	capOK := capacity == 0 || capacity >= e.Passengers
	switch {
	case typeOK && capOK:
		return 100
	case typeOK || capOK:
		return 50
	}
	return 0
}

func supplierFleetScore(e *model.Enquiry, s *model.Supplier) float64 {
	typeOK := e.VehicleType == ""
	for _, f := range s.FleetTypes {
		if strings.EqualFold(f, e.VehicleType) {
			typeOK = true
			break
		}
	}
	capOK := s.MaxPassengers == 0 || s.MaxPassengers >= e.Passengers
	switch {
	case typeOK && capOK:
		return 100
	case typeOK || capOK:
		return 50
	}
	return 0
}

func distanceKm(e *model.Enquiry, s *model.Supplier) (float64, bool) {
	if (e.PickupLat == 0 && e.PickupLng == 0) || (s.Lat == 0 && s.Lng == 0) {
		return 0, false
	}
	const r = 6371.0
	rad := math.Pi / 180
	dLat := (s.Lat - e.PickupLat) * rad
	dLng := (s.Lng - e.PickupLng) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(e.PickupLat*rad)*math.Cos(s.Lat*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * r * math.Asin(math.Sqrt(a)), true
}

// medianPrice of the submitted bids, 0 when there are none.
func medianPrice(bids []RankedBid) int64 {
	if len(bids) == 0 {
		return 0
	}
	p := make([]int64, len(bids))
	for i, b := range bids {
		p[i] = b.PricePence
	}
	sort.Slice(p, func(i, j int) bool { return p[i] < p[j] })
	n := len(p)
	if n%2 == 1 {
		return p[n/2]
	}
	return (p[n/2-1] + p[n/2]) / 2
}

func deviationPercent(price, median int64) float64 {
	if median <= 0 {
		return 0
	}
	return math.Abs(float64(price-median)) / float64(median) * 100
}

func clamp01(v float64) float64 { return math.Max(0, math.Min(1, v)) }
