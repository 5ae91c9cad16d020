//go:build !integration

package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"coachhire-ai/internal/domain/model"
)

func TestAnalyzeFallback(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	ret := now.Add(5 * 24 * time.Hour)
	tests := []struct {
		name string
		e    *model.Enquiry
		want model.EnquiryAnalysis
	}{
		{
			name: "small local trip soon",
			e:    &model.Enquiry{Passengers: 12, TripDate: now.Add(24 * time.Hour)},
			want: model.EnquiryAnalysis{TripType: "one_way", Complexity: "low", Urgency: "high", SuggestedVehicle: "minibus"},
		},
		{
			name: "multi day coach",
			e:    &model.Enquiry{Passengers: 50, TripDate: now.Add(4 * 24 * time.Hour), ReturnDate: &ret, Notes: "Wheelchair user in group"},
			want: model.EnquiryAnalysis{
				TripType: "multi_day", Complexity: "high", Urgency: "normal", SuggestedVehicle: "coach",
				SpecialRequirements: []string{"wheelchair_access"},
			},
		},
		{
			name: "requested vehicle wins",
			e:    &model.Enquiry{Passengers: 30, VehicleType: "coach", TripDate: now.Add(60 * 24 * time.Hour)},
			want: model.EnquiryAnalysis{TripType: "one_way", Complexity: "medium", Urgency: "low", SuggestedVehicle: "coach"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, analyzeFallback(tt.e, now))
		})
	}
}

func TestSelectFallbackSkipsLowRated(t *testing.T) {
	ranked := []RankedSupplier{
		{SupplierID: "a", Rating: 4.5},
		{SupplierID: "b", Rating: 2.9},
		{SupplierID: "c", Rating: 4.0},
		{SupplierID: "d", Rating: 3.6},
	}
	assert.Equal(t, []string{"a", "c"}, selectFallback(ranked, 2, 3.5).SupplierIDs)
	assert.Empty(t, selectFallback(ranked, 3, 5).SupplierIDs)
}

func TestSuggestVehicle(t *testing.T) {
	assert.Equal(t, "minibus", suggestVehicle(16))
	assert.Equal(t, "midicoach", suggestVehicle(17))
	assert.Equal(t, "coach", suggestVehicle(57))
	assert.Equal(t, "double_decker", suggestVehicle(80))
}
