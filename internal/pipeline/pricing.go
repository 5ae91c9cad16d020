package pipeline

import "math"

// VATRatePercent is the UK standard rate applied to coach hire.
const VATRatePercent = 20.0

// QuoteTotals is a priced customer quote in pence.
type QuoteTotals struct {
	SupplierPricePence int64   `json:"supplierPricePence"`
	MarkupPercent      float64 `json:"markupPercent"`
	MarkupPence        int64   `json:"markupPence"`
	SubtotalPence      int64   `json:"subtotalPence"`
	VATRatePercent     float64 `json:"vatRatePercent"`
	VATPence           int64   `json:"vatPence"`
	TotalPence         int64   `json:"totalPence"`
}

// percentOf rounds half up in basis points so 22% of £1,000 is exactly £220.
func percentOf(pence int64, percent float64) int64 {
	bps := int64(math.Round(percent * 100))
	return (pence*bps + 5000) / 10000
}

func PriceQuote(supplierPence int64, markupPercent float64) QuoteTotals {
	markup := percentOf(supplierPence, markupPercent)
	subtotal := supplierPence + markup
	vat := percentOf(subtotal, VATRatePercent)
	return QuoteTotals{
		SupplierPricePence: supplierPence,
		MarkupPercent:      markupPercent,
		MarkupPence:        markup,
		SubtotalPence:      subtotal,
		VATRatePercent:     VATRatePercent,
		VATPence:           vat,
		TotalPence:         subtotal + vat,
	}
}
