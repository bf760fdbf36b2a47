package money

// FeeSchedule configures the platform and processor fees withheld from a sale.
type FeeSchedule struct {
	PlatformBasisPoints  int64
	PlatformFlatCents    int64
	ProcessorBasisPoints int64
	ProcessorFlatCents   int64
	// DiscoverBasisPoints replaces the platform percentage on sales that came from recommendations.
	DiscoverBasisPoints int64
}

// Breakdown is the per-line-item amount split persisted on a purchase.
type Breakdown struct {
	PriceCents            int64
	FeeCents              int64
	DiscoverFeeCents      int64
	TaxCents              int64
	ShippingCents         int64
	TotalTransactionCents int64
	NetCents              int64
	AffiliateCreditCents  int64
}

// BreakdownInput is what the executor knows about a line item after validation.
type BreakdownInput struct {
	PriceCents           int64
	TaxCents             int64
	ShippingCents        int64
	Discover             bool
	AffiliateBasisPoints int64
}

// Compute splits a line item's money. Total transaction is price + tax + shipping;
// fees and affiliate credit come out of the seller's side and never change what the
// buyer pays.
func (f FeeSchedule) Compute(in BreakdownInput) Breakdown {
	out := Breakdown{
		PriceCents:    nonNegative(in.PriceCents),
		TaxCents:      nonNegative(in.TaxCents),
		ShippingCents: nonNegative(in.ShippingCents),
	}
	out.TotalTransactionCents = out.PriceCents + out.TaxCents + out.ShippingCents
	if out.PriceCents == 0 {
		return out
	}

	platform := ApplyBasisPoints(out.PriceCents, f.PlatformBasisPoints)
	if in.Discover && f.DiscoverBasisPoints > f.PlatformBasisPoints {
		discover := ApplyBasisPoints(out.PriceCents, f.DiscoverBasisPoints)
		out.DiscoverFeeCents = discover - platform
		platform = discover
	}
	processor := roundBasisPoints(out.TotalTransactionCents, f.ProcessorBasisPoints) + f.ProcessorFlatCents
	fee := platform + f.PlatformFlatCents + processor
	if fee > out.PriceCents {
		fee = out.PriceCents
	}
	if out.DiscoverFeeCents > fee {
		out.DiscoverFeeCents = fee
	}
	out.FeeCents = fee
	out.NetCents = out.PriceCents - fee
	if !in.Discover {
		out.AffiliateCreditCents = AffiliateCredit(out.NetCents, in.AffiliateBasisPoints)
	}
	return out
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
