package models

// All lists every persisted model, used by sqlite auto-migration in dev and tests.
func All() []any {
	return []any{
		&User{},
		&Product{},
		&Variant{},
		&ProductCustomField{},
		&ShippingDestination{},
		&Affiliate{},
		&ProductAffiliate{},
		&SavedPaymentMethod{},
		&Order{},
		&Purchase{},
		&Charge{},
		&Gift{},
		&Preorder{},
		&AffiliateCredit{},
		&CallBooking{},
		&PurchaseEvent{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
