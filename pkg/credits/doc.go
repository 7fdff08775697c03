// Package credits implements the usage credit ledger.
//
// Free tier users have a lifetime cap: usage is the sum of an append-only usage log.
// Paid tier users have a per-billing-period allotment: usage is the counter of the
// credit window whose [start, end) range contains the current time. Windows are opened
// by the billing event processor when the payments provider reports a paid renewal;
// the ledger never fabricates one.
//
// The ledger does not gate debits. Callers check Remaining first, run the action and
// debit only when it succeeded:
//
//	balance, err := ledger.Remaining(ctx, user.ID, tier)
//	if err != nil || balance.Remaining < 1 {
//		// storage failure or no credits left
//	}
//	// ... run the action ...
//	res, err := ledger.Debit(ctx, user.ID, tier, "chat", 1)
//	if err == nil && !res.OK() {
//		// billing sync gap: paid tier without an open window
//	}
//
// Paid tier debits rely on Store.IncrementWindow being an atomic read-modify-write in
// the underlying store, so concurrent debits for the same user never lose updates.
package credits
