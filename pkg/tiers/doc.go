// Package tiers holds the static subscription tier catalog: which payment-provider price
// identifiers map to which tier and billing cycle, and how many credits each tier grants.
//
// The catalog is compiled into the binary as an embedded YAML document. Deployments that
// use different provider price ids (sandbox vs production) may load their own document
// with LoadFile; either way the resulting Catalog is immutable and safe for concurrent use.
//
//	cat := tiers.MustDefault()
//	entry, ok := cat.TierForPriceID("pri_pro_monthly")
//	if !ok {
//		// unknown price id: configuration drift, treat as free
//	}
//	limit := tiers.Allotment(entry.Tier)
//
// Credit allotments are a separate table from the price catalog. Free tier credits are a
// lifetime cap; paid tier credits reset every billing period.
package tiers
