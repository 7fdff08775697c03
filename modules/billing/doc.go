// Package billing is the HTTP surface of promptdesk.
//
// Router mounts the Paddle webhook endpoint, the public tool catalog and the
// authenticated user routes:
//
//	POST   /webhooks/paddle   signed billing notifications
//	GET    /tools             generation tool catalog
//	GET    /me                profile and resolved tier
//	DELETE /me                account deletion
//	GET    /me/credits        credit balance for the resolved tier
//	POST   /me/generate       run a tool, one credit per successful call
//	POST   /billing/checkout  hosted checkout link for a price
//	GET    /billing/portal    customer portal link
//
// Authenticated routes provision the local user on first sight of an identity
// subject. Every JSON response uses the {data, error} envelope.
package billing
