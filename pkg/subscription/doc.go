// Package subscription reconciles a user's subscription tier with the payments provider.
//
// Two components share the same local records. The Resolver answers "which tier is this
// user on right now" and the Processor applies asynchronous provider notifications to the
// records the Resolver and the credits ledger read.
//
// # Resolver
//
// Resolver.ResolveTier never fails. It finds the user's provider subscription id (the
// mirrored id on the user, else the most recent active local record), waits once and
// re-checks when there is none, then asks the provider for the live subscription. Only a
// live status of active or trialing with a price id known to the tier catalog yields a paid
// tier; everything else resolves to free.
//
//	resolver := subscription.NewResolver(catalog, store, store, paddleProvider,
//		subscription.WithLogger(log),
//		subscription.WithRetryPolicy(cfg.Retry),
//	)
//	tier := resolver.ResolveTier(ctx, user)
//
// # Processor
//
// Processor handles one notification per call and reports the outcome as a Result:
//
//   - applied: records were written
//   - noop: nothing to do, such as a cancellation of an inactive record
//   - duplicate: the event id or the billing period was already processed
//   - rejected: the event references data that cannot be reconciled
//
// Rejected results are soft failures. Webhook handlers should acknowledge them so the
// provider stops redelivering, and log the Reason for manual repair. Errors are returned
// only for unexpected storage failures.
//
// Per local record the lifecycle is no-record, active or canceled:
//
//	state      created/updated  deleted     payment succeeded
//	no-record  upsert           rejected    rejected
//	active     upsert           deactivate  open window
//	canceled   upsert           noop        open window
//
// Payment failures are logged and otherwise ignored; dunning is left to the provider.
//
// # Webhooks
//
// HandleWebhook verifies the signature through a WebhookParser, claims the provider event
// id through EventClaims when configured and dispatches the decoded Event:
//
//	processor := subscription.NewProcessor(catalog, store, store, store,
//		subscription.WithWebhookParser(paddleProvider),
//		subscription.WithEventClaims(redis.NewEventClaims(rdb, 72*time.Hour)),
//	)
//	res, err := processor.HandleWebhook(ctx, body, r.Header.Get("Paddle-Signature"))
//
// # Retries
//
// A single retry.Policy (DefaultRetryPolicy unless overridden) bounds every wait: the
// missing subscription recheck, the provider lookup and the billing customer lookup.
// Waits end early when the context is canceled.
package subscription
