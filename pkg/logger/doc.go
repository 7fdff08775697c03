// Package logger builds the application's *slog.Logger.
//
// New accepts functional options for format, level, static attributes and context
// extractors. Extractors run on every record, so request-scoped values such as the
// request id or the authenticated user id end up on each line without threading a
// logger through every call.
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "promptdesk"),
//		logger.WithLevelName(cfg.LogLevel),
//		logger.WithContextExtractors(requestid.LogExtractor),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "webhook processed",
//		logger.EventType("subscription.updated"),
//		logger.SubscriptionID(sub.ExternalID),
//		logger.Outcome("applied"),
//	)
//
// Attribute helpers in attr.go keep key names consistent across packages. Helpers that
// take optional values return an empty slog.Attr for empty input, which slog drops.
package logger
