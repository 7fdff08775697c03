// Package httpserver runs an http.Handler with graceful shutdown.
//
// Run blocks until the server fails or its context is cancelled; on cancellation it
// drains in-flight requests for at most the configured shutdown timeout. Signal
// handling belongs to the caller (signal.NotifyContext in main).
//
//	srv := httpserver.New(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// Health builds liveness and readiness handlers over named dependency checks.
package httpserver
