// Package requestid attaches a correlation id to every HTTP request.
//
// Middleware reuses a well-formed X-Request-ID header from the client or generates a
// UUID, stores it in the request context and echoes it on the response. LogExtractor
// plugs into logger.WithContextExtractors so every record logged with the request
// context carries a request_id attribute.
package requestid
