// Package logging configures the process-wide log/slog logger.
//
// Setup installs a JSON or text handler as the slog default. Components derive
// their own loggers with slog.Default().With("component", ...). Records logged
// with a *Context method pick up the correlation id, target and endpoint stored
// in the context by WithCorrelationID, WithTarget and WithEndpoint.
//
// When RedactSecrets is enabled, API secrets and tokens are masked in every
// attribute, including query strings such as "token=abc".
package logging
