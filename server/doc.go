// Package server is the HTTP front of bytepipe. Request bodies are raw byte
// sources and responses raw byte sinks, so uploads of any size stream through
// a pipeline with bounded memory.
//
// Routes:
//
//   - POST /v1/split: split the body into records and re-emit them with a new
//     terminator. Query parameters delimiter, policy and out override the
//     configured framing.
//   - POST /v1/checksum: BLAKE2b-256 digest and size of the body.
//   - GET /health, GET /version.
//
// The Gin engine sits behind an h2c handler and the middleware chain in
// server/middleware (recovery, request ID, request logging, body size).
package server
