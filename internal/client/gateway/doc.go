// Package gateway is the client side of the remote backend: the session
// lifecycle (sign-up, sign-in, OAuth, restore, sign-out) and generic row CRUD
// against named collections.
//
// The gateway is deliberately dumb. It does not deduplicate, cache or retry;
// callers decide what to do with failures. Any transport or query failure is
// returned as an error, never as an empty result, so callers can tell "no
// rows" from "fetch failed".
//
// Two implementations exist: GRPCGateway talks to cmd/server, Unconfigured
// is used when no endpoint is set and makes every component run locally.
package gateway
