// Package dispatch routes inbound collector commands to handlers.
//
// The receive loop enqueues decoded envelopes; a single background worker
// invokes handlers in arrival order so slow handlers never stall frame
// reads. Kinds without a registered handler are dropped silently, which
// keeps the agent forward compatible with new collector commands.
package dispatch
