// Package message defines the wire envelope exchanged with the collector
// and its typed payload variants.
//
// Every frame is a single JSON object with exactly three top-level keys:
// type, data, and timestamp. The data schema is fully determined by type.
// Decode materializes typed payloads for registered kinds and falls back
// to RawPayload for anything else, so collector-side command additions
// never break the agent. The package is pure: no I/O, no side effects
// beyond the factory registry.
package message
