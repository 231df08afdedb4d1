// Package producer contains the agent's outbound event loops.
//
// Detection polls the recognition collaborator on a randomized interval
// and pushes license_plate_detected envelopes. Status reports aggregate
// counters on a fixed interval. Both run as single goroutines, so each
// producer's events reach the wire in the order it generated them.
// Detections generated while the link is down are dropped and counted,
// never buffered.
package producer
