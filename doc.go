// Package vehiclemanage provides the camera-side recognition agent for the
// vehicle-manage platform.
//
// The agent runs next to a license plate recognition process, maintains a
// single WebSocket connection to the central collector, and pushes structured
// events upstream while accepting commands back on the same connection.
//
// # Architecture
//
// The repository is organized around five cooperating pieces:
//
//   - message: the wire codec. Every frame is a JSON envelope
//     {type, data, timestamp}; payload schemas are keyed by type, and
//     unknown types decode to an opaque raw payload so new collector
//     message types never break the agent.
//
//   - connection: the connection manager. It exclusively owns the
//     WebSocket, runs one receive loop per live connection, and drives
//     reconnection with linear backoff when the link drops. Producers only
//     ever touch the link through Send.
//
//   - dispatch: the command dispatcher. Inbound envelopes are routed by
//     type to registered handlers on a worker pool, so a slow handler
//     never stalls the receive loop.
//
//   - producer: periodic event producers. The detection producer polls a
//     recognition collaborator on a randomized cadence; the status
//     producer reports counters on a fixed cadence. Events generated while
//     offline are dropped and counted (at-most-once delivery).
//
//   - agent: the lifecycle controller. It owns the shared counters, wires
//     everything together, and coordinates signal-triggered shutdown so no
//     background work outlives the process.
//
// Supporting packages (config, errors, metric, pkg/retry, pkg/worker)
// carry configuration loading, classified error handling, Prometheus
// metrics, backoff, and generic worker pooling.
package vehiclemanage
