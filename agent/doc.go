// Package agent is the lifecycle controller for the recognition agent.
//
// Controller assembles the connection manager, command dispatcher, and
// event producers from configuration, runs them under one context, and
// owns the cumulative counters reported in status frames. It handles the
// collector's built-in commands (start_processing, stop_processing,
// get_status) and shuts everything down in reverse start order, logging
// the final connection state and counters.
package agent
