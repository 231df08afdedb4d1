// Package errors provides standardized error handling for the agent.
//
// Errors are classified into three classes that determine how callers react:
//
//   - Transient: temporary conditions (lost connections, timeouts) that the
//     connection manager retries with backoff.
//   - Invalid: malformed input (bad frames, bad configuration values) that
//     retrying will never fix; the offending item is dropped or rejected.
//   - Fatal: unrecoverable conditions (reconnect exhaustion, missing
//     configuration) that terminate the affected component.
//
// Components wrap errors with WrapTransient, WrapInvalid, or WrapFatal,
// producing messages of the form "component.method: action failed: cause".
// Callers branch on IsTransient / IsInvalid / IsFatal rather than on
// message text.
//
// Example:
//
//	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
//	    return errors.WrapTransient(err, "Manager", "Send", "write frame")
//	}
package errors
