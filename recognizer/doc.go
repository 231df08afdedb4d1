// Package recognizer provides the plate recognition collaborator.
//
// Simulator is a mock engine generating randomized detections across a
// fixed gate set, so the agent binary runs end to end without camera
// hardware. The event producers depend only on the small interface the
// simulator satisfies; a real pipeline slots in behind the same contract.
package recognizer
