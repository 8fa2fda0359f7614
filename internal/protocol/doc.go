// Package protocol owns the system-command wire contract.
//
// Ownership boundary:
// - reserved command names and the "__" marker
// - JSON command envelopes and their validation
// - single-phase vs two-phase command classification
package protocol
