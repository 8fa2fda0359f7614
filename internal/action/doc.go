// Package action owns the goal lifecycle on both sides of the link.
//
// Ownership boundary:
// - goal status machine and handles (client side)
// - feedback/result listener registries (client side)
// - goal/cancel handler registry and active-goal index (server side)
//
// Payloads stay opaque bytes throughout; typed goals are the caller's
// concern at the public wrapper layer.
package action
