// Package ledger is the durable record of every distinct image content the
// service has seen.
//
// One row in processed_images exists per fingerprint. Both file_hash and
// original_path are UNIQUE, and those two constraints are the only
// protection against duplicate insertion when a startup scan and live
// watching overlap: Register reads and writes inside one transaction on the
// single pooled connection, so two callers racing on the same fingerprint
// serialize and the loser observes the winner's row (at-most-once insertion).
// This is not a general transaction system.
//
// Status changes go through Transition, which enforces the rules in status.go.
// Deleting a row is not a transition; it is Remove.
package ledger
