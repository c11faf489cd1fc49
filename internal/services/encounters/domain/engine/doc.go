// Package engine resolves encounter turns.
//
// Resolution is a pure computation over a roster snapshot and exactly one
// action per active participant (auto-fail placeholders included):
//   - ApplyActionCost validates and deducts an ability cost before a
//     submission is accepted,
//   - ResolveTurn computes per-action damage and grades and the resulting
//     participant state,
//   - BuildResolution assembles resolver inputs from persisted rows and turns
//     resolver output into audit effects.
//
// Nothing in this package performs I/O beyond the CharacterReader passed to
// BuildResolution, and identical inputs always produce identical outputs, which
// is what makes idempotent replay of a resolution safe upstream.
package engine
