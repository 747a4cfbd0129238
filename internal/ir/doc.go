// Package ir provides the compiled schema representation and the error
// kinds shared by every persist package.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Schemas are immutable after compilation
//   - Relation kinds form a closed set selected once per (role, relation)
//   - All JSON tags use snake_case
//   - Canonical JSON is the only serialization used for hashes and golden files
package ir
