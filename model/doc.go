// Package model defines core types used throughout vectable.
//
// # Identity Types
//
//   - FragmentID: Identifier of an immutable data fragment (uint32)
//   - RowAddr: Physical row address (FragmentID << 32 | offset)
//
// # Data Types
//
//   - Record: One table row with text, category, vector and metadata
//   - Candidate: Search hit with address and score
package model
