// Package models defines the domain records shared by storage, the settlement
// engine and the RPC layer.
//
// # Models
//
//   - Group: a roster of Members who share expenses
//   - Member: a participant, identified by an ID assigned at join time
//   - Expense: one purchase with a payer and per-member splits
//   - SettlementRecord: a persisted request to pay (Pending) or a confirmed
//     payment (Settled)
//
// # Design Principles
//
// 1. **Explicit status**: SettlementRecord.Status is a closed set; unknown
// values are rejected by Validate rather than inferred later.
// 2. **Validate at the boundary**: storage calls Validate before writing, so the
// calculator can assume well-formed records.
// 3. **IDs, not pointers**: relationships are expressed by ID strings.
// 4. **Exact money**: amounts use money.Money (integer cents), never float64.
package models
