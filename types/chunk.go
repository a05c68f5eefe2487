package types

import "time"

// ChunkOutcome is what became of one batched extrinsic.
type ChunkOutcome struct {
	Action          string    `json:"action"`
	Index           int       `json:"index"`
	Addresses       []Address `json:"addresses"`
	DryRun          bool      `json:"dry_run"`
	ExtrinsicHash   string    `json:"extrinsic_hash,omitempty"`
	BlockHash       string    `json:"block_hash,omitempty"`
	Fee             string    `json:"fee,omitempty"`
	Success         bool      `json:"success"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	ExpectedEvents  int       `json:"expected_events"`
	TriggeredEvents int       `json:"triggered_events"`
	TransportError  string    `json:"transport_error,omitempty"`
	At              time.Time `json:"at"`
}
