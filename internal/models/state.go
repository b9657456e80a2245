// Package models holds the shared data structures exchanged between the
// controller, the HTTP API and the event bus.
package models

// State is a snapshot of the APBA controller, published on the event bus
// whenever something observable changes.
type State struct {
	Enabled      bool  `json:"enabled"`       // desired-on flag
	Mode         uint8 `json:"mode"`          // last committed operating mode
	Baud         int   `json:"baud"`          // current UART baud rate
	FlashEnabled bool  `json:"flash_enabled"` // flash transport populated
	ApbeAttached bool  `json:"apbe_attached"` // downstream module attached
	MasterIntf   uint8 `json:"master_intf"`   // bus interface toward the APBE, 0 = unknown
}
