package api

import (
	"github.com/ssargent/tweetdb/pkg/ledger"
	"github.com/ssargent/tweetdb/pkg/store"
)

// APIResponse represents a standard API response. Code carries the fault
// kind name of a rejected request.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// TransactionRequest is the body of POST /transactions:
// {kind, record, owner, topic, content, signatures:[{signer, signature}]}
type TransactionRequest = ledger.Transaction

// StatsResponse is returned by GET /stats
type StatsResponse struct {
	Records int    `json:"records"`
	Slot    uint64 `json:"slot"`
}

// RecordList is returned by GET /records
type RecordList struct {
	Records []store.Record `json:"records"`
	Count   int            `json:"count"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Bind   string
	Port   int
	APIKey string
}
