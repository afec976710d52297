// Package upstreamrpc defines the wire contract between a transaction
// stream source and its upstream: a single server-streaming RPC returning
// batches of raw, versioned transactions. It is grounded in the RawData
// service the Aptos indexer SDK's mock_grpc.rs test harness speaks, stubbed
// by hand in the style protoc-gen-go-grpc would produce, but carried over
// genuine google.golang.org/grpc transport using a JSON wire codec instead
// of generated protobuf marshaling (see codec.go).
package upstreamrpc

import "time"

// Transaction is one versioned unit of upstream data. Payload carries
// whatever chain-specific bytes the processor knows how to decode;
// upstreamrpc itself never looks inside it.
type Transaction struct {
	Version   uint64    `json:"version"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// GetTransactionsRequest opens a stream starting at StartingVersion. The
// server stops once it has sent TransactionsCount transactions, defaulting
// to 1 when TransactionsCount is nil.
type GetTransactionsRequest struct {
	StartingVersion   uint64  `json:"starting_version"`
	TransactionsCount *uint64 `json:"transactions_count,omitempty"`
}

// TransactionsResponse is one streamed message: a contiguous batch of
// transactions tagged with the chain they came from.
type TransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
	ChainID      uint64        `json:"chain_id"`
}
