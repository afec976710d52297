// Package polymarket is the worked example pipeline wired on top of the
// generic step/tracker framework: it decodes CTF Exchange and Conditional
// Tokens contract events out of raw transaction payloads and publishes them
// to NATS JetStream. Its handler registration and metrics carry over a
// chain-RPC block-polling processor's event decoding logic, adapted into a
// pipeline.Step that decodes whatever transaction batch it's handed instead
// of polling a block range itself.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/0xkanth/polymarket-indexer/internal/handler"
	"github.com/0xkanth/polymarket-indexer/internal/router"
	"github.com/0xkanth/polymarket-indexer/pkg/models"
	"github.com/0xkanth/polymarket-indexer/pkg/stream"
)

var (
	eventsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_events_decoded_total",
		Help: "Total number of contract events decoded, by event type.",
	}, []string{"event_type"})

	decodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_decode_errors_total",
		Help: "Total number of log decode failures, by reason.",
	}, []string{"reason"})
)

// txLog is the wire shape a transaction's Payload is expected to carry: the
// EVM logs it emitted, JSON-encoded by whatever adapted the upstream's raw
// bytes into stream.Transaction values.
type txLog struct {
	Logs      []types.Log `json:"logs"`
	BlockHash string      `json:"block_hash"`
}

// DecodeStep turns a batch of raw transactions into the contract events
// their logs contain. Transactions whose payload carries no logs this
// router understands simply contribute nothing; a transaction with
// unparseable payload is a decode error, not silently dropped.
type DecodeStep struct {
	router *router.EventLogHandlerRouter
	logger zerolog.Logger
}

// NewDecodeStep builds a DecodeStep with every CTF Exchange and
// Conditional Tokens handler registered, mirroring
// BlockEventsProcessor.New's registration list.
func NewDecodeStep(logger zerolog.Logger) *DecodeStep {
	r := router.New()
	r.RegisterLogHandler(handler.OrderFilledSig, "OrderFilled", handler.HandleOrderFilled)
	r.RegisterLogHandler(handler.OrderCancelledSig, "OrderCancelled", handler.HandleOrderCancelled)
	r.RegisterLogHandler(handler.TokenRegisteredSig, "TokenRegistered", handler.HandleTokenRegistered)
	r.RegisterLogHandler(handler.TransferSingleSig, "TransferSingle", handler.HandleTransferSingle)
	r.RegisterLogHandler(handler.TransferBatchSig, "TransferBatch", handler.HandleTransferBatch)
	r.RegisterLogHandler(handler.ConditionPreparationSig, "ConditionPreparation", handler.HandleConditionPreparation)
	r.RegisterLogHandler(handler.ConditionResolutionSig, "ConditionResolution", handler.HandleConditionResolution)
	r.RegisterLogHandler(handler.PositionSplitSig, "PositionSplit", handler.HandlePositionSplit)
	r.RegisterLogHandler(handler.PositionsMergeSig, "PositionsMerge", handler.HandlePositionsMerge)

	return &DecodeStep{
		router: r,
		logger: logger.With().Str("component", "polymarket_decode").Logger(),
	}
}

func (d *DecodeStep) Name() string { return "polymarket.Decode" }

func (d *DecodeStep) Process(ctx context.Context, batch stream.Batch[[]stream.Transaction]) (*stream.Batch[[]models.Event], error) {
	events := make([]models.Event, 0)

	for _, tx := range batch.Data {
		if len(tx.Data) == 0 {
			continue
		}

		var decoded txLog
		if err := json.Unmarshal(tx.Data, &decoded); err != nil {
			decodeErrors.WithLabelValues("unmarshal").Inc()
			return nil, fmt.Errorf("polymarket: decode transaction %d payload: %w", tx.Version, err)
		}

		txEvents, err := d.router.RouteLogs(ctx, decoded.Logs, uint64(tx.Timestamp.Unix()), decoded.BlockHash)
		if err != nil {
			decodeErrors.WithLabelValues("route").Inc()
			return nil, fmt.Errorf("polymarket: route logs for transaction %d: %w", tx.Version, err)
		}
		for _, ev := range txEvents {
			eventsDecoded.WithLabelValues(ev.EventName).Inc()
		}
		events = append(events, txEvents...)
	}

	out := stream.Batch[[]models.Event]{
		Data:                      events,
		StartVersion:              batch.StartVersion,
		EndVersion:                batch.EndVersion,
		StartTransactionTimestamp: batch.StartTransactionTimestamp,
		EndTransactionTimestamp:   batch.EndTransactionTimestamp,
		TotalSizeInBytes:          batch.TotalSizeInBytes,
	}
	return &out, nil
}

// Monitored parses the given contract addresses, failing on any that is
// not a well-formed hex address. It does not consult the registered
// handlers; decoding itself dispatches on event signature only.
func Monitored(addresses []string) ([]common.Address, error) {
	out := make([]common.Address, len(addresses))
	for i, addr := range addresses {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("polymarket: invalid contract address %q", addr)
		}
		out[i] = common.HexToAddress(addr)
	}
	return out, nil
}
