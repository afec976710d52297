// Package router maps decoded contract event signatures to the handler
// that knows how to unpack that event's log data.
package router

import (
	"context"
	"fmt"

	"github.com/0xkanth/polymarket-indexer/pkg/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LogHandlerFunc processes a log event and returns the parsed payload.
type LogHandlerFunc func(context.Context, types.Log, uint64) (any, error)

// EventLogHandlerRouter routes blockchain events to their respective
// handlers and assembles the resulting models.Event.
type EventLogHandlerRouter struct {
	logHandlers map[common.Hash]LogHandlerFunc
	eventNames  map[common.Hash]string
}

// New creates a new, empty event router.
func New() *EventLogHandlerRouter {
	return &EventLogHandlerRouter{
		logHandlers: make(map[common.Hash]LogHandlerFunc),
		eventNames:  make(map[common.Hash]string),
	}
}

// RegisterLogHandler registers a handler for a specific event signature.
func (r *EventLogHandlerRouter) RegisterLogHandler(eventSignature common.Hash, eventName string, handler LogHandlerFunc) {
	r.logHandlers[eventSignature] = handler
	r.eventNames[eventSignature] = eventName
}

// RouteLog routes a single log to its registered handler and returns the
// assembled event. A log with no topics, or no handler registered for its
// signature, yields (nil, nil): not every log a stream carries is one this
// router understands.
func (r *EventLogHandlerRouter) RouteLog(ctx context.Context, log types.Log, blockTimestamp uint64, blockHash string) (*models.Event, error) {
	if len(log.Topics) == 0 {
		return nil, nil
	}

	eventSig := log.Topics[0]
	handler, exists := r.logHandlers[eventSig]
	if !exists {
		return nil, nil
	}

	payload, err := handler(ctx, log, blockTimestamp)
	if err != nil {
		return nil, fmt.Errorf("handler failed for event %s: %w", eventSig.Hex(), err)
	}

	event := models.Event{
		Block:        log.BlockNumber,
		BlockHash:    blockHash,
		TxHash:       log.TxHash.Hex(),
		TxIndex:      log.TxIndex,
		LogIndex:     log.Index,
		ContractAddr: log.Address.Hex(),
		EventName:    r.eventNames[eventSig],
		EventSig:     eventSig.Hex(),
		Timestamp:    blockTimestamp,
		Success:      !log.Removed,
		Payload:      payload,
	}
	return &event, nil
}

// RouteLogs routes multiple logs, in order, collecting every event a
// handler produced. A log without a matching handler is skipped rather
// than aborting the batch.
func (r *EventLogHandlerRouter) RouteLogs(ctx context.Context, logs []types.Log, blockTimestamp uint64, blockHash string) ([]models.Event, error) {
	events := make([]models.Event, 0, len(logs))
	for _, log := range logs {
		event, err := r.RouteLog(ctx, log, blockTimestamp, blockHash)
		if err != nil {
			return nil, err
		}
		if event != nil {
			events = append(events, *event)
		}
	}
	return events, nil
}

// HasHandler checks if a handler is registered for the given event signature.
func (r *EventLogHandlerRouter) HasHandler(eventSignature common.Hash) bool {
	_, exists := r.logHandlers[eventSignature]
	return exists
}

// HandlerCount returns the number of registered handlers.
func (r *EventLogHandlerRouter) HandlerCount() int {
	return len(r.logHandlers)
}
