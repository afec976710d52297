package polymarket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/0xkanth/polymarket-indexer/internal/handler"
	"github.com/0xkanth/polymarket-indexer/pkg/stream"
)

func encodeTx(t *testing.T, logs []types.Log, blockHash string) []byte {
	t.Helper()
	b, err := json.Marshal(txLog{Logs: logs, BlockHash: blockHash})
	require.NoError(t, err)
	return b
}

func TestDecodeStep_DecodesKnownEvent(t *testing.T) {
	step := NewDecodeStep(zerolog.Nop())

	log := types.Log{
		Address:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics:      []common.Hash{handler.OrderCancelledSig, common.HexToHash("0xabc")},
		BlockNumber: 42,
		TxHash:      common.HexToHash("0xdeadbeef"),
		Index:       3,
	}

	tx := stream.Transaction{
		Version:   7,
		Data:      encodeTx(t, []types.Log{log}, "0xblockhash"),
		Timestamp: time.Unix(1000, 0),
	}
	batch := stream.Batch[[]stream.Transaction]{
		Data:         []stream.Transaction{tx},
		StartVersion: 7,
		EndVersion:   7,
	}

	out, err := step.Process(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, out.Data, 1)
	require.Equal(t, "OrderCancelled", out.Data[0].EventName)
	require.Equal(t, uint64(7), out.StartVersion)
	require.Equal(t, uint64(7), out.EndVersion)
}

func TestDecodeStep_SkipsLogsWithoutHandler(t *testing.T) {
	step := NewDecodeStep(zerolog.Nop())

	log := types.Log{
		Topics: []common.Hash{common.HexToHash("0xnotregistered")},
	}
	tx := stream.Transaction{
		Version: 1,
		Data:    encodeTx(t, []types.Log{log}, "0xblockhash"),
	}
	batch := stream.Batch[[]stream.Transaction]{Data: []stream.Transaction{tx}, StartVersion: 1, EndVersion: 1}

	out, err := step.Process(context.Background(), batch)
	require.NoError(t, err)
	require.Empty(t, out.Data)
}

func TestDecodeStep_EmptyPayloadSkipped(t *testing.T) {
	step := NewDecodeStep(zerolog.Nop())

	tx := stream.Transaction{Version: 1}
	batch := stream.Batch[[]stream.Transaction]{Data: []stream.Transaction{tx}, StartVersion: 1, EndVersion: 1}

	out, err := step.Process(context.Background(), batch)
	require.NoError(t, err)
	require.Empty(t, out.Data)
}
