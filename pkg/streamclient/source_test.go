package streamclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/0xkanth/polymarket-indexer/pkg/mockstream"
	"github.com/0xkanth/polymarket-indexer/pkg/upstreamrpc"
)

func startMock(t *testing.T, responses []upstreamrpc.TransactionsResponse) upstreamrpc.RawDataClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	srv := mockstream.New(responses, 1, zerolog.Nop())
	port, stop, err := mockstream.Run(ctx, srv)
	require.NoError(t, err)
	t.Cleanup(stop)

	conn, err := grpc.NewClient(
		fmt.Sprintf("127.0.0.1:%d", port),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.UseCompressor(upstreamrpc.ZstdName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return upstreamrpc.NewRawDataClient(conn)
}

func TestSource_PollForwardsBatches(t *testing.T) {
	responses := []upstreamrpc.TransactionsResponse{
		{Transactions: []upstreamrpc.Transaction{{Version: 0, Payload: []byte("a")}, {Version: 1, Payload: []byte("b")}}},
	}
	client := startMock(t, responses)

	ending := uint64(1)
	count := uint64(2)
	src := New(client, 0, &ending, &count, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		batches, err := src.Poll(ctx)
		require.NoError(t, err)
		if len(batches) > 0 {
			require.Len(t, batches[0].Data, 2)
			require.Equal(t, uint64(0), batches[0].StartVersion)
			require.Equal(t, uint64(1), batches[0].EndVersion)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a batch from Source.Poll")
}

func TestSource_SignalsCompleteAtEndingVersion(t *testing.T) {
	responses := []upstreamrpc.TransactionsResponse{
		{Transactions: []upstreamrpc.Transaction{{Payload: []byte("a")}}},
	}
	client := startMock(t, responses)

	ending := uint64(0)
	src := New(client, 0, &ending, nil, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_, err := src.Poll(ctx)
		if err != nil {
			require.ErrorIs(t, err, ErrStreamComplete)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for ErrStreamComplete")
}
