package mockstream

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/0xkanth/polymarket-indexer/pkg/upstreamrpc"
)

func startServer(t *testing.T, srv *Server) upstreamrpc.RawDataClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	port, stop, err := Run(ctx, srv)
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

func TestServer_FiltersByStartingVersionKeepingOriginalData(t *testing.T) {
	responses := []upstreamrpc.TransactionsResponse{
		{Transactions: []upstreamrpc.Transaction{
			{Version: 5, Payload: []byte("five")},
			{Version: 6, Payload: []byte("six")},
			{Version: 7, Payload: []byte("seven")},
			{Version: 8, Payload: []byte("eight")},
			{Version: 9, Payload: []byte("nine")},
		}},
	}
	client := startServer(t, New(responses, 4, zerolog.Nop()))

	count := uint64(2)
	stream, err := client.GetTransactions(context.Background(), &upstreamrpc.GetTransactionsRequest{
		StartingVersion:   7,
		TransactionsCount: &count,
	})
	require.NoError(t, err)

	resp, err := stream.Recv()
	require.NoError(t, err)
	require.Len(t, resp.Transactions, 2)
	require.Equal(t, uint64(7), resp.Transactions[0].Version)
	require.Equal(t, []byte("seven"), resp.Transactions[0].Payload)
	require.Equal(t, uint64(8), resp.Transactions[1].Version)
	require.Equal(t, []byte("eight"), resp.Transactions[1].Payload)
	require.Equal(t, uint64(4), resp.ChainID)
}

func TestServer_DefaultsTransactionsCountToOne(t *testing.T) {
	responses := []upstreamrpc.TransactionsResponse{
		{Transactions: []upstreamrpc.Transaction{{Version: 0}, {Version: 1}, {Version: 2}}},
	}
	client := startServer(t, New(responses, 1, zerolog.Nop()))

	stream, err := client.GetTransactions(context.Background(), &upstreamrpc.GetTransactionsRequest{StartingVersion: 0})
	require.NoError(t, err)

	resp, err := stream.Recv()
	require.NoError(t, err)
	require.Len(t, resp.Transactions, 1)
	require.Equal(t, uint64(0), resp.Transactions[0].Version)
}

func TestServer_RespectsTransactionsCount(t *testing.T) {
	responses := []upstreamrpc.TransactionsResponse{
		{Transactions: []upstreamrpc.Transaction{{Version: 0}, {Version: 1}, {Version: 2}, {Version: 3}}},
	}
	client := startServer(t, New(responses, 1, zerolog.Nop()))

	limit := uint64(2)
	stream, err := client.GetTransactions(context.Background(), &upstreamrpc.GetTransactionsRequest{
		StartingVersion:   0,
		TransactionsCount: &limit,
	})
	require.NoError(t, err)

	resp, err := stream.Recv()
	require.NoError(t, err)
	require.Len(t, resp.Transactions, 2)
}

func TestServer_FallsBackWhenNothingCollected(t *testing.T) {
	responses := []upstreamrpc.TransactionsResponse{
		{Transactions: []upstreamrpc.Transaction{}, ChainID: 99},
	}
	client := startServer(t, New(responses, 7, zerolog.Nop()))

	stream, err := client.GetTransactions(context.Background(), &upstreamrpc.GetTransactionsRequest{StartingVersion: 0})
	require.NoError(t, err)

	resp, err := stream.Recv()
	require.NoError(t, err)
	require.Empty(t, resp.Transactions)
	require.Equal(t, uint64(7), resp.ChainID, "fallback response's chain_id is overwritten with the server's own")
}
