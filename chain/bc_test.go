package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

type ethService struct {
	header *types.Header
}

func (s *ethService) GetBlockByNumber(ctx context.Context, number rpc.BlockNumber, full bool) (*types.Header, error) {
	return s.header, nil
}

func (s *ethService) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(s.header.Number.Uint64())
}

func newTestClient(t *testing.T, header *types.Header) *BlockchainClient {
	t.Helper()
	server := rpc.NewServer()
	if err := server.RegisterName("eth", &ethService{header: header}); err != nil {
		t.Fatalf("RegisterName: %v", err)
	}
	client := rpc.DialInProc(server)
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return NewBlockchainClientFromRPC(client)
}

func TestBlockchainClientNow(t *testing.T) {
	bc := newTestClient(t, &types.Header{
		Number:     big.NewInt(42),
		Difficulty: big.NewInt(0),
		Time:       1_700_000_000,
	})

	now, err := bc.Now(context.Background())
	if err != nil {
		t.Fatalf("Now: %v", err)
	}
	if now != 1_700_000_000 {
		t.Errorf("Now = %d, want %d", now, 1_700_000_000)
	}

	n, err := bc.GetLatestBlockNumber(context.Background())
	if err != nil {
		t.Fatalf("GetLatestBlockNumber: %v", err)
	}
	if n != 42 {
		t.Errorf("GetLatestBlockNumber = %d, want 42", n)
	}
}
