package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

// BlockchainClient reads time from the head of an EVM chain. It implements
// core.Clock with the latest block timestamp, which never decreases.
type BlockchainClient struct {
	client *ethclient.Client
}

func NewBlockchainClient(ethURL string) (*BlockchainClient, error) {
	client, err := ethclient.Dial(ethURL)
	if err != nil {
		return nil, err
	}
	return &BlockchainClient{client: client}, nil
}

func NewBlockchainClientFromRPC(c *rpc.Client) *BlockchainClient {
	return &BlockchainClient{client: ethclient.NewClient(c)}
}

func (bc *BlockchainClient) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	return bc.client.BlockNumber(ctx)
}

// Now returns the timestamp of the latest block header.
func (bc *BlockchainClient) Now(ctx context.Context) (uint64, error) {
	header, err := bc.client.HeaderByNumber(ctx, nil)
	if err != nil {
		logrus.Errorf("HeaderByNumber latest err: %v", err)
		return 0, err
	}
	return header.Time, nil
}

func (bc *BlockchainClient) Close() {
	bc.client.Close()
}
