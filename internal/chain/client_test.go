package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

// fakeEth serves the eth_ namespace methods the client calls.
type fakeEth struct {
	chainID *big.Int
	tx      *types.Transaction
	receipt *types.Receipt
}

func (f *fakeEth) ChainId() (*hexutil.Big, error) {
	return (*hexutil.Big)(f.chainID), nil
}

func (f *fakeEth) GetTransactionByHash(hash common.Hash) (*types.Transaction, error) {
	if f.tx == nil || f.tx.Hash() != hash {
		return nil, nil
	}
	return f.tx, nil
}

func (f *fakeEth) GetTransactionReceipt(hash common.Hash) (*types.Receipt, error) {
	if f.receipt == nil || f.receipt.TxHash != hash {
		return nil, nil
	}
	return f.receipt, nil
}

func newTestClient(t *testing.T, svc *fakeEth) *Client {
	t.Helper()
	server := rpc.NewServer()
	if err := server.RegisterName("eth", svc); err != nil {
		t.Fatalf("register service: %v", err)
	}
	client := newClient(rpc.DialInProc(server))
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return client
}

func signedTx(t *testing.T, chainID *big.Int, feeCap *big.Int) *types.Transaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(chainID), &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     1,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: feeCap,
		Gas:       100_000,
		To:        &to,
		Value:     big.NewInt(0),
	})
	if err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	return tx
}

func TestTransactionGasPriceIgnoresReceipt(t *testing.T) {
	chainID := big.NewInt(56)
	feeCap := big.NewInt(50_000_000_000)
	tx := signedTx(t, chainID, feeCap)
	svc := &fakeEth{chainID: chainID, tx: tx}
	client := newTestClient(t, svc)
	ctx := context.Background()

	withoutReceipt, err := client.TransactionGas(ctx, tx.Hash())
	if err != nil {
		t.Fatalf("gas without receipt: %v", err)
	}
	if withoutReceipt.Price == nil || withoutReceipt.Price.Cmp(feeCap) != 0 {
		t.Fatalf("expected price %s, got %v", feeCap, withoutReceipt.Price)
	}
	if withoutReceipt.Used != nil {
		t.Fatalf("expected nil gas used without receipt, got %s", withoutReceipt.Used)
	}

	svc.receipt = &types.Receipt{
		Type:              types.DynamicFeeTxType,
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: 21_000,
		Logs:              []*types.Log{},
		TxHash:            tx.Hash(),
		GasUsed:           21_000,
		EffectiveGasPrice: big.NewInt(31_000_000_000),
		BlockNumber:       big.NewInt(10),
	}

	withReceipt, err := client.TransactionGas(ctx, tx.Hash())
	if err != nil {
		t.Fatalf("gas with receipt: %v", err)
	}
	if withReceipt.Price.Cmp(withoutReceipt.Price) != 0 {
		t.Fatalf("price changed with receipt: %s vs %s", withReceipt.Price, withoutReceipt.Price)
	}
	if withReceipt.Used == nil || withReceipt.Used.Uint64() != 21_000 {
		t.Fatalf("expected gas used 21000, got %v", withReceipt.Used)
	}

	svc.tx = nil
	svc.receipt = nil
	cached, err := client.TransactionGas(ctx, tx.Hash())
	if err != nil {
		t.Fatalf("cached gas: %v", err)
	}
	if cached.Price.Cmp(feeCap) != 0 || cached.Used == nil || cached.Used.Uint64() != 21_000 {
		t.Fatalf("expected cached result, got %+v", cached)
	}
}

func TestTransactionGasMissingTransaction(t *testing.T) {
	client := newTestClient(t, &fakeEth{chainID: big.NewInt(56)})

	if _, err := client.TransactionGas(context.Background(), common.HexToHash("0x01")); err == nil {
		t.Fatalf("expected error for unknown transaction")
	}
}

func TestGetChainID(t *testing.T) {
	client := newTestClient(t, &fakeEth{chainID: big.NewInt(56)})

	id, err := client.GetChainID(context.Background())
	if err != nil {
		t.Fatalf("chain id: %v", err)
	}
	if id.Uint64() != 56 {
		t.Fatalf("expected chain id 56, got %s", id)
	}
}
