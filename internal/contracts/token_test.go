package contracts

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type fakeCaller struct {
	calls   int
	failFor map[string]bool
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	parsed, err := erc20ABIInstance()
	if err != nil {
		return nil, err
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	if f.failFor[method.Name] {
		return nil, errors.New("execution reverted")
	}
	switch method.Name {
	case "decimals":
		return method.Outputs.Pack(uint8(18))
	case "symbol":
		return method.Outputs.Pack("USDCx")
	default:
		return method.Outputs.Pack("Super USD Coin")
	}
}

func TestTokenResolverCaches(t *testing.T) {
	caller := &fakeCaller{}
	resolver := NewTokenResolver(caller, zap.NewNop())
	token := "0x42bb40bF79730451B11f6De1CbA222F17b87Afd7"

	meta, err := resolver.TokenMeta(context.Background(), token)
	if err != nil {
		t.Fatalf("token meta: %v", err)
	}
	if meta.Decimals != 18 || meta.Symbol != "USDCx" || meta.Name != "Super USD Coin" {
		t.Fatalf("meta mismatch: %+v", meta)
	}
	if meta.Address != lowerHex(common.HexToAddress(token)) {
		t.Fatalf("address mismatch: %s", meta.Address)
	}

	calls := caller.calls
	if _, err := resolver.TokenMeta(context.Background(), token); err != nil {
		t.Fatalf("cached token meta: %v", err)
	}
	if caller.calls != calls {
		t.Fatalf("expected cached lookup, calls %d -> %d", calls, caller.calls)
	}
}

func TestFetchTokenMetaOptionalFields(t *testing.T) {
	caller := &fakeCaller{failFor: map[string]bool{"symbol": true, "name": true}}
	meta, err := FetchTokenMeta(context.Background(), caller, common.HexToAddress("0x01"), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Symbol != "" || meta.Name != "" || meta.Decimals != 18 {
		t.Fatalf("meta mismatch: %+v", meta)
	}

	caller = &fakeCaller{failFor: map[string]bool{"decimals": true}}
	if _, err := FetchTokenMeta(context.Background(), caller, common.HexToAddress("0x01"), zap.NewNop()); err == nil {
		t.Fatalf("expected error when decimals fails")
	}
}

func TestTokenResolverInvalidAddress(t *testing.T) {
	resolver := NewTokenResolver(&fakeCaller{}, nil)
	if _, err := resolver.TokenMeta(context.Background(), "not-an-address"); err == nil {
		t.Fatalf("expected error for invalid address")
	}
}
