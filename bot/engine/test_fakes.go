package engine

import (
	"context"
	"math/big"

	"plutusbot/bot/session"
)

type fakeCatalog struct {
	fetchFn func(ctx context.Context) ([]session.Market, error)
	calls   int
}

func (f *fakeCatalog) FetchMarkets(ctx context.Context) ([]session.Market, error) {
	f.calls++
	if f.fetchFn != nil {
		return f.fetchFn(ctx)
	}
	return nil, nil
}

type fakeBuilder struct {
	buildFn func(ctx context.Context, action session.Action, market session.Market, amount float64, wallet string) (*session.Payload, error)
	calls   int
}

func (f *fakeBuilder) BuildPayload(ctx context.Context, action session.Action, market session.Market, amount float64, wallet string) (*session.Payload, error) {
	f.calls++
	if f.buildFn != nil {
		return f.buildFn(ctx, action, market, amount, wallet)
	}
	return &session.Payload{
		ID:            "payload-1",
		Action:        action,
		MarketID:      market.ID,
		CoinAddress:   market.CoinAddress,
		Amount:        amount,
		WalletAddress: wallet,
		Body:          []byte(`{"to":"0x1111111111111111111111111111111111111111"}`),
	}, nil
}

type fakeSubmitter struct {
	submitFn func(ctx context.Context, payload *session.Payload) (string, error)
	calls    int
}

func (f *fakeSubmitter) Submit(ctx context.Context, payload *session.Payload) (string, error) {
	f.calls++
	if f.submitFn != nil {
		return f.submitFn(ctx, payload)
	}
	return "0x123", nil
}

type fakeBalances struct {
	balanceFn func(ctx context.Context, address string) (*big.Int, error)
}

func (f *fakeBalances) Balance(ctx context.Context, address string) (*big.Int, error) {
	if f.balanceFn != nil {
		return f.balanceFn(ctx, address)
	}
	return big.NewInt(0), nil
}
