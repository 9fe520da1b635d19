package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"plutusbot/bot/session"
)

type fakeEVM struct {
	mu sync.Mutex

	nonce     uint64
	sent      []*types.Transaction
	nonceFn   func(ctx context.Context) (uint64, error)
	receiptFn func(txHash common.Hash) (*types.Receipt, error)
	headFn    func() (*types.Header, error)
	nonceErr  error
	gasErr    error
	sendErr   error
	balance   *big.Int
}

func (f *fakeEVM) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	fn := f.nonceFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nonceErr != nil {
		return 0, f.nonceErr
	}
	return f.nonce, nil
}

func (f *fakeEVM) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if f.gasErr != nil {
		return nil, f.gasErr
	}
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeEVM) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	if tx.Nonce() != f.nonce {
		return fmt.Errorf("nonce gap: got %d, want %d", tx.Nonce(), f.nonce)
	}
	f.nonce++
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeEVM) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if f.receiptFn != nil {
		return f.receiptFn(txHash)
	}
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      txHash,
		BlockNumber: big.NewInt(100),
	}, nil
}

func (f *fakeEVM) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if f.headFn != nil {
		return f.headFn()
	}
	return &types.Header{Number: big.NewInt(100)}, nil
}

func (f *fakeEVM) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if f.balance != nil {
		return new(big.Int).Set(f.balance), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeEVM) sentTxs() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.Transaction(nil), f.sent...)
}

func newTestSubmitter(t *testing.T, client *fakeEVM, opts ...SubmitterOption) *Submitter {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	opts = append([]SubmitterOption{WithPollInterval(time.Millisecond)}, opts...)
	sub, err := NewSubmitter(client, key, big.NewInt(1337), opts...)
	if err != nil {
		t.Fatalf("new submitter: %v", err)
	}
	return sub
}

func testPayload(body string) *session.Payload {
	return &session.Payload{
		ID:            "payload-1",
		Action:        session.ActionSupply,
		MarketID:      "usdc",
		CoinAddress:   "0xaaa",
		Amount:        10,
		WalletAddress: "0xwallet",
		Body:          []byte(body),
	}
}

func TestSubmitBroadcastsSignedTransaction(t *testing.T) {
	t.Parallel()

	client := &fakeEVM{nonce: 7}
	sub := newTestSubmitter(t, client)

	hash, err := sub.Submit(context.Background(), testPayload(
		`{"to":"0x52908400098527886E0F7030069857D2E4169EE7","data":"0xdeadbeef","value":"0x0de0b6b3a7640000","gasLimit":210000}`,
	))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	sent := client.sentTxs()
	if len(sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(sent))
	}
	tx := sent[0]
	if hash != tx.Hash().Hex() {
		t.Fatalf("returned hash %s does not match broadcast tx %s", hash, tx.Hash().Hex())
	}
	if tx.Nonce() != 7 {
		t.Fatalf("nonce = %d, want 7", tx.Nonce())
	}
	if tx.To() == nil || *tx.To() != common.HexToAddress("0x52908400098527886E0F7030069857D2E4169EE7") {
		t.Fatalf("destination = %v", tx.To())
	}
	if want := big.NewInt(1_000_000_000_000_000_000); tx.Value().Cmp(want) != 0 {
		t.Fatalf("value = %s, want %s", tx.Value(), want)
	}
	if len(tx.Data()) != 4 {
		t.Fatalf("calldata = %x", tx.Data())
	}
	if tx.Gas() != 210000 {
		t.Fatalf("gas limit = %d", tx.Gas())
	}
	signer := types.LatestSignerForChainID(big.NewInt(1337))
	from, err := types.Sender(signer, tx)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if from != sub.From() {
		t.Fatalf("sender = %s, want custodial account %s", from.Hex(), sub.From().Hex())
	}
}

func TestSubmitAppliesDefaults(t *testing.T) {
	t.Parallel()

	client := &fakeEVM{}
	sub := newTestSubmitter(t, client)

	if _, err := sub.Submit(context.Background(), testPayload(
		`{"to":"0x52908400098527886E0F7030069857D2E4169EE7","value":"1000"}`,
	)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	tx := client.sentTxs()[0]
	if tx.Gas() != defaultGasLimit {
		t.Fatalf("gas limit = %d, want default %d", tx.Gas(), defaultGasLimit)
	}
	if tx.Value().Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("decimal value = %s", tx.Value())
	}
}

// Concurrent submissions must consume the custodial account's nonce sequence
// without gaps or duplicates. The fake rejects any transaction whose nonce is
// not the next expected one, so interleaved nonce-fetch and broadcast would
// fail the test.
func TestConcurrentSubmissionsSerialized(t *testing.T) {
	t.Parallel()

	client := &fakeEVM{}
	sub := newTestSubmitter(t, client)

	const submissions = 12
	var wg sync.WaitGroup
	errs := make(chan error, submissions)
	for i := 0; i < submissions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sub.Submit(context.Background(), testPayload(
				`{"to":"0x52908400098527886E0F7030069857D2E4169EE7"}`,
			))
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	sent := client.sentTxs()
	if len(sent) != submissions {
		t.Fatalf("sent %d transactions, want %d", len(sent), submissions)
	}
	seen := map[uint64]bool{}
	for _, tx := range sent {
		if seen[tx.Nonce()] {
			t.Fatalf("nonce %d used twice", tx.Nonce())
		}
		seen[tx.Nonce()] = true
	}
}

func TestSubmitRejectsRevertedTransaction(t *testing.T) {
	t.Parallel()

	client := &fakeEVM{receiptFn: func(txHash common.Hash) (*types.Receipt, error) {
		return &types.Receipt{Status: types.ReceiptStatusFailed, TxHash: txHash, BlockNumber: big.NewInt(5)}, nil
	}}
	sub := newTestSubmitter(t, client)

	_, err := sub.Submit(context.Background(), testPayload(`{"to":"0x52908400098527886E0F7030069857D2E4169EE7"}`))
	if err == nil {
		t.Fatal("expected an error for a reverted transaction")
	}
}

func TestSubmitWaitsForConfirmationDepth(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	head := int64(10)
	client := &fakeEVM{
		receiptFn: func(txHash common.Hash) (*types.Receipt, error) {
			return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash, BlockNumber: big.NewInt(10)}, nil
		},
		headFn: func() (*types.Header, error) {
			mu.Lock()
			defer mu.Unlock()
			head++
			return &types.Header{Number: big.NewInt(head)}, nil
		},
	}
	sub := newTestSubmitter(t, client, WithConfirmations(3))

	if _, err := sub.Submit(context.Background(), testPayload(`{"to":"0x52908400098527886E0F7030069857D2E4169EE7"}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if head < 12 {
		t.Fatalf("returned before reaching depth, head advanced to %d", head)
	}
}

// A node that accepts the broadcast but never surfaces a receipt must not pin
// the submission forever; the configured timeout bounds the whole attempt.
func TestSubmitTimesOutWithoutReceipt(t *testing.T) {
	t.Parallel()

	client := &fakeEVM{receiptFn: func(common.Hash) (*types.Receipt, error) {
		return nil, ethereum.NotFound
	}}
	sub := newTestSubmitter(t, client, WithSubmitTimeout(50*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := sub.Submit(context.Background(), testPayload(`{"to":"0x52908400098527886E0F7030069857D2E4169EE7"}`))
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected a timeout error")
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err = %v, want deadline exceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("submit still blocked past its timeout")
	}
}

// The timeout also covers the exclusive section: a hung nonce fetch must
// release the broadcast lock instead of stalling every other submission.
func TestSubmitTimesOutDuringBroadcast(t *testing.T) {
	t.Parallel()

	client := &fakeEVM{nonceFn: func(ctx context.Context) (uint64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}}
	sub := newTestSubmitter(t, client, WithSubmitTimeout(50*time.Millisecond))

	start := make(chan error, 1)
	go func() {
		_, err := sub.Submit(context.Background(), testPayload(`{"to":"0x52908400098527886E0F7030069857D2E4169EE7"}`))
		start <- err
	}()

	select {
	case err := <-start:
		if err == nil {
			t.Fatal("expected a timeout error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hung nonce fetch held the submission open")
	}

	// The lock is free again: a healthy follow-up submission goes through.
	client.mu.Lock()
	client.nonceFn = nil
	client.mu.Unlock()
	if _, err := sub.Submit(context.Background(), testPayload(`{"to":"0x52908400098527886E0F7030069857D2E4169EE7"}`)); err != nil {
		t.Fatalf("follow-up submit: %v", err)
	}
}

func TestSubmitToleratesReceiptLag(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	polls := 0
	client := &fakeEVM{receiptFn: func(txHash common.Hash) (*types.Receipt, error) {
		mu.Lock()
		defer mu.Unlock()
		polls++
		if polls < 3 {
			return nil, ethereum.NotFound
		}
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash, BlockNumber: big.NewInt(1)}, nil
	}}
	sub := newTestSubmitter(t, client)

	if _, err := sub.Submit(context.Background(), testPayload(`{"to":"0x52908400098527886E0F7030069857D2E4169EE7"}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if polls < 3 {
		t.Fatalf("receipt polled %d times", polls)
	}
}

func TestSubmitRejectsMalformedPayloads(t *testing.T) {
	t.Parallel()

	client := &fakeEVM{}
	sub := newTestSubmitter(t, client)
	ctx := context.Background()

	cases := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not json", "not json"},
		{"missing destination", `{"data":"0x00"}`},
		{"bad destination", `{"to":"plutus"}`},
		{"bad value", `{"to":"0x52908400098527886E0F7030069857D2E4169EE7","value":"one eth"}`},
		{"bad calldata", `{"to":"0x52908400098527886E0F7030069857D2E4169EE7","data":"zz"}`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := sub.Submit(ctx, testPayload(tc.body)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
	if len(client.sentTxs()) != 0 {
		t.Fatalf("malformed payloads reached broadcast: %d", len(client.sentTxs()))
	}
}

func TestSubmitNilPayload(t *testing.T) {
	t.Parallel()

	sub := newTestSubmitter(t, &fakeEVM{})
	if _, err := sub.Submit(context.Background(), nil); err == nil {
		t.Fatal("expected an error")
	}
}

func TestBalance(t *testing.T) {
	t.Parallel()

	client := &fakeEVM{balance: big.NewInt(42)}
	sub := newTestSubmitter(t, client)

	balance, err := sub.Balance(context.Background(), "0x52908400098527886E0F7030069857D2E4169EE7")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("balance = %s", balance)
	}

	if _, err := sub.Balance(context.Background(), "not an address"); err == nil {
		t.Fatal("expected an error for a malformed address")
	}
}

func TestNewSubmitterValidation(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if _, err := NewSubmitter(nil, key, big.NewInt(1)); err == nil {
		t.Fatal("expected an error for a nil client")
	}
	if _, err := NewSubmitter(&fakeEVM{}, nil, big.NewInt(1)); err == nil {
		t.Fatal("expected an error for a nil key")
	}
	if _, err := NewSubmitter(&fakeEVM{}, key, nil); err == nil {
		t.Fatal("expected an error for a nil chain id")
	}
}
