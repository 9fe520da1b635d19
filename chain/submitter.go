// Package chain owns the custodial signing key and the serialized path from a
// staged payload to a broadcast transaction.
package chain

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"plutusbot/bot/session"
	"plutusbot/observability"
)

const (
	defaultGasLimit      = 400_000
	defaultSubmitTimeout = 2 * time.Minute
)

// EVMClient is the subset of the Ethereum RPC the submitter depends on.
type EVMClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Submitter signs and broadcasts payloads with a single custodial account. The
// account has one nonce sequence on-chain, so the nonce-fetch, build, sign, and
// broadcast steps are guarded by one global exclusive section; waiting for
// confirmations happens outside it.
type Submitter struct {
	client        EVMClient
	key           *ecdsa.PrivateKey
	from          common.Address
	chainID       *big.Int
	confirmations uint64
	pollInterval  time.Duration
	submitTimeout time.Duration
	logger        *slog.Logger
	metrics       *observability.SubmitterMetrics

	// submitMu serializes build+sign+broadcast across all chats.
	submitMu sync.Mutex
}

// SubmitterOption customises the submitter.
type SubmitterOption func(*Submitter)

// WithConfirmations sets how many blocks must elapse before a submission is
// reported final. Zero means broadcast acceptance is enough.
func WithConfirmations(n uint64) SubmitterOption {
	return func(s *Submitter) { s.confirmations = n }
}

// WithPollInterval sets the receipt polling cadence.
func WithPollInterval(interval time.Duration) SubmitterOption {
	return func(s *Submitter) { s.pollInterval = interval }
}

// WithSubmitTimeout bounds a whole submission, from nonce fetch through the
// confirmation wait. An unresponsive node must never pin a chat forever, nor
// hold the broadcast lock against every other user.
func WithSubmitTimeout(timeout time.Duration) SubmitterOption {
	return func(s *Submitter) {
		if timeout > 0 {
			s.submitTimeout = timeout
		}
	}
}

// WithLogger configures the submitter logger.
func WithLogger(logger *slog.Logger) SubmitterOption {
	return func(s *Submitter) { s.logger = logger }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *observability.SubmitterMetrics) SubmitterOption {
	return func(s *Submitter) { s.metrics = m }
}

// NewSubmitter constructs a submitter for the custodial account behind key.
func NewSubmitter(client EVMClient, key *ecdsa.PrivateKey, chainID *big.Int, opts ...SubmitterOption) (*Submitter, error) {
	if client == nil {
		return nil, fmt.Errorf("chain: client required")
	}
	if key == nil {
		return nil, fmt.Errorf("chain: signer key required")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain: chain id required")
	}
	s := &Submitter{
		client:        client,
		key:           key,
		from:          crypto.PubkeyToAddress(key.PublicKey),
		chainID:       new(big.Int).Set(chainID),
		pollInterval:  2 * time.Second,
		submitTimeout: defaultSubmitTimeout,
		logger:        slog.Default(),
		metrics:       observability.Submitter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// From returns the custodial account address.
func (s *Submitter) From() common.Address { return s.from }

// txBody is the chain-specific shape the payload builder produces for EVM
// targets.
type txBody struct {
	To       string `json:"to"`
	Data     string `json:"data,omitempty"`
	Value    string `json:"value,omitempty"`
	GasLimit uint64 `json:"gasLimit,omitempty"`
}

// Submit builds, signs, and broadcasts the payload, then waits for the
// configured confirmations. It returns the transaction hash.
func (s *Submitter) Submit(ctx context.Context, payload *session.Payload) (string, error) {
	if payload == nil || len(payload.Body) == 0 {
		return "", fmt.Errorf("chain: payload required")
	}
	var body txBody
	if err := json.Unmarshal(payload.Body, &body); err != nil {
		return "", fmt.Errorf("chain: decode payload %s: %w", payload.ID, err)
	}
	if !common.IsHexAddress(strings.TrimSpace(body.To)) {
		return "", fmt.Errorf("chain: payload %s has no destination", payload.ID)
	}

	if s.submitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.submitTimeout)
		defer cancel()
	}

	txHash, err := s.broadcast(ctx, payload.ID, body)
	if err != nil {
		return "", err
	}

	if err := s.awaitConfirmations(ctx, txHash); err != nil {
		return "", err
	}
	return txHash.Hex(), nil
}

// broadcast runs the exclusive section: the next nonce must not be fetched
// until the previous broadcast has consumed its own.
func (s *Submitter) broadcast(ctx context.Context, payloadID string, body txBody) (common.Hash, error) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	start := time.Now()
	fail := func(stage string, err error) (common.Hash, error) {
		s.metrics.RecordSubmission(stage+"_error", time.Since(start))
		return common.Hash{}, fmt.Errorf("chain: %s: %w", stage, err)
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return fail("fetch nonce", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return fail("suggest gas price", err)
	}

	value := new(big.Int)
	if trimmed := strings.TrimSpace(body.Value); trimmed != "" {
		parsed, err := parseQuantity(trimmed)
		if err != nil {
			return fail("parse value", err)
		}
		value = parsed
	}
	var data []byte
	if trimmed := strings.TrimSpace(body.Data); trimmed != "" {
		decoded, err := hexutil.Decode(trimmed)
		if err != nil {
			return fail("decode calldata", err)
		}
		data = decoded
	}
	gasLimit := body.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}

	to := common.HexToAddress(body.To)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return fail("sign", err)
	}
	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return fail("broadcast", err)
	}

	s.metrics.RecordSubmission("broadcast", time.Since(start))
	s.logger.Info("transaction broadcast",
		"payload_id", payloadID,
		"tx_hash", signed.Hash().Hex(),
		"nonce", nonce,
	)
	return signed.Hash(), nil
}

// awaitConfirmations polls for the receipt and then for the configured block
// depth. Runs outside the exclusive section: once the nonce is consumed the
// next submission may proceed.
func (s *Submitter) awaitConfirmations(ctx context.Context, txHash common.Hash) error {
	interval := s.pollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("chain: transaction %s reverted", txHash.Hex())
			}
			if s.confirmations == 0 {
				return nil
			}
			confirmed, err := s.confirmedDepth(ctx, receipt)
			if err != nil {
				return err
			}
			if confirmed >= s.confirmations {
				return nil
			}
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return fmt.Errorf("chain: fetch receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("chain: await confirmations: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Submitter) confirmedDepth(ctx context.Context, receipt *types.Receipt) (uint64, error) {
	header, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("chain: fetch head: %w", err)
	}
	if header == nil || header.Number == nil || receipt.BlockNumber == nil {
		return 0, fmt.Errorf("chain: block metadata unavailable")
	}
	if header.Number.Cmp(receipt.BlockNumber) < 0 {
		return 0, nil
	}
	depth := new(big.Int).Sub(header.Number, receipt.BlockNumber)
	depth.Add(depth, big.NewInt(1))
	if !depth.IsUint64() {
		return ^uint64(0), nil
	}
	return depth.Uint64(), nil
}

// Balance returns the current balance of an address.
func (s *Submitter) Balance(ctx context.Context, address string) (*big.Int, error) {
	trimmed := strings.TrimSpace(address)
	if !common.IsHexAddress(trimmed) {
		return nil, fmt.Errorf("chain: invalid address %q", trimmed)
	}
	balance, err := s.client.BalanceAt(ctx, common.HexToAddress(trimmed), nil)
	if err != nil {
		return nil, fmt.Errorf("chain: fetch balance: %w", err)
	}
	return balance, nil
}

func parseQuantity(raw string) (*big.Int, error) {
	if strings.HasPrefix(raw, "0x") {
		return hexutil.DecodeBig(raw)
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid quantity %q", raw)
	}
	return value, nil
}
