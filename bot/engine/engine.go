package engine

import (
	"context"
	"log/slog"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"plutusbot/bot/session"
	"plutusbot/observability"
)

// MarketCatalog fetches the list of tradable markets.
type MarketCatalog interface {
	FetchMarkets(ctx context.Context) ([]session.Market, error)
}

// PayloadBuilder requests a chain-specific transaction payload for an action.
type PayloadBuilder interface {
	BuildPayload(ctx context.Context, action session.Action, market session.Market, amount float64, wallet string) (*session.Payload, error)
}

// ChainSubmitter signs and broadcasts a payload with the custodial key and
// returns the transaction hash.
type ChainSubmitter interface {
	Submit(ctx context.Context, payload *session.Payload) (string, error)
}

// BalanceReader fetches the on-chain balance for an address.
type BalanceReader interface {
	Balance(ctx context.Context, address string) (*big.Int, error)
}

// Engine is the per-chat conversational state machine. It validates each user
// event against the current session state, orchestrates the upstream clients,
// and produces a structured outcome for the presenter.
type Engine struct {
	sessions  *session.Store
	catalog   MarketCatalog
	payloads  PayloadBuilder
	submitter ChainSubmitter
	balances  BalanceReader
	logger    *slog.Logger
	metrics   *observability.BotMetrics
}

// Option customises the engine.
type Option func(*Engine)

// WithLogger configures the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithBalanceReader enables the balance display flow.
func WithBalanceReader(r BalanceReader) Option {
	return func(e *Engine) { e.balances = r }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *observability.BotMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New constructs a conversation engine over the given session store and clients.
func New(sessions *session.Store, catalog MarketCatalog, payloads PayloadBuilder, submitter ChainSubmitter, opts ...Option) *Engine {
	e := &Engine{
		sessions:  sessions,
		catalog:   catalog,
		payloads:  payloads,
		submitter: submitter,
		logger:    slog.Default(),
		metrics:   observability.Bot(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleEvent processes one user event inside the chat's exclusive section.
// User-facing failures are reported through the outcome; the returned error is
// reserved for infrastructure problems such as a cancelled context.
func (e *Engine) HandleEvent(ctx context.Context, chatID int64, ev Event) (Outcome, error) {
	var out Outcome
	err := e.sessions.WithLock(ctx, chatID, func(sess *session.Session) error {
		out = e.handle(ctx, chatID, sess, ev)
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	e.metrics.RecordEvent(string(ev.Type), string(out.Kind))
	if out.Kind == OutcomeError {
		e.metrics.RecordError(string(out.ErrKind))
	}
	return out, nil
}

func (e *Engine) handle(ctx context.Context, chatID int64, sess *session.Session, ev Event) Outcome {
	switch ev.Type {
	case EventRequestMenu:
		return e.handleMenu(sess)
	case EventRequestHelp:
		return helpOutcome()
	case EventRequestWalletLink:
		return e.handleWalletLink(sess)
	case EventSubmitWalletAddress:
		return e.handleWalletAddress(sess, ev.Text)
	case EventRequestMarkets:
		return e.handleMarkets(ctx, chatID, sess, ev)
	case EventSelectMarket:
		return e.handleSelectMarket(sess, ev)
	case EventSubmitAmount:
		return e.handleAmount(ctx, chatID, sess, ev.Text)
	case EventSubmitText:
		if sess.State == session.StateConnectingWallet {
			return e.handleWalletAddress(sess, ev.Text)
		}
		return e.handleAmount(ctx, chatID, sess, ev.Text)
	case EventConfirm:
		return e.handleConfirm(ctx, chatID, sess)
	case EventCancel:
		return e.handleCancel(sess)
	case EventRequestBalance:
		return e.handleBalance(ctx, sess)
	}
	e.logger.Warn("unknown event", "chat_id", chatID, "event", ev.Type)
	return errorOutcome(KindValidation, "unknown action")
}

// handleMenu always converges to idle. The wallet link and cached market list
// survive; everything transaction-scoped is discarded.
func (e *Engine) handleMenu(sess *session.Session) Outcome {
	sess.State = session.StateIdle
	sess.ClearPending()
	return menuOutcome()
}

func (e *Engine) handleWalletLink(sess *session.Session) Outcome {
	sess.State = session.StateConnectingWallet
	sess.ClearPending()
	return promptWalletOutcome()
}

func (e *Engine) handleWalletAddress(sess *session.Session, text string) Outcome {
	if sess.State != session.StateConnectingWallet {
		// Stray free text outside the linking step is ignored, matching the
		// retry-in-place policy for typed input.
		return Outcome{Kind: OutcomeNone}
	}
	address := strings.TrimSpace(text)
	if !validAddress(address) {
		// Stay in ConnectingWallet so the user can retry in place.
		return errorOutcome(KindValidation, "that does not look like a wallet address")
	}
	sess.WalletAddress = address
	sess.State = session.StateIdle
	return menuOutcome()
}

func (e *Engine) handleMarkets(ctx context.Context, chatID int64, sess *session.Session, ev Event) Outcome {
	// A markets request abandons any in-progress flow first, so the invariant
	// set (no payload without a matching selection) holds regardless of the
	// state the button arrived in.
	sess.State = session.StateIdle
	sess.ClearPending()

	if ev.HasAction {
		if !ev.Action.Valid() {
			return errorOutcome(KindValidation, "unknown action")
		}
		if sess.WalletAddress == "" {
			// Acting on a market requires a linked wallet; browsing does not.
			sess.State = session.StateConnectingWallet
			return errorOutcome(KindNotConnected, "link a wallet before trading")
		}
	}

	markets, err := e.catalog.FetchMarkets(ctx)
	if err != nil {
		e.logger.Error("market catalog fetch failed", "chat_id", chatID, "error", err)
		sess.State = session.StateIdle
		return errorOutcome(KindUpstream, "could not fetch markets")
	}
	sess.AvailableMarkets = markets
	sess.State = session.StateBrowsingMarkets
	if ev.HasAction {
		sess.Action = ev.Action
	}
	return marketsOutcome(markets, sess.Action, ev.HasAction)
}

func (e *Engine) handleSelectMarket(sess *session.Session, ev Event) Outcome {
	if sess.State != session.StateBrowsingMarkets {
		return errorOutcome(KindValidation, "pick a market from the latest list")
	}
	if ev.MarketIndex < 0 || ev.MarketIndex >= len(sess.AvailableMarkets) {
		// A stale index from an old menu; the cached list stays presented.
		return errorOutcome(KindValidation, "that market is no longer listed")
	}
	action := sess.Action
	if ev.HasAction {
		action = ev.Action
	}
	if !action.Valid() {
		return errorOutcome(KindValidation, "choose an action first")
	}
	if sess.WalletAddress == "" {
		sess.State = session.StateConnectingWallet
		sess.ClearPending()
		return errorOutcome(KindNotConnected, "link a wallet before trading")
	}
	sess.SelectMarket(sess.AvailableMarkets[ev.MarketIndex], action)
	sess.State = session.StateAwaitingAmount
	return promptAmountOutcome(action, sess.SelectedMarket)
}

func (e *Engine) handleAmount(ctx context.Context, chatID int64, sess *session.Session, text string) Outcome {
	if sess.State != session.StateAwaitingAmount {
		return Outcome{Kind: OutcomeNone}
	}
	amount, err := parseAmount(text)
	if err != nil {
		// State unchanged, the user retries in place.
		return errorOutcome(KindValidation, "enter a positive number")
	}
	market := sess.SelectedMarket
	if market == nil {
		sess.State = session.StateIdle
		sess.ClearPending()
		return errorOutcome(KindValidation, "market selection lost, start over")
	}
	payload, err := e.payloads.BuildPayload(ctx, sess.Action, *market, amount, sess.WalletAddress)
	if err != nil {
		e.logger.Error("payload build failed", "chat_id", chatID, "action", sess.Action, "market", market.ID, "error", err)
		// Retryable: the user may resend the amount.
		return errorOutcome(KindUpstream, "could not prepare the transaction, try again")
	}
	sess.SetAmount(amount)
	sess.PendingPayload = payload
	sess.State = session.StateAwaitingConfirmation
	return confirmationOutcome(sess.Action, market, amount, payload)
}

func (e *Engine) handleConfirm(ctx context.Context, chatID int64, sess *session.Session) Outcome {
	if sess.State != session.StateAwaitingConfirmation || sess.PendingPayload == nil {
		sess.State = session.StateIdle
		sess.ClearPending()
		return errorOutcome(KindValidation, "nothing awaiting confirmation")
	}
	payload := sess.PendingPayload
	if !payload.Matches(sess.Action, sess.SelectedMarket, sess.PendingAmount, sess.WalletAddress) {
		// The staged payload no longer reflects the session; it must not reach
		// the chain.
		sess.State = session.StateIdle
		sess.ClearPending()
		e.logger.Warn("stale payload at confirmation", "chat_id", chatID, "payload_id", payload.ID)
		return errorOutcome(KindValidation, "transaction details changed, start over")
	}
	txHash, err := e.submitter.Submit(ctx, payload)
	// Regardless of the result the flow is over: a failed custodial submission
	// is never retried with the same payload.
	sess.State = session.StateIdle
	sess.ClearPending()
	if err != nil {
		e.logger.Error("chain submission failed", "chat_id", chatID, "payload_id", payload.ID, "error", err)
		return errorOutcome(KindChain, "transaction failed, start over from market selection")
	}
	e.logger.Info("transaction submitted", "chat_id", chatID, "payload_id", payload.ID, "tx_hash", txHash)
	return successOutcome(txHash)
}

func (e *Engine) handleCancel(sess *session.Session) Outcome {
	sess.State = session.StateIdle
	sess.ClearPending()
	return menuOutcome()
}

func (e *Engine) handleBalance(ctx context.Context, sess *session.Session) Outcome {
	if e.balances == nil {
		return errorOutcome(KindValidation, "balance lookup is not available")
	}
	if sess.WalletAddress == "" {
		sess.State = session.StateConnectingWallet
		sess.ClearPending()
		return errorOutcome(KindNotConnected, "link a wallet first")
	}
	balance, err := e.balances.Balance(ctx, sess.WalletAddress)
	if err != nil {
		e.logger.Error("balance fetch failed", "wallet", sess.WalletAddress, "error", err)
		return errorOutcome(KindUpstream, "could not fetch balance")
	}
	return balanceOutcome(sess.WalletAddress, balance)
}

// parseAmount accepts a strictly positive finite decimal.
func parseAmount(text string) (float64, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	amount, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return amount, nil
}

// validAddress applies a minimal shape check: a canonical hex address passes
// outright, anything else must be a single reasonably long 0x token. Full
// validation belongs to the chain, not the chat flow.
func validAddress(address string) bool {
	if common.IsHexAddress(address) {
		return true
	}
	if len(address) < 10 || len(address) > 128 {
		return false
	}
	if !strings.HasPrefix(address, "0x") {
		return false
	}
	return !strings.ContainsAny(address, " \t\r\n")
}
