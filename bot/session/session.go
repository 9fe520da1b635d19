package session

import "time"

// State identifies where a conversation currently sits in the workflow.
type State string

const (
	// StateIdle indicates the bot is waiting for the next menu action.
	StateIdle State = "idle"
	// StateConnectingWallet indicates the user has been asked for a wallet address.
	StateConnectingWallet State = "connecting_wallet"
	// StateBrowsingMarkets indicates a market list has been presented for selection.
	StateBrowsingMarkets State = "browsing_markets"
	// StateAwaitingAmount indicates a market is selected and an amount is expected.
	StateAwaitingAmount State = "awaiting_amount"
	// StateAwaitingConfirmation indicates a payload is staged and awaits a decision.
	StateAwaitingConfirmation State = "awaiting_confirmation"
)

// Action enumerates the lending operations a user can drive through the bot.
type Action string

const (
	ActionSupply   Action = "supply"
	ActionWithdraw Action = "withdraw"
	ActionBorrow   Action = "borrow"
	ActionRepay    Action = "repay"
)

// Valid reports whether the action is one of the supported lending operations.
func (a Action) Valid() bool {
	switch a {
	case ActionSupply, ActionWithdraw, ActionBorrow, ActionRepay:
		return true
	}
	return false
}

// Market is an immutable snapshot of a tradable market. A fresh catalog fetch
// replaces the whole list held by a session, entries are never patched in place.
type Market struct {
	ID          string
	CoinAddress string
	SupplyAPR   float64
	BorrowAPR   float64
	Price       float64
	Name        string
	Symbol      string
}

// Payload is an opaque transaction description produced by the payload builder,
// tagged with the inputs used to build it so staleness can be detected before
// submission.
type Payload struct {
	ID            string
	Action        Action
	MarketID      string
	CoinAddress   string
	Amount        float64
	WalletAddress string
	Body          []byte
}

// Matches reports whether the payload was built from the given inputs. A payload
// that fails this check must never reach the chain.
func (p *Payload) Matches(action Action, market *Market, amount float64, wallet string) bool {
	if p == nil || market == nil {
		return false
	}
	return p.Action == action &&
		p.MarketID == market.ID &&
		p.CoinAddress == market.CoinAddress &&
		p.Amount == amount &&
		p.WalletAddress == wallet
}

// Session carries the per-chat conversational state. All mutation happens inside
// the store's per-chat exclusive section.
type Session struct {
	State            State
	Action           Action
	WalletAddress    string
	AvailableMarkets []Market
	SelectedMarket   *Market
	PendingAmount    float64
	AmountSet        bool
	PendingPayload   *Payload
	UpdatedAt        time.Time
}

// NewSession returns a fresh idle session with no wallet and no pending fields.
func NewSession() *Session {
	return &Session{State: StateIdle}
}

// ClearPending drops the selected market, pending amount, and staged payload.
// The wallet link and the cached market list survive.
func (s *Session) ClearPending() {
	s.Action = ""
	s.SelectedMarket = nil
	s.PendingAmount = 0
	s.AmountSet = false
	s.PendingPayload = nil
}

// SelectMarket binds the chosen market and invalidates any staged amount or
// payload built against a previous selection.
func (s *Session) SelectMarket(market Market, action Action) {
	snapshot := market
	s.SelectedMarket = &snapshot
	s.Action = action
	s.PendingAmount = 0
	s.AmountSet = false
	s.PendingPayload = nil
}

// SetAmount records the validated amount and invalidates any payload built
// against a previous amount.
func (s *Session) SetAmount(amount float64) {
	s.PendingAmount = amount
	s.AmountSet = true
	s.PendingPayload = nil
}

// Clone returns a deep copy safe to hand outside the exclusive section.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if len(s.AvailableMarkets) > 0 {
		out.AvailableMarkets = append([]Market(nil), s.AvailableMarkets...)
	}
	if s.SelectedMarket != nil {
		market := *s.SelectedMarket
		out.SelectedMarket = &market
	}
	if s.PendingPayload != nil {
		payload := *s.PendingPayload
		payload.Body = append([]byte(nil), s.PendingPayload.Body...)
		out.PendingPayload = &payload
	}
	return &out
}
