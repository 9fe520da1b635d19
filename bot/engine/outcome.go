package engine

import (
	"math/big"

	"plutusbot/bot/session"
)

// OutcomeKind discriminates the structured results handed to the presenter.
type OutcomeKind string

const (
	// OutcomeNone tells the presenter to emit nothing, used for stray free-text
	// input that no state is waiting on.
	OutcomeNone             OutcomeKind = "none"
	OutcomeShowMenu         OutcomeKind = "show_menu"
	OutcomeShowHelp         OutcomeKind = "show_help"
	OutcomePromptWallet     OutcomeKind = "prompt_wallet"
	OutcomeShowMarkets      OutcomeKind = "show_markets"
	OutcomePromptAmount     OutcomeKind = "prompt_amount"
	OutcomeShowConfirmation OutcomeKind = "show_confirmation"
	OutcomeShowBalance      OutcomeKind = "show_balance"
	OutcomeSuccess          OutcomeKind = "success"
	OutcomeError            OutcomeKind = "error"
)

// Outcome is the engine's structured reply. The presenter owns all user-facing
// text; the engine only reports what happened and the data needed to render it.
type Outcome struct {
	Kind OutcomeKind

	// ShowMarkets and PromptAmount context.
	Markets   []session.Market
	Action    session.Action
	HasAction bool

	// PromptAmount and ShowConfirmation context.
	Market *session.Market
	Amount float64

	// ShowConfirmation context.
	Payload *session.Payload

	// Success context.
	TxHash string

	// ShowBalance context.
	Address string
	Balance *big.Int

	// Error context.
	ErrKind ErrorKind
	Message string
}

func menuOutcome() Outcome { return Outcome{Kind: OutcomeShowMenu} }

func helpOutcome() Outcome { return Outcome{Kind: OutcomeShowHelp} }

func promptWalletOutcome() Outcome { return Outcome{Kind: OutcomePromptWallet} }

func marketsOutcome(markets []session.Market, action session.Action, hasAction bool) Outcome {
	return Outcome{Kind: OutcomeShowMarkets, Markets: markets, Action: action, HasAction: hasAction}
}

func promptAmountOutcome(action session.Action, market *session.Market) Outcome {
	return Outcome{Kind: OutcomePromptAmount, Action: action, HasAction: true, Market: market}
}

func confirmationOutcome(action session.Action, market *session.Market, amount float64, payload *session.Payload) Outcome {
	return Outcome{
		Kind:      OutcomeShowConfirmation,
		Action:    action,
		HasAction: true,
		Market:    market,
		Amount:    amount,
		Payload:   payload,
	}
}

func balanceOutcome(address string, balance *big.Int) Outcome {
	return Outcome{Kind: OutcomeShowBalance, Address: address, Balance: balance}
}

func successOutcome(txHash string) Outcome {
	return Outcome{Kind: OutcomeSuccess, TxHash: txHash}
}

func errorOutcome(kind ErrorKind, message string) Outcome {
	return Outcome{Kind: OutcomeError, ErrKind: kind, Message: message}
}
