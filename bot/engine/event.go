package engine

import "plutusbot/bot/session"

// EventType discriminates incoming user events.
type EventType string

const (
	EventRequestMenu         EventType = "request_menu"
	EventRequestHelp         EventType = "request_help"
	EventRequestWalletLink   EventType = "request_wallet_link"
	EventSubmitWalletAddress EventType = "submit_wallet_address"
	EventRequestMarkets      EventType = "request_markets"
	EventSelectMarket        EventType = "select_market"
	EventSubmitAmount        EventType = "submit_amount"
	EventSubmitText          EventType = "submit_text"
	EventConfirm             EventType = "confirm"
	EventCancel              EventType = "cancel"
	EventRequestBalance      EventType = "request_balance"
)

// Event is a single user input consumed by the engine. Only the fields relevant
// to the event type are populated.
type Event struct {
	Type EventType

	// Action scopes a RequestMarkets event to a specific lending operation.
	Action    session.Action
	HasAction bool

	// MarketIndex references an entry of the session's cached market list.
	MarketIndex int

	// Text carries free-form input for SubmitWalletAddress and SubmitAmount.
	Text string
}

// RequestMenu builds the event that returns the user to the main menu.
func RequestMenu() Event { return Event{Type: EventRequestMenu} }

// RequestHelp builds the event that shows usage help.
func RequestHelp() Event { return Event{Type: EventRequestHelp} }

// RequestWalletLink builds the event that starts wallet linking.
func RequestWalletLink() Event { return Event{Type: EventRequestWalletLink} }

// SubmitWalletAddress builds the event carrying a candidate wallet address.
func SubmitWalletAddress(text string) Event {
	return Event{Type: EventSubmitWalletAddress, Text: text}
}

// RequestMarkets builds the event that fetches the catalog, optionally scoped
// to an action.
func RequestMarkets(action ...session.Action) Event {
	ev := Event{Type: EventRequestMarkets}
	if len(action) > 0 {
		ev.Action = action[0]
		ev.HasAction = true
	}
	return ev
}

// SelectMarket builds the event selecting a market by list index. The action is
// required when the market list was browsed without one, since the per-market
// buttons carry the operation the user picked.
func SelectMarket(index int, action ...session.Action) Event {
	ev := Event{Type: EventSelectMarket, MarketIndex: index}
	if len(action) > 0 {
		ev.Action = action[0]
		ev.HasAction = true
	}
	return ev
}

// SubmitAmount builds the event carrying the user-entered amount text.
func SubmitAmount(text string) Event {
	return Event{Type: EventSubmitAmount, Text: text}
}

// SubmitText builds the event for free-form chat text. The engine resolves it
// to a wallet address or an amount from the session state, since the transport
// cannot know which one the conversation is waiting on.
func SubmitText(text string) Event {
	return Event{Type: EventSubmitText, Text: text}
}

// ConfirmTransaction builds the event approving the staged payload.
func ConfirmTransaction() Event { return Event{Type: EventConfirm} }

// CancelTransaction builds the event discarding the staged payload.
func CancelTransaction() Event { return Event{Type: EventCancel} }

// RequestBalance builds the event asking for the linked wallet balance.
func RequestBalance() Event { return Event{Type: EventRequestBalance} }
