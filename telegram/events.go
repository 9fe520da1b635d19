package telegram

import (
	"strconv"
	"strings"

	"plutusbot/bot/engine"
	"plutusbot/bot/session"
)

// Callback data vocabulary. Market buttons encode the action as a one-letter
// prefix followed by the market's index in the list the user was shown.
const (
	cbMenu    = "menu"
	cbHelp    = "help"
	cbMarkets = "markets"
	cbWallet  = "wallet"
	cbBalance = "balance"
	cbConfirm = "confirm"
	cbCancel  = "cancel"
)

var actionPrefixes = map[string]session.Action{
	"s_": session.ActionSupply,
	"w_": session.ActionWithdraw,
	"b_": session.ActionBorrow,
	"r_": session.ActionRepay,
}

// parseCallback maps inline-button callback data to an engine event.
func parseCallback(data string) (engine.Event, bool) {
	switch data {
	case cbMenu:
		return engine.RequestMenu(), true
	case cbHelp:
		return engine.RequestHelp(), true
	case cbMarkets:
		return engine.RequestMarkets(), true
	case cbWallet:
		return engine.RequestWalletLink(), true
	case cbBalance:
		return engine.RequestBalance(), true
	case cbConfirm:
		return engine.ConfirmTransaction(), true
	case cbCancel:
		return engine.CancelTransaction(), true
	case string(session.ActionSupply), string(session.ActionWithdraw),
		string(session.ActionBorrow), string(session.ActionRepay):
		return engine.RequestMarkets(session.Action(data)), true
	}
	for prefix, action := range actionPrefixes {
		if !strings.HasPrefix(data, prefix) {
			continue
		}
		index, err := strconv.Atoi(data[len(prefix):])
		if err != nil {
			return engine.Event{}, false
		}
		return engine.SelectMarket(index, action), true
	}
	return engine.Event{}, false
}

// parseCommand maps slash commands to engine events.
func parseCommand(command string) (engine.Event, bool) {
	switch command {
	case "start", "menu":
		return engine.RequestMenu(), true
	case "help":
		return engine.RequestHelp(), true
	case "wallet":
		return engine.RequestWalletLink(), true
	case "markets":
		return engine.RequestMarkets(), true
	case "balance":
		return engine.RequestBalance(), true
	}
	return engine.Event{}, false
}

// marketCallback builds the callback data for a market action button.
func marketCallback(action session.Action, index int) string {
	var prefix string
	switch action {
	case session.ActionSupply:
		prefix = "s_"
	case session.ActionWithdraw:
		prefix = "w_"
	case session.ActionBorrow:
		prefix = "b_"
	case session.ActionRepay:
		prefix = "r_"
	default:
		return ""
	}
	return prefix + strconv.Itoa(index)
}
