package telegram

import (
	"fmt"
	"math/big"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"plutusbot/bot/engine"
	"plutusbot/bot/session"
)

// reply is a rendered outcome: message text plus an optional inline keyboard.
type reply struct {
	text     string
	keyboard *tgbotapi.InlineKeyboardMarkup
}

// renderOutcome turns a structured engine outcome into user-facing text and
// buttons. All formatting lives here; the engine emits no strings.
func renderOutcome(out engine.Outcome) (reply, bool) {
	switch out.Kind {
	case engine.OutcomeNone:
		return reply{}, false
	case engine.OutcomeShowMenu:
		return reply{
			text:     "Welcome to the Plutus Move Bot! What would you like to do?",
			keyboard: menuKeyboard(),
		}, true
	case engine.OutcomeShowHelp:
		return reply{text: helpText, keyboard: backToMenuKeyboard()}, true
	case engine.OutcomePromptWallet:
		return reply{
			text:     "Send the wallet address you want to act from (0x...):",
			keyboard: backToMenuKeyboard(),
		}, true
	case engine.OutcomeShowMarkets:
		return renderMarkets(out), true
	case engine.OutcomePromptAmount:
		return renderAmountPrompt(out), true
	case engine.OutcomeShowConfirmation:
		return renderConfirmation(out), true
	case engine.OutcomeShowBalance:
		return renderBalance(out), true
	case engine.OutcomeSuccess:
		text := "Transaction submitted successfully!"
		if out.TxHash != "" {
			text += "\nTx hash: " + out.TxHash
		}
		return reply{text: text, keyboard: backToMenuKeyboard()}, true
	case engine.OutcomeError:
		return renderError(out), true
	}
	return reply{}, false
}

const helpText = "Here's what you can do:\n\n" +
	"- Show markets - browse the available markets\n" +
	"- Supply / Withdraw / Borrow / Repay - pick an action, choose a market, enter an amount\n" +
	"- Link wallet - register the address the bot acts for\n" +
	"- Balance - show the linked wallet's balance\n\n" +
	"The flow is: pick an action, choose a market, enter the amount, confirm."

func menuKeyboard() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Show Markets", cbMarkets),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💰 Supply", string(session.ActionSupply)),
			tgbotapi.NewInlineKeyboardButtonData("🔄 Withdraw", string(session.ActionWithdraw)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💸 Borrow", string(session.ActionBorrow)),
			tgbotapi.NewInlineKeyboardButtonData("💵 Repay", string(session.ActionRepay)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔗 Link Wallet", cbWallet),
			tgbotapi.NewInlineKeyboardButtonData("💼 Balance", cbBalance),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❓ Help", cbHelp),
		),
	)
	return &kb
}

func backToMenuKeyboard() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 Back to Menu", cbMenu),
		),
	)
	return &kb
}

func renderMarkets(out engine.Outcome) reply {
	if len(out.Markets) == 0 {
		return reply{text: "No markets available at the moment.", keyboard: backToMenuKeyboard()}
	}

	var sb strings.Builder
	sb.WriteString("Available Markets:\n\n")
	for i, market := range out.Markets {
		fmt.Fprintf(&sb, "Market #%d:\n", i+1)
		if market.Name != "" {
			fmt.Fprintf(&sb, "Name: %s\n", market.Name)
		}
		fmt.Fprintf(&sb, "ID: %s\n", market.ID)
		fmt.Fprintf(&sb, "Coin Address: %s\n", market.CoinAddress)
		fmt.Fprintf(&sb, "Supply APR: %.2f%%\n", market.SupplyAPR)
		fmt.Fprintf(&sb, "Borrow APR: %.2f%%\n", market.BorrowAPR)
		fmt.Fprintf(&sb, "Price: $%.4f\n\n", market.Price)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	if out.HasAction {
		for i := range out.Markets {
			label := fmt.Sprintf("%s Market #%d", actionVerb(out.Action), i+1)
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(label, marketCallback(out.Action, i)),
			))
		}
	} else {
		for i := range out.Markets {
			rows = append(rows,
				tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Supply #%d", i+1), marketCallback(session.ActionSupply, i)),
					tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Borrow #%d", i+1), marketCallback(session.ActionBorrow, i)),
				),
				tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Withdraw #%d", i+1), marketCallback(session.ActionWithdraw, i)),
					tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Repay #%d", i+1), marketCallback(session.ActionRepay, i)),
				),
			)
		}
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙 Back to Menu", cbMenu),
	))
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return reply{text: sb.String(), keyboard: &kb}
}

func renderAmountPrompt(out engine.Outcome) reply {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Enter the amount to %s:\n", strings.ToLower(string(out.Action)))
	if out.Market != nil {
		fmt.Fprintf(&sb, "Market ID: %s\n", out.Market.ID)
		fmt.Fprintf(&sb, "Coin Address: %s\n", out.Market.CoinAddress)
		switch out.Action {
		case session.ActionSupply:
			fmt.Fprintf(&sb, "Current Supply APR: %.2f%%\n", out.Market.SupplyAPR)
		case session.ActionBorrow:
			fmt.Fprintf(&sb, "Current Borrow APR: %.2f%%\n", out.Market.BorrowAPR)
		}
	}
	sb.WriteString("\nJust enter the amount (e.g., 10):")
	return reply{text: sb.String(), keyboard: backToMenuKeyboard()}
}

func renderConfirmation(out engine.Outcome) reply {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Transaction Ready:\n", capitalize(string(out.Action)))
	if out.Market != nil {
		fmt.Fprintf(&sb, "Market ID: %s\n", out.Market.ID)
		fmt.Fprintf(&sb, "Coin Address: %s\n", out.Market.CoinAddress)
	}
	fmt.Fprintf(&sb, "Amount: %g\n", out.Amount)
	if out.Payload != nil && len(out.Payload.Body) > 0 {
		fmt.Fprintf(&sb, "\nPayload:\n%s", string(out.Payload.Body))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirm Transaction", cbConfirm),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", cbCancel),
		),
	)
	return reply{text: sb.String(), keyboard: &kb}
}

func renderBalance(out engine.Outcome) reply {
	balance := "0"
	if out.Balance != nil {
		balance = formatWei(out.Balance)
	}
	text := fmt.Sprintf("Wallet: %s\nBalance: %s", out.Address, balance)
	return reply{text: text, keyboard: backToMenuKeyboard()}
}

func renderError(out engine.Outcome) reply {
	text := out.Message
	if text == "" {
		text = "Something went wrong. Please try again."
	}
	if out.ErrKind == engine.KindNotConnected {
		text += "\n\nSend your wallet address (0x...):"
	}
	return reply{text: text, keyboard: backToMenuKeyboard()}
}

func actionVerb(action session.Action) string {
	switch action {
	case session.ActionSupply:
		return "Supply to"
	case session.ActionWithdraw:
		return "Withdraw from"
	case session.ActionBorrow:
		return "Borrow from"
	case session.ActionRepay:
		return "Repay to"
	}
	return "Use"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// formatWei renders a wei balance as a decimal ether string.
func formatWei(wei *big.Int) string {
	ether := new(big.Rat).SetFrac(wei, big.NewInt(1e18))
	formatted := strings.TrimRight(strings.TrimRight(ether.FloatString(6), "0"), ".")
	if formatted == "" {
		formatted = "0"
	}
	return formatted + " ETH"
}
