// Package notify pushes operator alerts to the admin Telegram chat.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends alerts to a single admin chat. Delivery failures are dropped
// after logging upstream; alerting must never block a billing transition.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// New returns nil when token is empty; callers fall back to a no-op sink.
func New(token string, adminChatID int64) (*Telegram, error) {
	if token == "" || adminChatID == 0 {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: bot, chatID: adminChatID}, nil
}

func (t *Telegram) PaymentFailed(subscriptionID, recruiterID, reason string, amountCents int64) {
	t.send(fmt.Sprintf(
		"⚠️ Payment failed\nSubscription: %s\nRecruiter: %s\nAmount: %d.%02d\nReason: %s",
		subscriptionID, recruiterID, amountCents/100, amountCents%100, reason))
}

func (t *Telegram) AdminAction(actor, action, subscriptionID string) {
	t.send(fmt.Sprintf("🛠 Admin override by %s: %s (subscription %s)",
		actor, action, subscriptionID))
}

func (t *Telegram) SweepSummary(expired, renewed, reconciled int) {
	t.send(fmt.Sprintf("⏱ Sweep: %d expired, %d renewed, %d reconciled",
		expired, renewed, reconciled))
}

func (t *Telegram) send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	_, _ = t.bot.Send(msg)
}
