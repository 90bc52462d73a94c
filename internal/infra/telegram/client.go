// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/telebot.v3"

	"household_scheduler/internal/app"
)

// Sender is the part of *telebot.Bot the alerter uses.
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// NewBot creates a send-only bot; no poller is started.
func NewBot(token string) (*telebot.Bot, error) {
	return telebot.NewBot(telebot.Settings{Token: token})
}

// TelebotAdapter sends operational alerts to the admin chat.
type TelebotAdapter struct {
	bot         Sender
	adminChatID int64
	now         func() time.Time
}

func NewTelebotAdapter(b Sender, adminChatID int64) *TelebotAdapter {
	return &TelebotAdapter{bot: b, adminChatID: adminChatID, now: time.Now}
}

// SendMessage sends a text message to the specified recipient.
func (tba *TelebotAdapter) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}

	recipient := &telebot.User{ID: recipientChatID}
	_, err := tba.bot.Send(recipient, text, options)
	return err
}

// AlertScanFailures reports a scan pass that left failed items behind.
func (tba *TelebotAdapter) AlertScanFailures(_ context.Context, summary app.ScanSummary) error {
	text := FormatScanAlert(summary, tba.now())
	if err := tba.SendMessage(tba.adminChatID, text, &telebot.SendOptions{ParseMode: telebot.ModeHTML}); err != nil {
		return fmt.Errorf("failed to send scan alert to %d: %w", tba.adminChatID, err)
	}
	return nil
}

func FormatScanAlert(summary app.ScanSummary, at time.Time) string {
	return fmt.Sprintf(
		"⚠️ <b>Scan pass had failures</b>\nTime: %s\nDue processed: %d\nRecurring updated: %d\nFailed: %d",
		at.UTC().Format(time.RFC3339), summary.DueProcessed, summary.RecurringUpdated, summary.Failed,
	)
}
