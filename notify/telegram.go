package notify

import (
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"meridian/logger"
)

// Telegram sends operator notifications via the Bot API: token + chat ID
// from config, a *tgbotapi.BotAPI, best-effort Send calls. No inbound
// command loop; the HTTP API already owns enable/disable.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	gate   *cooldownGate
}

// NewTelegram constructs a Telegram notifier. A blank token disables it
// (NotifyTrade/NotifyCrisis become no-ops) rather than erroring, since
// Telegram is an optional best-effort surface, never a startup dependency.
func NewTelegram(token string, chatID int64) *Telegram {
	if token == "" || chatID == 0 {
		return &Telegram{gate: newCooldownGate()}
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Warnf("[Notify] telegram init failed, notifications disabled: %v", err)
		return &Telegram{gate: newCooldownGate()}
	}
	return &Telegram{api: api, chatID: chatID, gate: newCooldownGate()}
}

func (t *Telegram) send(message string) {
	if t.api == nil {
		return
	}
	msg := tgbotapi.NewMessage(t.chatID, message)
	if _, err := t.api.Send(msg); err != nil {
		logger.Debugf("[Notify] telegram send failed: %v", err)
	}
}

func (t *Telegram) NotifyTrade(message string) {
	key := message
	if len(key) > 32 {
		key = key[:32]
	}
	if !t.gate.allow("trade:"+key, tradeCooldown, time.Now()) {
		return
	}
	t.send(message)
}

func (t *Telegram) NotifyCrisis(message string) {
	if !t.gate.allow("crisis", crisisCooldown, time.Now()) {
		return
	}
	t.send(message)
}
