package logger

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang-stockbot/pkg/common"
	"golang-stockbot/pkg/httpclient"

	"go.uber.org/zap/zapcore"
)

// AlertSender delivers a rendered alert somewhere a human will see it.
type AlertSender interface {
	SendAlert(ctx context.Context, text string) error
}

type AlertCore struct {
	core     zapcore.Core
	minLevel zapcore.Level
	sender   AlertSender
}

func NewAlertCore(core zapcore.Core, minLevel zapcore.Level, sender AlertSender) zapcore.Core {
	return &AlertCore{core: core, minLevel: minLevel, sender: sender}
}

func (a *AlertCore) Enabled(lvl zapcore.Level) bool {
	return a.core.Enabled(lvl)
}

func (a *AlertCore) With(fields []zapcore.Field) zapcore.Core {
	return &AlertCore{
		core:     a.core.With(fields),
		minLevel: a.minLevel,
		sender:   a.sender,
	}
}

func (a *AlertCore) Check(entry zapcore.Entry, checkedEntry *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if a.Enabled(entry.Level) {
		return checkedEntry.AddCore(entry, a)
	}
	return checkedEntry
}

func (a *AlertCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if entry.Level >= a.minLevel && shouldAlert(fields) {
		text := renderAlert(entry, fields)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = a.sender.SendAlert(ctx, text)
		}()
	}
	return a.core.Write(entry, fields)
}

func (a *AlertCore) Sync() error {
	return a.core.Sync()
}

func shouldAlert(fields []zapcore.Field) bool {
	for _, f := range fields {
		if f.Key == common.KEY_LOG_HOOK_SEND_ALERT && f.Type == zapcore.BoolType && f.Integer == 1 {
			return true
		}
	}
	return false
}

func renderAlert(entry zapcore.Entry, fields []zapcore.Field) string {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		if f.Key == common.KEY_LOG_HOOK_SEND_ALERT {
			continue
		}
		f.AddTo(enc)
	}

	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("• %s: %v\n", k, enc.Fields[k]))
	}

	return fmt.Sprintf(
		"🚨 %s Alert\n\nMessage: %s\n\nFields:\n%s\nTime: %s",
		entry.Level.CapitalString(),
		entry.Message,
		sb.String(),
		entry.Time.UTC().Format("2006-01-02 15:04:05"),
	)
}

type telegramAlertSender struct {
	client httpclient.HTTPClient
	token  string
	chatID string
}

// NewTelegramAlertSender posts alerts through the Bot API sendMessage method.
func NewTelegramAlertSender(client httpclient.HTTPClient, token, chatID string) AlertSender {
	return &telegramAlertSender{client: client, token: token, chatID: chatID}
}

func (s *telegramAlertSender) SendAlert(ctx context.Context, text string) error {
	payload := map[string]interface{}{
		"chat_id": s.chatID,
		"text":    text,
	}
	resp, err := s.client.Post(ctx, fmt.Sprintf("/bot%s/sendMessage", s.token), payload, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send alert: status %d", resp.StatusCode)
	}
	return nil
}
