package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// longPollSeconds is the getUpdates timeout; the HTTP client allows a few seconds more.
const longPollSeconds = 30

// CommandHandler answers one bot command. A non-empty reply is sent to the configured chat.
type CommandHandler func(ctx context.Context, command string) string

type botMessage struct {
	Text string `json:"text"`
	Chat *struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

type botUpdate struct {
	UpdateID int         `json:"update_id"`
	Message  *botMessage `json:"message"`
}

type updatesResponse struct {
	OK          bool        `json:"ok"`
	Description string      `json:"description"`
	Result      []botUpdate `json:"result"`
}

// StartPolling long-polls getUpdates and answers commands until ctx is cancelled.
// Messages from chats other than ChatID are ignored; failed polls back off exponentially.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	client := &http.Client{Timeout: (longPollSeconds + 5) * time.Second, Transport: t.Client.Transport}
	retry := t.pollBackoff()
	offset := 0

	for ctx.Err() == nil {
		updates, err := t.getUpdates(ctx, client, offset)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			wait := retry.NextBackOff()
			slog.Warn("telegram poll failed", "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			continue
		}
		retry.Reset()

		for _, u := range updates {
			offset = max(offset, u.UpdateID+1)
			cmd, ok := t.command(u)
			if !ok {
				continue
			}
			slog.Info("bot command", "command", cmd)
			reply := handler(ctx, cmd)
			if reply == "" {
				continue
			}
			if err := t.Send(reply); err != nil {
				slog.Error("send reply", "command", cmd, "err", err)
			}
		}
	}
	slog.Info("telegram polling stopped")
}

func (t *TelegramNotifier) pollBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Second
	if t.RetryInterval > 0 {
		b.InitialInterval = t.RetryInterval
	}
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (t *TelegramNotifier) getUpdates(ctx context.Context, client *http.Client, offset int) ([]botUpdate, error) {
	apiURL := fmt.Sprintf("%s?offset=%d&timeout=%d", t.endpoint("getUpdates"), offset, longPollSeconds)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body updatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode updates (status %d): %w", resp.StatusCode, err)
	}
	if !body.OK {
		return nil, fmt.Errorf("getUpdates: status %d: %s", resp.StatusCode, body.Description)
	}
	return body.Result, nil
}

// command extracts the trimmed text of u when it was sent from the configured chat.
func (t *TelegramNotifier) command(u botUpdate) (string, bool) {
	if u.Message == nil {
		return "", false
	}
	text := strings.TrimSpace(u.Message.Text)
	if text == "" {
		return "", false
	}
	if u.Message.Chat != nil && strconv.FormatInt(u.Message.Chat.ID, 10) != t.ChatID {
		slog.Warn("ignoring command from unknown chat", "chat_id", u.Message.Chat.ID)
		return "", false
	}
	return text, true
}
