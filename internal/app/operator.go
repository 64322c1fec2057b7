package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hl-basis-bot/internal/alerts"

	"go.uber.org/zap"
)

const operatorOffsetKey = "telegram:operator:last_update_id"

func (a *App) startOperator(ctx context.Context) {
	if a.cfg == nil || a.alerts == nil {
		return
	}
	if !a.cfg.Telegram.OperatorEnabled {
		return
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(a.cfg.Telegram.ChatID), 10, 64)
	if err != nil {
		a.log.Warn("telegram operator disabled: invalid chat_id", zap.Error(err))
		return
	}
	go a.operatorLoop(ctx, chatID, a.cfg.Telegram.OperatorPollInterval)
}

func (a *App) operatorLoop(ctx context.Context, chatID int64, pollInterval time.Duration) {
	offset := a.loadOperatorOffset(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		updates, err := a.alerts.GetUpdates(ctx, offset, pollInterval)
		if err != nil {
			a.logOperatorError(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		if a.operatorWarned {
			a.log.Info("telegram operator recovered")
			a.operatorWarned = false
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
				a.saveOperatorOffset(ctx, offset)
			}
			a.handleOperatorUpdate(ctx, upd, chatID)
		}
	}
}

func (a *App) handleOperatorUpdate(ctx context.Context, upd alerts.Update, chatID int64) {
	if upd.Message == nil || upd.Message.Chat == nil {
		return
	}
	if upd.Message.Chat.ID != chatID {
		return
	}
	cmd, ok := parseOperatorCommand(upd.Message.Text)
	if !ok {
		return
	}
	resp := a.handleOperatorCommand(ctx, cmd)
	if resp == "" {
		return
	}
	if err := a.alerts.Send(ctx, resp); err != nil {
		a.log.Warn("operator response failed", zap.Error(err))
	}
}

func parseOperatorCommand(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return "", false
	}
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return "", false
	}
	return strings.ToLower(strings.TrimPrefix(fields[0], "/")), true
}

func (a *App) handleOperatorCommand(ctx context.Context, cmd string) string {
	switch cmd {
	case "status":
		return a.operatorStatus(ctx)
	case "pause":
		if a.setPaused(true) {
			return "trading paused"
		}
		return "trading already paused"
	case "resume":
		if a.setPaused(false) {
			return "trading resumed"
		}
		return "trading already active"
	default:
		return operatorHelpText()
	}
}

func (a *App) operatorStatus(ctx context.Context) string {
	lines := []string{
		fmt.Sprintf("state: %s", a.controller.State()),
		fmt.Sprintf("paused: %t", a.isPaused()),
	}
	if pos, ok := a.controller.Position(); ok {
		lines = append(lines,
			fmt.Sprintf("position: %s", pos.Asset),
			fmt.Sprintf("entry_score: %.4f", pos.EntryScore),
			fmt.Sprintf("entry_basis: %.4f%%", pos.EntryBasisPercent),
			fmt.Sprintf("opened_at: %s", pos.OpenedAt.UTC().Format(time.RFC3339)),
		)
		if pos.HasCurrentScore {
			lines = append(lines, fmt.Sprintf("current_score: %.4f", pos.CurrentScore))
		}
	} else {
		lines = append(lines, "position: none")
	}
	if count, err := a.store.JournalCount(ctx); err == nil {
		lines = append(lines, fmt.Sprintf("orders_journaled: %d", count))
	}
	return strings.Join(lines, "\n")
}

func operatorHelpText() string {
	return strings.Join([]string{
		"commands:",
		"/status - current bot status",
		"/pause - pause new cycles (does not interrupt a running TWAP)",
		"/resume - resume cycles",
	}, "\n")
}

func (a *App) logOperatorError(err error) {
	if a.operatorWarned {
		return
	}
	a.operatorWarned = true
	a.log.Warn("telegram operator failed", zap.Error(err))
}

func (a *App) loadOperatorOffset(ctx context.Context) int64 {
	raw, ok, err := a.store.Get(ctx, operatorOffsetKey)
	if err != nil || !ok {
		return 0
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || val < 0 {
		return 0
	}
	return val
}

func (a *App) saveOperatorOffset(ctx context.Context, offset int64) {
	_ = a.store.Set(ctx, operatorOffsetKey, strconv.FormatInt(offset, 10))
}
