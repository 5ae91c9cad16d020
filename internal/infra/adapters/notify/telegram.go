package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"coachhire-ai/internal/domain/model"
	"coachhire-ai/internal/domain/ports/adapter"
	"coachhire-ai/internal/domain/ports/repository"
	"coachhire-ai/internal/usecase"
)

// botAPI is the part of tgbotapi.BotAPI the ops bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// OpsQueries answers the read-only commands of the ops chat.
type OpsQueries struct {
	Budget  usecase.CostGuard
	Reviews usecase.ReviewTracker
}

var _ adapter.Notifier = (*TelegramOpsBot)(nil)

// TelegramOpsBot posts escalations and failures to one ops chat and answers
// /budget and /reviews from that chat.
type TelegramOpsBot struct {
	bot     botAPI
	chatID  int64
	queries OpsQueries
	workers int
	log     *zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewTelegramOpsBot(token string, chatID int64, queries OpsQueries, logger *zerolog.Logger) (*TelegramOpsBot, error) {
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram ops chat id is empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return newTelegramOpsBot(bot, chatID, queries, logger), nil
}

func newTelegramOpsBot(bot botAPI, chatID int64, queries OpsQueries, logger *zerolog.Logger) *TelegramOpsBot {
	l := logger.With().Str("component", "TelegramOpsBot").Logger()
	return &TelegramOpsBot{bot: bot, chatID: chatID, queries: queries, workers: 2, log: &l}
}

// Notify posts n to the ops chat regardless of its channel; route other
// audiences elsewhere with a Router.
func (b *TelegramOpsBot) Notify(ctx context.Context, n adapter.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.send(formatNotification(n))
}

func (b *TelegramOpsBot) send(text string) error {
	msg := tgbotapi.NewMessage(b.chatID, truncate(text, 4000))
	msg.DisableWebPagePreview = true
	_, err := b.bot.Send(msg)
	return err
}

// StartPolling handles ops chat commands until ctx is cancelled.
func (b *TelegramOpsBot) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	var wg sync.WaitGroup
	work := make(chan tgbotapi.Update, 16)
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case upd, ok := <-work:
					if !ok {
						return
					}
					if err := b.handleUpdate(ctx, upd); err != nil {
						b.log.Warn().Err(err).Int("worker", id).Msg("ops command failed")
					}
				case <-ctx.Done():
					return
				}
			}
		}(i + 1)
	}

	go func() {
		defer close(work)
		for {
			select {
			case upd, ok := <-updates:
				if !ok {
					return
				}
				select {
				case work <- upd:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	b.bot.StopReceivingUpdates()
	wg.Wait()
	return nil
}

func (b *TelegramOpsBot) StopPolling() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
}

func (b *TelegramOpsBot) handleUpdate(ctx context.Context, upd tgbotapi.Update) error {
	m := upd.Message
	if m == nil || m.Chat == nil || !m.IsCommand() {
		return nil
	}
	// commands from any other chat are ignored
	if m.Chat.ID != b.chatID {
		return nil
	}
	reply, err := b.handleCommand(ctx, m.Command())
	if err != nil {
		b.log.Error().Err(err).Str("command", m.Command()).Msg("ops command")
		reply = "Command failed, see worker logs."
	}
	return b.send(reply)
}

func (b *TelegramOpsBot) handleCommand(ctx context.Context, cmd string) (string, error) {
	switch cmd {
	case "budget":
		if b.queries.Budget == nil {
			return "Budget status is not available.", nil
		}
		s, err := b.queries.Budget.Status(ctx)
		if err != nil {
			return "", err
		}
		return formatBudget(s), nil
	case "reviews":
		if b.queries.Reviews == nil {
			return "Review tasks are not available.", nil
		}
		var open []*model.HumanReviewTask
		for _, st := range []model.ReviewStatus{model.ReviewPending, model.ReviewInReview} {
			ts, err := b.queries.Reviews.List(ctx, repository.ReviewFilter{Status: st, Limit: 20})
			if err != nil {
				return "", err
			}
			open = append(open, ts...)
		}
		return formatReviews(open), nil
	case "start", "help":
		return "Commands:\n/budget - today's AI spend\n/reviews - open review tasks", nil
	}
	return "Unknown command. Send /help for the list of commands.", nil
}

func formatNotification(n adapter.Notification) string {
	var sb strings.Builder
	if n.Subject != "" {
		sb.WriteString(n.Subject)
		sb.WriteString("\n")
	}
	sb.WriteString(n.Body)
	if len(n.Meta) > 0 {
		keys := make([]string, 0, len(n.Meta))
		for k := range n.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "\n%s: %s", k, n.Meta[k])
		}
	}
	return sb.String()
}

func formatBudget(s *usecase.BudgetSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "AI spend %s: $%.4f of $%.2f (%s)", s.Day.Format("2006-01-02"), s.SpentUSD, s.Budget.BudgetUSD, s.Status)
	tasks := make([]string, 0, len(s.ByTask))
	for t := range s.ByTask {
		tasks = append(tasks, string(t))
	}
	sort.Strings(tasks)
	for _, t := range tasks {
		fmt.Fprintf(&sb, "\n%s: $%.4f", t, model.USDFromMicros(s.ByTask[model.TaskType(t)]))
	}
	return sb.String()
}

func formatReviews(ts []*model.HumanReviewTask) string {
	if len(ts) == 0 {
		return "No open review tasks."
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].CreatedAt.Before(ts[j].CreatedAt) })
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d open review task(s):", len(ts))
	for _, t := range ts {
		fmt.Fprintf(&sb, "\n%s %s %s/%s (%s)", t.ID[:min(8, len(t.ID))], t.Reason, t.Flow.Short(), t.Step, t.Status)
	}
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
