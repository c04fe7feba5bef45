package bot

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bakkal-monitor/price-radar/internal/telegram"
)

// API is the part of the Bot API the poller needs.
type API interface {
	GetMe(ctx context.Context) (telegram.User, error)
	GetUpdates(ctx context.Context, offset int64, wait int) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID, text string, opts telegram.SendOptions) error
}

// Replier produces the reply for one message.
type Replier interface {
	Reply(ctx context.Context, text string) (string, error)
}

type state int

const (
	stateStarting state = iota
	statePolling
	stateHandling
	stateCommitting
	stateBackoff
	stateStopped
)

func (s state) String() string {
	switch s {
	case stateStarting:
		return "starting"
	case statePolling:
		return "polling"
	case stateHandling:
		return "handling"
	case stateCommitting:
		return "committing"
	case stateBackoff:
		return "backoff"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Bot long-polls the Bot API and answers messages. The update cursor is
// its only durable state and only moves after a batch has been handled.
type Bot struct {
	api     API
	cursor  CursorStore
	replier Replier
	wait    int
	backoff time.Duration
	log     *slog.Logger

	alive atomic.Bool
}

// New builds a bot. wait is the long-poll timeout in seconds.
func New(api API, cursor CursorStore, replier Replier, wait int, log *slog.Logger) *Bot {
	return &Bot{
		api:     api,
		cursor:  cursor,
		replier: replier,
		wait:    wait,
		backoff: 5 * time.Second,
		log:     log,
	}
}

// Alive reports whether the bot has started polling.
func (b *Bot) Alive() bool { return b.alive.Load() }

// Run polls until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	var (
		offset int64
		batch  []telegram.Update
		err    error
	)
	st, prev := stateStarting, stateStopped

	for {
		if ctx.Err() != nil {
			st = stateStopped
		}
		if st != prev {
			b.log.Debug("bot state", slog.String("state", st.String()))
			prev = st
		}

		switch st {
		case stateStarting:
			offset, err = b.start(ctx)
			if err != nil {
				b.log.Error("bot start failed", slog.Any("err", err))
				b.sleep(ctx)
				continue
			}
			b.alive.Store(true)
			b.log.Info("bot polling", slog.Int64("offset", offset))
			st = statePolling

		case statePolling:
			batch, err = b.api.GetUpdates(ctx, offset, b.wait)
			switch {
			case err != nil:
				if ctx.Err() == nil {
					b.log.Warn("getUpdates failed", slog.Any("err", err))
				}
				st = stateBackoff
			case len(batch) > 0:
				st = stateHandling
			}

		case stateHandling:
			for _, u := range batch {
				b.handle(ctx, u)
			}
			st = stateCommitting

		case stateCommitting:
			next := batch[len(batch)-1].UpdateID + 1
			if err := b.cursor.Save(ctx, next); err != nil {
				b.log.Error("save cursor", slog.Int64("offset", next), slog.Any("err", err))
			}
			offset = next
			batch = nil
			st = statePolling

		case stateBackoff:
			b.sleep(ctx)
			st = statePolling

		case stateStopped:
			b.alive.Store(false)
			b.log.Info("bot stopped")
			return nil
		}
	}
}

// start resolves the initial offset. Without a saved cursor, updates that
// queued up while the bot was down are skipped.
func (b *Bot) start(ctx context.Context) (int64, error) {
	me, err := b.api.GetMe(ctx)
	if err != nil {
		return 0, err
	}
	b.log.Info("bot identity", slog.String("username", me.Username))

	offset, found, err := b.cursor.Load(ctx)
	if err != nil {
		return 0, err
	}
	if found {
		return offset, nil
	}

	stale, err := b.api.GetUpdates(ctx, -1, 0)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}
	offset = stale[len(stale)-1].UpdateID + 1
	b.log.Info("skipped stale updates", slog.Int64("offset", offset))
	return offset, b.cursor.Save(ctx, offset)
}

func (b *Bot) handle(ctx context.Context, u telegram.Update) {
	if u.Message == nil || u.Message.Text == "" {
		return
	}
	chatID := strconv.FormatInt(u.Message.Chat.ID, 10)
	log := b.log.With(slog.String("chat_id", chatID), slog.Int64("update_id", u.UpdateID))

	reply, err := b.replier.Reply(ctx, u.Message.Text)
	if err != nil {
		log.Error("handle message", slog.Any("err", err))
		reply = failureText
	}
	if reply == "" {
		return
	}
	if err := b.api.SendMessage(ctx, chatID, reply, telegram.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
		log.Error("send reply", slog.Any("err", err))
	}
}

func (b *Bot) sleep(ctx context.Context) {
	t := time.NewTimer(b.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
