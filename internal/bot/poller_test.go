package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bakkal-monitor/price-radar/internal/logger"
	"github.com/bakkal-monitor/price-radar/internal/telegram"
)

type sent struct {
	chatID string
	text   string
}

type fakeAPI struct {
	stale   []telegram.Update
	batches [][]telegram.Update
	offsets []int64
	sent    []sent
	cancel  context.CancelFunc
}

func (f *fakeAPI) GetMe(context.Context) (telegram.User, error) {
	return telegram.User{Username: "bakkalbot"}, nil
}

func (f *fakeAPI) GetUpdates(ctx context.Context, offset int64, _ int) ([]telegram.Update, error) {
	if offset == -1 {
		return f.stale, nil
	}
	f.offsets = append(f.offsets, offset)
	if len(f.batches) == 0 {
		f.cancel()
		return nil, ctx.Err()
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, chatID, text string, _ telegram.SendOptions) error {
	f.sent = append(f.sent, sent{chatID: chatID, text: text})
	return nil
}

type replyFunc func(ctx context.Context, text string) (string, error)

func (f replyFunc) Reply(ctx context.Context, text string) (string, error) { return f(ctx, text) }

func echo(_ context.Context, text string) (string, error) { return "echo " + text, nil }

func msg(id, chat int64, text string) telegram.Update {
	return telegram.Update{UpdateID: id, Message: &telegram.Message{Chat: telegram.Chat{ID: chat}, Text: text}}
}

func runBot(t *testing.T, api *fakeAPI, cursor CursorStore, r Replier) *Bot {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api.cancel = cancel

	b := New(api, cursor, r, 0, logger.Discard())
	require.NoError(t, b.Run(ctx))
	require.False(t, b.Alive())
	return b
}

func TestBotSkipsStaleUpdates(t *testing.T) {
	api := &fakeAPI{
		stale: []telegram.Update{msg(40, 1, "old"), msg(41, 1, "old")},
		batches: [][]telegram.Update{
			{msg(42, 7, "merhaba"), {UpdateID: 43}},
		},
	}
	cursor := &MemoryCursor{}

	runBot(t, api, cursor, replyFunc(echo))

	require.Equal(t, []int64{42, 44}, api.offsets)
	require.Equal(t, []sent{{chatID: "7", text: "echo merhaba"}}, api.sent)
	offset, found, err := cursor.Load(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(44), offset)
}

func TestBotResumesFromSavedCursor(t *testing.T) {
	api := &fakeAPI{stale: []telegram.Update{msg(5, 1, "should not be used")}}
	cursor := &MemoryCursor{}
	require.NoError(t, cursor.Save(context.Background(), 100))

	runBot(t, api, cursor, replyFunc(echo))

	require.Equal(t, []int64{100}, api.offsets)
	require.Empty(t, api.sent)
}

func TestBotCursorMovesAfterBatch(t *testing.T) {
	api := &fakeAPI{batches: [][]telegram.Update{{msg(1, 9, "a"), msg(2, 9, "b")}}}
	cursor := &MemoryCursor{}

	var seen []int64
	var alive []bool
	var b *Bot
	r := replyFunc(func(ctx context.Context, text string) (string, error) {
		offset, _, _ := cursor.Load(ctx)
		seen = append(seen, offset)
		alive = append(alive, b.Alive())
		return text, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api.cancel = cancel
	b = New(api, cursor, r, 0, logger.Discard())
	require.NoError(t, b.Run(ctx))

	require.Equal(t, []int64{0, 0}, seen)
	require.Equal(t, []bool{true, true}, alive)
	offset, _, _ := cursor.Load(context.Background())
	require.Equal(t, int64(3), offset)
}

func TestBotSendsFailureText(t *testing.T) {
	api := &fakeAPI{batches: [][]telegram.Update{{msg(1, 3, "süt")}}}
	fail := replyFunc(func(context.Context, string) (string, error) {
		return "", errors.New("store down")
	})

	runBot(t, api, &MemoryCursor{}, fail)

	require.Equal(t, []sent{{chatID: "3", text: failureText}}, api.sent)
}
