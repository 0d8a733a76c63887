package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// RatePerSec caps outbound sends across all goroutines. Telegram
	// throttles bots hard, so pings and reminders share one limiter.
	RatePerSec int
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter

	runMu     sync.Mutex
	running   bool
	runCancel context.CancelFunc
	runWG     sync.WaitGroup

	// droppedInbound counts messages dropped because the consumer was slower
	// than the Telegram poll loop. Logged periodically to avoid per-update spam.
	droppedInbound uint64
}

var _ transport.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Message) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(2)
	a.runMu.Unlock()

	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || m.Sender.IsBot {
			return nil
		}
		// Reminders are a DM feature.
		if c.Chat() == nil || c.Chat().Type != tele.ChatPrivate {
			return nil
		}
		select {
		case out <- transport.Message{From: transport.Recipient(m.Sender.ID), Text: m.Text}:
		default:
			atomic.AddUint64(&a.droppedInbound, 1)
		}
		return nil
	})

	// Periodic summary for dropped messages.
	go func() {
		defer a.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedInbound, 0); n > 0 {
					a.log.Warn("inbound messages dropped", logx.Int64("count", int64(n)))
				}
			}
		}
	}()

	go func() {
		defer a.runWG.Done()
		<-rctx.Done()
		a.bot.Stop()
	}()

	go a.bot.Start()
	a.log.Info("telegram adapter started", logx.Duration("poll_timeout", a.cfg.PollTimeout))
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	a.running = false
	a.runMu.Unlock()

	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) SendNotification(ctx context.Context, to transport.Recipient, title, body string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	text := "⏰ " + title
	if strings.TrimSpace(body) != "" {
		text += "\n" + body
	}
	_, err := a.bot.Send(&tele.User{ID: int64(to)}, text)
	return err
}

func (a *Adapter) SendTransientPing(ctx context.Context, to transport.Recipient) (transport.MessageRef, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return transport.MessageRef{}, err
	}
	text := fmt.Sprintf(`<a href="tg://user?id=%d">hey buddy</a>`, int64(to))
	msg, err := a.bot.Send(&tele.User{ID: int64(to)}, text, &tele.SendOptions{ParseMode: tele.ModeHTML})
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ID}, nil
}

func (a *Adapter) Retract(ctx context.Context, ref transport.MessageRef) error {
	return a.bot.Delete(tele.StoredMessage{
		ChatID:    ref.ChatID,
		MessageID: strconv.Itoa(ref.MessageID),
	})
}

func (a *Adapter) Reply(ctx context.Context, to transport.Recipient, text string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := a.bot.Send(&tele.User{ID: int64(to)}, text)
	return err
}
