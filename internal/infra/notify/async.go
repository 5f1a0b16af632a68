package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
)

var (
	ErrQueueFull = errors.New("notification queue full")
	ErrClosed    = errors.New("notifier closed")
)

// Async はキューに積むだけで戻る。送信はワーカーが行い、失敗はログに残して捨てる。
type Async struct {
	next    Publisher
	logger  *slog.Logger
	timeout time.Duration
	queue   chan model.Notification
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// 送信結果のフック（メトリクス用）
	OnResult func(event string, err error)
}

func NewAsync(next Publisher, logger *slog.Logger, buffer int) *Async {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{
		next:    next,
		logger:  logger,
		timeout: 5 * time.Second,
		queue:   make(chan model.Notification, buffer),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()
	for n := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.next.Publish(ctx, n)
		cancel()
		if err != nil {
			a.logger.Warn("notification publish failed",
				slog.String("event", n.Event),
				slog.String("order_code", n.OrderCode),
				slog.String("error", err.Error()),
			)
		}
		if a.OnResult != nil {
			a.OnResult(n.Event, err)
		}
	}
}

func (a *Async) Publish(ctx context.Context, n model.Notification) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- n:
		return nil
	default:
		a.logger.Warn("notification dropped", slog.String("event", n.Event))
		return ErrQueueFull
	}
}

// Close は残りを送り切ってから下位の Publisher を閉じる。
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	a.wg.Wait()
	return a.next.Close()
}
