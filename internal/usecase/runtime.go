package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	"github.com/rs-labo46/ec-fulfillment/internal/logging"
	"github.com/rs-labo46/ec-fulfillment/internal/metrics"
	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"
)

var tracer = otel.Tracer("github.com/rs-labo46/ec-fulfillment/internal/usecase")

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// 通知の送り先（Kafka / NATS / Redis / ログ）。失敗しても呼び出し元は止めない。
type Notifier interface {
	Publish(ctx context.Context, n model.Notification) error
}

// Runtime はusecase共通の部品
type Runtime struct {
	Clock    Clock
	Notifier Notifier
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	// 注文コード生成（テストで固定できるように）
	NewOrderCode func(now time.Time) string
}

func (rt Runtime) withDefaults() Runtime {
	if rt.Clock == nil {
		rt.Clock = realClock{}
	}
	if rt.Logger == nil {
		rt.Logger = slog.Default()
	}
	if rt.NewOrderCode == nil {
		rt.NewOrderCode = NewOrderCode
	}
	return rt
}

// NewOrderCode は "OD" + 日付 + "-" + 英数字8桁。ゲートウェイのorderIdにそのまま使える。
func NewOrderCode(now time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("OD%s-%s", now.UTC().Format("20060102"), id[:8])
}

// outbox はトランザクション中に通知をためて、コミット後に送る。
// ロールバックされたら捨てる。
type outbox struct {
	items []model.Notification
}

func (o *outbox) add(n model.Notification) {
	o.items = append(o.items, n)
}

func (rt Runtime) flush(ctx context.Context, o *outbox) {
	if rt.Notifier == nil || o == nil {
		return
	}
	for _, n := range o.items {
		if n.CreatedAt.IsZero() {
			n.CreatedAt = rt.Clock.Now()
		}
		err := rt.Notifier.Publish(ctx, n)
		rt.Metrics.NotificationEnqueued(n.Event, err)
		if err != nil {
			logging.Log(ctx, rt.Logger, "notification publish failed", logging.Fields{
				OrderCode: n.OrderCode,
				Step:      n.Event,
				Err:       err,
			})
		}
	}
}

func (rt Runtime) logError(ctx context.Context, msg string, f logging.Fields) {
	if he, ok := AsHTTPError(f.Err); ok && he.Kind != KindInternal {
		// 業務エラーはinfoで十分
		f.Status = string(he.Kind)
		f.Err = nil
	}
	logging.Log(ctx, rt.Logger, msg, f)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// メトリクスのラベル用。成功は "ok"、失敗はエラー種別。
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if he, ok := AsHTTPError(err); ok {
		return string(he.Kind)
	}
	return string(KindInternal)
}

// ACTIVEカートを注文に紐づけて閉じる。カートが無ければ何もしない。
func checkOutCart(ctx context.Context, r repo.TxRepos, userID, orderID int64, at time.Time) error {
	cart, err := r.Carts().FindActive(ctx, userID)
	if err == repo.ErrNotFound {
		return nil
	}
	if err != nil {
		return dbError(err)
	}
	if err := r.Carts().CheckOut(ctx, cart.ID, orderID, at); err != nil {
		return dbError(err)
	}
	return nil
}

// ---- 通知の組み立て ----

func userNotice(t model.NotificationType, event string, o model.Order, msg string) model.Notification {
	return model.Notification{
		Type:         t,
		Event:        event,
		Message:      msg,
		AudienceRole: model.AudienceUser,
		RecipientID:  o.UserID,
		OrderCode:    o.Code,
	}
}

func adminNotice(t model.NotificationType, event string, orderCode string, msg string) model.Notification {
	return model.Notification{
		Type:         t,
		Event:        event,
		Message:      msg,
		AudienceRole: model.AudienceAdmin,
		OrderCode:    orderCode,
	}
}
