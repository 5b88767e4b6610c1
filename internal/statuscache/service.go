package statuscache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/prasetyo/pos-orders/internal/kafka"
	"github.com/prasetyo/pos-orders/internal/pos"
	"github.com/prasetyo/pos-orders/internal/redisx"
)

// Service keeps the Redis order-status cache warm from the order lifecycle
// topics, so status reads stay fast without touching Postgres.
type Service struct {
	Redis       *redis.Client
	Log         *zap.Logger
	ServiceName string
}

// HandleEvent dipasang sebagai handler consumer.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env pos.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	var (
		orderID int64
		status  pos.Status
	)
	switch env.EventType {
	case pos.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[pos.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID, status = p.OrderID, pos.StatusCreated
	case pos.EventOrderInvoiced:
		p, err := kafkax.UnwrapPayload[pos.OrderInvoicedPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID, status = p.OrderID, pos.StatusInvoiced
	case pos.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[pos.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID, status = p.OrderID, pos.StatusCancelled
	default:
		return nil // ignore
	}

	// dedup via Redis (pakai event_id)
	dkey := fmt.Sprintf(redisx.KeyDedup, "statuscache", env.EventID)
	exists, _ := redisx.Exists(ctx, s.Redis, dkey)
	if exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	body, _ := json.Marshal(map[string]any{"status": status})
	if err := s.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err(); err != nil {
		return err
	}
	s.Log.Debug("status cache refreshed",
		zap.Int64("order_id", orderID),
		zap.String("status", string(status)))
	return nil
}
