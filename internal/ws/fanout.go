package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FanoutChannel Redis 频道名
const FanoutChannel = "board:field-changed"

// Fanout 跨实例转发房间消息
type Fanout interface {
	Publish(ctx context.Context, boardID string, msg []byte) error
	// Subscribe 阻塞直到 ctx 结束或连接断开，每条来自其他实例的消息调用一次 deliver
	Subscribe(ctx context.Context, deliver func(boardID string, msg []byte)) error
	Close() error
}

// NoopFanout 单实例部署
type NoopFanout struct{}

func (NoopFanout) Publish(context.Context, string, []byte) error { return nil }

func (NoopFanout) Subscribe(ctx context.Context, _ func(string, []byte)) error {
	<-ctx.Done()
	return nil
}

func (NoopFanout) Close() error { return nil }

type fanoutEnvelope struct {
	Origin  string          `json:"origin"`
	BoardID string          `json:"boardId"`
	Message json.RawMessage `json:"message"`
}

// RedisFanout 基于 Redis Pub/Sub，消息带实例 ID，忽略自己发出的消息
type RedisFanout struct {
	client   *redis.Client
	channel  string
	instance string
}

// NewRedisFanout 创建 Redis 转发器
func NewRedisFanout(client *redis.Client) *RedisFanout {
	return &RedisFanout{
		client:   client,
		channel:  FanoutChannel,
		instance: uuid.NewString(),
	}
}

// Instance 当前实例 ID
func (f *RedisFanout) Instance() string { return f.instance }

func (f *RedisFanout) Publish(ctx context.Context, boardID string, msg []byte) error {
	data, err := json.Marshal(fanoutEnvelope{
		Origin:  f.instance,
		BoardID: boardID,
		Message: msg,
	})
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, data).Err()
}

func (f *RedisFanout) Subscribe(ctx context.Context, deliver func(boardID string, msg []byte)) error {
	sub := f.client.Subscribe(ctx, f.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	log.Printf("[Fanout] 📡 已订阅 %s (instance=%s)", f.channel, f.instance)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			f.dispatch(m.Payload, deliver)
		}
	}
}

func (f *RedisFanout) dispatch(payload string, deliver func(string, []byte)) {
	var env fanoutEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		log.Printf("[Fanout] ⚠️ 无法解析消息: %v", err)
		return
	}
	if env.Origin == f.instance {
		return
	}
	deliver(env.BoardID, env.Message)
}

func (f *RedisFanout) Close() error {
	return f.client.Close()
}
