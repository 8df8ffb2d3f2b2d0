package server

import (
	"context"
	"encoding/json"
	"fmt"

	"iou_ledger/internal/model"
)

func queueKey(to string) string {
	return fmt.Sprintf("to: %s", to)
}

func (c *HttpServer) GetMessagesFromCache(ctx context.Context, to string) ([]*model.Message, error) {
	key := queueKey(to)
	vals, err := c.queue.Drain(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}

	res := make([]*model.Message, 0, len(vals))
	for _, v := range vals {
		var m model.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("decode queued message for %s: %w", to, err)
		}
		res = append(res, &m)
	}
	return res, nil
}

func (c *HttpServer) PutMessagesToCache(ctx context.Context, to string, messages []*model.Message) error {
	if len(messages) == 0 {
		return nil
	}

	vals := make([]string, 0, len(messages))
	for _, m := range messages {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		vals = append(vals, string(data))
	}
	return c.queue.RPush(ctx, queueKey(to), vals...)
}
