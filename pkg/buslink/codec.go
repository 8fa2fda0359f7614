package buslink

import (
	"context"
	"encoding/json"
)

// Serializer turns a message value into a topic payload.
type Serializer interface {
	Marshal(v any) ([]byte, error)
}

// Deserializer turns a topic payload back into a message value.
type Deserializer interface {
	Unmarshal(data []byte, v any) error
}

// JSONCodec is the default codec. The wire protocol itself never
// inspects payload bytes, so any Serializer pairing works.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// PublishTyped marshals msg with s and publishes it.
func PublishTyped[T any](c *Client, topicName string, msg T, s Serializer) error {
	payload, err := s.Marshal(msg)
	if err != nil {
		return err
	}
	return c.Publish(topicName, payload)
}

// SubscribeTyped decodes each payload with d before invoking fn.
// Payloads that fail to decode are logged and dropped.
func SubscribeTyped[T any](c *Client, topicName string, d Deserializer, fn func(msg T)) error {
	return c.Subscribe(topicName, func(payload []byte) {
		var msg T
		if err := d.Unmarshal(payload, &msg); err != nil {
			c.logger.Warn().Str("topic", topicName).Err(err).Msg("drop undecodable payload")
			return
		}
		fn(msg)
	})
}

// CallTyped marshals the request, performs the call, and decodes the
// response into Resp.
func CallTyped[Req, Resp any](ctx context.Context, c *Client, serviceName string, req Req, s Serializer, d Deserializer) (Resp, error) {
	var resp Resp
	payload, err := s.Marshal(req)
	if err != nil {
		return resp, err
	}
	raw, err := c.Call(ctx, serviceName, payload)
	if err != nil {
		return resp, err
	}
	if err := d.Unmarshal(raw, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// SendGoalTyped marshals the goal with s before sending it.
func SendGoalTyped[T any](c *Client, actionName, goalID string, goal T, s Serializer) (*GoalHandle, error) {
	payload, err := s.Marshal(goal)
	if err != nil {
		return nil, err
	}
	return c.SendGoal(actionName, goalID, payload)
}
