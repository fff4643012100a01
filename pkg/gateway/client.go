package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/harun/orchid/pkg/planner"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Client is one websocket connection. Writes are serialized; prompt replies
// are matched to their prompt by message ID.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Message
	closed  bool
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:    conn,
		pending: make(map[string]chan Message),
	}
}

func (c *Client) send(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// prompt sends a message that expects a reply and blocks until the reply
// arrives, the context is cancelled, or the connection closes.
func (c *Client) prompt(ctx context.Context, msg Message) (Message, error) {
	id, err := gonanoid.New()
	if err != nil {
		return Message{}, fmt.Errorf("failed to generate prompt id: %w", err)
	}
	msg.ID = id

	ch := make(chan Message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Message{}, fmt.Errorf("connection closed")
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(msg); err != nil {
		return Message{}, fmt.Errorf("failed to send prompt: %w", err)
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return Message{}, fmt.Errorf("connection closed")
		}
		return reply, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// deliverReply routes a client reply to the prompt waiting on it.
func (c *Client) deliverReply(msg Message) bool {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	c.mu.Unlock()

	if !ok {
		return false
	}

	select {
	case ch <- msg:
	default:
	}
	return true
}

// close fails all pending prompts.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// clientAsker adapts a Client into a clarification channel.
type clientAsker struct {
	client *Client
}

// Ask sends a clarify prompt and returns the user's reply text.
func (a *clientAsker) Ask(ctx context.Context, question string) (string, error) {
	reply, err := a.client.prompt(ctx, Message{
		Type:     msgClarify,
		Question: question,
	})
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}

// clientFeedback adapts a Client into a plan feedback channel.
type clientFeedback struct {
	client *Client
}

// AwaitFeedback presents the plan and blocks for the accept/reject reply.
func (f *clientFeedback) AwaitFeedback(ctx context.Context, plan *planner.Plan) (planner.FeedbackEvent, error) {
	reply, err := f.client.prompt(ctx, Message{
		Type: msgPlanReview,
		Plan: &PlanView{
			ID:       plan.ID,
			Goal:     plan.Goal,
			Steps:    plan.StepDescriptions(),
			Revision: plan.Revision,
		},
	})
	if err != nil {
		return planner.FeedbackEvent{}, err
	}
	return planner.FeedbackEvent{Accept: reply.Accept, Notes: reply.Notes}, nil
}
