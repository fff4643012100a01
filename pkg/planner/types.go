package planner

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a plan. The only legal path is
// Draft → AwaitingFeedback → {Revising → AwaitingFeedback}* → Accepted.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusAwaitingFeedback Status = "awaiting_feedback"
	StatusRevising         Status = "revising"
	StatusAccepted         Status = "accepted"
)

var legalTransitions = map[Status][]Status{
	StatusDraft:            {StatusAwaitingFeedback},
	StatusAwaitingFeedback: {StatusRevising, StatusAccepted},
	StatusRevising:         {StatusAwaitingFeedback},
	StatusAccepted:         {},
}

// Step is a single step description in a plan.
type Step struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Plan is an ordered sequence of steps plus its review status. The planner
// owns and mutates a plan until it is Accepted; afterwards it is read-only.
type Plan struct {
	ID        string    `json:"id"`
	Goal      string    `json:"goal"`
	Steps     []Step    `json:"steps"`
	Status    Status    `json:"status"`
	Revision  int       `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transition moves the plan to a new status, rejecting illegal moves.
func (p *Plan) Transition(to Status) error {
	for _, allowed := range legalTransitions[p.Status] {
		if allowed == to {
			p.Status = to
			p.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("illegal plan transition: %s -> %s", p.Status, to)
}

// Accepted reports whether the plan has been accepted by the user.
func (p *Plan) Accepted() bool {
	return p.Status == StatusAccepted
}

// StepDescriptions returns the step texts in order.
func (p *Plan) StepDescriptions() []string {
	descriptions := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		descriptions[i] = s.Description
	}
	return descriptions
}

// FeedbackEvent is the user's verdict on a plan awaiting feedback.
type FeedbackEvent struct {
	Accept bool   `json:"accept"`
	Notes  string `json:"notes,omitempty"`
}
