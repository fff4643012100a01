package gateway

// Message is the wire envelope for both directions of the socket.
//
// Client to server:
//
//	turn      start a turn: session_id (created if empty), mode, text
//	reply     answer a pending clarify or plan_review prompt, matched by id
//	cancel    abort the session's in-flight turn
//
// Server to client:
//
//	session      session created, carries session_id and mode
//	clarify      a clarification answer is needed for id
//	plan_review  plan feedback is needed for id
//	result       the turn finished
//	error        the request failed
type Message struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Text      string `json:"text,omitempty"`

	// clarify / plan_review prompts
	Question string    `json:"question,omitempty"`
	Plan     *PlanView `json:"plan,omitempty"`

	// reply fields
	Accept bool   `json:"accept,omitempty"`
	Notes  string `json:"notes,omitempty"`

	// result fields
	Outcome             string `json:"outcome,omitempty"`
	Answer              string `json:"answer,omitempty"`
	Intent              string `json:"intent,omitempty"`
	Agent               string `json:"agent,omitempty"`
	Iterations          int    `json:"iterations,omitempty"`
	ClarificationRounds int    `json:"clarification_rounds,omitempty"`

	Error string `json:"error,omitempty"`
}

// PlanView is the client-facing shape of a drafted plan.
type PlanView struct {
	ID       string   `json:"id"`
	Goal     string   `json:"goal"`
	Steps    []string `json:"steps"`
	Revision int      `json:"revision"`
}

const (
	msgTurn   = "turn"
	msgReply  = "reply"
	msgCancel = "cancel"

	msgSession    = "session"
	msgClarify    = "clarify"
	msgPlanReview = "plan_review"
	msgResult     = "result"
	msgError      = "error"
)
