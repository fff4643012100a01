package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"
)

const classifySystemPrompt = `You are an intent classifier for a conversational assistant.
Given the user's utterance, prior conversation turns, and the list of known intent labels,
pick the single best label and estimate your confidence between 0 and 1.
If no label clearly applies, use the label "unresolved" with low confidence.
Respond with JSON only: {"label": "<label>", "confidence": <0..1>}`

const clarifySystemPrompt = `You are a conversational assistant. The user's request was too
ambiguous to classify. Write one short, polite follow-up question that helps the user state
what they want. Do not answer the request itself.
Respond with JSON only: {"question": "<your question>"}`

const draftPlanSystemPrompt = `You are a task planner for a conversational assistant.
Break the user's goal into a short ordered list of concrete steps. Each step should be a
single action that one of the available agents could carry out.
Respond with JSON only: {"steps": ["<step 1>", "<step 2>", ...]}`

const revisePlanSystemPrompt = `You are a task planner revising a plan the user rejected.
Produce a new ordered list of steps for the goal that addresses the user's feedback.
Respond with JSON only: {"steps": ["<step 1>", "<step 2>", ...]}`

const selectAgentSystemPrompt = `You are coordinating a team of agents working through a plan.
Given the plan, the available agents, and the observations recorded so far, either pick the
next agent to invoke together with the query to send it, or declare the task done with a
final answer.
Respond with JSON only, one of:
  {"done": false, "agent": "<agent name>", "query": "<query for the agent>"}
  {"done": true, "answer": "<final answer for the user>"}`

const evaluateCompletionSystemPrompt = `You are judging whether a plan has been satisfied.
Given the goal, the plan, and the observations recorded so far, decide whether the task is
complete. If complete, compose the final answer for the user from the observations.
Respond with JSON only, one of:
  {"done": true, "answer": "<final answer for the user>"}
  {"done": false}`

// buildPrompt renders the system and user messages for a request.
func buildPrompt(req Request) (system string, user string, err error) {
	var b strings.Builder

	switch req.Kind {
	case PromptClassifyIntent:
		writeSection(&b, "Known intent labels", strings.Join(req.Labels, ", "))
		writeHistory(&b, req.History)
		writeSection(&b, "Utterance", req.Utterance)
		return classifySystemPrompt, b.String(), nil

	case PromptClarifyQuestion:
		writeHistory(&b, req.History)
		writeSection(&b, "Ambiguous utterance", req.Utterance)
		return clarifySystemPrompt, b.String(), nil

	case PromptDraftPlan:
		writeCapabilities(&b, req.Capabilities)
		writeHistory(&b, req.History)
		writeSection(&b, "Goal", req.Goal)
		return draftPlanSystemPrompt, b.String(), nil

	case PromptRevisePlan:
		writeCapabilities(&b, req.Capabilities)
		writeSection(&b, "Goal", req.Goal)
		writeSection(&b, "Rejected plan", numbered(req.PlanSteps))
		writeSection(&b, "User feedback", req.Feedback)
		return revisePlanSystemPrompt, b.String(), nil

	case PromptSelectAgent:
		writeCapabilities(&b, req.Capabilities)
		writeSection(&b, "Goal", req.Goal)
		writeSection(&b, "Plan", numbered(req.PlanSteps))
		writeObservations(&b, req.Observations)
		return selectAgentSystemPrompt, b.String(), nil

	case PromptEvaluateCompletion:
		writeSection(&b, "Goal", req.Goal)
		writeSection(&b, "Plan", numbered(req.PlanSteps))
		writeObservations(&b, req.Observations)
		return evaluateCompletionSystemPrompt, b.String(), nil

	default:
		return "", "", fmt.Errorf("unknown prompt kind: %s", req.Kind)
	}
}

func writeSection(b *strings.Builder, title, body string) {
	if body == "" {
		return
	}
	fmt.Fprintf(b, "%s:\n%s\n\n", title, body)
}

func writeHistory(b *strings.Builder, history []string) {
	if len(history) == 0 {
		return
	}
	writeSection(b, "Conversation so far", strings.Join(history, "\n"))
}

func writeCapabilities(b *strings.Builder, caps []Capability) {
	if len(caps) == 0 {
		return
	}
	var lines []string
	for _, c := range caps {
		lines = append(lines, fmt.Sprintf("- %s: %s (input: %s, output: %s)", c.Name, c.Description, c.Input, c.Output))
	}
	writeSection(b, "Available agents", strings.Join(lines, "\n"))
}

func writeObservations(b *strings.Builder, obs []ObservationSummary) {
	if len(obs) == 0 {
		writeSection(b, "Observations", "(none yet)")
		return
	}
	data, err := json.MarshalIndent(obs, "", "  ")
	if err != nil {
		return
	}
	writeSection(b, "Observations", string(data))
}

func numbered(steps []string) string {
	var lines []string
	for i, s := range steps {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, s))
	}
	return strings.Join(lines, "\n")
}
