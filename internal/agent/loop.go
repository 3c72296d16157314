// Package agent drives the tool-calling conversation between the user, an
// OpenAI-compatible model, and the capability dispatcher.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mstolbov/askdb/internal/llm"
)

// DefaultMaxIterations bounds the tool-calling loop within one user turn.
const DefaultMaxIterations = 5

// FallbackMessage is returned when the iteration bound is hit before the
// model produces a final answer. Terminal for the turn, never retried.
const FallbackMessage = "I'm having trouble processing your request. Would you like me to create a support ticket so a human can help?"

// loopState tracks where one user turn is in its request/response cycle.
type loopState int

const (
	awaitingModelTurn loopState = iota
	modelRequestedTools
	awaitingToolResults
	turnDone
)

func (s loopState) String() string {
	switch s {
	case awaitingModelTurn:
		return "awaiting_model_turn"
	case modelRequestedTools:
		return "model_requested_tools"
	case awaitingToolResults:
		return "awaiting_tool_results"
	case turnDone:
		return "done"
	default:
		return "unknown"
	}
}

// transition logs and returns the next loop state.
func transition(from, to loopState) loopState {
	slog.Debug("conversation state", "from", from, "to", to)
	return to
}

// ModelClient is the language-model collaborator.
type ModelClient interface {
	Chat(ctx context.Context, req llm.ChatRequest) (llm.Message, error)
}

// Invoker executes one named capability. Satisfied by *Dispatcher.
type Invoker interface {
	Invoke(ctx context.Context, name string, args string) Envelope
}

// Session owns the ordered, append-only turn sequence of one conversation.
// A session must not be shared across concurrent Chat calls.
type Session struct {
	systemPrompt string
	turns        []llm.Message
}

// NewSession creates a session seeded with the system prompt.
func NewSession(systemPrompt string) *Session {
	return &Session{
		systemPrompt: systemPrompt,
		turns:        []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}},
	}
}

// Reset restores the session to its single initial system turn.
func (s *Session) Reset() {
	s.turns = []llm.Message{{Role: llm.RoleSystem, Content: s.systemPrompt}}
}

// Turns returns a copy of the turn sequence.
func (s *Session) Turns() []llm.Message {
	out := make([]llm.Message, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Session) append(m llm.Message) {
	s.turns = append(s.turns, m)
}

// Transcript renders the user/assistant turns as plain text, suitable for
// embedding in a support ticket body.
func (s *Session) Transcript() string {
	var out string
	for _, t := range s.turns {
		switch t.Role {
		case llm.RoleUser:
			out += "User: " + t.Content + "\n\n"
		case llm.RoleAssistant:
			if t.Content != "" {
				out += "Assistant: " + t.Content + "\n\n"
			}
		}
	}
	return out
}

// Reply is the outcome of one user turn.
type Reply struct {
	Content   string
	Chart     *ChartConfig
	ToolCalls int
}

// Agent runs the bounded tool-calling loop against the model collaborator.
type Agent struct {
	client        ModelClient
	tools         Invoker
	definitions   []llm.Tool
	model         string
	maxIterations int
}

// New creates an Agent. maxIterations <= 0 selects DefaultMaxIterations.
func New(client ModelClient, tools Invoker, model string, maxIterations int) *Agent {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Agent{
		client:        client,
		tools:         tools,
		definitions:   Definitions(),
		model:         model,
		maxIterations: maxIterations,
	}
}

// Chat appends the user's message to the session and drives the model until
// it yields plain content or the iteration bound is hit. Tool invocations
// requested by the model run through the dispatcher in request order, each
// appending one tool-result turn.
//
// Model-collaborator failures are returned as errors (user-visible for this
// turn); tool failures never are — they reach the model as envelope content.
func (a *Agent) Chat(ctx context.Context, session *Session, userMessage string) (Reply, error) {
	session.append(llm.Message{Role: llm.RoleUser, Content: userMessage})

	state := awaitingModelTurn
	var lastChart *ChartConfig
	toolCalls := 0

	for iteration := 0; iteration < a.maxIterations; iteration++ {
		msg, err := a.client.Chat(ctx, llm.ChatRequest{
			Model:      a.model,
			Messages:   session.Turns(),
			Tools:      a.definitions,
			ToolChoice: "auto",
		})
		if err != nil {
			return Reply{}, fmt.Errorf("model request failed: %w", err)
		}

		if len(msg.ToolCalls) == 0 {
			state = transition(state, turnDone)

			content := msg.Content
			if content == "" {
				content = "I apologize, but I couldn't generate a response."
			}
			session.append(llm.Message{Role: llm.RoleAssistant, Content: content})
			return Reply{Content: content, Chart: lastChart, ToolCalls: toolCalls}, nil
		}

		state = transition(state, modelRequestedTools)
		session.append(llm.Message{
			Role:      llm.RoleAssistant,
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
		})

		state = transition(state, awaitingToolResults)
		for _, tc := range msg.ToolCalls {
			slog.Info("model requested tool", "tool", tc.Function.Name, "iteration", iteration+1)
			env := a.tools.Invoke(ctx, tc.Function.Name, tc.Function.Arguments)
			toolCalls++

			if env.IsChart && env.Chart != nil {
				lastChart = env.Chart
			}

			content, err := json.Marshal(env)
			if err != nil {
				content = []byte(`{"success":false,"error":"failed to encode tool result"}`)
			}
			session.append(llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: tc.ID,
				Content:    string(content),
			})
		}
		state = transition(state, awaitingModelTurn)
	}

	slog.Warn("iteration bound reached", "max_iterations", a.maxIterations)
	return Reply{Content: FallbackMessage, ToolCalls: toolCalls}, nil
}
