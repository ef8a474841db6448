// Package agent drives the reasoning loop that generates assessment
// questions. The model is given a goal and a closed set of registered tools;
// each iteration it emits a Thought/Action step, the orchestrator invokes the
// named tool and appends an Observation, and the loop ends when the model
// declares the step terminal. Tool failures and unknown tool names become
// Observations the model can recover from; only transport failures and
// iteration exhaustion abort the run.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skillprobe/skillprobe/internal/llm"
	"github.com/skillprobe/skillprobe/internal/transcript"
)

// Defaults bounding a single run.
const (
	DefaultMaxIterations = 10
	DefaultToolTimeout   = 15 * time.Second
)

// ErrIterationsExhausted means the loop hit its iteration cap without the
// model producing a terminal step.
var ErrIterationsExhausted = errors.New("reasoning loop: max iterations exhausted")

// Tool is one operation the reasoning loop may invoke.
type Tool interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Registry holds the tools available to a run, in registration order. The
// set is closed at startup; the loop rejects names outside it.
type Registry struct {
	order []string
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Duplicate or empty names are rejected.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("register tool %q: already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// MustRegister registers the tools and panics on conflict. Intended for the
// fixed startup wiring where a duplicate is a programming error.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get returns the named tool, or false when it is not registered.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Specs returns the prompt-facing descriptions in registration order.
func (r *Registry) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, llm.ToolSpec{
			Name:        name,
			Description: r.tools[name].Description(),
		})
	}
	return specs
}

// Reasoner produces the next reasoning step for a goal and history.
type Reasoner interface {
	Reason(ctx context.Context, goal string, tools []llm.ToolSpec, history []transcript.Message) (*llm.Decision, string, error)
}

// RunResult is the outcome of one reasoning-loop run. Transcript is always
// populated, including on failure, so extraction can salvage partial work.
type RunResult struct {
	Final      map[string]any
	Transcript []transcript.Message
	Iterations int
}

// Orchestrator runs the loop. Zero values for MaxIterations and ToolTimeout
// select the defaults.
type Orchestrator struct {
	Reasoner      Reasoner
	Registry      *Registry
	MaxIterations int
	ToolTimeout   time.Duration
}

// Run executes the loop for the given goal until the model emits a terminal
// step, the iteration cap is reached, or a transport failure occurs. The
// returned RunResult carries the full transcript in every case.
func (o *Orchestrator) Run(ctx context.Context, goal string) (*RunResult, error) {
	maxIter := o.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	toolTimeout := o.ToolTimeout
	if toolTimeout <= 0 {
		toolTimeout = DefaultToolTimeout
	}

	res := &RunResult{
		Transcript: []transcript.Message{
			{Role: transcript.RoleUser, Content: goal},
		},
	}
	specs := o.Registry.Specs()
	callIndex := 0

	for iter := 1; iter <= maxIter; iter++ {
		res.Iterations = iter

		decision, raw, err := o.Reasoner.Reason(ctx, goal, specs, res.Transcript)
		if err != nil {
			if raw == "" {
				return res, fmt.Errorf("reasoning step %d: %w", iter, err)
			}
			// The model answered but the step could not be parsed.
			// Feed the problem back instead of aborting.
			slog.Warn("unparseable reasoning step", "iteration", iter, "error", err)
			res.Transcript = append(res.Transcript,
				transcript.Message{Role: transcript.RoleReasoning, Content: raw},
				transcript.Message{
					Role:    transcript.RoleUser,
					Content: "Your previous step was not a valid JSON object. Respond again with a single JSON object.",
				})
			continue
		}

		res.Transcript = append(res.Transcript, transcript.Message{
			Role:    transcript.RoleReasoning,
			Content: raw,
		})

		if decision.Complete || decision.Tool == "" {
			final := decision.Final
			if final == nil {
				final = map[string]any{"thought": decision.Thought}
			}
			payload, err := json.Marshal(final)
			if err != nil {
				return res, fmt.Errorf("encode terminal payload: %w", err)
			}
			res.Transcript = append(res.Transcript, transcript.Message{
				Role:    transcript.RoleFinal,
				Content: string(payload),
			})
			res.Final = final
			slog.Info("reasoning loop complete", "iterations", iter)
			return res, nil
		}

		res.Transcript = append(res.Transcript,
			o.invoke(ctx, decision.Tool, decision.Arguments, toolTimeout, callIndex))
		callIndex++
	}

	return res, ErrIterationsExhausted
}

// invoke runs one tool call under its own timeout and returns the
// Observation message. Failures are encoded into the Observation so the
// loop continues.
func (o *Orchestrator) invoke(ctx context.Context, name string, args map[string]any, timeout time.Duration, callIndex int) transcript.Message {
	input, _ := json.Marshal(args)
	msg := transcript.Message{
		Role:      transcript.RoleTool,
		Tool:      name,
		CallIndex: callIndex,
		Input:     string(input),
	}

	tool, ok := o.Registry.Get(name)
	if !ok {
		slog.Warn("unknown tool requested", "tool", name)
		failure, _ := json.Marshal(map[string]any{
			"error": fmt.Sprintf("unknown tool %q, available tools: %s",
				name, strings.Join(o.Registry.Names(), ", ")),
		})
		msg.Content = string(failure)
		return msg
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := tool.Invoke(callCtx, args)
	if err != nil {
		slog.Warn("tool invocation failed", "tool", name, "call_index", callIndex, "error", err)
		failure, _ := json.Marshal(map[string]any{"error": err.Error()})
		msg.Content = string(failure)
		return msg
	}

	payload, err := json.Marshal(out)
	if err != nil {
		msg.Content = fmt.Sprintf(`{"error": "encode output: %s"}`, err)
		return msg
	}
	msg.Content = string(payload)
	msg.OK = true
	return msg
}
