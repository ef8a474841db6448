// Package llm wraps an OpenAI-compatible API for the four model-assisted
// operations in the pipeline: reasoning steps, quality judgment, semantic
// answer scoring, and explanation generation. Every call carries its own
// timeout; callers treat a timeout as a recoverable failure.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skillprobe/skillprobe/internal/model"
	"github.com/skillprobe/skillprobe/internal/schema"
	"github.com/skillprobe/skillprobe/internal/transcript"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultTimeout bounds each individual model call.
const DefaultTimeout = 15 * time.Second

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// New creates a new LLM client. A zero timeout selects DefaultTimeout.
func New(baseURL, apiKey, modelName string, timeout time.Duration) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		timeout: timeout,
	}
}

// Ping verifies the endpoint responds.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("LLM endpoint check: %w", err)
	}
	return nil
}

// ToolSpec describes a callable tool for the reasoning prompt.
type ToolSpec struct {
	Name        string
	Description string
}

// Decision is the model's parsed reasoning step. When Tool is empty or
// Complete is set, the loop treats the step as terminal.
type Decision struct {
	Thought   string         `json:"thought"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Complete  bool           `json:"complete"`
	Final     map[string]any `json:"final,omitempty"`
}

// Reason asks the model for the next Thought/Action step given the goal and
// the transcript so far. The raw response text is returned alongside the
// parsed decision for transcript retention.
func (c *Client) Reason(ctx context.Context, goal string, tools []ToolSpec, history []transcript.Message) (*Decision, string, error) {
	chatMsgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: buildReasonSystemPrompt(goal, tools)},
	}
	for _, m := range history {
		switch m.Role {
		case transcript.RoleUser:
			chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleUser, Content: m.Content,
			})
		case transcript.RoleReasoning:
			chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant, Content: m.Content,
			})
		case transcript.RoleTool:
			obs := fmt.Sprintf("Observation from %s: %s", m.Tool, m.Content)
			chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleUser, Content: obs,
			})
		}
	}

	raw, err := c.chatJSON(ctx, chatMsgs, 0.2)
	if err != nil {
		return nil, "", err
	}

	parsed, verdict := transcript.DecodeObject(raw)
	if verdict == transcript.Unparseable {
		return nil, raw, fmt.Errorf("parse reasoning step: no JSON object in response")
	}
	data, err := json.Marshal(parsed)
	if err != nil {
		return nil, raw, fmt.Errorf("re-encode reasoning step: %w", err)
	}
	var decision Decision
	if err := json.Unmarshal(data, &decision); err != nil {
		return nil, raw, fmt.Errorf("parse reasoning step: %w", err)
	}
	return &decision, raw, nil
}

// JudgeQuality asks the model to judge a candidate question's clarity,
// appropriateness, correctness, and bias. Returns a score in [0,1] plus the
// issues the judge flagged.
func (c *Client) JudgeQuality(ctx context.Context, q model.Question, s *schema.Schema) (float64, []string, error) {
	prompt := buildJudgePrompt(q, s)
	raw, err := c.chatJSON(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: prompt},
	}, 0.1)
	if err != nil {
		return 0, nil, err
	}

	var result struct {
		Score  float64  `json:"score"`
		Issues []string `json:"issues"`
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return 0, nil, fmt.Errorf("parse quality judgment: %w (raw: %s)", err, raw)
	}
	if result.Score < 0 {
		result.Score = 0
	}
	if result.Score > 1 {
		result.Score = 1
	}
	return result.Score, result.Issues, nil
}

// ScoreAnswer asks the model to score a free-text answer against the
// normalized schema, on a 0-100 scale.
func (c *Client) ScoreAnswer(ctx context.Context, q model.Question, s *schema.Schema, answer string) (float64, error) {
	prompt := buildScorePrompt(q, s, answer)
	raw, err := c.chatJSON(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: prompt},
	}, 0.1)
	if err != nil {
		return 0, err
	}

	var result struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return 0, fmt.Errorf("parse answer score: %w (raw: %s)", err, raw)
	}
	if result.Score < 0 {
		result.Score = 0
	}
	if result.Score > 100 {
		result.Score = 100
	}
	return result.Score, nil
}

// Explain asks the model for a post-grading explanation of the question's
// answer, tailored to whether the user got it right.
func (c *Client) Explain(ctx context.Context, q model.Question, s *schema.Schema, correct bool) (string, error) {
	prompt := buildExplainPrompt(q, s, correct)
	raw, err := c.chatJSON(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: prompt},
	}, 0.3)
	if err != nil {
		return "", err
	}

	var result struct {
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return "", fmt.Errorf("parse explanation: %w (raw: %s)", err, raw)
	}
	return strings.TrimSpace(result.Explanation), nil
}

func (c *Client) chatJSON(ctx context.Context, messages []openai.ChatCompletionMessage, temperature float32) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return raw, nil
}

func buildReasonSystemPrompt(goal string, tools []ToolSpec) string {
	var sb strings.Builder
	sb.WriteString("You are a question-generation agent working toward this goal:\n\n")
	sb.WriteString(goal + "\n\n")
	sb.WriteString("Available tools:\n")
	for _, t := range tools {
		sb.WriteString("- " + t.Name + ": " + t.Description + "\n")
	}
	sb.WriteString("\nWork step by step. On each turn respond ONLY with a JSON object:\n")
	sb.WriteString(`{"thought": "<your reasoning>", "tool": "<tool name or empty>", "arguments": {...}, "complete": <true/false>, "final": {...}}`)
	sb.WriteString("\n\nTo call a tool, set \"tool\" and \"arguments\" and leave \"complete\" false.\n")
	sb.WriteString("When the goal is met, set \"complete\" to true and put your result in \"final\".\n")
	sb.WriteString("If a tool reports a failure, correct your arguments and try again.\n")
	return sb.String()
}

func buildJudgePrompt(q model.Question, s *schema.Schema) string {
	var sb strings.Builder
	sb.WriteString("You are a question quality judge. Evaluate the following assessment item:\n\n")
	sb.WriteString("QUESTION: " + q.Stem + "\n")
	sb.WriteString(fmt.Sprintf("TYPE: %s | DIFFICULTY: %d/10 | CATEGORY: %s\n", q.Type, q.Difficulty, q.Category))
	if len(q.Choices) > 0 {
		sb.WriteString("CHOICES: " + strings.Join(q.Choices, " | ") + "\n")
	}
	if s != nil {
		if s.CorrectAnswer() != "" {
			sb.WriteString("CORRECT ANSWER: " + s.CorrectAnswer() + "\n")
		}
		if kws := s.Keywords(); len(kws) > 0 {
			sb.WriteString("EXPECTED KEYWORDS: " + strings.Join(kws, ", ") + "\n")
		}
	}
	sb.WriteString("\nJudge clarity, appropriateness for the stated difficulty, factual correctness, and freedom from bias.\n")
	sb.WriteString("Respond ONLY with a JSON object:\n")
	sb.WriteString(`{"score": <number 0.0 to 1.0>, "issues": ["<issue>", ...]}`)
	sb.WriteString("\n")
	return sb.String()
}

func buildScorePrompt(q model.Question, s *schema.Schema, answer string) string {
	var sb strings.Builder
	sb.WriteString("You are grading a short free-text answer.\n\n")
	sb.WriteString("QUESTION: " + q.Stem + "\n\n")
	if kws := s.Keywords(); len(kws) > 0 {
		sb.WriteString("EXPECTED KEY CONCEPTS: " + strings.Join(kws, ", ") + "\n\n")
	}
	sb.WriteString("REFERENCE EXPLANATION (not shown to the user):\n" + s.Explanation() + "\n\n")
	sb.WriteString("USER ANSWER:\n" + answer + "\n\n")
	sb.WriteString("Score the answer from 0 to 100 for correctness and coverage of the expected concepts.\n")
	sb.WriteString("Respond ONLY with a JSON object:\n")
	sb.WriteString(`{"score": <number 0 to 100>}`)
	sb.WriteString("\n")
	return sb.String()
}

func buildExplainPrompt(q model.Question, s *schema.Schema, correct bool) string {
	var sb strings.Builder
	sb.WriteString("You are writing a post-assessment explanation for a user.\n\n")
	sb.WriteString("QUESTION: " + q.Stem + "\n")
	if s.CorrectAnswer() != "" {
		sb.WriteString("CORRECT ANSWER: " + s.CorrectAnswer() + "\n")
	}
	if kws := s.Keywords(); len(kws) > 0 {
		sb.WriteString("KEY CONCEPTS: " + strings.Join(kws, ", ") + "\n")
	}
	sb.WriteString("BACKGROUND: " + s.Explanation() + "\n\n")
	if correct {
		sb.WriteString("The user answered correctly. Reinforce why the answer is right and deepen their understanding.\n")
	} else {
		sb.WriteString("The user answered incorrectly. Explain the right answer without condescension.\n")
	}
	sb.WriteString("Reference at least two of the key concepts or choices in your explanation.\n")
	sb.WriteString("Respond ONLY with a JSON object:\n")
	sb.WriteString(`{"explanation": "<2-4 sentences>"}`)
	sb.WriteString("\n")
	return sb.String()
}
