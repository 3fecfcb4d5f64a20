package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sentryforge/gateway/pkg/llm"
	"github.com/sentryforge/gateway/pkg/schema"
)

const mathQuestionTemplate = `You are a careful math tutor. Solve the following question and respond ONLY with JSON of the form {"answer": "...", "explanation": "...", "steps": ["...", "..."]}.

Question: %s`

// MathQuestionHandler answers the single in-scope action, MathQuestion. It
// builds its prompt from the intent's sanitized topic id only — never from
// raw user input or content refs — so a sanitization bypass earlier in the
// pipeline cannot smuggle unsanitized text into a model call here.
type MathQuestionHandler struct {
	Client llm.Client
}

func (h MathQuestionHandler) Handle(ctx context.Context, intent schema.TrustedIntent) (map[string]any, error) {
	question := strings.ReplaceAll(intent.TopicID, "_", " ")
	prompt := fmt.Sprintf(mathQuestionTemplate, question)

	resp, err := h.Client.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, nil, &llm.SamplingOptions{Temperature: 0})
	if err != nil {
		return nil, fmt.Errorf("solve_math_question: model call: %w", err)
	}

	var parsed struct {
		Answer      string   `json:"answer"`
		Explanation string   `json:"explanation"`
		Steps       []string `json:"steps"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); err != nil {
		return nil, fmt.Errorf("solve_math_question: parse model response: %w", err)
	}
	if parsed.Answer == "" {
		return nil, fmt.Errorf("solve_math_question: model returned an empty answer")
	}

	return map[string]any{
		"answer":      parsed.Answer,
		"explanation": parsed.Explanation,
		"steps":       parsed.Steps,
	}, nil
}

// extractJSON trims leading/trailing fenced-code markers some chat models
// wrap their JSON output in.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
