package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/change-monitor/internal/config"
	"github.com/sells-group/change-monitor/internal/model"
	"github.com/sells-group/change-monitor/pkg/anthropic"
	"github.com/sells-group/change-monitor/pkg/gemini"
)

const systemPrompt = `You are a competitive-intelligence analyst. You compare two versions of a
web page belonging to a tracked company and rate how important the change is
to someone following that company.

Score from 1 to 10:
1-3: cosmetic edits, dates, typos, reordered navigation
4-6: new blog posts, minor product or copy updates
7-8: pricing changes, new products, leadership or partnership news
9-10: acquisitions, layoffs, legal action, security incidents, shutdowns

Reply with JSON only: {"score": <integer 1-10>, "reasoning": "<one or two sentences>"}`

const defaultMaxPromptChars = 6000

// buildPrompt renders the user prompt, truncating each version to maxChars
// code points.
func buildPrompt(previousText, currentText, entityID string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = defaultMaxPromptChars
	}
	prev := truncate(previousText, maxChars)
	if prev == "" {
		prev = "(no previous version recorded)"
	}
	return fmt.Sprintf("Company: %s\n\n<previous>\n%s\n</previous>\n\n<current>\n%s\n</current>",
		entityID, prev, truncate(currentText, maxChars))
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + " …"
}

type aiReply struct {
	Score     *float64 `json:"score"`
	Reasoning string   `json:"reasoning"`
}

// parseReply reads the JSON object in a model reply, tolerating surrounding
// prose or code fences.
func parseReply(text string) (*model.ScoreResult, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, eris.Errorf("scorer: no JSON object in reply %q", truncate(text, 200))
	}
	var r aiReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &r); err != nil {
		return nil, eris.Wrap(err, "scorer: decode reply")
	}
	if r.Score == nil {
		return nil, eris.New("scorer: reply has no score")
	}
	return &model.ScoreResult{
		Score:     int(math.Round(*r.Score)),
		Reasoning: strings.TrimSpace(r.Reasoning),
		Method:    model.ScoreMethodAI,
	}, nil
}

// ClaudeScorer scores changes with Anthropic Claude.
type ClaudeScorer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	maxChars  int
}

// NewClaudeScorer creates a ClaudeScorer.
func NewClaudeScorer(client anthropic.Client, modelID string, maxTokens int64, maxChars int) *ClaudeScorer {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &ClaudeScorer{client: client, model: modelID, maxTokens: maxTokens, maxChars: maxChars}
}

// ScoreChange implements AIScorer.
func (c *ClaudeScorer) ScoreChange(ctx context.Context, previousText, currentText, entityID string) (*model.ScoreResult, error) {
	temp := 0.0
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      systemPrompt,
		Prompt:      buildPrompt(previousText, currentText, entityID, c.maxChars),
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "scorer: claude")
	}
	resp.Usage.LogCost(c.model, "score_change")
	return parseReply(resp.Text)
}

// GeminiScorer scores changes with Google Gemini structured output.
type GeminiScorer struct {
	client   gemini.Client
	model    string
	maxChars int
}

// NewGeminiScorer creates a GeminiScorer.
func NewGeminiScorer(client gemini.Client, modelID string, maxChars int) *GeminiScorer {
	return &GeminiScorer{client: client, model: modelID, maxChars: maxChars}
}

func scoreSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"score":     {Type: genai.TypeInteger, Description: "Relevance of the change from 1 to 10."},
			"reasoning": {Type: genai.TypeString, Description: "One or two sentences explaining the score."},
		},
		Required: []string{"score", "reasoning"},
	}
}

// ScoreChange implements AIScorer.
func (g *GeminiScorer) ScoreChange(ctx context.Context, previousText, currentText, entityID string) (*model.ScoreResult, error) {
	temp := float32(0)
	text, err := g.client.GenerateJSON(ctx, gemini.Request{
		Model:             g.model,
		SystemInstruction: systemPrompt,
		Prompt:            buildPrompt(previousText, currentText, entityID, g.maxChars),
		Schema:            scoreSchema(),
		Temperature:       &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "scorer: gemini")
	}
	return parseReply(text)
}

// NewAIScorer builds the AI strategy selected by cfg.Scoring.Provider. It
// returns nil when AI scoring is disabled.
func NewAIScorer(ctx context.Context, cfg *config.Config) (AIScorer, error) {
	switch cfg.Scoring.Provider {
	case "", config.ProviderNone:
		return nil, nil
	case config.ProviderAnthropic:
		client := anthropic.NewClient(cfg.Anthropic.Key)
		return NewClaudeScorer(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, cfg.Scoring.MaxPromptChars), nil
	case config.ProviderGemini:
		client, err := gemini.NewClient(ctx, cfg.Gemini.Key)
		if err != nil {
			return nil, eris.Wrap(err, "scorer: gemini client")
		}
		return NewGeminiScorer(client, cfg.Gemini.Model, cfg.Scoring.MaxPromptChars), nil
	default:
		return nil, eris.Errorf("scorer: unknown provider %q", cfg.Scoring.Provider)
	}
}
