// Package llm is the text-structuring fallback capability: an
// OpenAI-compatible chat client that asks a model to fill the structured
// fields when rule-based extraction lands in the review band. Calls go
// through a circuit breaker and a rate limiter; the engine never depends on
// this package being available.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/intellidevice/engine/engine/domain"
	"github.com/intellidevice/engine/engine/terminology"
	"github.com/intellidevice/engine/pkg/resilience"
)

// Matcher supplies candidate vocabulary terms for the prompt.
type Matcher interface {
	Search(text string, categories []string, topK int, threshold float64) (map[string][]terminology.Match, error)
}

// Options configures the client.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// RPS and Burst bound the request rate toward the provider.
	RPS   float64
	Burst int
}

// DefaultOptions returns the standard configuration.
func DefaultOptions() Options {
	return Options{
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
		Timeout: 30 * time.Second,
		RPS:     2,
		Burst:   4,
	}
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	opts    Options
	matcher Matcher
	http    *http.Client
	breaker *resilience.Breaker
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates a client. matcher may be nil; candidate terms are then omitted
// from the prompt and the model answers free-form.
func New(opts Options, matcher Matcher, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.RPS <= 0 {
		opts.RPS = DefaultOptions().RPS
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultOptions().Burst
	}
	return &Client{
		opts:    opts,
		matcher: matcher,
		http:    &http.Client{Timeout: opts.Timeout},
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		log:     log,
	}
}

const systemPrompt = `你是医疗器械不良事件结构化助手。根据事件描述提取五个字段：
device_issue（设备问题）、failure_mode（故障模式）、clinical_manifestation（临床表现）、
health_impact（健康影响）、treatment_action（处置措施）。
如提供候选术语，优先从候选中选择，并在 matched_terms 数组中给出
{field, category, code, term, score}。
仅输出JSON对象，键为上述字段名加 matched_terms；无法判断的字段输出空字符串。`

// termCategories are the vocabulary categories offered as candidates:
// failure modes, clinical manifestations, health impacts.
var termCategories = []string{"A", "E", "F"}

// candidateFloor is the minimum candidate count requested per category.
const candidateFloor = 10

type candidate struct {
	Code  string  `json:"code"`
	Term  string  `json:"term"`
	Score float64 `json:"score"`
}

// prepareCandidates searches the vocabulary with no score threshold so the
// model always sees the nearest terms, even weak ones.
func (c *Client) prepareCandidates(text string, topK int) map[string][]candidate {
	if c.matcher == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	k := topK
	if k < candidateFloor {
		k = candidateFloor
	}
	found, err := c.matcher.Search(text, termCategories, k, 0)
	if err != nil {
		c.log.Debug("candidate search failed", "error", err)
		return nil
	}
	out := make(map[string][]candidate, len(found))
	for cat, matches := range found {
		cs := make([]candidate, 0, len(matches))
		for _, m := range matches {
			cs = append(cs, candidate{Code: m.Term.Code, Term: m.Term.Label, Score: m.Score})
		}
		if len(cs) > 0 {
			out[cat] = cs
		}
	}
	return out
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// payloadMatch is a vocabulary selection reported by the model.
type payloadMatch struct {
	Field    string  `json:"field"`
	Category string  `json:"category"`
	Code     string  `json:"code"`
	Term     string  `json:"term"`
	Score    float64 `json:"score"`
}

// fieldsPayload is the model's expected output shape.
type fieldsPayload struct {
	DeviceIssue           string         `json:"device_issue"`
	FailureMode           string         `json:"failure_mode"`
	ClinicalManifestation string         `json:"clinical_manifestation"`
	HealthImpact          string         `json:"health_impact"`
	TreatmentAction       string         `json:"treatment_action"`
	Matches               []payloadMatch `json:"matched_terms"`
}

// Structure implements the structuring capability: one chat call guided by
// candidate terms, parsed into a structured record.
func (c *Client) Structure(ctx context.Context, text string, topK int) (domain.StructuredRecord, error) {
	var rec domain.StructuredRecord

	if err := c.limiter.Wait(ctx); err != nil {
		return rec, fmt.Errorf("llm: rate limit wait: %w", err)
	}

	candidates := c.prepareCandidates(text, topK)
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		payload, err := c.complete(ctx, text, candidates)
		if err != nil {
			return err
		}
		rec = recordFromPayload(payload)
		return nil
	})
	if err != nil {
		return domain.StructuredRecord{}, err
	}
	return rec, nil
}

func (c *Client) complete(ctx context.Context, text string, candidates map[string][]candidate) (fieldsPayload, error) {
	var payload fieldsPayload

	user := text
	if len(candidates) > 0 {
		cj, err := json.Marshal(candidates)
		if err != nil {
			return payload, fmt.Errorf("llm: marshal candidates: %w", err)
		}
		user = "事件描述：" + text + "\n候选术语：" + string(cj)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return payload, fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.opts.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return payload, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return payload, fmt.Errorf("llm: call: %w", err)
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return payload, fmt.Errorf("llm: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if out.Error != nil {
			msg = out.Error.Message
		}
		return payload, fmt.Errorf("llm: status %d: %s", resp.StatusCode, msg)
	}
	if len(out.Choices) == 0 {
		return payload, fmt.Errorf("llm: empty response")
	}

	content := strings.TrimSpace(out.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &payload); err != nil {
		return payload, fmt.Errorf("llm: parse model output: %w", err)
	}
	return payload, nil
}

// matchedConfidence is the confidence assigned to a field the model filled
// without citing a vocabulary term.
const matchedConfidence = 0.6

func recordFromPayload(p fieldsPayload) domain.StructuredRecord {
	rec := domain.StructuredRecord{
		DeviceIssue:           strings.TrimSpace(p.DeviceIssue),
		FailureMode:           strings.TrimSpace(p.FailureMode),
		ClinicalManifestation: strings.TrimSpace(p.ClinicalManifestation),
		HealthImpact:          strings.TrimSpace(p.HealthImpact),
		TreatmentAction:       strings.TrimSpace(p.TreatmentAction),
		FieldConfidence:       make(map[domain.Field]float64),
	}
	for _, f := range domain.Fields {
		if rec.Value(f) != "" {
			rec.FieldConfidence[f] = matchedConfidence
		} else {
			rec.FieldConfidence[f] = 0
		}
	}
	for _, m := range p.Matches {
		field, ok := domain.CanonicalField(m.Field)
		if !ok || strings.TrimSpace(m.Term) == "" {
			continue
		}
		score := m.Score
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		rec.MatchedTerms = append(rec.MatchedTerms, domain.MatchedTerm{
			Field:      field,
			Category:   strings.ToUpper(strings.TrimSpace(m.Category)),
			Code:       strings.TrimSpace(m.Code),
			Term:       strings.TrimSpace(m.Term),
			Similarity: score,
		})
		if rec.Value(field) == "" {
			rec.SetValue(field, strings.TrimSpace(m.Term))
		}
		if score > rec.FieldConfidence[field] {
			rec.FieldConfidence[field] = score
		}
	}
	total := 0.0
	for _, f := range domain.Fields {
		total += rec.FieldConfidence[f]
	}
	rec.Confidence = total / float64(len(domain.Fields))
	return rec
}
