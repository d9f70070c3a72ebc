package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/bioagentlabs/bioagent/pkg/agent"
	"github.com/bioagentlabs/bioagent/pkg/llms"
)

const routerPrompt = `You route bioinformatics queries to specialists. Available specialists:
%s
Reply with JSON only: {"specialists": ["id", ...], "reason": "..."}.
Pick 1-%d specialists, primary first. Use "general" when nothing fits.`

// Routing is one routing decision.
type Routing struct {
	Specialists []string // primary first
	Confidence  float64
	Reason      string
	ViaLLM      bool
}

// Router selects specialists for a query. Keyword matching handles the
// unambiguous cases; the rest fall through to a small LLM call.
type Router struct {
	provider   llms.Provider
	model      string
	confidence float64
	maxPick    int
}

// NewRouter creates a router. confidence is the keyword-score threshold
// below which the LLM is consulted.
func NewRouter(provider llms.Provider, model string, confidence float64, maxPick int) *Router {
	if maxPick < 1 {
		maxPick = 1
	}
	return &Router{provider: provider, model: model, confidence: confidence, maxPick: maxPick}
}

// Route picks specialists for the query.
func (r *Router) Route(ctx context.Context, query string) (*Routing, error) {
	if routing := r.routeByKeywords(query); routing.Confidence >= r.confidence {
		return routing, nil
	}

	if r.provider == nil {
		return fallbackRouting("no router model configured"), nil
	}

	routing, err := r.routeByLLM(ctx, query)
	if err != nil {
		// Routing must never sink a turn.
		return fallbackRouting(fmt.Sprintf("router model failed (%v)", err)), nil
	}
	return routing, nil
}

func fallbackRouting(reason string) *Routing {
	return &Routing{
		Specialists: []string{agent.SpecialistGeneral},
		Confidence:  0,
		Reason:      reason,
	}
}

// routeByKeywords scores each specialist by keyword hits. Confidence is
// the winner's share of all hits, zero when nothing matches.
func (r *Router) routeByKeywords(query string) *Routing {
	lower := strings.ToLower(query)

	type scored struct {
		id   string
		hits int
	}
	var scores []scored
	total := 0

	for _, s := range agent.Specialists() {
		hits := 0
		for _, kw := range s.Keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > 0 {
			scores = append(scores, scored{id: s.ID, hits: hits})
			total += hits
		}
	}

	if total == 0 {
		return fallbackRouting("no keyword match")
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].hits > scores[j].hits })

	var ids []string
	for _, s := range scores {
		ids = append(ids, s.id)
		if len(ids) == r.maxPick {
			break
		}
	}

	return &Routing{
		Specialists: ids,
		Confidence:  float64(scores[0].hits) / float64(total),
		Reason:      fmt.Sprintf("keyword match (%d/%d hits for %s)", scores[0].hits, total, scores[0].id),
	}
}

type routerReply struct {
	Specialists []string `json:"specialists"`
	Reason      string   `json:"reason"`
}

func (r *Router) routeByLLM(ctx context.Context, query string) (*Routing, error) {
	var roster strings.Builder
	for _, s := range agent.Specialists() {
		if s.ID == agent.SpecialistQC {
			continue
		}
		fmt.Fprintf(&roster, "- %s: %s\n", s.ID, s.Description)
	}

	resp, err := r.provider.Generate(ctx, llms.Request{
		Model:     r.model,
		System:    fmt.Sprintf(routerPrompt, roster.String(), r.maxPick),
		Messages:  []llms.Message{llms.TextMessage(llms.RoleUser, query)},
		MaxTokens: 256,
	})
	if err != nil {
		return nil, err
	}

	var reply routerReply
	text := strings.TrimSpace(resp.Message.Text())
	if err := json.Unmarshal([]byte(extractJSON(text)), &reply); err != nil {
		return nil, fmt.Errorf("unparseable routing reply %q: %w", text, err)
	}

	var ids []string
	for _, id := range reply.Specialists {
		if _, ok := agent.SpecialistByID(id); ok && id != agent.SpecialistQC {
			ids = append(ids, id)
		}
		if len(ids) == r.maxPick {
			break
		}
	}
	if len(ids) == 0 {
		ids = []string{agent.SpecialistGeneral}
	}

	return &Routing{Specialists: ids, Confidence: 1, Reason: reply.Reason, ViaLLM: true}, nil
}

// extractJSON trims prose or fences around a JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
