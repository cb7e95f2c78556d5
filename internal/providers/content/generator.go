package content

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"astroreports/internal/domain"
)

// Request describes one piece of generated content. The generator answers
// with exactly one section per topic, in order.
type Request struct {
	Kind    domain.JobKind
	Locale  string
	Subject string
	Facts   map[string]string
	Topics  []string
}

type Response struct {
	Title    string            `json:"title"`
	Summary  string            `json:"summary"`
	Sections []domain.Section  `json:"sections"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Provider string            `json:"-"`
}

type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// StaticGenerator renders templated text from the request facts. It is used
// when no LLM key is configured and as an optional fallback.
type StaticGenerator struct{}

func NewStaticGenerator() *StaticGenerator {
	return &StaticGenerator{}
}

func (s *StaticGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Topics) == 0 {
		return nil, fmt.Errorf("%w: no topics requested", domain.ErrProviderFailure)
	}
	locale := coalesce(req.Locale, domain.DefaultLocale)
	title := cases.Title(language.Make(locale))

	res := &Response{
		Title:    title.String(kindLabel(req.Kind)),
		Summary:  staticSummary(req),
		Metadata: map[string]string{"locale": locale},
		Provider: staticProviderName,
	}
	for i, topic := range req.Topics {
		res.Sections = append(res.Sections, domain.Section{
			Heading: title.String(topic),
			Body:    staticBody(req, topic, i),
		})
	}
	return res, nil
}

func kindLabel(kind domain.JobKind) string {
	switch kind {
	case domain.KindPersonalReport:
		return "personal report"
	case domain.KindCompatibilityReport:
		return "compatibility report"
	case domain.KindForecastToday:
		return "today's forecast"
	case domain.KindForecastTomorrow:
		return "tomorrow's forecast"
	case domain.KindForecast14Day:
		return "fourteen day forecast"
	case domain.KindQuestionSetMe, domain.KindQuestionSetDaily:
		return "your questions"
	default:
		return "report"
	}
}

func staticSummary(req Request) string {
	subject := coalesce(req.Subject, "you")
	if len(req.Facts) == 0 {
		return fmt.Sprintf("A reading prepared for %s.", subject)
	}
	return fmt.Sprintf("A reading prepared for %s, drawn from %s.", subject, describeFacts(req.Facts))
}

func staticBody(req Request, topic string, index int) string {
	sun := coalesce(req.Facts["sun"], "your sun sign")
	element := strings.ToLower(coalesce(req.Facts["element"], "elemental"))
	tones := []string{
		"steady progress rewards patience",
		"a small risk opens a useful door",
		"honest conversation clears the air",
		"rest restores more than effort today",
	}
	return fmt.Sprintf("On %s, the %s nature of %s suggests that %s.", strings.ToLower(topic), element, sun, tones[index%len(tones)])
}

func describeFacts(facts map[string]string) string {
	keys := make([]string, 0, len(facts))
	for k := range facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := strings.TrimSpace(facts[k]); v != "" {
			parts = append(parts, strings.ReplaceAll(k, "_", " ")+" "+v)
		}
	}
	return strings.Join(parts, ", ")
}

var _ Generator = (*StaticGenerator)(nil)
