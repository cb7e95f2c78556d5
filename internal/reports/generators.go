package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"astroreports/internal/domain"
	"astroreports/internal/providers/chart"
	"astroreports/internal/providers/content"
)

// Generator produces the payload of one kind from its fingerprint.
type Generator interface {
	Generate(ctx context.Context, fp domain.Fingerprint) (any, error)
}

type GeneratorFunc func(ctx context.Context, fp domain.Fingerprint) (any, error)

func (f GeneratorFunc) Generate(ctx context.Context, fp domain.Fingerprint) (any, error) {
	return f(ctx, fp)
}

// Generators routes a job to the generator registered for its kind.
type Generators map[domain.JobKind]Generator

// Generate runs the kind routine for job and encodes its payload.
func (g Generators) Generate(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	gen, ok := g[job.Kind]
	if !ok {
		return nil, fmt.Errorf("no generator registered for kind %q", job.Kind)
	}
	payload, err := gen.Generate(ctx, job.Fingerprint)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: %s generator returned no payload", domain.ErrProviderFailure, job.Kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", job.Kind, err)
	}
	return raw, nil
}

var (
	personalTopics      = []string{"personality", "relationships", "career", "growth"}
	compatibilityTopics = []string{"attraction", "communication", "friction", "long-term potential"}
)

var questionBank = []string{
	"What am I here to learn right now?",
	"Where should I put my energy this season?",
	"What pattern keeps repeating in my relationships?",
	"How can I make peace with change?",
	"What strength am I underusing?",
	"What should I let go of?",
	"Where does my confidence come from?",
	"How do I recognise the right opportunity?",
	"What does rest look like for me?",
	"What conversation have I been avoiding?",
	"How can I be kinder to myself?",
	"What am I ready to start?",
}

const (
	meQuestionCount    = 5
	dailyQuestionCount = 3
)

type kindGenerators struct {
	engine chart.Engine
	writer content.Generator
}

// NewGenerators wires the generation routine of every kind to the chart
// engine and the content writer.
func NewGenerators(engine chart.Engine, writer content.Generator) Generators {
	g := &kindGenerators{engine: engine, writer: writer}
	return Generators{
		domain.KindPersonalReport:      GeneratorFunc(g.personal),
		domain.KindCompatibilityReport: GeneratorFunc(g.compatibility),
		domain.KindForecastToday:       GeneratorFunc(g.forecast),
		domain.KindForecastTomorrow:    GeneratorFunc(g.forecast),
		domain.KindForecast14Day:       GeneratorFunc(g.forecast),
		domain.KindQuestionSetMe:       GeneratorFunc(g.questions),
		domain.KindQuestionSetDaily:    GeneratorFunc(g.questions),
	}
}

func (g *kindGenerators) personal(ctx context.Context, fp domain.Fingerprint) (any, error) {
	f, ok := fp.(domain.PersonalFingerprint)
	if !ok {
		return nil, unexpectedShape(fp)
	}
	natal, err := g.engine.Natal(ctx, f.Person)
	if err != nil {
		return nil, fmt.Errorf("natal chart: %w", err)
	}
	res, err := g.write(ctx, content.Request{
		Kind:    f.Kind(),
		Locale:  f.Locale,
		Subject: describeChart(natal),
		Facts:   natal.Facts(),
		Topics:  personalTopics,
	})
	if err != nil {
		return nil, err
	}
	return &domain.PersonalReport{
		Title:    res.Title,
		Summary:  res.Summary,
		Facts:    natal.Facts(),
		Sections: res.Sections,
	}, nil
}

func (g *kindGenerators) compatibility(ctx context.Context, fp domain.Fingerprint) (any, error) {
	f, ok := fp.(domain.CompatibilityFingerprint)
	if !ok {
		return nil, unexpectedShape(fp)
	}
	syn, err := g.engine.Synastry(ctx, f.Person1, f.Person2)
	if err != nil {
		return nil, fmt.Errorf("synastry: %w", err)
	}
	facts := map[string]string{
		"first_sun":   syn.First.SunSign,
		"second_sun":  syn.Second.SunSign,
		"first_moon":  syn.First.MoonSign,
		"second_moon": syn.Second.MoonSign,
		"score":       strconv.Itoa(syn.Score),
		"aspects":     strings.Join(syn.Aspects, "; "),
	}
	res, err := g.write(ctx, content.Request{
		Kind:    f.Kind(),
		Locale:  f.Locale,
		Subject: describeChart(&syn.First) + " with " + describeChart(&syn.Second),
		Facts:   facts,
		Topics:  compatibilityTopics,
	})
	if err != nil {
		return nil, err
	}
	return &domain.CompatibilityReport{
		Title:    res.Title,
		Score:    syn.Score,
		Summary:  res.Summary,
		Sections: res.Sections,
	}, nil
}

func (g *kindGenerators) forecast(ctx context.Context, fp domain.Fingerprint) (any, error) {
	f, ok := fp.(domain.ForecastFingerprint)
	if !ok {
		return nil, unexpectedShape(fp)
	}
	start, err := time.Parse(domain.TargetDateLayout, f.TargetDate)
	if err != nil {
		return nil, fmt.Errorf("forecast start: %w", err)
	}
	natal, err := g.engine.Natal(ctx, f.Person)
	if err != nil {
		return nil, fmt.Errorf("natal chart: %w", err)
	}

	facts := natal.Facts()
	dates := make([]string, 0, f.Days())
	transits := make([]*chart.Transit, 0, f.Days())
	for i := 0; i < f.Days(); i++ {
		date := start.AddDate(0, 0, i).Format(domain.TargetDateLayout)
		tr, err := g.engine.Transits(ctx, f.Person, date)
		if err != nil {
			return nil, fmt.Errorf("transits %s: %w", date, err)
		}
		dates = append(dates, date)
		transits = append(transits, tr)
		facts["transit_"+date] = fmt.Sprintf("moon in %s, %s, intensity %d", tr.MoonSign, tr.Theme, tr.Intensity)
	}

	res, err := g.write(ctx, content.Request{
		Kind:    f.Kind(),
		Locale:  f.Locale,
		Subject: describeChart(natal),
		Facts:   facts,
		Topics:  dates,
	})
	if err != nil {
		return nil, err
	}
	out := &domain.Forecast{Title: res.Title, Days: make([]domain.ForecastDay, 0, len(dates))}
	for i, date := range dates {
		out.Days = append(out.Days, domain.ForecastDay{
			Date:     date,
			Headline: fmt.Sprintf("Moon in %s: %s", transits[i].MoonSign, transits[i].Theme),
			Body:     res.Sections[i].Body,
		})
	}
	return out, nil
}

func (g *kindGenerators) questions(ctx context.Context, fp domain.Fingerprint) (any, error) {
	f, ok := fp.(domain.QuestionSetFingerprint)
	if !ok {
		return nil, unexpectedShape(fp)
	}
	natal, err := g.engine.Natal(ctx, f.Person)
	if err != nil {
		return nil, fmt.Errorf("natal chart: %w", err)
	}
	prompts := pickQuestions(f)
	facts := natal.Facts()
	if f.Set == domain.QuestionSetMe {
		facts["age_bracket"] = fmt.Sprintf("%d-%d", f.AgeBracket*10, f.AgeBracket*10+9)
	}
	res, err := g.write(ctx, content.Request{
		Kind:    f.Kind(),
		Locale:  f.Locale,
		Subject: describeChart(natal),
		Facts:   facts,
		Topics:  prompts,
	})
	if err != nil {
		return nil, err
	}
	out := &domain.QuestionSet{Title: res.Title, Questions: make([]domain.Question, 0, len(prompts))}
	for i, prompt := range prompts {
		out.Questions = append(out.Questions, domain.Question{Prompt: prompt, Answer: res.Sections[i].Body})
	}
	return out, nil
}

// write asks the content writer for one section per topic and rejects
// responses that come back short.
func (g *kindGenerators) write(ctx context.Context, req content.Request) (*content.Response, error) {
	res, err := g.writer.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if res == nil || len(res.Sections) < len(req.Topics) {
		got := 0
		if res != nil {
			got = len(res.Sections)
		}
		return nil, fmt.Errorf("%w: content writer returned %d of %d sections", domain.ErrProviderFailure, got, len(req.Topics))
	}
	for _, s := range res.Sections[:len(req.Topics)] {
		if strings.TrimSpace(s.Body) == "" {
			return nil, fmt.Errorf("%w: content writer returned an empty section", domain.ErrProviderFailure)
		}
	}
	return res, nil
}

// pickQuestions selects a stable subset of the bank: the "me" set rotates
// with the age bracket, the daily set with the day of year.
func pickQuestions(f domain.QuestionSetFingerprint) []string {
	count, offset := meQuestionCount, f.AgeBracket*meQuestionCount
	if f.Set == domain.QuestionSetDaily {
		count = dailyQuestionCount
		if day, err := time.Parse(domain.TargetDateLayout, f.TargetDate); err == nil {
			offset = day.YearDay() * dailyQuestionCount
		}
	}
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, questionBank[(offset+i)%len(questionBank)])
	}
	return out
}

func describeChart(c *chart.Chart) string {
	if c == nil {
		return ""
	}
	parts := []string{c.SunSign + " sun", c.MoonSign + " moon"}
	if c.Rising != "" {
		parts = append(parts, c.Rising+" rising")
	}
	return strings.Join(parts, ", ")
}

func unexpectedShape(fp domain.Fingerprint) error {
	return fmt.Errorf("%w: unexpected fingerprint shape %T", domain.ErrInvalidFingerprint, fp)
}
