package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"astroreports/internal/domain"
	"astroreports/internal/middleware"
)

const maxBodyBytes = 64 << 10

type personalBody struct {
	Person domain.BirthData `json:"person"`
	Locale string           `json:"locale"`
}

type compatibilityBody struct {
	Person1 domain.BirthData `json:"person1"`
	Person2 domain.BirthData `json:"person2"`
	Locale  string           `json:"locale"`
}

// datedBody serves both forecasts and question sets. TargetDate defaults to
// the horizon's date in the person's birth timezone.
type datedBody struct {
	Person     domain.BirthData `json:"person"`
	TargetDate string           `json:"targetDate"`
	Locale     string           `json:"locale"`
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidFingerprint, err)
	}
	return nil
}

// requestLocale prefers the body's locale and falls back to the one detected
// by the i18n middleware.
func requestLocale(r *http.Request, explicit string) string {
	if strings.TrimSpace(explicit) != "" {
		return domain.NormalizeLocale(explicit)
	}
	return middleware.LocaleFromContext(r.Context())
}

func birthLocation(b domain.BirthData) *time.Location {
	return domain.Profile{Birth: b}.Location()
}

func forecastFingerprint(horizon domain.ForecastHorizon, body datedBody, locale string, now time.Time) domain.ForecastFingerprint {
	date := body.TargetDate
	if date == "" {
		date = domain.TargetDateFor(horizon, now, birthLocation(body.Person))
	}
	return domain.ForecastFingerprint{Horizon: horizon, Person: body.Person, TargetDate: date, Locale: locale}
}

func questionFingerprint(set domain.QuestionSetName, body datedBody, locale string, now time.Time) domain.QuestionSetFingerprint {
	fp := domain.QuestionSetFingerprint{Set: set, Person: body.Person, Locale: locale}
	switch set {
	case domain.QuestionSetMe:
		fp.AgeBracket = domain.AgeBracketAt(body.Person, now)
	case domain.QuestionSetDaily:
		fp.TargetDate = body.TargetDate
		if fp.TargetDate == "" {
			fp.TargetDate = domain.TargetDateFor(domain.HorizonToday, now, birthLocation(body.Person))
		}
	}
	return fp
}

// profileFingerprint builds the single-person fingerprint of kind for a
// stored profile.
func profileFingerprint(kind domain.JobKind, p *domain.Profile, locale string, now time.Time) (domain.Fingerprint, error) {
	body := datedBody{Person: p.Birth}
	switch kind {
	case domain.KindPersonalReport:
		return domain.PersonalFingerprint{Person: p.Birth, Locale: locale}, nil
	case domain.KindForecastToday:
		return forecastFingerprint(domain.HorizonToday, body, locale, now), nil
	case domain.KindForecastTomorrow:
		return forecastFingerprint(domain.HorizonTomorrow, body, locale, now), nil
	case domain.KindForecast14Day:
		return forecastFingerprint(domain.Horizon14Day, body, locale, now), nil
	case domain.KindQuestionSetMe:
		return questionFingerprint(domain.QuestionSetMe, body, locale, now), nil
	case domain.KindQuestionSetDaily:
		return questionFingerprint(domain.QuestionSetDaily, body, locale, now), nil
	default:
		return nil, fmt.Errorf("%w: kind %q cannot be built from a profile", domain.ErrInvalidFingerprint, kind)
	}
}
