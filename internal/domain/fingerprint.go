package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

const (
	BirthDateTimeLayout = "2006-01-02T15:04:05"
	TargetDateLayout    = "2006-01-02"
	DefaultLocale       = "en"
)

// Gender values accepted in birth data.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// BirthData is the structural description of one person used by every kind.
type BirthData struct {
	BirthDateTime string `json:"birthDateTime"`
	Gender        Gender `json:"gender"`
	BirthTimezone string `json:"birthTimezone"`
	IsTimeKnown   bool   `json:"isTimeKnown"`
}

// Validate checks that every field is present and parseable.
func (b BirthData) Validate() error {
	if strings.TrimSpace(b.BirthDateTime) == "" {
		return invalidf("birthDateTime is required")
	}
	if _, err := time.Parse(BirthDateTimeLayout, b.BirthDateTime); err != nil {
		return invalidf("birthDateTime must match %s", BirthDateTimeLayout)
	}
	switch b.Gender {
	case GenderMale, GenderFemale, GenderOther:
	default:
		return invalidf("gender %q is not supported", b.Gender)
	}
	if strings.TrimSpace(b.BirthTimezone) == "" {
		return invalidf("birthTimezone is required")
	}
	if _, err := time.LoadLocation(b.BirthTimezone); err != nil {
		return invalidf("birthTimezone %q is unknown", b.BirthTimezone)
	}
	return nil
}

// Instant resolves the birth moment in its own timezone. Callers must have
// validated the birth data first.
func (b BirthData) Instant() time.Time {
	loc, err := time.LoadLocation(b.BirthTimezone)
	if err != nil {
		loc = time.UTC
	}
	t, _ := time.ParseInLocation(BirthDateTimeLayout, b.BirthDateTime, loc)
	return t
}

// Fingerprint is the typed description of a generation request. Each kind has
// exactly one concrete shape; see DecodeFingerprint.
type Fingerprint interface {
	Kind() JobKind
	Validate() error
	// subject is the part of the fingerprint that identifies the logical
	// subject regardless of date or bracket details.
	subject() any
}

// TwoPartyFingerprint is implemented by fingerprints whose two parties may be
// listed in either order.
type TwoPartyFingerprint interface {
	Fingerprint
	Swapped() Fingerprint
}

// PersonalFingerprint identifies a personal profile report.
type PersonalFingerprint struct {
	Person BirthData `json:"person"`
	Locale string    `json:"locale"`
}

func (PersonalFingerprint) Kind() JobKind { return KindPersonalReport }

func (f PersonalFingerprint) Validate() error {
	if err := f.Person.Validate(); err != nil {
		return err
	}
	return validateLocale(f.Locale)
}

func (f PersonalFingerprint) subject() any { return f }

// CompatibilityFingerprint identifies a two-party compatibility report.
type CompatibilityFingerprint struct {
	Person1 BirthData `json:"person1"`
	Person2 BirthData `json:"person2"`
	Locale  string    `json:"locale"`
}

func (CompatibilityFingerprint) Kind() JobKind { return KindCompatibilityReport }

func (f CompatibilityFingerprint) Validate() error {
	if err := f.Person1.Validate(); err != nil {
		return fmt.Errorf("person1: %w", err)
	}
	if err := f.Person2.Validate(); err != nil {
		return fmt.Errorf("person2: %w", err)
	}
	return validateLocale(f.Locale)
}

// Swapped returns the same request with the parties exchanged.
func (f CompatibilityFingerprint) Swapped() Fingerprint {
	return CompatibilityFingerprint{Person1: f.Person2, Person2: f.Person1, Locale: f.Locale}
}

func (f CompatibilityFingerprint) subject() any { return orderedPair(f) }

// ForecastHorizon selects which forecast kind a ForecastFingerprint belongs to.
type ForecastHorizon string

const (
	HorizonToday    ForecastHorizon = "today"
	HorizonTomorrow ForecastHorizon = "tomorrow"
	Horizon14Day    ForecastHorizon = "14day"
)

// ForecastFingerprint identifies a forecast for one person starting at TargetDate.
type ForecastFingerprint struct {
	Horizon    ForecastHorizon `json:"horizon"`
	Person     BirthData       `json:"person"`
	TargetDate string          `json:"targetDate"`
	Locale     string          `json:"locale"`
}

func (f ForecastFingerprint) Kind() JobKind {
	switch f.Horizon {
	case HorizonToday:
		return KindForecastToday
	case HorizonTomorrow:
		return KindForecastTomorrow
	case Horizon14Day:
		return KindForecast14Day
	default:
		return ""
	}
}

func (f ForecastFingerprint) Validate() error {
	if f.Kind() == "" {
		return invalidf("forecast horizon %q is not supported", f.Horizon)
	}
	if err := f.Person.Validate(); err != nil {
		return err
	}
	if err := validateDate(f.TargetDate); err != nil {
		return err
	}
	return validateLocale(f.Locale)
}

// Days returns how many calendar days the forecast covers.
func (f ForecastFingerprint) Days() int {
	if f.Horizon == Horizon14Day {
		return 14
	}
	return 1
}

func (f ForecastFingerprint) subject() any {
	return struct {
		Horizon ForecastHorizon `json:"horizon"`
		Person  BirthData       `json:"person"`
		Locale  string          `json:"locale"`
	}{f.Horizon, f.Person, f.Locale}
}

// QuestionSetName selects which question-set kind a QuestionSetFingerprint belongs to.
type QuestionSetName string

const (
	QuestionSetMe    QuestionSetName = "me"
	QuestionSetDaily QuestionSetName = "daily"
)

// QuestionSetFingerprint identifies a personalised question set. The "me" set
// is keyed by AgeBracket, the "daily" set by TargetDate.
type QuestionSetFingerprint struct {
	Set        QuestionSetName `json:"set"`
	Person     BirthData       `json:"person"`
	AgeBracket int             `json:"ageBracket,omitempty"`
	TargetDate string          `json:"targetDate,omitempty"`
	Locale     string          `json:"locale"`
}

func (f QuestionSetFingerprint) Kind() JobKind {
	switch f.Set {
	case QuestionSetMe:
		return KindQuestionSetMe
	case QuestionSetDaily:
		return KindQuestionSetDaily
	default:
		return ""
	}
}

func (f QuestionSetFingerprint) Validate() error {
	if f.Kind() == "" {
		return invalidf("question set %q is not supported", f.Set)
	}
	if err := f.Person.Validate(); err != nil {
		return err
	}
	switch f.Set {
	case QuestionSetMe:
		if f.TargetDate != "" {
			return invalidf("targetDate is not used by the %q set", f.Set)
		}
		if f.AgeBracket < 0 || f.AgeBracket > MaxAgeBracket {
			return invalidf("ageBracket must be between 0 and %d", MaxAgeBracket)
		}
	case QuestionSetDaily:
		if f.AgeBracket != 0 {
			return invalidf("ageBracket is not used by the %q set", f.Set)
		}
		if err := validateDate(f.TargetDate); err != nil {
			return err
		}
	}
	return validateLocale(f.Locale)
}

func (f QuestionSetFingerprint) subject() any {
	return struct {
		Set    QuestionSetName `json:"set"`
		Person BirthData       `json:"person"`
		Locale string          `json:"locale"`
	}{f.Set, f.Person, f.Locale}
}

// DecodeFingerprint maps a stored or submitted fingerprint to the one shape
// valid for kind.
func DecodeFingerprint(kind JobKind, raw []byte) (Fingerprint, error) {
	var (
		fp  Fingerprint
		err error
	)
	switch kind {
	case KindPersonalReport:
		var v PersonalFingerprint
		err = json.Unmarshal(raw, &v)
		fp = v
	case KindCompatibilityReport:
		var v CompatibilityFingerprint
		err = json.Unmarshal(raw, &v)
		fp = v
	case KindForecastToday, KindForecastTomorrow, KindForecast14Day:
		var v ForecastFingerprint
		err = json.Unmarshal(raw, &v)
		fp = v
	case KindQuestionSetMe, KindQuestionSetDaily:
		var v QuestionSetFingerprint
		err = json.Unmarshal(raw, &v)
		fp = v
	default:
		return nil, invalidf("unknown kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s fingerprint: %v", ErrInvalidFingerprint, kind, err)
	}
	if fp.Kind() != kind {
		return nil, invalidf("fingerprint shape belongs to %q, not %q", fp.Kind(), kind)
	}
	return fp, nil
}

// EncodeFingerprint returns the canonical encoding of fp. Struct field order is
// fixed, so equal fingerprints always encode to equal bytes.
func EncodeFingerprint(fp Fingerprint) ([]byte, error) {
	if fp == nil {
		return nil, invalidf("fingerprint is required")
	}
	return json.Marshal(fp)
}

// EqualFingerprints compares two fingerprints field by field through their
// canonical encodings.
func EqualFingerprints(a, b Fingerprint) bool {
	if a == nil || b == nil || a.Kind() != b.Kind() {
		return false
	}
	ea, err := EncodeFingerprint(a)
	if err != nil {
		return false
	}
	eb, err := EncodeFingerprint(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

// FingerprintKeys are the content-derived lookup keys of a fingerprint.
type FingerprintKeys struct {
	// Hash identifies the fingerprint exactly, including party order.
	Hash string
	// MatchKey is equal for both orderings of a two-party fingerprint.
	MatchKey string
	// SubjectKey identifies the logical subject without date/bracket details.
	SubjectKey string
}

// KeysFor derives the lookup keys of fp.
func KeysFor(fp Fingerprint) (FingerprintKeys, error) {
	hash, err := HashFingerprint(fp)
	if err != nil {
		return FingerprintKeys{}, err
	}
	keys := FingerprintKeys{Hash: hash, MatchKey: hash}
	if tp, ok := fp.(CompatibilityFingerprint); ok {
		keys.MatchKey, err = HashFingerprint(orderedPair(tp))
		if err != nil {
			return FingerprintKeys{}, err
		}
	}
	keys.SubjectKey, err = hashValue(fp.Kind(), fp.subject())
	if err != nil {
		return FingerprintKeys{}, err
	}
	return keys, nil
}

// HashFingerprint returns the hex SHA-256 of the kind-prefixed canonical encoding.
func HashFingerprint(fp Fingerprint) (string, error) {
	if fp == nil {
		return "", invalidf("fingerprint is required")
	}
	return hashValue(fp.Kind(), fp)
}

func hashValue(kind JobKind, v any) (string, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode fingerprint: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{'\n'})
	h.Write(encoded)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// orderedPair puts the lexically smaller party first so both orderings of the
// same pair produce one value.
func orderedPair(f CompatibilityFingerprint) CompatibilityFingerprint {
	a, _ := json.Marshal(f.Person1)
	b, _ := json.Marshal(f.Person2)
	if bytes.Compare(a, b) > 0 {
		return CompatibilityFingerprint{Person1: f.Person2, Person2: f.Person1, Locale: f.Locale}
	}
	return f
}

// NormalizeLocale reduces a BCP-47 tag to its base language, defaulting to en.
func NormalizeLocale(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultLocale
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return DefaultLocale
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return DefaultLocale
	}
	return base.String()
}

// MaxAgeBracket is the bracket for everyone aged 150 or more.
const MaxAgeBracket = 15

// AgeBracketAt returns the decade bracket (0 for 0–9, 1 for 10–19, ...) of the
// person at now, capped at MaxAgeBracket.
func AgeBracketAt(b BirthData, now time.Time) int {
	born := b.Instant()
	if born.IsZero() || now.Before(born) {
		return 0
	}
	years := now.Year() - born.Year()
	if now.YearDay() < born.YearDay() {
		years--
	}
	if years < 0 {
		years = 0
	}
	return min(years/10, MaxAgeBracket)
}

// TargetDateFor resolves the calendar date a forecast horizon starts at, seen
// from loc.
func TargetDateFor(h ForecastHorizon, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	day := now.In(loc)
	if h == HorizonTomorrow {
		day = day.AddDate(0, 0, 1)
	}
	return day.Format(TargetDateLayout)
}

func validateDate(v string) error {
	if strings.TrimSpace(v) == "" {
		return invalidf("targetDate is required")
	}
	if _, err := time.Parse(TargetDateLayout, v); err != nil {
		return invalidf("targetDate must match %s", TargetDateLayout)
	}
	return nil
}

func validateLocale(v string) error {
	if strings.TrimSpace(v) == "" {
		return invalidf("locale is required")
	}
	if NormalizeLocale(v) != v {
		return invalidf("locale %q is not normalised", v)
	}
	return nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidFingerprint, fmt.Sprintf(format, args...))
}
