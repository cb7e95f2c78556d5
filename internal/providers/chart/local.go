package chart

import (
	"context"
	"fmt"
	"math"
	"time"

	"astroreports/internal/domain"
)

var signs = [12]string{
	"Aries", "Taurus", "Gemini", "Cancer", "Leo", "Virgo",
	"Libra", "Scorpio", "Sagittarius", "Capricorn", "Aquarius", "Pisces",
}

var elements = [4]string{"Fire", "Earth", "Air", "Water"}

var modalities = [3]string{"Cardinal", "Fixed", "Mutable"}

// First day of the sign that starts inside each month, and that sign's index.
var (
	signStartDay   = [12]int{20, 19, 21, 20, 21, 21, 23, 23, 23, 23, 22, 22}
	signStartIndex = [12]int{10, 11, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
)

const siderealMonthDays = 27.321661

// New moon of 2000-01-06, with the moon in Capricorn.
var moonEpoch = time.Date(2000, 1, 6, 18, 14, 0, 0, time.UTC)

const moonEpochIndex = 9

// LocalEngine computes coarse sun/moon/rising facts without network access.
// It is deterministic and backs development setups and tests.
type LocalEngine struct{}

// NewLocalEngine returns the in-process engine.
func NewLocalEngine() *LocalEngine {
	return &LocalEngine{}
}

func (LocalEngine) Natal(ctx context.Context, birth domain.BirthData) (*Chart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := birth.Validate(); err != nil {
		return nil, fmt.Errorf("natal chart: %w", err)
	}
	return natal(birth), nil
}

func (LocalEngine) Synastry(ctx context.Context, a, b domain.BirthData) (*Synastry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("synastry first: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("synastry second: %w", err)
	}
	first, second := natal(a), natal(b)
	sunA, sunB := signIndex(first.SunSign), signIndex(second.SunSign)
	moonA, moonB := signIndex(first.MoonSign), signIndex(second.MoonSign)

	score := elementAffinity(sunA, sunB)
	if moonA == moonB {
		score += 8
	}
	if aspectBetween(sunA, sunB) == "opposition" {
		score += 5
	}
	score = min(max(score, 0), 100)

	aspects := []string{
		"sun " + aspectBetween(sunA, sunB) + " sun",
		"moon " + aspectBetween(moonA, moonB) + " moon",
		"sun " + aspectBetween(sunA, moonB) + " moon",
	}
	return &Synastry{First: *first, Second: *second, Score: score, Aspects: aspects}, nil
}

func (LocalEngine) Transits(ctx context.Context, birth domain.BirthData, date string) (*Transit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := birth.Validate(); err != nil {
		return nil, fmt.Errorf("transits: %w", err)
	}
	day, err := time.Parse(domain.TargetDateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("transits: invalid date %q: %w", date, err)
	}
	sun := signIndex(natal(birth).SunSign)
	moon := moonIndexAt(day.Add(12 * time.Hour))

	theme := "tension"
	switch affinity := elementAffinity(sun, moon); {
	case affinity >= 85:
		theme = "momentum"
	case affinity >= 78:
		theme = "harmony"
	}
	intensity := 1
	switch aspectBetween(sun, moon) {
	case "conjunction":
		intensity = 5
	case "opposition", "square":
		intensity = 4
	case "trine":
		intensity = 3
	case "sextile":
		intensity = 2
	}
	return &Transit{Date: date, MoonSign: signs[moon], Theme: theme, Intensity: intensity}, nil
}

func natal(birth domain.BirthData) *Chart {
	born := birth.Instant()
	sun := sunIndex(born.Month(), born.Day())
	c := &Chart{
		SunSign:  signs[sun],
		MoonSign: signs[moonIndexAt(born.UTC())],
		Element:  elements[sun%4],
		Modality: modalities[sun%3],
		LifePath: lifePath(born),
	}
	if birth.IsTimeKnown {
		c.Rising = signs[(sun+((born.Hour()-6+24)%24)/2)%12]
	}
	return c
}

func sunIndex(month time.Month, day int) int {
	m := int(month) - 1
	idx := signStartIndex[m]
	if day < signStartDay[m] {
		idx = (idx + 11) % 12
	}
	return idx
}

func moonIndexAt(t time.Time) int {
	days := t.Sub(moonEpoch).Hours() / 24
	cycle := math.Mod(days/siderealMonthDays, 1)
	if cycle < 0 {
		cycle++
	}
	return (moonEpochIndex + int(cycle*12)) % 12
}

func signIndex(name string) int {
	for i, s := range signs {
		if s == name {
			return i
		}
	}
	return 0
}

func elementAffinity(a, b int) int {
	ea, eb := a%4, b%4
	switch {
	case ea == eb:
		return 85
	case ea+eb == 2 || ea+eb == 4:
		// fire/air (0,2) and earth/water (1,3)
		return 78
	default:
		return 55
	}
}

func aspectBetween(a, b int) string {
	diff := (b - a + 12) % 12
	switch diff {
	case 0:
		return "conjunction"
	case 2, 10:
		return "sextile"
	case 3, 9:
		return "square"
	case 4, 8:
		return "trine"
	case 6:
		return "opposition"
	default:
		return "quincunx"
	}
}

func lifePath(born time.Time) int {
	n := digitSum(born.Year()) + digitSum(int(born.Month())) + digitSum(born.Day())
	for n > 9 && n != 11 && n != 22 && n != 33 {
		n = digitSum(n)
	}
	return n
}

func digitSum(n int) int {
	sum := 0
	for n > 0 {
		sum += n % 10
		n /= 10
	}
	return sum
}

var _ Engine = LocalEngine{}
