package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"astroreports/internal/bootstrap"
	"astroreports/internal/domain"
	"astroreports/internal/infra"
	"astroreports/internal/middleware"
)

// profile stores a user's birth data and prints a token for calling the
// /v1/me endpoints as that user.
func main() {
	_ = godotenv.Load()

	var (
		userFlag     string
		nameFlag     string
		localeFlag   string
		bornFlag     string
		genderFlag   string
		tzFlag       string
		timeKnown    bool
		tokenTTLFlag time.Duration
	)
	flag.StringVar(&userFlag, "user", "", "user ID (token subject)")
	flag.StringVar(&nameFlag, "name", "", "display name")
	flag.StringVar(&localeFlag, "locale", domain.DefaultLocale, "preferred locale")
	flag.StringVar(&bornFlag, "born", "", "local birth date and time, e.g. 1990-01-15T08:00:00")
	flag.StringVar(&genderFlag, "gender", string(domain.GenderOther), "male, female or other")
	flag.StringVar(&tzFlag, "tz", "UTC", "IANA birth timezone")
	flag.BoolVar(&timeKnown, "time-known", true, "whether the birth time is accurate")
	flag.DurationVar(&tokenTTLFlag, "token-ttl", 24*time.Hour, "lifetime of the printed token; 0 skips it")
	flag.Parse()

	userID := strings.TrimSpace(userFlag)
	if userID == "" {
		exitWithError(errors.New("-user is required"))
	}

	profile := &domain.Profile{
		UserID: userID,
		Name:   strings.TrimSpace(nameFlag),
		Locale: domain.NormalizeLocale(localeFlag),
		Birth: domain.BirthData{
			BirthDateTime: strings.TrimSpace(bornFlag),
			Gender:        domain.Gender(strings.ToLower(strings.TrimSpace(genderFlag))),
			BirthTimezone: strings.TrimSpace(tzFlag),
			IsTimeKnown:   timeKnown,
		},
	}
	if err := profile.Birth.Validate(); err != nil {
		exitWithError(err)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	logger := infra.NewLogger("cli").With().Str("cmd", "profile").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		exitWithError(fmt.Errorf("failed to open stores: %w", err))
	}
	defer stores.Close()

	if err := stores.Profiles.Upsert(ctx, profile); err != nil {
		exitWithError(fmt.Errorf("failed to store profile: %w", err))
	}
	fmt.Printf("profile %s stored (created %s, updated %s)\n", profile.UserID,
		profile.CreatedAt.Format(time.RFC3339), profile.UpdatedAt.Format(time.RFC3339))

	if tokenTTLFlag <= 0 {
		return
	}
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set, skipping token")
		return
	}
	token, err := middleware.SignJWT(cfg.JWTSecret, middleware.TokenClaims{
		Sub:    profile.UserID,
		Locale: profile.Locale,
		Exp:    time.Now().Add(tokenTTLFlag).Unix(),
	})
	if err != nil {
		exitWithError(fmt.Errorf("failed to sign token: %w", err))
	}
	fmt.Printf("token=%s\n", token)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
