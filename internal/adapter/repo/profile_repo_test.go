package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"astroreports/internal/domain"
)

func TestProfileGetByUserID(t *testing.T) {
	now := time.Now()
	sql := &stubSQL{rows: []stubRow{{values: []any{
		"user-1", "Sari", "id",
		[]byte(`{"birthDateTime":"1990-05-17T08:30:00","gender":"female","birthTimezone":"Asia/Jakarta","isTimeKnown":true}`),
		now, now,
	}}}}
	p, err := NewProfileRepository(sql).GetByUserID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetByUserID: %v", err)
	}
	if p.Birth != birth || p.Locale != "id" {
		t.Fatalf("unexpected profile: %#v", p)
	}
}

func TestProfileGetByUserIDMissing(t *testing.T) {
	_, err := NewProfileRepository(&stubSQL{}).GetByUserID(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestProfileUpsertEncodesBirth(t *testing.T) {
	now := time.Now()
	sql := &stubSQL{rows: []stubRow{{values: []any{now, now}}}}
	p := &domain.Profile{UserID: "user-1", Name: "Sari", Locale: "en", Birth: birth}
	if err := NewProfileRepository(sql).Upsert(context.Background(), p); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !p.CreatedAt.Equal(now) {
		t.Fatal("timestamps not scanned back")
	}
	raw, ok := sql.calls[0].args[3].([]byte)
	if !ok || len(raw) == 0 {
		t.Fatalf("birth arg = %#v", sql.calls[0].args[3])
	}
}
