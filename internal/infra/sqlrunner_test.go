package infra

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestExtractMarker(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		marker  string
		body    string
		wantErr bool
	}{
		{
			name:   "valid",
			query:  "\n--sql 0b6c8f3e-2a51-4c34-9f0e-6f1d2c3b4a59\nselect 1;\n",
			marker: "0b6c8f3e-2a51-4c34-9f0e-6f1d2c3b4a59",
			body:   "select 1;",
		},
		{name: "missing", query: "select 1;", wantErr: true},
		{name: "uppercase uuid", query: "--sql 0B6C8F3E-2A51-4C34-9F0E-6F1D2C3B4A59\nselect 1;", wantErr: true},
		{name: "empty", query: "  ", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			marker, body, err := extractMarker(tc.query)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if marker != tc.marker || body != tc.body {
				t.Fatalf("got (%q, %q), want (%q, %q)", marker, body, tc.marker, tc.body)
			}
		})
	}
}

func TestErrorClassifiers(t *testing.T) {
	if !IsNoRows(fmt.Errorf("load: %w", pgx.ErrNoRows)) {
		t.Fatal("wrapped ErrNoRows not detected")
	}
	if IsNoRows(errors.New("boom")) {
		t.Fatal("plain error reported as no rows")
	}

	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "report_jobs_active_match_idx"})
	if !IsUniqueViolation(dup, "") {
		t.Fatal("unique violation not detected")
	}
	if !IsUniqueViolation(dup, "report_jobs_active_match_idx") {
		t.Fatal("named constraint not matched")
	}
	if IsUniqueViolation(dup, "report_jobs_code_key") {
		t.Fatal("other constraint matched")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("foreign key violation reported as unique")
	}
}
