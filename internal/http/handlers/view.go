package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"astroreports/internal/domain"
	"astroreports/internal/reports"
)

type failureView struct {
	Kind    domain.FailureKind `json:"kind"`
	Message string             `json:"message"`
}

type placeholderView struct {
	Code      string          `json:"code"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

type resultView struct {
	ID          string           `json:"id,omitempty"`
	Code        string           `json:"code,omitempty"`
	Kind        domain.JobKind   `json:"kind"`
	Status      domain.JobStatus `json:"status"`
	Refreshing  bool             `json:"refreshing,omitempty"`
	Created     bool             `json:"created,omitempty"`
	Payload     json.RawMessage  `json:"payload,omitempty"`
	Failure     *failureView     `json:"failure,omitempty"`
	ExpiresAt   *time.Time       `json:"expiresAt,omitempty"`
	CreatedAt   *time.Time       `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time       `json:"updatedAt,omitempty"`
	Placeholder *placeholderView `json:"placeholder,omitempty"`
}

func newResultView(kind domain.JobKind, res *reports.Result) resultView {
	v := resultView{Kind: kind, Status: res.Status, Refreshing: res.Refreshing, Created: res.Created}
	if job := res.Job; job != nil {
		v.ID = job.ID
		v.Code = job.Code
		v.Kind = job.Kind
		v.Payload = job.Payload
		v.ExpiresAt = job.ExpiresAt
		created, updated := job.CreatedAt, job.UpdatedAt
		v.CreatedAt, v.UpdatedAt = &created, &updated
		if job.Failure != nil {
			v.Failure = &failureView{Kind: job.Failure.Kind, Message: job.Failure.Message}
		}
	}
	if p := res.Placeholder; p != nil {
		v.Placeholder = &placeholderView{Code: p.Code, Payload: p.Payload, CreatedAt: p.CreatedAt}
	}
	return v
}

// statusCode is 202 while the caller should keep polling.
func statusCode(res *reports.Result) int {
	if res.Status.Active() {
		return http.StatusAccepted
	}
	return http.StatusOK
}
