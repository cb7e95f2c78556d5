package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"astroreports/internal/domain"
	"astroreports/internal/reports"
)

// Each report endpoint comes in two flavours: create starts generation when
// needed (GetOrCreate), while the status variant only looks (Get).

func (a *App) PersonalReport(create bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body personalBody
		if err := decodeBody(r, &body); err != nil {
			a.serviceError(w, r, err)
			return
		}
		fp := domain.PersonalFingerprint{Person: body.Person, Locale: requestLocale(r, body.Locale)}
		a.serve(w, r, fp, create)
	}
}

func (a *App) CompatibilityReport(create bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body compatibilityBody
		if err := decodeBody(r, &body); err != nil {
			a.serviceError(w, r, err)
			return
		}
		fp := domain.CompatibilityFingerprint{Person1: body.Person1, Person2: body.Person2, Locale: requestLocale(r, body.Locale)}
		a.serve(w, r, fp, create)
	}
}

func (a *App) Forecast(create bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		horizon := domain.ForecastHorizon(chi.URLParam(r, "period"))
		switch horizon {
		case domain.HorizonToday, domain.HorizonTomorrow, domain.Horizon14Day:
		default:
			a.error(w, http.StatusNotFound, "not_found", fmt.Sprintf("unknown forecast period %q", horizon))
			return
		}
		var body datedBody
		if err := decodeBody(r, &body); err != nil {
			a.serviceError(w, r, err)
			return
		}
		a.serve(w, r, forecastFingerprint(horizon, body, requestLocale(r, body.Locale), a.now()), create)
	}
}

func (a *App) QuestionSet(create bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set := domain.QuestionSetName(chi.URLParam(r, "set"))
		switch set {
		case domain.QuestionSetMe, domain.QuestionSetDaily:
		default:
			a.error(w, http.StatusNotFound, "not_found", fmt.Sprintf("unknown question set %q", set))
			return
		}
		var body datedBody
		if err := decodeBody(r, &body); err != nil {
			a.serviceError(w, r, err)
			return
		}
		if set == domain.QuestionSetMe && body.TargetDate != "" {
			a.error(w, http.StatusBadRequest, "invalid_fingerprint", "targetDate is not used by the me set")
			return
		}
		a.serve(w, r, questionFingerprint(set, body, requestLocale(r, body.Locale), a.now()), create)
	}
}

// MyReport builds the fingerprint from the caller's stored birth profile.
func (a *App) MyReport(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	kind := domain.JobKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		a.error(w, http.StatusNotFound, "not_found", fmt.Sprintf("unknown report kind %q", kind))
		return
	}
	if a.Profiles == nil {
		a.error(w, http.StatusNotFound, "not_found", "profiles are not enabled")
		return
	}
	profile, err := a.Profiles.GetByUserID(r.Context(), userID)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	locale := requestLocale(r, r.URL.Query().Get("locale"))
	if r.URL.Query().Get("locale") == "" && profile.Locale != "" {
		locale = domain.NormalizeLocale(profile.Locale)
	}
	fp, err := profileFingerprint(kind, profile, locale, a.now().In(profile.Location()))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.serve(w, r, fp, true)
}

func (a *App) serve(w http.ResponseWriter, r *http.Request, fp domain.Fingerprint, create bool) {
	req := reports.Request{Kind: fp.Kind(), Fingerprint: fp, OwnerID: a.currentUserID(r)}
	var (
		res *reports.Result
		err error
	)
	if create {
		res, err = a.Reports.GetOrCreate(r.Context(), req)
	} else {
		res, err = a.Reports.Get(r.Context(), req)
	}
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	code := http.StatusOK
	if create {
		code = statusCode(res)
	}
	a.json(w, code, newResultView(fp.Kind(), res))
}

// Job returns a job by id for polling. Jobs are shared by every caller whose
// fingerprint matches, so any holder of the id may poll it; the view carries
// no owner.
func (a *App) Job(w http.ResponseWriter, r *http.Request) {
	res, err := a.Reports.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newResultView(res.Job.Kind, res))
}

// PublicReport resolves a share code.
func (a *App) PublicReport(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "code")))
	res, err := a.Reports.GetByCode(r.Context(), code)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	view := newResultView(res.Job.Kind, res)
	view.ID = ""
	a.json(w, http.StatusOK, view)
}
