package admin

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	goSentinel "github.com/MrEthical07/goSentinel"
	"github.com/MrEthical07/goSentinel/audit"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// EventRequest is the body of POST /events. Action may be any event name; names
// outside the closed action set are recorded as security_event.
type EventRequest struct {
	ClientInfo
	ActorID string            `json:"actorId,omitempty"`
	Action  string            `json:"action"`
	Status  string            `json:"status"`
	Details map[string]string `json:"details,omitempty"`
}

// TriageRequest is the body of PATCH /events/{id}/triage.
type TriageRequest struct {
	Status    string `json:"status"`
	TriagedBy string `json:"triagedBy"`
}

func pagination(q url.Values) (offset, limit int, err error) {
	limit = defaultPageSize
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 {
			return 0, 0, goSentinel.ErrInvalidRequest
		}
		limit = min(limit, maxPageSize)
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, goSentinel.ErrInvalidRequest
		}
	}
	return offset, limit, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, goSentinel.ErrInvalidRequest
	}
	return t, nil
}

func eventQuery(q url.Values) (audit.Query, error) {
	offset, limit, err := pagination(q)
	if err != nil {
		return audit.Query{}, err
	}
	since, err := parseTime(q.Get("since"))
	if err != nil {
		return audit.Query{}, err
	}
	until, err := parseTime(q.Get("until"))
	if err != nil {
		return audit.Query{}, err
	}

	query := audit.Query{
		ActorID:  q.Get("actor"),
		SourceIP: q.Get("ip"),
		Since:    since,
		Until:    until,
		Offset:   offset,
		Limit:    limit,
	}
	if v := q.Get("action"); v != "" {
		query.Action = audit.Action(v)
		if !query.Action.Valid() {
			return audit.Query{}, goSentinel.ErrInvalidEvent
		}
	}
	if v := q.Get("status"); v != "" {
		query.Status = audit.Status(v)
		if !query.Status.Valid() {
			return audit.Query{}, goSentinel.ErrInvalidEvent
		}
	}
	return query, nil
}

func (h *handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q, err := eventQuery(r.URL.Query())
	if err != nil {
		h.respondWithError(w, err, "Invalid query")
		return
	}
	events, err := h.engine.ListEvents(r.Context(), q)
	if err != nil {
		h.respondWithError(w, err, "Failed to list events")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(events, ""))
}

func (h *handler) recordEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Action == "" {
		h.respondWithError(w, goSentinel.ErrInvalidEvent, "Action is required")
		return
	}
	meta := req.meta()
	meta.Details = req.Details
	id, err := h.engine.Record(r.Context(), req.ActorID, req.Action, audit.Status(req.Status), meta)
	if err != nil {
		h.respondWithError(w, err, "Failed to record event")
		return
	}
	h.respondWithJSON(w, http.StatusCreated, successResponse(map[string]string{"id": id}, "Event recorded"))
}

func (h *handler) getEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.engine.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithError(w, err, "Failed to load event")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(ev, ""))
}

func (h *handler) triageEvent(w http.ResponseWriter, r *http.Request) {
	var req TriageRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.engine.TriageEvent(r.Context(), chi.URLParam(r, "id"), audit.TriageStatus(req.Status), req.TriagedBy)
	if err != nil {
		h.respondWithError(w, err, "Failed to triage event")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Event triaged"))
}

func (h *handler) verifyEvent(w http.ResponseWriter, r *http.Request) {
	v, err := h.engine.VerifyIntegrity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithError(w, err, "Verification failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(v, ""))
}

func (h *handler) verifyRecent(w http.ResponseWriter, r *http.Request) {
	_, limit, err := pagination(r.URL.Query())
	if err != nil {
		h.respondWithError(w, err, "Invalid limit")
		return
	}
	sum, err := h.engine.VerifyRecent(r.Context(), limit)
	if err != nil {
		h.respondWithError(w, err, "Verification failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(sum, ""))
}

func (h *handler) ledgerStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.LedgerStats(r.Context())
	if err != nil {
		h.respondWithError(w, err, "Ledger unavailable")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(s, ""))
}

func (h *handler) verifyLedger(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.VerifyLedger(r.Context())
	if err != nil {
		h.respondWithError(w, err, "Ledger unavailable")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(report, ""))
}

func (h *handler) ledgerAnchors(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pagination(r.URL.Query())
	if err != nil {
		h.respondWithError(w, err, "Invalid query")
		return
	}
	anchors, err := h.engine.LedgerAnchors(r.Context(), offset, limit)
	if err != nil {
		h.respondWithError(w, err, "Ledger unavailable")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(anchors, ""))
}

func (h *handler) lookupAnchor(w http.ResponseWriter, r *http.Request) {
	a, err := h.engine.LookupAnchor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithError(w, err, "Anchor lookup failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(a, ""))
}
