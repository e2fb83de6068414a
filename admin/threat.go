package admin

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	goSentinel "github.com/MrEthical07/goSentinel"
	"github.com/MrEthical07/goSentinel/threat"
)

// maxPolicyBytes bounds a PUT /policy body.
const maxPolicyBytes = 64 << 10

// BlockRequest is the body of POST /blocked.
type BlockRequest struct {
	IP        string            `json:"ip"`
	Reason    string            `json:"reason"`
	BlockedBy string            `json:"blockedBy"`
	Duration  string            `json:"duration,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (h *handler) listBlocked(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.ListBlocked(r.Context())
	if err != nil {
		h.respondWithError(w, err, "Failed to list blocked IPs")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(entries, ""))
}

func (h *handler) block(w http.ResponseWriter, r *http.Request) {
	var req BlockRequest
	if !h.decode(w, r, &req) {
		return
	}
	var d time.Duration
	if req.Duration != "" {
		var err error
		d, err = time.ParseDuration(req.Duration)
		if err != nil || d <= 0 {
			h.respondWithError(w, goSentinel.ErrInvalidRequest, "Invalid duration")
			return
		}
	}

	entry, err := h.engine.BlockWithOptions(r.Context(), threat.BlockRequest{
		IP:        req.IP,
		Reason:    req.Reason,
		BlockedBy: req.BlockedBy,
		Duration:  d,
		Metadata:  req.Metadata,
	})
	if err != nil && entry.IP == "" {
		h.respondWithError(w, err, "Failed to block IP")
		return
	}
	h.respondWithJSON(w, http.StatusCreated, successResponse(entry, "IP blocked"))
}

func (h *handler) lookupBlock(w http.ResponseWriter, r *http.Request) {
	entry, ok, err := h.engine.LookupBlock(r.Context(), chi.URLParam(r, "ip"))
	if err != nil {
		h.respondWithError(w, err, "Failed to look up IP")
		return
	}
	if !ok {
		h.respondWithError(w, threat.ErrNotBlocked, "IP is not blocked")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(entry, ""))
}

func (h *handler) unblock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	removed, err := h.engine.Unblock(r.Context(), chi.URLParam(r, "ip"), q.Get("reason"), q.Get("by"))
	if err != nil && !removed {
		h.respondWithError(w, err, "Failed to unblock IP")
		return
	}
	if !removed {
		h.respondWithError(w, threat.ErrNotBlocked, "IP is not blocked")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "IP unblocked"))
}

func (h *handler) listSuspicious(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, successResponse(h.engine.ListSuspicious(), ""))
}

func (h *handler) clearSuspicious(w http.ResponseWriter, r *http.Request) {
	n := h.engine.ClearSuspicious()
	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]int{"cleared": n}, "Suspicious set cleared"))
}

func (h *handler) unflag(w http.ResponseWriter, r *http.Request) {
	if !h.engine.UnflagIP(chi.URLParam(r, "ip")) {
		h.respondWithJSON(w, http.StatusNotFound, errorResponse(nil, "IP is not flagged"))
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "IP unflagged"))
}

func (h *handler) clearAttempts(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearAttempts()
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Attempt windows cleared"))
}

func (h *handler) getPolicy(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, successResponse(h.engine.Policy(), ""))
}

// putPolicy accepts a YAML (or JSON) trigger to action mapping layered over the
// defaults.
func (h *handler) putPolicy(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxPolicyBytes))
	if err != nil {
		h.respondWithError(w, goSentinel.ErrInvalidRequest, "Invalid request body")
		return
	}
	p, err := h.engine.ReloadPolicy(data)
	if err != nil {
		h.respondWithError(w, err, "Invalid policy")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(p, "Policy updated"))
}
