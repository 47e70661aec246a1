package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/talentgate/subscription-engine/internal/app"
	"github.com/talentgate/subscription-engine/internal/domain/plans"
	"github.com/talentgate/subscription-engine/internal/domain/subscriptions"
	"github.com/talentgate/subscription-engine/internal/domain/usage"
	"github.com/talentgate/subscription-engine/internal/reports"
)

// Handler exposes the subscription engine over HTTP.
type Handler struct {
	catalog   *app.Catalog
	lifecycle *app.Lifecycle
	gate      *app.Gate
	ledger    *app.Ledger
	log       *slog.Logger
}

func NewHandler(catalog *app.Catalog, lifecycle *app.Lifecycle, gate *app.Gate, ledger *app.Ledger, log *slog.Logger) *Handler {
	return &Handler{catalog: catalog, lifecycle: lifecycle, gate: gate, ledger: ledger, log: log}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondWithError(w http.ResponseWriter, code int, msg string) {
	respondWithJSON(w, code, map[string]string{"error": msg})
}

// respondAppError maps the app error taxonomy onto HTTP statuses.
func (h *Handler) respondAppError(w http.ResponseWriter, err error) {
	var den *app.DeniedError
	switch {
	case errors.As(err, &den):
		code := http.StatusForbidden
		if den.Reason == app.DenialQuotaExceeded {
			code = http.StatusPaymentRequired
		}
		respondWithJSON(w, code, map[string]string{"error": "denied", "reason": string(den.Reason)})
	case errors.Is(err, app.ErrValidation):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrConflict):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrPaymentFailed):
		respondWithError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, app.ErrPaymentPending):
		respondWithError(w, http.StatusAccepted, err.Error())
	default:
		h.log.Error("request failed", "err", err)
		respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (h *Handler) listPlans(w http.ResponseWriter, r *http.Request) {
	out, err := h.catalog.ListActivePlans(r.Context())
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *Handler) getPlan(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid plan id")
		return
	}
	p, err := h.catalog.GetPlan(r.Context(), id)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

func (h *Handler) upsertPlan(w http.ResponseWriter, r *http.Request) {
	var p plans.Plan
	if err := decode(r, &p); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	out, err := h.catalog.UpsertPlan(r.Context(), Actor(r.Context()), &p)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	code := http.StatusOK
	if p.ID == 0 {
		code = http.StatusCreated
	}
	respondWithJSON(w, code, out)
}

func (h *Handler) deactivatePlan(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid plan id")
		return
	}
	if err := h.catalog.DeactivatePlan(r.Context(), Actor(r.Context()), id); err != nil {
		h.respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

type subscribeRequest struct {
	PlanID int64  `json:"plan_id"`
	Method string `json:"method"`
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decode(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	sub, err := h.lifecycle.Subscribe(r.Context(), Actor(r.Context()), req.PlanID, req.Method)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	code := http.StatusCreated
	if sub.Status == subscriptions.StatusPending {
		code = http.StatusAccepted
	}
	respondWithJSON(w, code, sub)
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.lifecycle.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	if !h.mayAccess(w, r, sub) {
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

func (h *Handler) changePlan(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decode(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if !h.ownsSubscription(w, r, id) {
		return
	}
	sub, err := h.lifecycle.ChangePlan(r.Context(), id, req.PlanID, req.Method)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decode(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if !h.ownsSubscription(w, r, id) {
		return
	}
	sub, err := h.lifecycle.Cancel(r.Context(), Actor(r.Context()), id, req.Reason)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

type autoRenewRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) setAutoRenew(w http.ResponseWriter, r *http.Request) {
	var req autoRenewRequest
	if err := decode(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if !h.ownsSubscription(w, r, id) {
		return
	}
	sub, err := h.lifecycle.SetAutoRenewal(r.Context(), Actor(r.Context()), id, req.Enabled)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

type authorizeRequest struct {
	Action string `json:"action"`
}

type authorizeResponse struct {
	Allowed   bool   `json:"allowed"`
	Action    string `json:"action"`
	Remaining int64  `json:"remaining"`
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := decode(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	remaining, err := h.gate.Authorize(r.Context(), Actor(r.Context()), app.Action(req.Action))
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, authorizeResponse{Allowed: true, Action: req.Action, Remaining: remaining})
}

func (h *Handler) myUsage(w http.ResponseWriter, r *http.Request) {
	counter, err := h.gate.UsageFor(r.Context(), Actor(r.Context()))
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, usageView(counter))
}

func (h *Handler) subscriptionUsage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.ownsSubscription(w, r, id) {
		return
	}
	counter, err := h.lifecycle.Usage(r.Context(), id)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, usageView(counter))
}

func (h *Handler) subscriptionPayments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.ownsSubscription(w, r, id) {
		return
	}
	out, err := h.ledger.PaymentsBySubscription(r.Context(), id)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *Handler) adminListSubscriptions(w http.ResponseWriter, r *http.Request) {
	out, err := h.lifecycle.ListSubscriptions(r.Context())
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *Handler) adminReactivate(w http.ResponseWriter, r *http.Request) {
	sub, err := h.lifecycle.Reactivate(r.Context(), Actor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) adminOverrideStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	to := subscriptions.Status(req.Status)
	if !to.Valid() {
		respondWithError(w, http.StatusBadRequest, "unknown status: "+req.Status)
		return
	}
	sub, err := h.lifecycle.OverrideStatus(r.Context(), Actor(r.Context()), chi.URLParam(r, "id"), to)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

type refundRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

func (h *Handler) adminRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := decode(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	reversal, err := h.ledger.Refund(r.Context(), chi.URLParam(r, "id"), req.AmountCents)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, reversal)
}

func (h *Handler) adminUsageReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subs, err := h.lifecycle.ListSubscriptions(ctx)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	counters := make(map[string]*usage.Counter, len(subs))
	for _, s := range subs {
		c, err := h.lifecycle.Usage(ctx, s.ID)
		if err != nil {
			if errors.Is(err, app.ErrNotFound) {
				continue
			}
			h.respondAppError(w, err)
			return
		}
		counters[s.ID] = c
	}
	pays, err := h.ledger.AllPayments(ctx)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	f, err := reports.BuildWorkbook(subs, counters, pays)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="usage_report.xlsx"`)
	if err := f.Write(w); err != nil {
		h.log.Error("report write failed", "err", err)
	}
}

// ownsSubscription loads the subscription and rejects recruiters touching
// someone else's record. Admins pass.
func (h *Handler) ownsSubscription(w http.ResponseWriter, r *http.Request, id string) bool {
	sub, err := h.lifecycle.Get(r.Context(), id)
	if err != nil {
		h.respondAppError(w, err)
		return false
	}
	return h.mayAccess(w, r, sub)
}

func (h *Handler) mayAccess(w http.ResponseWriter, r *http.Request, sub *subscriptions.Subscription) bool {
	if Role(r.Context()) == RoleAdmin || sub.RecruiterID == Actor(r.Context()) {
		return true
	}
	respondWithError(w, http.StatusForbidden, "not your subscription")
	return false
}

type usageKindView struct {
	Used      int64 `json:"used"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
	Unbounded bool  `json:"unbounded"`
}

func usageView(c *usage.Counter) map[string]usageKindView {
	out := make(map[string]usageKindView, 4)
	for _, k := range []usage.Kind{
		usage.KindJobPosting, usage.KindFeaturedJob,
		usage.KindCVDownload, usage.KindCandidateSearch,
	} {
		out[string(k)] = usageKindView{
			Used:      c.Used(k),
			Limit:     c.Limit(k),
			Remaining: c.Remaining(k),
			Unbounded: c.Limit(k) == plans.Unbounded,
		}
	}
	return out
}
