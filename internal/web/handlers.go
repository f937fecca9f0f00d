package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/nudge/internal/config"
	"github.com/hpungsan/nudge/internal/db"
	"github.com/hpungsan/nudge/internal/errors"
	"github.com/hpungsan/nudge/internal/ops"
	"github.com/hpungsan/nudge/internal/sms"
)

// maxBodyBytes caps JSON and form request bodies.
const maxBodyBytes = 64 << 10

// Handlers contains HTTP route handlers.
type Handlers struct {
	svc      *ops.Service
	db       *db.DB
	cfg      *config.Config
	renderer *Renderer
	logger   *zap.Logger
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		renderJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// HandleWebhook handles POST /sms/webhook: an inbound SMS from the gateway.
// The reply is returned inline as TwiML.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if h.cfg.ValidateWebhookSignature {
		fullURL := strings.TrimSuffix(h.cfg.PublicURL, "/") + r.URL.RequestURI()
		signature := r.Header.Get(sms.SignatureHeader)
		if !sms.ValidSignature(h.cfg.TwilioAuthToken, fullURL, r.PostForm, signature) {
			h.logger.Warn("webhook signature mismatch", zap.String("url", fullURL))
			h.renderer.renderError(w, r, errors.NewUnauthenticated("invalid webhook signature"))
			return
		}
	}

	from := r.PostForm.Get("From")
	if from == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("From is required"))
		return
	}

	reply := h.svc.HandleInbound(r.Context(), from, r.PostForm.Get("Body"))
	body, err := sms.MessageResponse(reply)
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInternal(err))
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// HandleStats handles GET /habits/{id}/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Stats(r.Context(), ops.StatsInput{HabitID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleInsights handles GET /habits/{id}/insights.
func (h *Handlers) HandleInsights(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Insights(r.Context(), ops.InsightsInput{
		HabitID:        r.PathValue("id"),
		IncludeExpired: parseBoolParam(r, "include_expired"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleConversation handles GET /habits/{id}/conversation.
func (h *Handlers) HandleConversation(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Conversation(r.Context(), ops.ConversationInput{
		HabitID: r.PathValue("id"),
		Limit:   parseIntParam(r, "limit", ops.DefaultConversationLimit),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleReport handles GET /habits/{id}/report: an HTML digest rendered from Markdown.
func (h *Handlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Report(r.Context(), ops.StatsInput{HabitID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.renderer.renderPage(w, "report", ReportPageData{
		PageData:     PageData{Title: out.Name, Version: h.renderer.version},
		HabitID:      out.HabitID,
		RenderedHTML: renderMarkdown(out.Markdown),
	})
}

// completionBody is the JSON body of PUT /habits/{id}/completions/{day}.
type completionBody struct {
	Completed  *bool   `json:"completed"`
	Mood       *string `json:"mood"`
	Difficulty *int    `json:"difficulty"`
	Note       *string `json:"note"`
}

// HandleRecord handles PUT /habits/{id}/completions/{day}: a manual calendar edit.
func (h *Handlers) HandleRecord(w http.ResponseWriter, r *http.Request) {
	var body completionBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid JSON body: "+err.Error()))
		return
	}
	if body.Completed == nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("completed is required"))
		return
	}

	out, err := h.svc.RecordCompletion(r.Context(), ops.RecordInput{
		HabitID:    r.PathValue("id"),
		Day:        r.PathValue("day"),
		Completed:  *body.Completed,
		Mood:       body.Mood,
		Difficulty: body.Difficulty,
		Note:       body.Note,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	renderJSON(w, status, out)
}

// HandleRemind handles POST /habits/{id}/remind: send a check-in now.
func (h *Handlers) HandleRemind(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Remind(r.Context(), ops.RemindInput{HabitID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
