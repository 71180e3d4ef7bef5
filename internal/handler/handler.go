// Package handler contains chi HTTP handlers that render the registration
// form and translate its actions to and from the service layer.
package handler

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Shivanand-hulikatti/event-reg-form/internal/mask"
	"github.com/Shivanand-hulikatti/event-reg-form/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-form/internal/repository"
	"github.com/Shivanand-hulikatti/event-reg-form/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

//go:embed templates/formulario.html
var templates embed.FS

var formPage = template.Must(template.ParseFS(templates, "templates/formulario.html"))

// Mask endpoint. The form page formats inputs while typing through it.
const (
	MaskPattern = maskBase + "/{tipo}"
	maskBase    = "/mascara"
)

// FormHandler holds all HTTP handlers for the registration form.
type FormHandler struct {
	svc    *service.RegistrationService
	logger *zap.Logger
}

// NewFormHandler constructs a FormHandler.
func NewFormHandler(svc *service.RegistrationService, logger *zap.Logger) *FormHandler {
	return &FormHandler{svc: svc, logger: logger}
}

// Routes mounts the form endpoints on r.
func (h *FormHandler) Routes(r chi.Router) {
	r.Get("/", h.Start)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Show)
		r.Get("/estado", h.State)
		r.Post("/participantes", h.AddAttendee)
		r.Post("/participantes/reenviar", h.RetryAttendees)
		r.Post("/enviar", h.Submit)
		r.Post("/cupom", h.ValidateCoupon)
	})
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

// formPath is the page URL of a session, relative to where the form router
// is mounted.
func formPath(r *http.Request, id string) string {
	base := strings.TrimSuffix(r.URL.Path, "/")
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			if i := strings.Index(pattern, "/{id}"); i >= 0 {
				base = strings.TrimSuffix(pattern[:i], "/")
			}
		}
	}
	return base + "/" + url.PathEscape(id)
}

func redirectToForm(w http.ResponseWriter, r *http.Request, id string) {
	http.Redirect(w, r, formPath(r, id), http.StatusSeeOther)
}

// readDraft collects the typed values posted by the form page. Attendee
// inputs repeat once per block, in document order.
func readDraft(r *http.Request) (service.Draft, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	if err := r.ParseForm(); err != nil {
		return service.Draft{}, err
	}
	f := r.PostForm

	d := service.Draft{
		Company: model.CompanyForm{
			CompanyName:   f.Get("nome_empresa"),
			Email:         f.Get("email"),
			Phone:         f.Get("telefone"),
			TaxIDPersonal: f.Get("cpf"),
			TaxIDBusiness: f.Get("cnpj"),
			Street:        f.Get("logradouro"),
			Number:        f.Get("numero"),
			Neighborhood:  f.Get("bairro"),
			City:          f.Get("cidade"),
			State:         f.Get("uf"),
			PostalCode:    f.Get("cep"),
			Complement:    f.Get("complemento"),
		},
	}

	names := f["nome-participante"]
	emails := f["email-participante"]
	phones := f["tel-participante"]
	genders := f["genero-participante"]
	for i := range names {
		d.Attendees = append(d.Attendees, model.AttendeeBlock{
			Name:   names[i],
			Email:  at(emails, i),
			Phone:  at(phones, i),
			Gender: at(genders, i),
		})
	}
	return d, nil
}

func at(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

// afterAction finishes a form action. User-facing outcomes are already
// stored on the session as its alert, so those just go back to the page.
func (h *FormHandler) afterAction(w http.ResponseWriter, r *http.Request, id string, err error) {
	var verr *service.ValidationError
	switch {
	case err == nil,
		errors.As(err, &verr),
		errors.Is(err, service.ErrNotConfirmed),
		errors.Is(err, service.ErrFormLocked),
		errors.Is(err, service.ErrCommunication),
		errors.Is(err, service.ErrRejected),
		errors.Is(err, service.ErrCouponInvalid),
		errors.Is(err, service.ErrNothingToRetry):
		redirectToForm(w, r, id)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "form session not found")
	default:
		h.logger.Error("form action failed", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process form")
	}
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// Start handles GET /inscricao?eventoId=N
// Opens a form session for the event and redirects to its page.
func (h *FormHandler) Start(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("eventoId"))
	eventID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || eventID <= 0 {
		writeError(w, http.StatusBadRequest, "eventoId must be a positive integer")
		return
	}

	sess, err := h.svc.Start(r.Context(), eventID)
	if err != nil {
		h.logger.Error("start form session", zap.Int64("event_id", eventID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start form")
		return
	}

	http.Redirect(w, r, strings.TrimSuffix(r.URL.Path, "/")+"/"+url.PathEscape(sess.ID), http.StatusSeeOther)
}

type pageData struct {
	Session      *model.FormSession
	Alert        string
	Base         string
	Genders      []string
	MaskBase     string
	NormalButton template.HTML
	CouponButton template.HTML
}

// Show handles GET /inscricao/{id}
// Renders the form page, showing any pending alert once.
func (h *FormHandler) Show(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, alert, err := h.svc.TakeAlert(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "form session not found")
			return
		}
		h.logger.Error("load form session", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load form")
		return
	}

	data := pageData{
		Session:  sess,
		Alert:    alert,
		Base:     formPath(r, sess.ID),
		Genders:  model.Genders,
		MaskBase: maskBase,
		// Payment buttons are markup issued by the backend for this event.
		NormalButton: template.HTML(sess.NormalButtonHTML),
		CouponButton: template.HTML(sess.CouponButtonHTML),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := formPage.Execute(w, data); err != nil {
		h.logger.Error("render form", zap.String("session_id", id), zap.Error(err))
	}
}

// State handles GET /inscricao/{id}/estado
// Returns the session as JSON.
func (h *FormHandler) State(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := h.svc.Session(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "form session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load form")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// AddAttendee handles POST /inscricao/{id}/participantes
func (h *FormHandler) AddAttendee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := readDraft(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body: "+err.Error())
		return
	}

	_, err = h.svc.AddAttendee(r.Context(), id, d)
	h.afterAction(w, r, id, err)
}

// Submit handles POST /inscricao/{id}/enviar
// The confirmar=sim field stands for the user's explicit confirmation.
func (h *FormHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := readDraft(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body: "+err.Error())
		return
	}
	confirmed := r.PostForm.Get("confirmar") == "sim"

	_, err = h.svc.Submit(r.Context(), id, d, confirmed)
	h.afterAction(w, r, id, err)
}

// RetryAttendees handles POST /inscricao/{id}/participantes/reenviar
func (h *FormHandler) RetryAttendees(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	_, err := h.svc.RetryFailedAttendees(r.Context(), id)
	h.afterAction(w, r, id, err)
}

// ValidateCoupon handles POST /inscricao/{id}/cupom
func (h *FormHandler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body: "+err.Error())
		return
	}

	_, err := h.svc.ValidateCoupon(r.Context(), id, r.PostForm.Get("cupom"))
	h.afterAction(w, r, id, err)
}

// Mask handles GET /mascara/{tipo}?valor=
// Applies the cpf, cnpj or telefone mask to valor.
func Mask(w http.ResponseWriter, r *http.Request) {
	kind := mask.Kind(chi.URLParam(r, "tipo"))

	masked, err := mask.Apply(kind, r.URL.Query().Get("valor"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown mask: "+string(kind))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"valor": masked})
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
