package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-reg-form/internal/apiclient"
	"github.com/Shivanand-hulikatti/event-reg-form/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-form/internal/repository"
	"github.com/Shivanand-hulikatti/event-reg-form/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// backend is a fake registration API that records the JSON bodies it gets.
type backend struct {
	mu     sync.Mutex
	bodies map[string][]map[string]any
}

func (b *backend) received(path string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bodies[path]
}

func newBackendServer(t *testing.T, limit int) (*httptest.Server, *backend) {
	t.Helper()
	b := &backend{bodies: map[string][]map[string]any{}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/evento/") {
			_, _ = io.WriteString(w, `{"evento":{"limite_participantes":`+strconv.Itoa(limit)+`,"botao_pagseguro":"<a id=\"pagar\">Pagar</a>"}}`)
			return
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.bodies[r.URL.Path] = append(b.bodies[r.URL.Path], body)
		b.mu.Unlock()

		switch r.URL.Path {
		case "/empresa":
			_, _ = io.WriteString(w, `{"status":true,"empresa":{"id":"31"}}`)
		case "/participante":
			_, _ = io.WriteString(w, `{"status":true}`)
		case "/cupom/validar":
			if body["codigo"] == "PROMO10" {
				_, _ = io.WriteString(w, `{"status":true,"cupom":{"id":9,"desconto":"10%","botao_pagseguro_html":"<a id=\"pagar-cupom\">Pagar</a>"}}`)
				return
			}
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"status":false}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, b
}

func newTestRouter(t *testing.T, limit int) (http.Handler, *backend) {
	t.Helper()
	srv, b := newBackendServer(t, limit)

	logger := zap.NewNop()
	api := apiclient.New(srv.URL, 5*time.Second, logger)
	svc := service.NewRegistrationService(api, repository.NewMemorySessionRepository(time.Hour), logger)
	h := NewFormHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(CORS)
	r.Get("/health", HealthCheck)
	r.Get(MaskPattern, Mask)
	r.Route("/inscricao", h.Routes)
	return r, b
}

func do(t *testing.T, h http.Handler, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// startForm opens a session and returns its page path.
func startForm(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodGet, "/inscricao?eventoId=7", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, "/inscricao/"), loc)
	return loc
}

func postAndFollow(t *testing.T, h http.Handler, page, action string, form url.Values) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, page+action, form)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	require.Equal(t, page, rec.Header().Get("Location"))

	rec = do(t, h, http.MethodGet, page, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func companyValues() url.Values {
	return url.Values{
		"nome_empresa": {"ACME Ltda"},
		"email":        {"compras@acme.com.br"},
		"telefone":     {"11987654321"},
		"cnpj":         {"12345678000195"},
		"logradouro":   {"Rua das Flores"},
		"numero":       {"100"},
		"bairro":       {"Centro"},
		"cidade":       {"São Paulo"},
		"uf":           {"SP"},
		"cep":          {"01000-000"},
	}
}

func TestHealthCheck(t *testing.T) {
	h, _ := newTestRouter(t, 1)

	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStart_InvalidEventID(t *testing.T) {
	h, _ := newTestRouter(t, 1)

	for _, q := range []string{"", "?eventoId=", "?eventoId=abc", "?eventoId=0", "?eventoId=-3"} {
		t.Run(q, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/inscricao"+q, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestShow_RendersParticipantsMessage(t *testing.T) {
	h, _ := newTestRouter(t, 2)
	page := startForm(t, h)

	rec := do(t, h, http.MethodGet, page, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	body := rec.Body.String()
	assert.Contains(t, body, `id="msg-participantes"`)
	assert.Contains(t, body, "no mínimo 2 participantes e no máximo 2.")
	assert.Contains(t, body, `id="form-empresa"`)
	assert.NotContains(t, body, `id="alerta"`)
	assert.Contains(t, body, `id="secao-cupom" style="display: none"`)
}

func TestShow_UnknownSession(t *testing.T) {
	h, _ := newTestRouter(t, 1)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/inscricao/nao-existe", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/inscricao/nao-existe/estado", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/inscricao/nao-existe/participantes", url.Values{}).Code)
}

func TestAddAttendee_StopsAtLimit(t *testing.T) {
	h, _ := newTestRouter(t, 2)
	page := startForm(t, h)

	body := postAndFollow(t, h, page, "/participantes", url.Values{})
	assert.Equal(t, 1, strings.Count(body, `class="participante-item"`))

	form := url.Values{"nome-participante": {"Ana"}, "email-participante": {"ana@x.com"}, "tel-participante": {"11987654321"}, "genero-participante": {model.GenderFemale}}
	body = postAndFollow(t, h, page, "/participantes", form)
	assert.Equal(t, 2, strings.Count(body, `class="participante-item"`))
	assert.Contains(t, body, `value="(11) 98765-4321"`, "typed phone is kept masked")

	body = postAndFollow(t, h, page, "/participantes", url.Values{})
	assert.Equal(t, 2, strings.Count(body, `class="participante-item"`))
	assert.Contains(t, body, "Este evento permite no máximo 2 participantes.")
}

func TestSubmit_RequiresConfirmation(t *testing.T) {
	h, b := newTestRouter(t, 1)
	page := startForm(t, h)
	postAndFollow(t, h, page, "/participantes", url.Values{})

	body := postAndFollow(t, h, page, "/enviar", companyValues())
	assert.Contains(t, body, service.MsgConfirmSubmission)
	assert.Contains(t, body, `value="ACME Ltda"`, "draft survives the round trip")
	assert.Empty(t, b.received("/empresa"))
}

func TestSubmit_FullFlow(t *testing.T) {
	h, b := newTestRouter(t, 2)
	page := startForm(t, h)
	postAndFollow(t, h, page, "/participantes", url.Values{})
	postAndFollow(t, h, page, "/participantes", url.Values{})

	form := companyValues()
	form["nome-participante"] = []string{"Ana Souza", "Bruno Lima"}
	form["email-participante"] = []string{"ana@example.com", "bruno@example.com"}
	form["tel-participante"] = []string{"11987654321", "1123456789"}
	form["genero-participante"] = []string{model.GenderFemale, ""}
	form.Set("confirmar", "sim")

	body := postAndFollow(t, h, page, "/enviar", form)
	assert.Contains(t, body, service.MsgSubmitted)
	assert.Contains(t, body, `<a id="pagar">Pagar</a>`, "payment button is rendered as markup")
	assert.Contains(t, body, `id="secao-cupom" style="display: block"`)
	assert.Contains(t, body, " disabled")

	companies := b.received("/empresa")
	require.Len(t, companies, 1)
	assert.Equal(t, "ACME Ltda", companies[0]["nome_empresa"])
	assert.Equal(t, "12.345.678/0001-95", companies[0]["cnpj"])
	assert.Nil(t, companies[0]["cpf"])
	assert.Equal(t, float64(7), companies[0]["evento_id"])

	people := b.received("/participante")
	require.Len(t, people, 2)
	assert.Equal(t, "Ana Souza", people[0]["nome"])
	assert.Equal(t, "(11) 98765-4321", people[0]["telefone"])
	assert.Equal(t, float64(31), people[0]["empresa_id"])
	assert.Equal(t, model.GenderUndisclosed, people[1]["genero"])

	again := do(t, h, http.MethodGet, page, nil).Body.String()
	assert.NotContains(t, again, `id="alerta"`, "alert is shown once")

	body = postAndFollow(t, h, page, "/enviar", form)
	assert.Contains(t, body, service.MsgFormLocked)
	assert.Len(t, b.received("/empresa"), 1)
}

func TestValidateCoupon(t *testing.T) {
	h, b := newTestRouter(t, 1)
	page := startForm(t, h)
	postAndFollow(t, h, page, "/participantes", url.Values{})

	form := companyValues()
	form.Set("nome-participante", "Ana Souza")
	form.Set("email-participante", "ana@example.com")
	form.Set("tel-participante", "11987654321")
	form.Set("confirmar", "sim")
	postAndFollow(t, h, page, "/enviar", form)

	body := postAndFollow(t, h, page, "/cupom", url.Values{"cupom": {"NADA"}})
	assert.Contains(t, body, service.MsgCouponInvalid)
	assert.Contains(t, body, `id="wrapCupomBtn" style="display: none"`)

	body = postAndFollow(t, h, page, "/cupom", url.Values{"cupom": {" PROMO10 "}})
	assert.Contains(t, body, "Cupom válido! Desconto: 10%")
	assert.Contains(t, body, `<a id="pagar-cupom">Pagar</a>`)
	assert.Contains(t, body, `id="wrapNormalBtn" style="display: none"`)
	assert.Contains(t, body, `id="wrapCupomBtn" style="display: block"`)

	coupons := b.received("/cupom/validar")
	require.Len(t, coupons, 2)
	assert.Equal(t, "PROMO10", coupons[1]["codigo"])
	assert.Equal(t, float64(7), coupons[1]["evento_id"])
}

func TestRetryAttendees_NothingPending(t *testing.T) {
	h, _ := newTestRouter(t, 1)
	page := startForm(t, h)

	rec := do(t, h, http.MethodPost, page+"/participantes/reenviar", url.Values{})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestState_ReturnsSessionJSON(t *testing.T) {
	h, _ := newTestRouter(t, 3)
	page := startForm(t, h)

	rec := do(t, h, http.MethodGet, page+"/estado", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var sess model.FormSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Equal(t, int64(7), sess.EventID)
	assert.Equal(t, 3, sess.RequiredAttendees)
	assert.Equal(t, strings.TrimPrefix(page, "/inscricao/"), sess.ID)
}

func TestMask(t *testing.T) {
	h, _ := newTestRouter(t, 1)

	tests := []struct {
		target string
		want   string
	}{
		{"/mascara/cpf?valor=12345678901", "123.456.789-01"},
		{"/mascara/cnpj?valor=12345678000195", "12.345.678/0001-95"},
		{"/mascara/telefone?valor=11987654321", "(11) 98765-4321"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, nil)
			require.Equal(t, http.StatusOK, rec.Code)

			var got map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got["valor"])
		})
	}

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/mascara/rg?valor=1", nil).Code)
}

func TestCORS_Preflight(t *testing.T) {
	h, _ := newTestRouter(t, 1)

	rec := do(t, h, http.MethodOptions, "/health", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestReadDraft_PairsAttendeeInputsByPosition(t *testing.T) {
	form := url.Values{
		"nome_empresa":       {"ACME"},
		"nome-participante":  {"Ana", "Bia"},
		"email-participante": {"a@x.com", "b@x.com"},
		"tel-participante":   {"1"},
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	d, err := readDraft(req)
	require.NoError(t, err)
	assert.Equal(t, "ACME", d.Company.CompanyName)
	require.Len(t, d.Attendees, 2)
	assert.Equal(t, model.AttendeeBlock{Name: "Bia", Email: "b@x.com"}, d.Attendees[1])
	assert.Equal(t, "1", d.Attendees[0].Phone)
}

func TestShow_MasksInputsThroughMaskEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, 1)
	page := startForm(t, h)

	body := postAndFollow(t, h, page, "/participantes", url.Values{})
	assert.Contains(t, body, `data-mascara="cpf"`)
	assert.Contains(t, body, `data-mascara="cnpj"`)
	assert.Equal(t, 2, strings.Count(body, `data-mascara="telefone"`), "company and attendee phones")
	assert.Contains(t, body, `addEventListener("input"`)
	assert.Contains(t, body, `var base = "`)
	assert.Contains(t, body, `mascara";`)

	// The page builds its requests from maskBase; the router serves them.
	rec := do(t, h, http.MethodGet, maskBase+"/telefone?valor="+url.QueryEscape("(11) 9876"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valor":"(11) 9876"}`, rec.Body.String())
}
