// Package model defines the core domain types for the event registration form.
package model

import "time"

// Gender options offered by every attendee block.
const (
	GenderMale        = "Masculino"
	GenderFemale      = "Feminino"
	GenderUndisclosed = "Prefiro não informar"
)

// Genders lists the selectable genders in the order they are rendered.
var Genders = []string{GenderMale, GenderFemale, GenderUndisclosed}

// NormalizeGender returns g when it is one of the fixed options and the
// default option otherwise.
func NormalizeGender(g string) string {
	for _, opt := range Genders {
		if g == opt {
			return g
		}
	}
	return GenderUndisclosed
}

// EventInfo is the event metadata the form depends on.
type EventInfo struct {
	RequiredAttendees Count  `json:"limite_participantes"`
	PaymentButtonHTML string `json:"botao_pagseguro"`
}

// Required returns the number of attendees the event demands, never less than 1.
func (e *EventInfo) Required() int {
	if e.RequiredAttendees < 1 {
		return 1
	}
	return int(e.RequiredAttendees)
}

// EventResponse is the GET /evento/{id} payload. The backend answers with
// the event under either "evento" or "dados".
type EventResponse struct {
	Evento *EventInfo `json:"evento"`
	Dados  *EventInfo `json:"dados"`
}

// Event returns whichever key carried the event, or nil.
func (r *EventResponse) Event() *EventInfo {
	if r.Evento != nil {
		return r.Evento
	}
	return r.Dados
}

// CompanyRecord is the payload for POST /empresa.
type CompanyRecord struct {
	CompanyName   string  `json:"nome_empresa"`
	Email         string  `json:"email"`
	Phone         string  `json:"telefone"`
	TaxIDPersonal *string `json:"cpf"`
	TaxIDBusiness *string `json:"cnpj"`
	Street        string  `json:"logradouro"`
	Number        string  `json:"numero"`
	Neighborhood  string  `json:"bairro"`
	City          string  `json:"cidade"`
	State         string  `json:"uf"`
	PostalCode    string  `json:"cep"`
	Complement    *string `json:"complemento"`
	EventID       int64   `json:"evento_id"`
	CouponID      *ID     `json:"cupom_id"`
}

type createdEntity struct {
	ID ID `json:"id"`
}

// CompanyResponse is the POST /empresa payload. The created company comes
// back under "dados" or "empresa".
type CompanyResponse struct {
	Status  Flag           `json:"status"`
	Dados   *createdEntity `json:"dados"`
	Empresa *createdEntity `json:"empresa"`
}

// CompanyID returns the id of the created company and whether one was
// present. An empty or zero id under "dados" falls through to "empresa".
func (r *CompanyResponse) CompanyID() (ID, bool) {
	for _, e := range []*createdEntity{r.Dados, r.Empresa} {
		if e != nil && !e.ID.IsZero() && !e.ID.IsNumericZero() {
			return e.ID, true
		}
	}
	return "", false
}

// AttendeeRecord is the payload for POST /participante.
type AttendeeRecord struct {
	Name      string `json:"nome"`
	Email     string `json:"email"`
	Phone     string `json:"telefone"`
	Gender    string `json:"genero"`
	CompanyID *ID    `json:"empresa_id,omitempty"`
}

// StatusResponse is the minimal envelope shared by the backend endpoints.
type StatusResponse struct {
	Status Flag `json:"status"`
}

// CouponRequest is the payload for POST /cupom/validar.
type CouponRequest struct {
	Code    string `json:"codigo"`
	EventID int64  `json:"evento_id"`
}

// Coupon is a discount accepted by the backend for the current event.
type Coupon struct {
	ID                ID     `json:"id"`
	Discount          Text   `json:"desconto"`
	PaymentButtonHTML string `json:"botao_pagseguro_html"`
}

// CouponResponse is the POST /cupom/validar payload.
type CouponResponse struct {
	Status Flag    `json:"status"`
	Cupom  *Coupon `json:"cupom"`
}

// CompanyForm holds the company fields exactly as typed on the page.
type CompanyForm struct {
	CompanyName   string `json:"nome_empresa"`
	Email         string `json:"email"`
	Phone         string `json:"telefone"`
	TaxIDPersonal string `json:"cpf"`
	TaxIDBusiness string `json:"cnpj"`
	Street        string `json:"logradouro"`
	Number        string `json:"numero"`
	Neighborhood  string `json:"bairro"`
	City          string `json:"cidade"`
	State         string `json:"uf"`
	PostalCode    string `json:"cep"`
	Complement    string `json:"complemento"`
}

// AttendeeBlock is one rendered group of attendee inputs.
type AttendeeBlock struct {
	Name   string `json:"nome"`
	Email  string `json:"email"`
	Phone  string `json:"telefone"`
	Gender string `json:"genero"`
}

// NewAttendeeBlock returns an empty block with the default gender selected.
func NewAttendeeBlock() AttendeeBlock {
	return AttendeeBlock{Gender: GenderUndisclosed}
}

// SubmissionStatus is the lifecycle of a form session.
type SubmissionStatus string

const (
	StatusIdle      SubmissionStatus = "idle"
	StatusSubmitted SubmissionStatus = "submitted"
)

// Colours used for the coupon message.
const (
	ColorSuccess = "lightgreen"
	ColorError   = "red"
)

// FormSession is the state of one registration page load.
type FormSession struct {
	ID                  string           `json:"id"`
	EventID             int64            `json:"evento_id"`
	RequiredAttendees   int              `json:"limite_participantes"`
	ParticipantsMessage string           `json:"msg_participantes"`
	Company             CompanyForm      `json:"empresa"`
	Attendees           []AttendeeBlock  `json:"participantes"`
	Status              SubmissionStatus `json:"status"`
	CompanyID           *ID              `json:"empresa_id,omitempty"`
	FailedAttendees     []AttendeeRecord `json:"participantes_com_falha,omitempty"`

	CouponCode         string  `json:"cupom_codigo"`
	Coupon             *Coupon `json:"cupom,omitempty"`
	CouponMessage      string  `json:"msg_cupom"`
	CouponMessageColor string  `json:"msg_cupom_cor"`

	ShowCouponSection bool   `json:"mostrar_cupom"`
	ShowPayment       bool   `json:"mostrar_pagamento"`
	ShowNormalButton  bool   `json:"mostrar_botao_normal"`
	ShowCouponButton  bool   `json:"mostrar_botao_cupom"`
	NormalButtonHTML  string `json:"botao_normal_html"`
	CouponButtonHTML  string `json:"botao_cupom_html"`

	Alert string `json:"alerta,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Disabled reports whether the form no longer accepts input.
func (s *FormSession) Disabled() bool {
	return s.Status == StatusSubmitted
}

// CanAddAttendee reports whether another block fits under the event limit.
func (s *FormSession) CanAddAttendee() bool {
	return len(s.Attendees) < s.RequiredAttendees
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
