package service

import (
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/event-reg-form/internal/model"
)

// Messages shown to the person filling in the form.
const (
	MsgRequiredCompanyFields = "⚠️ Preencha todos os campos obrigatórios."
	MsgAttendeeFields        = "⚠️ Preencha todos os dados de cada participante."
	MsgDuplicateAttendee     = "⚠️ Não é permitido cadastrar participantes com os mesmos dados (nome, email ou telefone iguais)."
	MsgSendFailed            = "Erro ao enviar os dados."
	MsgCommunicationFailed   = "Erro de comunicação com o servidor."
	MsgSubmitted             = "✅ Dados enviados com sucesso!"
	MsgCouponFailed          = "Erro ao validar cupom."
	MsgCouponInvalid         = "❌ Cupom inválido."
	MsgConfirmSubmission     = "Confirme que deseja enviar os dados."
	MsgFormLocked            = "Os dados já foram enviados."
)

// ValidationError is a user-correctable problem with the form contents.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func participantsMessage(n int) string {
	return fmt.Sprintf("⚠️ Você deve adicionar no mínimo %d participantes e no máximo %d.", n, n)
}

func attendeeLimitMessage(n int) string {
	return fmt.Sprintf("⚠️ Este evento permite no máximo %d participantes.", n)
}

func attendeeMinimumMessage(n int) string {
	return fmt.Sprintf("⚠️ Você deve cadastrar pelo menos %d participantes.", n)
}

// BuildCompany turns the typed company fields into the API record. Blank
// optional fields become nil.
func BuildCompany(form model.CompanyForm, eventID int64, coupon *model.Coupon) model.CompanyRecord {
	rec := model.CompanyRecord{
		CompanyName:   strings.TrimSpace(form.CompanyName),
		Email:         strings.TrimSpace(form.Email),
		Phone:         strings.TrimSpace(form.Phone),
		TaxIDPersonal: optional(form.TaxIDPersonal),
		TaxIDBusiness: optional(form.TaxIDBusiness),
		Street:        strings.TrimSpace(form.Street),
		Number:        strings.TrimSpace(form.Number),
		Neighborhood:  strings.TrimSpace(form.Neighborhood),
		City:          strings.TrimSpace(form.City),
		State:         strings.TrimSpace(form.State),
		PostalCode:    strings.TrimSpace(form.PostalCode),
		Complement:    optional(form.Complement),
		EventID:       eventID,
	}
	if coupon != nil && !coupon.ID.IsZero() {
		rec.CouponID = coupon.ID.Ptr()
	}
	return rec
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// ValidateCompany checks the required company fields. Phone and the
// optional fields are not checked.
func ValidateCompany(c model.CompanyRecord) error {
	required := []string{c.CompanyName, c.Email, c.Street, c.Number, c.Neighborhood, c.City, c.State, c.PostalCode}
	for _, v := range required {
		if v == "" {
			return &ValidationError{Message: MsgRequiredCompanyFields}
		}
	}
	return nil
}

// DuplicateKey identifies an attendee for duplicate detection. Name and
// email are compared case-insensitively, phone as typed; gender is ignored.
func DuplicateKey(name, email, phone string) string {
	return strings.ToLower(name) + "|" + strings.ToLower(email) + "|" + phone
}

// BuildAttendees validates the attendee blocks in document order and
// returns the records to submit. It fails when there are fewer blocks than
// required, when a block misses a field, or on the first duplicate.
func BuildAttendees(blocks []model.AttendeeBlock, required int) ([]model.AttendeeRecord, error) {
	if len(blocks) < required {
		return nil, invalid("%s", attendeeMinimumMessage(required))
	}

	seen := make(map[string]struct{}, len(blocks))
	records := make([]model.AttendeeRecord, 0, len(blocks))
	for _, b := range blocks {
		name := strings.TrimSpace(b.Name)
		email := strings.ToLower(strings.TrimSpace(b.Email))
		phone := strings.TrimSpace(b.Phone)

		if name == "" || email == "" || phone == "" {
			return nil, &ValidationError{Message: MsgAttendeeFields}
		}

		key := DuplicateKey(name, email, phone)
		if _, dup := seen[key]; dup {
			return nil, &ValidationError{Message: MsgDuplicateAttendee}
		}
		seen[key] = struct{}{}

		records = append(records, model.AttendeeRecord{
			Name:   name,
			Email:  email,
			Phone:  phone,
			Gender: model.NormalizeGender(b.Gender),
		})
	}
	return records, nil
}
