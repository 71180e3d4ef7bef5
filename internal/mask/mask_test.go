package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCPF(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "three digits", input: "123", want: "123"},
		{name: "four digits", input: "1234", want: "123.4"},
		{name: "seven digits", input: "1234567", want: "123.456.7"},
		{name: "ten digits", input: "1234567890", want: "123.456.789-0"},
		{name: "complete", input: "12345678901", want: "123.456.789-01"},
		{name: "already masked", input: "123.456.789-01", want: "123.456.789-01"},
		{name: "truncates extra digits", input: "1234567890123", want: "123.456.789-01"},
		{name: "ignores letters", input: "abc123def456", want: "123.456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CPF(tt.input))
		})
	}
}

func TestCNPJ(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "three digits", input: "123", want: "12.3"},
		{name: "eight digits", input: "12345678", want: "12.345.678"},
		{name: "nine digits", input: "123456780", want: "12.345.678/0"},
		{name: "thirteen digits", input: "1234567800019", want: "12.345.678/0001-9"},
		{name: "complete", input: "12345678000195", want: "12.345.678/0001-95"},
		{name: "already masked", input: "12.345.678/0001-95", want: "12.345.678/0001-95"},
		{name: "truncates extra digits", input: "1234567800019599", want: "12.345.678/0001-95"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CNPJ(tt.input))
		})
	}
}

func TestPhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "area code only", input: "11", want: "11"},
		{name: "area code and one digit", input: "119", want: "(11) 9"},
		{name: "mobile", input: "11987654321", want: "(11) 98765-4321"},
		{name: "landline", input: "1123456789", want: "(11) 2345-6789"},
		{name: "mobile already masked", input: "(11) 98765-4321", want: "(11) 98765-4321"},
		{name: "landline already masked", input: "(11) 2345-6789", want: "(11) 2345-6789"},
		{name: "truncates extra digits", input: "119876543210", want: "(11) 98765-4321"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Phone(tt.input))
		})
	}
}

func TestApply(t *testing.T) {
	got, err := Apply(KindCPF, "12345678901")
	require.NoError(t, err)
	assert.Equal(t, "123.456.789-01", got)

	got, err = Apply("TELEFONE", "11987654321")
	require.NoError(t, err)
	assert.Equal(t, "(11) 98765-4321", got)

	_, err = Apply("rg", "123")
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestMasksAreIdempotent(t *testing.T) {
	masks := map[string]func(string) string{
		"cpf":      CPF,
		"cnpj":     CNPJ,
		"telefone": Phone,
	}

	for name, fn := range masks {
		t.Run(name, func(t *testing.T) {
			rapid.Check(t, func(rt *rapid.T) {
				input := rapid.StringMatching(`[0-9 ().\-/a-z]{0,20}`).Draw(rt, "input")
				once := fn(input)
				twice := fn(once)
				if once != twice {
					rt.Fatalf("mask(%q) = %q but mask(mask(x)) = %q", input, once, twice)
				}
			})
		})
	}
}

func TestMasksKeepDigitsInOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		d := rapid.StringMatching(`[0-9]{0,11}`).Draw(rt, "digits")
		if got := nonDigit.ReplaceAllString(Phone(d), ""); got != d {
			rt.Fatalf("Phone(%q) lost digits: %q", d, got)
		}
		if got := nonDigit.ReplaceAllString(CPF(d), ""); got != d {
			rt.Fatalf("CPF(%q) lost digits: %q", d, got)
		}
	})
}
