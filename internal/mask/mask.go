// Package mask formats Brazilian document and phone numbers while they are
// being typed. Every mask strips non-digits, truncates to the document
// length and re-inserts separators positionally, so partial input is
// formatted as far as it goes and masked output masks to itself.
package mask

import (
	"errors"
	"regexp"
	"strings"
)

// Kind names a mask.
type Kind string

const (
	KindCPF   Kind = "cpf"
	KindCNPJ  Kind = "cnpj"
	KindPhone Kind = "telefone"
)

// ErrUnknownKind is returned by Apply for an unsupported mask name.
var ErrUnknownKind = errors.New("unknown mask")

const (
	cpfDigits   = 11
	cnpjDigits  = 14
	phoneDigits = 11
)

var (
	nonDigit = regexp.MustCompile(`\D`)

	threeThenDigit = regexp.MustCompile(`(\d{3})(\d)`)
	twoThenDigit   = regexp.MustCompile(`(\d{2})(\d)`)
	cpfCheck       = regexp.MustCompile(`(\d{3})(\d{1,2})$`)
	cnpjCheck      = regexp.MustCompile(`(\d{4})(\d{1,2})$`)
	areaCode       = regexp.MustCompile(`^(\d{2})(\d)`)
	subscriber     = regexp.MustCompile(`(\d{4,5})(\d{4})$`)
)

// CPF formats up to 11 digits as NNN.NNN.NNN-NN.
func CPF(v string) string {
	d := digits(v, cpfDigits)
	d = replaceFirst(threeThenDigit, d, "$1.$2")
	d = replaceFirst(threeThenDigit, d, "$1.$2")
	return replaceFirst(cpfCheck, d, "$1-$2")
}

// CNPJ formats up to 14 digits as NN.NNN.NNN/NNNN-NN.
func CNPJ(v string) string {
	d := digits(v, cnpjDigits)
	d = replaceFirst(twoThenDigit, d, "$1.$2")
	d = replaceFirst(threeThenDigit, d, "$1.$2")
	d = replaceFirst(threeThenDigit, d, "$1/$2")
	return replaceFirst(cnpjCheck, d, "$1-$2")
}

// Phone formats up to 11 digits as (NN) NNNNN-NNNN, or (NN) NNNN-NNNN for
// ten-digit landlines.
func Phone(v string) string {
	d := digits(v, phoneDigits)
	d = replaceFirst(areaCode, d, "($1) $2")
	return replaceFirst(subscriber, d, "$1-$2")
}

// Apply runs the mask named by kind.
func Apply(kind Kind, v string) (string, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case KindCPF:
		return CPF(v), nil
	case KindCNPJ:
		return CNPJ(v), nil
	case KindPhone:
		return Phone(v), nil
	default:
		return "", ErrUnknownKind
	}
}

func digits(v string, max int) string {
	d := nonDigit.ReplaceAllString(v, "")
	if len(d) > max {
		d = d[:max]
	}
	return d
}

// replaceFirst substitutes only the leftmost match of re.
func replaceFirst(re *regexp.Regexp, s, template string) string {
	m := re.FindStringSubmatchIndex(s)
	if m == nil {
		return s
	}
	out := re.ExpandString(nil, template, s, m)
	return s[:m[0]] + string(out) + s[m[1]:]
}
