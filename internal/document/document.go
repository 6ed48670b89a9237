// Package document maps a canonical answer set onto the fixed report record
// shared by every output format.
package document

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/howdo/internal/answers"
)

// Placeholder replaces any answer the user left empty.
const Placeholder = "Не указано"

// DateLayout is the dd.mm.yyyy format used for creation dates.
const DateLayout = "02.01.2006"

// ErrUnknownKind is returned by ParseKind for an unsupported document type.
var ErrUnknownKind = errors.New("unknown document type")

// Kind identifies one of the fixed document layouts.
type Kind string

const (
	KindSOK         Kind = "sok"
	KindInstruction Kind = "instruction"
	KindProcedure   Kind = "procedure"
)

// Kinds lists every supported kind in display order.
var Kinds = []Kind{KindSOK, KindInstruction, KindProcedure}

// ParseKind accepts a kind tag, defaulting to KindSOK when empty.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return KindSOK, nil
	}
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// DisplayName is the human-readable document type name.
func (k Kind) DisplayName() string {
	switch k {
	case KindSOK:
		return "Стандартная операционная карта"
	case KindInstruction:
		return "Рабочая инструкция"
	case KindProcedure:
		return "Стандарт процедуры"
	default:
		return string(k)
	}
}

// MaxSteps is the number of steps a layout has room for.
func (k Kind) MaxSteps() int {
	switch k {
	case KindInstruction:
		return 20
	default:
		return 15
	}
}

// Record is the normalized view of an answer set. Every text field is
// non-empty: missing answers carry Placeholder.
type Record struct {
	Kind         Kind
	Company      string
	BusinessArea string
	ProcessName  string
	Audience     string
	Goal         string
	Steps        []string
	Resources    string
	Results      string
	CreatedAt    time.Time
}

// Date returns the creation date formatted as dd.mm.yyyy.
func (r Record) Date() string {
	return r.CreatedAt.Format(DateLayout)
}

// Normalize builds the Record for kind k. Steps are split from the free-text
// steps answer and capped at k.MaxSteps().
func Normalize(a answers.Answers, k Kind, createdAt time.Time) Record {
	return Record{
		Kind:         k,
		Company:      orPlaceholder(a.Company),
		BusinessArea: orPlaceholder(a.BusinessArea),
		ProcessName:  orPlaceholder(a.ProcessName),
		Audience:     orPlaceholder(a.Audience),
		Goal:         orPlaceholder(a.Goal),
		Steps:        answers.SplitSteps(a.Steps, k.MaxSteps()),
		Resources:    orPlaceholder(a.Resources),
		Results:      orPlaceholder(a.Results),
		CreatedAt:    createdAt,
	}
}

// Title derives a document title from the answers.
func Title(a answers.Answers, k Kind) string {
	switch {
	case a.ProcessName != "":
		return k.DisplayName() + ": " + a.ProcessName
	case a.Company != "":
		return k.DisplayName() + ": " + a.Company
	default:
		return k.DisplayName()
	}
}

func orPlaceholder(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return Placeholder
	}
	return s
}
