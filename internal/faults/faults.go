package faults

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind — машинный код ошибки, уходит клиенту рядом с текстом.
type Kind string

const (
	Validation         Kind = "validation"
	Location           Kind = "location"
	NetworkConnection  Kind = "network_connection"
	PowerConnection    Kind = "power_connection"
	MacAddress         Kind = "mac_address"
	ConflictUnresolved Kind = "conflict_unresolved"
	AlreadyExecuted    Kind = "already_executed"
	NotFound           Kind = "not_found"
	Permission         Kind = "permission"
	Internal           Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func Wrap(k Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf возвращает Kind ошибки (Internal для чужих ошибок).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind — errors.As + сравнение Kind.
func IsKind(err error, k Kind) bool { return err != nil && KindOf(err) == k }

// HTTPStatus — маппинг Kind -> HTTP-статус для хендлеров.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case Permission:
		return http.StatusForbidden
	case Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Aggregate копит ошибки по элементам батча, чтобы отдать всё разом,
// а не падать на первом невалидном порте.
type Aggregate struct {
	kind  Kind
	items []string
}

func NewAggregate(k Kind) *Aggregate { return &Aggregate{kind: k} }

func (a *Aggregate) Addf(format string, args ...any) {
	a.items = append(a.items, fmt.Sprintf(format, args...))
}

func (a *Aggregate) Empty() bool { return len(a.items) == 0 }

// Err — nil, если ничего не накопилось; иначе одна Error со склеенным текстом.
// Каждое сообщение уже заканчивается на ". ", поэтому склейка без разделителя.
func (a *Aggregate) Err() error {
	if a.Empty() {
		return nil
	}
	return &Error{Kind: a.kind, Message: strings.Join(a.items, "")}
}
