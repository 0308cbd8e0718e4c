// Package events разбирает тело вебхука провайдера подписок и превращает его
// в типизированное событие жизненного цикла подписки.
//
// Decode проверяет структуру конверта, Parse сопоставляет тип события с правилом
// перехода, Apply вычисляет новое состояние записи Entitlement.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator"
)

// ErrEmptyBody возвращается, если тело запроса пустое.
var ErrEmptyBody = errors.New("empty body")

// ErrInvalidUTF8 возвращается, если тело запроса не является корректным UTF-8.
var ErrInvalidUTF8 = errors.New("body is not valid UTF-8")

// ErrNULCharacter возвращается, если ключевое поле события содержит символ U+0000.
var ErrNULCharacter = errors.New("field contains NUL character")

// MaxMillis — последняя миллисекунда 9999 года. Метки времени больше неё
// не помещаются в timestamptz и считаются отсутствующими.
const MaxMillis int64 = 253402300799999

// ValidationError означает, что конверт события сформирован неверно.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Envelope — внешний объект тела вебхука.
type Envelope struct {
	Event *Payload `json:"event" validate:"required"`
}

// Payload содержит поля события. Обязательны только type и app_user_id,
// остальные поля читаются нестрого: неверный тип значения равносилен его отсутствию.
type Payload struct {
	ID                     json.RawMessage `json:"id"`
	Type                   string          `json:"type" validate:"required"`
	AppUserID              string          `json:"app_user_id" validate:"required"`
	ProductID              json.RawMessage `json:"product_id"`
	NewProductID           json.RawMessage `json:"new_product_id"`
	ExpirationAtMs         json.RawMessage `json:"expiration_at_ms"`
	GracePeriodExpiresAtMs json.RawMessage `json:"grace_period_expires_at_ms"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode разбирает тело запроса и проверяет обязательные поля конверта.
func Decode(body []byte) (Envelope, error) {
	var env Envelope

	if len(bytes.TrimSpace(body)) == 0 {
		return env, &ValidationError{Message: "invalid payload", Err: ErrEmptyBody}
	}
	if !utf8.Valid(body) {
		return env, &ValidationError{Message: "invalid payload", Err: ErrInvalidUTF8}
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return env, &ValidationError{Message: "invalid JSON payload", Err: err}
	}
	if env.Event != nil {
		env.Event.Type = strings.TrimSpace(env.Event.Type)
		env.Event.AppUserID = strings.TrimSpace(env.Event.AppUserID)
	}

	if err := validate.Struct(env); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return env, &ValidationError{Message: describe(verrs)}
		}
		return env, &ValidationError{Message: "invalid payload", Err: err}
	}

	if field := fieldWithNUL(env.Event); field != "" {
		return env, &ValidationError{Message: "invalid field: event." + field, Err: ErrNULCharacter}
	}
	return env, nil
}

// fieldWithNUL возвращает имя ключевого поля с символом U+0000: такие значения
// нельзя сохранить в текстовую колонку.
func fieldWithNUL(p *Payload) string {
	switch {
	case strings.ContainsRune(p.Type, 0):
		return "type"
	case strings.ContainsRune(p.AppUserID, 0):
		return "app_user_id"
	}
	var id string
	if json.Unmarshal(p.ID, &id) == nil && strings.ContainsRune(id, 0) {
		return "id"
	}
	return ""
}

func describe(errs validator.ValidationErrors) string {
	fields := make([]string, 0, len(errs))
	for _, fe := range errs {
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		fields = append(fields, ns)
	}
	return "missing required fields: " + strings.Join(fields, ", ")
}

// optString читает необязательную строку. null, пустая строка, не-строка
// и строка с U+0000 дают nil.
func optString(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsRune(s, 0) {
		return nil
	}
	return &s
}

// optMillis читает необязательную метку времени в миллисекундах.
// Принимает число или строку с числом; значения <= 0 и больше MaxMillis
// считаются отсутствующими.
func optMillis(raw json.RawMessage) *int64 {
	if len(raw) == 0 {
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		num = json.Number(strings.TrimSpace(s))
	}
	ms, err := num.Int64()
	if err != nil {
		f, ferr := strconv.ParseFloat(num.String(), 64)
		if ferr != nil {
			return nil
		}
		if !(f > 0 && f <= float64(MaxMillis)) {
			return nil
		}
		ms = int64(f)
	}
	if ms <= 0 || ms > MaxMillis {
		return nil
	}
	return &ms
}
