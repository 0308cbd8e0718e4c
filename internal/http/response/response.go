// Package response содержит типы и функции для формирования JSON-ответов
// HTTP-обработчиков: ответы вебхука в формате, который ожидает провайдер,
// ответы проверки живости и ответы операторского API.
package response

// Response описывает стандартную структуру JSON-ответа операторского API.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// ErrorResponse — структура ошибки для Swagger-документации.
type ErrorResponse struct {
	Status string `json:"status" example:"Error"`
	Error  string `json:"error" example:"entitlement not found"`
}

const (
	// StatusOK — значение статуса для успешного ответа.
	StatusOK = "OK"
	// StatusError — значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

// StatusOKWithData возвращает успешный Response с переданными данными.
func StatusOKWithData(data any) Response {
	return Response{
		Status: StatusOK,
		Data:   data,
	}
}

// Error возвращает ответ с ошибкой и переданным сообщением.
func Error(msg string) ErrorResponse {
	return ErrorResponse{
		Status: StatusError,
		Error:  msg,
	}
}

// Сообщения ответа вебхука.
const (
	MessageProcessed        = "Event processed successfully"
	MessageAlreadyProcessed = "Event already processed"
)

// Заголовки ошибок вебхука.
const (
	ErrBadRequest       = "Bad Request"
	ErrUnauthorized     = "Unauthorized"
	ErrMisconfiguration = "Server misconfiguration"
	ErrInternal         = "Internal Server Error"
	ErrNotFound         = "Not Found"
	ErrTooManyRequests  = "Too Many Requests"
)

// WebhookOK — ответ 200 на доставку вебхука.
type WebhookOK struct {
	Status    string `json:"status" example:"ok"`
	Message   string `json:"message" example:"Event processed successfully"`
	EventType string `json:"event_type" example:"INITIAL_PURCHASE"`
}

// WebhookError — ответ вебхука с ошибкой.
type WebhookError struct {
	Error   string `json:"error" example:"Bad Request"`
	Message string `json:"message" example:"missing required fields: event.type"`
}

// Processed формирует успешный ответ вебхука.
func Processed(eventType string, already bool) WebhookOK {
	msg := MessageProcessed
	if already {
		msg = MessageAlreadyProcessed
	}
	return WebhookOK{Status: "ok", Message: msg, EventType: eventType}
}

// WebhookFailure формирует ответ вебхука с ошибкой.
func WebhookFailure(title, msg string) WebhookError {
	return WebhookError{Error: title, Message: msg}
}

// Health — ответ проверки живости.
type Health struct {
	Status   string `json:"status" example:"healthy"`
	Database string `json:"database" example:"connected"`
}

// Healthy и Unhealthy — ответы проверки живости.
var (
	Healthy   = Health{Status: "healthy", Database: "connected"}
	Unhealthy = Health{Status: "unhealthy", Database: "disconnected"}
)
