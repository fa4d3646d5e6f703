package apiserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"connect-go/internal/services"
)

const maxBodyBytes = 1 << 20

// ErrorResponse 是 API 错误响应的通用结构体。
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// writeJSONResponse 是一个辅助函数，用于发送 JSON 响应。
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("无法编码 JSON 响应: %v", err)
		}
	}
}

// writeJSONError 是一个辅助函数，用于发送 JSON 格式的错误响应。
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, ErrorResponse{Error: message})
}

// writeServiceError translates a service error kind into an HTTP status.
// Store failures are logged and hidden behind a generic message.
func writeServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrInvalidOperation):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrConflict):
		writeJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrForbidden):
		writeJSONError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, services.ErrInvalidCredentials):
		writeJSONError(w, "邮箱或密码错误", http.StatusUnauthorized)
	default:
		log.Printf("Error during %s: %v", action, err)
		writeJSONError(w, fmt.Sprintf("%s失败", action), http.StatusInternalServerError)
	}
}

// decodeAndValidate reads a JSON body into dst and runs its Validate method.
// It writes the 400 response itself and reports false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst validatable) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return false
	}
	if err := dst.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, ErrorResponse{
			Error:   "请求参数校验失败",
			Details: validationDetails(err),
		})
		return false
	}
	return true
}
