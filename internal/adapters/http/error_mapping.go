package httpadapter

import (
	"net/http"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

var statusByCode = map[string]int{
	domain.CodeInvalidInput:   http.StatusBadRequest,
	domain.CodeUnknownJobType: http.StatusBadRequest,
	domain.CodeNotFound:       http.StatusNotFound,
	domain.CodeNoDocumentType: http.StatusConflict,
	domain.CodeTemporary:      http.StatusServiceUnavailable,
}

func mapErrorToHTTPStatus(err error) int {
	if status, ok := statusByCode[domain.ErrorCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), errorResponse{
		Error: err.Error(),
		Code:  domain.ErrorCode(err),
	})
}
