package api

import (
	"errors"
	"net/http"

	"github.com/shaiso/AgentFlow/internal/domain"
	"github.com/shaiso/AgentFlow/internal/engine"
)

// ValidateFlow проверяет flow без выполнения.
// POST /api/v1/flows/validate
//
// Невалидный flow — не ошибка запроса: ответ 200 с valid=false.
func (h *Handler) ValidateFlow(w http.ResponseWriter, r *http.Request) {
	var flow domain.AgentFlow
	if err := decodeJSON(w, r, &flow); err != nil {
		BadRequest(w, err.Error())
		return
	}

	warnings, err := h.runner.Validate(&flow)
	resp := ValidateFlowResponse{Valid: err == nil, Warnings: warnings}
	if resp.Warnings == nil {
		resp.Warnings = []engine.Warning{}
	}
	if err != nil {
		resp.Error = err.Error()
		var ve *engine.ValidationError
		if errors.As(err, &ve) {
			resp.StepID = ve.StepID
		}
	}

	Success(w, resp)
}
