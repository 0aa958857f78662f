package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoforge-ai/seoforge/internal/apply"
	"github.com/seoforge-ai/seoforge/internal/draft"
	"github.com/seoforge-ai/seoforge/internal/model"
	"github.com/seoforge-ai/seoforge/internal/quota"
	"github.com/seoforge-ai/seoforge/internal/rules"
	"github.com/seoforge-ai/seoforge/internal/service/playbook"
)

func TestWriteEngineErrorMapping(t *testing.T) {
	h := &Handlers{logger: discardLogger()}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			"scope drift",
			&playbook.GateError{Code: model.ErrCodeScopeInvalid, Message: "scope changed", ExpectedScopeID: "v1:new", ProvidedScopeID: "v1:old"},
			http.StatusConflict, model.ErrCodeScopeInvalid,
		},
		{
			"rules drift",
			&playbook.GateError{Code: model.ErrCodeRulesChanged, Message: "rules changed"},
			http.StatusConflict, model.ErrCodeRulesChanged,
		},
		{
			"draft not found",
			&playbook.GateError{Code: model.ErrCodeDraftNotFound, Message: "no draft"},
			http.StatusNotFound, model.ErrCodeDraftNotFound,
		},
		{
			"draft expired",
			&playbook.GateError{Code: model.ErrCodeDraftExpired, Message: "expired"},
			http.StatusGone, model.ErrCodeDraftExpired,
		},
		{
			"draft failed",
			&playbook.GateError{Code: model.ErrCodeDraftFailed, Message: "generation failed"},
			http.StatusUnprocessableEntity, model.ErrCodeDraftFailed,
		},
		{
			"quota blocked",
			&playbook.QuotaError{Status: model.QuotaStatus{Status: quota.StatusBlocked, Reason: "limit hit"}},
			http.StatusTooManyRequests, model.ErrCodeQuotaExceeded,
		},
		{
			"invalid rules",
			rules.ErrInvalidRuleConfig,
			http.StatusBadRequest, model.ErrCodeInvalidRuleConfig,
		},
		{
			"malformed draft key",
			draft.ErrMalformedKey,
			http.StatusBadRequest, model.ErrCodeInvalidInput,
		},
		{
			"inconsistent apply request",
			playbook.ErrBadApplyRequest,
			http.StatusBadRequest, model.ErrCodeInvalidInput,
		},
		{
			"apply in progress",
			apply.ErrInProgress,
			http.StatusConflict, model.ErrCodeConflict,
		},
		{
			"unknown error",
			errors.New("database on fire"),
			http.StatusInternalServerError, model.ErrCodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeEngineError(rec, httptest.NewRequest(http.MethodPost, "/", nil), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body model.APIError
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
		})
	}
}

func TestWriteEngineErrorScopeDetails(t *testing.T) {
	h := &Handlers{logger: discardLogger()}

	rec := httptest.NewRecorder()
	h.writeEngineError(rec, httptest.NewRequest(http.MethodPost, "/", nil), &playbook.GateError{
		Code:            model.ErrCodeScopeInvalid,
		Message:         "scope changed",
		ExpectedScopeID: "v1:new",
		ProvidedScopeID: "v1:old",
	})

	var body struct {
		Error struct {
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "v1:new", body.Error.Details["expected_scope_id"])
	assert.Equal(t, "v1:old", body.Error.Details["provided_scope_id"])
}
