// Package handlers implements the four ingress endpoints named in spec.md
// §6, adapted from the teacher's (github.com/BaSui01/agentflow)
// api/handlers package: one file per wire protocol plus this shared
// response/validation helper file.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tytsxai/proxycast/api"
	"github.com/tytsxai/proxycast/errs"
)

// Response is a type alias for api.Response, the canonical envelope.
type Response = api.Response

// ErrorInfo is a type alias for api.ErrorInfo.
type ErrorInfo = api.ErrorInfo

// WriteJSON writes data as a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 Response envelope wrapping data.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError writes the Response envelope for a failed request, mapping
// err.HTTPStatus (falling back to the code's class) and logging it.
func WriteError(w http.ResponseWriter, err *errs.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = mapCodeToHTTPStatus(err.Code)
	}

	if logger != nil {
		logger.Error("api error",
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.String("provider", err.Provider),
			zap.Int("status", status),
			zap.Bool("retryable", err.Retryable()),
		)
	}

	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:       string(err.Code),
			Message:    err.UserMessage(),
			Retryable:  err.Retryable(),
			HTTPStatus: status,
		},
		Timestamp: time.Now(),
	})
}

// WriteErrorMessage writes a one-off error Response without a pre-built
// *errs.Error.
func WriteErrorMessage(w http.ResponseWriter, status int, code errs.Code, message string, logger *zap.Logger) {
	WriteError(w, &errs.Error{Code: code, Message: message, HTTPStatus: status}, logger)
}

func mapCodeToHTTPStatus(code errs.Code) int {
	switch code {
	case errs.Request, errs.Parse:
		return http.StatusBadRequest
	case errs.AuthenticationFailure, errs.TokenExpired:
		return http.StatusUnauthorized
	case errs.RateLimit:
		return http.StatusTooManyRequests
	case errs.QuotaExceeded:
		return http.StatusPaymentRequired
	case errs.Configuration:
		return http.StatusInternalServerError
	case errs.Network, errs.Server:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSONBody decodes r.Body into dst, rejecting bodies over 1 MiB and
// unknown fields, and writes the error Response itself on failure.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil {
		err := &errs.Error{Code: errs.Request, Message: "request body is empty", HTTPStatus: http.StatusBadRequest}
		WriteError(w, err, logger)
		return err
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		apiErr := &errs.Error{Code: errs.Request, Message: "invalid JSON body: " + err.Error(), HTTPStatus: http.StatusBadRequest}
		WriteError(w, apiErr, logger)
		return apiErr
	}
	return nil
}

// asErrError adapts an arbitrary error returned by pipeline/AppState calls
// into the *errs.Error shape WriteError expects, so handlers never need a
// type switch of their own.
func asErrError(err error) *errs.Error {
	if e, ok := err.(*errs.Error); ok {
		return e
	}
	return &errs.Error{Code: errs.Unknown, Message: err.Error()}
}
