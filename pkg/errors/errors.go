// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStoreEntityNotFound     Code = "store.entity.get.not_found"
	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"
	CodeStoreConflict           Code = "store.conflict"
	CodeStoreInvalidInput       Code = "store.invalid_input"

	CodeSupportSetNotFound      Code = "supportset.get.not_found"
	CodeSupportSetCreateInvalid Code = "supportset.create.invalid_input"

	CodeQuerySetNotFound      Code = "queryset.get.not_found"
	CodeQuerySetCreateInvalid Code = "queryset.create.invalid_input"

	CodeClassifyThresholdInvalid Code = "classify.threshold.invalid"
	CodeClassifyMethodInvalid    Code = "classify.method.invalid"
	CodeClassifyEmbeddingInvalid Code = "classify.embedding.invalid"

	CodeEmbeddingUnavailable    Code = "embedding.provider.unavailable"
	CodeEmbeddingMissing        Code = "embedding.vector.unavailable"
	CodeEmbeddingTimeout        Code = "embedding.provider.timeout"
	CodeEmbeddingRequestInvalid Code = "embedding.request.invalid"

	CodeExperimentNotFound       Code = "experiment.get.not_found"
	CodeExperimentCreateInvalid  Code = "experiment.create.invalid_input"
	CodeExperimentCompareInvalid Code = "experiment.compare.invalid_input"
	CodeExperimentStateInvalid   Code = "experiment.state.invalid_state"
	CodeExperimentRunFailure     Code = "experiment.run.failure"
	CodeExperimentRunTimeout     Code = "experiment.run.timeout"

	CodeTrackingNotFound      Code = "pipeline.record.not_found"
	CodeTrackingUpdateInvalid Code = "pipeline.update.invalid_input"
	CodeStageWorkerFailure    Code = "pipeline.worker.failure"
	CodeStageWorkerTimeout    Code = "pipeline.worker.timeout"
	CodeStageWorkerMissing    Code = "pipeline.worker.missing"

	CodeLaneClosed Code = "lane.submit.closed"
	CodeLanePanic  Code = "lane.work.failure"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeSecretInvalidInput   Code = "secret.input.invalid"
	CodeSecretNotFound       Code = "secret.get.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerEntityNotFound  Code = "server.entity.not_found"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"

	CodeCLIServerNotRunning Code = "cli.server.not_running"
	CodeCLIRequestFailure   Code = "cli.request.failure"
	CodeCLIResponseInvalid  Code = "cli.response.invalid"
	CodeCLISetupFailure     Code = "cli.setup.failure"
	CodeCLIInputInvalid     Code = "cli.input.invalid"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field attaches an arbitrary key/value to an error.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// Well-known fields. Keys match the slog attributes used in log records.

func FieldExperimentID(value string) Attr {
	return Field("experiment_id", value)
}

func FieldSupportSetID(value string) Attr {
	return Field("support_set_id", value)
}

func FieldQuerySetID(value string) Attr {
	return Field("query_set_id", value)
}

func FieldAssetID(value string) Attr {
	return Field("asset_id", value)
}

func FieldStage(value string) Attr {
	return Field("stage", value)
}

// New returns an error with code, message and fields.
func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

// Errorf is New with a format string. %w wraps its operand.
func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

// Wrap annotates err with code, message and fields. Wrap(nil, ...) is nil.
func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

// CodeOf returns the innermost code in the chain; oops walks to the deepest
// coded error.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

// FieldsOf returns the fields attached anywhere in the chain, or nil.
func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

// HasCode reports whether CodeOf(err) is code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsNotFound reports a missing entity.
func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

// IsConflict reports a uniqueness or version conflict.
func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

// IsInvalidInput reports a request rejected by validation.
func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

// IsInvalidState reports whether the operation was rejected because the
// target entity is in the wrong lifecycle state.
func IsInvalidState(err error) bool {
	return reason(CodeOf(err)) == "invalid_state"
}

// IsTimeout reports an operation that exceeded its deadline.
func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

// IsUnavailable reports a collaborator that cannot serve right now.
func IsUnavailable(err error) bool {
	return reason(CodeOf(err)) == "unavailable"
}

// HTTPStatus maps the error's code to a response status; 500 when unknown.
func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err), IsInvalidState(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Join combines errs; the result carries the internal failure code.
func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
