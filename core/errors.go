package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorUnknownVersion        = "APIVERSION_UNKNOWN_VERSION"
	ErrorConfig                = "APIVERSION_CONFIG_ERROR"
	ErrorChangeExecution       = "APIVERSION_CHANGE_EXECUTION_FAILED"
	ErrorTransformationTimeout = "APIVERSION_TRANSFORMATION_TIMEOUT"
	ErrorBadInput              = "APIVERSION_BAD_INPUT"
	ErrorInternal              = "APIVERSION_INTERNAL_ERROR"
)

var (
	ErrUnknownVersion        = errors.New("core: unknown api version")
	ErrConfig                = errors.New("core: invalid change configuration")
	ErrChangeExecution       = errors.New("core: change execution failed")
	ErrTransformationTimeout = errors.New("core: transformation timed out")
)

func newUnknownVersionError(version string, metadata map[string]any) *goerrors.Error {
	fields := cloneFields(metadata)
	fields["version"] = version
	return newEngineError(
		ErrUnknownVersion,
		fmt.Sprintf("core: unknown api version %q", version),
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		ErrorUnknownVersion,
		fields,
	)
}

func newConfigError(message string, metadata map[string]any) *goerrors.Error {
	return newEngineError(
		ErrConfig,
		message,
		goerrors.CategoryValidation,
		http.StatusInternalServerError,
		ErrorConfig,
		metadata,
	)
}

func newChangeExecutionError(source error, message string, metadata map[string]any) *goerrors.Error {
	if source == nil {
		source = ErrChangeExecution
	} else {
		source = fmt.Errorf("%w: %w", ErrChangeExecution, source)
	}
	return newEngineError(
		source,
		message,
		goerrors.CategoryOperation,
		http.StatusUnprocessableEntity,
		ErrorChangeExecution,
		metadata,
	)
}

func newTransformationTimeoutError(source error, message string, metadata map[string]any) *goerrors.Error {
	if source == nil {
		source = ErrTransformationTimeout
	} else {
		source = fmt.Errorf("%w: %w", ErrTransformationTimeout, source)
	}
	return newEngineError(
		source,
		message,
		goerrors.CategoryOperation,
		http.StatusGatewayTimeout,
		ErrorTransformationTimeout,
		metadata,
	)
}

func newBadInputError(message string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(cloneFields(metadata))
	}
	return err
}

func newEngineError(
	source error,
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(cloneFields(metadata))
	}
	return err
}

func IsUnknownVersion(err error) bool {
	return hasTextCode(err, ErrorUnknownVersion)
}

func IsConfigError(err error) bool {
	return hasTextCode(err, ErrorConfig)
}

func IsChangeExecutionError(err error) bool {
	return hasTextCode(err, ErrorChangeExecution)
}

func IsTransformationTimeout(err error) bool {
	return hasTextCode(err, ErrorTransformationTimeout)
}

// IsVersioningError reports whether err belongs to the engine taxonomy, as
// opposed to a business or transport failure.
func IsVersioningError(err error) bool {
	return IsUnknownVersion(err) || IsConfigError(err) || IsChangeExecutionError(err) || IsTransformationTimeout(err)
}

func hasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return false
	}
	return richErr.TextCode == textCode
}

func engineErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureEngineErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "unknown api version"):
		return ensureEngineErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ErrorUnknownVersion))
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "duplicate"):
		return ensureEngineErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryValidation).WithTextCode(ErrorConfig))
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureEngineErrorEnvelope(mapped)
}

func ensureEngineErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = engineHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultEngineTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultEngineTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return ErrorBadInput
	case goerrors.CategoryValidation:
		return ErrorConfig
	case goerrors.CategoryOperation:
		return ErrorChangeExecution
	default:
		return ErrorInternal
	}
}

func engineHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryOperation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
