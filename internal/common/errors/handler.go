// internal/common/errors/handler.go
package errors

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler logs per-step pipeline failures in one consistent shape.
// Transient failures are reported and swallowed; the caller keeps going.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleStepError normalizes err, logs it once and returns the normalized form.
// Retryable errors log at warn level, the rest at error level.
func (h *ErrorHandler) HandleStepError(step string, err error, fields map[string]interface{}) *StandardError {
	if err == nil {
		return nil
	}
	stdErr := AsStandardError(err)

	entry := map[string]interface{}{
		"step":          step,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	for k, v := range stdErr.Metadata {
		entry[k] = v
	}
	for k, v := range fields {
		entry[k] = v
	}

	if stdErr.Retryable {
		h.logger.Warn("pipeline step failed", entry)
	} else {
		h.logger.Error("pipeline step failed", entry)
	}
	return stdErr
}
