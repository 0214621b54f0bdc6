package captcha

import "net/http"

// Outcome is the terminal state of a verification attempt.
type Outcome int

const (
	Passed Outcome = iota
	Failed
	InvalidID
	ProcessingError
	BackendUnavailable
	BackendProtocolError
)

func (o Outcome) String() string {
	switch o {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case InvalidID:
		return "invalid_id"
	case ProcessingError:
		return "processing_error"
	case BackendUnavailable:
		return "backend_unavailable"
	case BackendProtocolError:
		return "backend_protocol_error"
	default:
		return "unknown"
	}
}

// StatusCode is the HTTP status an outcome is reported with.
func (o Outcome) StatusCode() int {
	switch o {
	case Passed, Failed:
		return http.StatusOK
	case InvalidID:
		return http.StatusBadRequest
	case BackendUnavailable:
		return http.StatusServiceUnavailable
	case BackendProtocolError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// MessageID names the localized message shown for an outcome.
func (o Outcome) MessageID() string {
	switch o {
	case Passed:
		return "captcha_passed"
	case Failed:
		return "captcha_failed"
	case InvalidID:
		return "invalid_captcha_id"
	case BackendUnavailable:
		return "classifier_unavailable"
	case BackendProtocolError:
		return "classifier_protocol_error"
	default:
		return "processing_error"
	}
}
