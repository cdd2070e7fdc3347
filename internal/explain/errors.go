package explain

import (
	"errors"
	"fmt"
)

// Kind classifies the recoverable failure modes of the engine.
type Kind int

const (
	KindUnknown Kind = iota
	KindShapeMismatch
	KindPredictionContract
	KindFeatureNotFound
	KindInvalidRepeatCount
	KindInvalidBinCount
	KindInsufficientVariation
	KindInvalidFeatureBudget
	KindInsufficientSamples
	KindInvalidTarget
	KindInterrupted
)

func (k Kind) String() string {
	switch k {
	case KindShapeMismatch:
		return "shape_mismatch"
	case KindPredictionContract:
		return "prediction_contract_violation"
	case KindFeatureNotFound:
		return "feature_not_found"
	case KindInvalidRepeatCount:
		return "invalid_repeat_count"
	case KindInvalidBinCount:
		return "invalid_bin_count"
	case KindInsufficientVariation:
		return "insufficient_variation"
	case KindInvalidFeatureBudget:
		return "invalid_feature_budget"
	case KindInsufficientSamples:
		return "insufficient_samples"
	case KindInvalidTarget:
		return "invalid_target"
	case KindInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Error is the typed failure every public operation returns. Callers
// branch on Kind via errors.As or IsKind; Feature is set when a single
// column caused the failure.
type Error struct {
	Kind    Kind
	Feature string
	msg     string
	cause   error
}

func (e *Error) Error() string {
	if e.Feature != "" {
		return fmt.Sprintf("explain: %s: feature %q: %s", e.Kind, e.Feature, e.msg)
	}
	return fmt.Sprintf("explain: %s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func errf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, msg: fmt.Sprintf(format, args...)}
}

func featureErrf(k Kind, feature, format string, args ...any) *Error {
	return &Error{Kind: k, Feature: feature, msg: fmt.Sprintf(format, args...)}
}

func wrapf(k Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: k, msg: fmt.Sprintf(format, args...), cause: cause}
}
