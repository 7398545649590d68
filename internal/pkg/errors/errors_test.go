package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New(CodeValidation, "invalid input"),
			want: "VALIDATION_ERROR: invalid input",
		},
		{
			name: "with wrapped error",
			err:  Wrap(CodeInternal, "something failed", errors.New("underlying")),
			want: "INTERNAL_ERROR: something failed: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodeInternal, "wrapped", underlying)

	if unwrapped := err.Unwrap(); unwrapped != underlying {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, underlying)
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is should see through AppError")
	}
}

func TestAppError_WithDetail(t *testing.T) {
	err := New(CodeValidation, "invalid").WithDetail("field", "size")

	if err.Details["field"] != "size" {
		t.Errorf("Details[field] = %s, want size", err.Details["field"])
	}
}

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("experiment", "exp-1")

	if err.Code != CodeNotFound {
		t.Errorf("Code = %s, want %s", err.Code, CodeNotFound)
	}
	if err.Message != "experiment exp-1 not found" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Details["kind"] != "experiment" || err.Details["id"] != "exp-1" {
		t.Errorf("Details = %v", err.Details)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  *AppError
		code string
	}{
		{"validation", ValidationError("bad"), CodeValidation},
		{"configuration", ConfigurationError("pool is not initialized"), CodeConfiguration},
		{"evaluation", EvaluationError("ndcg", cause), CodeEvaluation},
		{"search", SearchError("query failed", cause), CodeSearch},
		{"lock", LockError("held", cause), CodeLock},
		{"internal", InternalError("oops", cause), CodeInternal},
		{"timeout", TimeoutError("lookup"), CodeTimeout},
		{"unavailable", ServiceUnavailableError("redis"), CodeUnavailable},
		{"disabled", DisabledError("running experiments"), CodeDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %s, want %s", tt.err.Code, tt.code)
			}
		})
	}
}

func TestCode_WrappedChain(t *testing.T) {
	inner := LockError("lock held", nil)
	outer := fmt.Errorf("running job: %w", inner)

	if got := Code(outer); got != CodeLock {
		t.Errorf("Code() = %q, want %q", got, CodeLock)
	}
	if !IsLock(outer) {
		t.Error("IsLock() should be true through fmt wrapping")
	}
	if Code(errors.New("plain")) != "" {
		t.Error("Code() of a plain error should be empty")
	}
}

func TestPredicates(t *testing.T) {
	if !IsNotFound(NotFoundError("query set", "q")) {
		t.Error("IsNotFound() = false")
	}
	if IsNotFound(ValidationError("x")) {
		t.Error("IsNotFound() = true for validation error")
	}
	if !IsValidation(ValidationError("x")) {
		t.Error("IsValidation() = false")
	}
	if !IsConfiguration(ConfigurationError("x")) {
		t.Error("IsConfiguration() = false")
	}
}
