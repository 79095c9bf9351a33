package errors_test

import (
	stderrors "errors"
	"testing"

	. "gradex/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{SubmissionNotFound, "Submission not found"},
		{UnsupportedLanguage, "Language is not supported"},
		{InvalidParams, "Invalid parameters"},
		{DatabaseError, "Database operation failed"},
		{GradingDeadline, "Grading exceeded its overall deadline"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{UnsupportedLanguage, 400},
		{NotFound, 404},
		{SubmissionNotFound, 404},
		{QuestionNotFound, 404},
		{JobAlreadyActive, 409},
		{TooManyRequests, 429},
		{SubmitTooFrequently, 429},
		{QueueFull, 429},
		{ServiceUnavailable, 503},
		{InternalServerError, 500},
		{SandboxError, 500},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestNew(t *testing.T) {
	err := New(SubmissionNotFound)

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Code != SubmissionNotFound {
		t.Errorf("Code = %v, want %v", err.Code, SubmissionNotFound)
	}
	if err.Error() != SubmissionNotFound.Message() {
		t.Errorf("Error() = %v, want %v", err.Error(), SubmissionNotFound.Message())
	}
}

func TestNewf(t *testing.T) {
	err := Newf(UnsupportedLanguage, "language %q is not supported", "cobol")

	want := `language "cobol" is not supported`
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	originalErr := stderrors.New("connection refused")
	wrappedErr := Wrap(originalErr, DatabaseError)

	if wrappedErr.Code != DatabaseError {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, DatabaseError)
	}
	if wrappedErr.Unwrap() != originalErr {
		t.Error("Unwrap() should return original error")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, DatabaseError) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestError_WithDetail(t *testing.T) {
	err := New(ValidationFailed).
		WithDetail("field", "language").
		WithDetail("reason", "required")

	if err.Details["field"] != "language" {
		t.Error("Field detail not set correctly")
	}
	if err.Details["reason"] != "required" {
		t.Error("Reason detail not set correctly")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(New(QueueFull)); got != QueueFull {
		t.Errorf("GetCode() = %v, want QueueFull", got)
	}
	if got := GetCode(stderrors.New("plain")); got != InternalServerError {
		t.Errorf("GetCode(plain) = %v, want InternalServerError", got)
	}
	if got := GetCode(nil); got != Success {
		t.Errorf("GetCode(nil) = %v, want Success", got)
	}
}

func TestIs(t *testing.T) {
	err := Newf(EntryPointNotFound, "no public class")
	if !Is(err, EntryPointNotFound) {
		t.Error("Is() should match the error code")
	}
	if Is(err, CompileFailure) {
		t.Error("Is() matched the wrong code")
	}
	if Is(nil, CompileFailure) {
		t.Error("Is(nil) should be false")
	}
}
