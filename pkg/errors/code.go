package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Question & TestCase errors
// 12000-12999: Submission intake errors
// 13000-13999: Grading & Sandbox errors
// 14000-14999: Dispatch & Worker errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError     ErrorCode = 10100
	RecordNotFound    ErrorCode = 10101
	TransactionFailed ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	LockFailed ErrorCode = 10203

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Question & TestCase Errors (11000-11999) ==========

	QuestionNotFound ErrorCode = 11000
	EmptyTestCaseSet ErrorCode = 11100
	TestCaseInvalid  ErrorCode = 11101

	// ========== Submission Intake Errors (12000-12999) ==========

	SubmissionNotFound     ErrorCode = 12000
	SubmissionCreateFailed ErrorCode = 12001
	CodeTooLarge           ErrorCode = 12002
	SubmitTooFrequently    ErrorCode = 12003
	CandidateNotFound      ErrorCode = 12004

	// ========== Grading & Sandbox Errors (13000-13999) ==========

	UnsupportedLanguage ErrorCode = 13000
	EntryPointNotFound  ErrorCode = 13001
	CompileFailure      ErrorCode = 13100
	ExecutionTimeout    ErrorCode = 13101
	MemoryExceeded      ErrorCode = 13102
	RuntimeFailure      ErrorCode = 13103
	OutputMismatch      ErrorCode = 13104
	SandboxError        ErrorCode = 13200
	GradingDeadline     ErrorCode = 13201

	// ========== Dispatch & Worker Errors (14000-14999) ==========

	QueueFull          ErrorCode = 14000
	JobAlreadyActive   ErrorCode = 14001
	WorkerLeaseExpired ErrorCode = 14002
	RetriesExhausted   ErrorCode = 14003
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:     "Database operation failed",
	RecordNotFound:    "Record not found in database",
	TransactionFailed: "Database transaction failed",

	// Cache
	CacheError: "Cache operation failed",
	LockFailed: "Failed to acquire lock",

	// Validation
	ValidationFailed:   "Validation failed",
	RequiredFieldEmpty: "Required field is empty",

	// Question & TestCase
	QuestionNotFound: "Question not found",
	EmptyTestCaseSet: "Question has no test cases",
	TestCaseInvalid:  "Test case is invalid",

	// Submission intake
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Source code too large",
	SubmitTooFrequently:    "Submit too frequently",
	CandidateNotFound:      "Candidate not found",

	// Grading & Sandbox
	UnsupportedLanguage: "Language is not supported",
	EntryPointNotFound:  "No entry point found in source code",
	CompileFailure:      "Compilation failed",
	ExecutionTimeout:    "Time limit exceeded",
	MemoryExceeded:      "Memory limit exceeded",
	RuntimeFailure:      "Runtime error",
	OutputMismatch:      "Output does not match expected output",
	SandboxError:        "Sandbox execution failed",
	GradingDeadline:     "Grading exceeded its overall deadline",

	// Dispatch & Worker
	QueueFull:          "Grading queue is full",
	JobAlreadyActive:   "Submission is already being graded",
	WorkerLeaseExpired: "Worker lease expired",
	RetriesExhausted:   "Job retries exhausted",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus maps the error code to an HTTP status code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == RecordNotFound, c == QuestionNotFound,
		c == SubmissionNotFound, c == CandidateNotFound:
		return 404
	case c == TooManyRequests, c == SubmitTooFrequently, c == QueueFull:
		return 429
	case c == ServiceUnavailable:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == CodeTooLarge, c == UnsupportedLanguage:
		return 400
	case c == JobAlreadyActive:
		return 409
	default:
		return 500
	}
}
