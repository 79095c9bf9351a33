package controller

import (
	"gradex/internal/grader/model"
	"gradex/internal/intake/service"
	"gradex/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmissionController handles submission HTTP endpoints.
type SubmissionController struct {
	intake *service.IntakeService
}

// NewSubmissionController creates a new SubmissionController.
func NewSubmissionController(intake *service.IntakeService) *SubmissionController {
	return &SubmissionController{intake: intake}
}

// Create accepts a submission and enqueues it for grading.
func (h *SubmissionController) Create(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	submissionID, err := h.intake.Submit(c.Request.Context(), service.SubmitInput{
		CandidateID:  req.CandidateID,
		QuestionID:   req.QuestionID,
		AssessmentID: req.AssessmentID,
		Code:         req.Code,
		Language:     req.Language,
		IsFinal:      req.IsFinal,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, SubmitResponse{
		SubmissionID: submissionID,
		Status:       string(model.StatusPending),
	})
}

// GetStatus returns one submission with its per-test-case results.
func (h *SubmissionController) GetStatus(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	status, err := h.intake.GetStatus(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toStatusResponse(status))
}

// Rejudge re-grades a terminal submission under a new generation.
func (h *SubmissionController) Rejudge(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	generation, err := h.intake.Rejudge(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, RejudgeResponse{
		SubmissionID: submissionID,
		Generation:   generation,
		Status:       string(model.StatusPending),
	})
}

// SubmitRequest defines the submission payload.
type SubmitRequest struct {
	CandidateID  int64  `json:"candidate_id" binding:"required"`
	QuestionID   int64  `json:"question_id" binding:"required"`
	AssessmentID int64  `json:"assessment_id"`
	Code         string `json:"code" binding:"required"`
	Language     string `json:"language" binding:"required"`
	IsFinal      bool   `json:"is_final"`
}

// SubmitResponse defines the submission response payload.
type SubmitResponse struct {
	SubmissionID string `json:"submission_id"`
	Status       string `json:"status"`
}

// RejudgeResponse defines the re-judge response payload.
type RejudgeResponse struct {
	SubmissionID string `json:"submission_id"`
	Generation   int    `json:"generation"`
	Status       string `json:"status"`
}

// StatusResponse defines the status query response payload.
type StatusResponse struct {
	SubmissionID    string               `json:"submission_id"`
	QuestionID      int64                `json:"question_id"`
	Status          string               `json:"status"`
	OverallVerdict  string               `json:"overall_verdict,omitempty"`
	TotalScore      float64              `json:"total_score"`
	ExecutionTimeMs int64                `json:"execution_time_ms"`
	MemoryUsedKB    int64                `json:"memory_used_kb"`
	CompileError    string               `json:"compile_error,omitempty"`
	RuntimeError    string               `json:"runtime_error,omitempty"`
	Generation      int                  `json:"generation"`
	SubmittedAt     int64                `json:"submitted_at"`
	ExecutedAt      int64                `json:"executed_at,omitempty"`
	Results         []TestCaseResultView `json:"results,omitempty"`
}

// TestCaseResultView is one per-test-case row in evaluation order.
type TestCaseResultView struct {
	TestCaseID      int64   `json:"test_case_id"`
	Verdict         string  `json:"verdict"`
	Score           float64 `json:"score"`
	ExecutionTimeMs int64   `json:"execution_time_ms"`
	MemoryUsedKB    int64   `json:"memory_used_kb"`
	ActualOutput    string  `json:"actual_output"`
	ErrorMessage    string  `json:"error_message,omitempty"`
}

func toStatusResponse(status *service.StatusOutput) StatusResponse {
	sub := status.Submission
	resp := StatusResponse{
		SubmissionID:    sub.SubmissionID,
		QuestionID:      sub.QuestionID,
		Status:          string(sub.Status),
		OverallVerdict:  string(sub.OverallVerdict),
		TotalScore:      sub.TotalScore,
		ExecutionTimeMs: sub.ExecutionTimeMs,
		MemoryUsedKB:    sub.MemoryUsedKB,
		CompileError:    sub.CompileError,
		RuntimeError:    sub.RuntimeError,
		Generation:      sub.Generation,
		SubmittedAt:     sub.SubmittedAt.Unix(),
	}
	if !sub.ExecutedAt.IsZero() {
		resp.ExecutedAt = sub.ExecutedAt.Unix()
	}
	for _, row := range status.Results {
		resp.Results = append(resp.Results, TestCaseResultView{
			TestCaseID:      row.TestCaseID,
			Verdict:         string(row.Verdict),
			Score:           row.Score,
			ExecutionTimeMs: row.ExecutionTimeMs,
			MemoryUsedKB:    row.MemoryUsedKB,
			ActualOutput:    row.ActualOutput,
			ErrorMessage:    row.ErrorMessage,
		})
	}
	return resp
}
