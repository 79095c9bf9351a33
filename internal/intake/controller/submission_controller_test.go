package controller

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gradex/internal/grader/model"
	"gradex/internal/grader/verdict"
	"gradex/internal/intake/service"
)

func TestStatusResponseCarriesPerCaseFields(t *testing.T) {
	status := &service.StatusOutput{
		Submission: &model.Submission{
			SubmissionID:   "sub-1",
			QuestionID:     42,
			Status:         model.StatusCompleted,
			OverallVerdict: verdict.WA,
			TotalScore:     25,
			Generation:     1,
			SubmittedAt:    time.Unix(1700000000, 0),
		},
		Results: []model.SubmissionResult{
			{
				TestCaseID:      1,
				Verdict:         verdict.OK,
				Score:           25,
				ExecutionTimeMs: 12,
				MemoryUsedKB:    2048,
				ActualOutput:    "4",
			},
			{
				TestCaseID:   2,
				Verdict:      verdict.WA,
				ActualOutput: "4  2",
			},
		},
	}

	resp := toStatusResponse(status)
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}
	if resp.Results[0].ActualOutput != "4" {
		t.Errorf("first actual output = %q, want %q", resp.Results[0].ActualOutput, "4")
	}
	if resp.Results[1].ActualOutput != "4  2" {
		t.Errorf("second actual output = %q, want %q", resp.Results[1].ActualOutput, "4  2")
	}

	// The wire format keeps the produced output, spaces and all.
	body, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), `"actual_output":"4  2"`) {
		t.Errorf("response body drops the actual output: %s", body)
	}
}
