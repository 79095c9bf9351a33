package scoring

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"gradex/internal/common/mq"
	"gradex/internal/grader/model"
	"gradex/internal/grader/verdict"
)

type fakeAssessments struct {
	submissions []model.Submission
	maxTotal    float64
	saved       *model.AssessmentCandidate
}

func (f *fakeAssessments) ListFinalSubmissions(ctx context.Context, assessmentID, candidateID int64) ([]model.Submission, error) {
	return f.submissions, nil
}

func (f *fakeAssessments) CountQuestions(ctx context.Context, assessmentID int64) (int, error) {
	return 3, nil
}

func (f *fakeAssessments) MaxTotalScore(ctx context.Context, assessmentID int64) (float64, error) {
	return f.maxTotal, nil
}

func (f *fakeAssessments) SaveCandidateScore(ctx context.Context, candidate *model.AssessmentCandidate) error {
	f.saved = candidate
	return nil
}

func TestSummarize(t *testing.T) {
	submissions := []model.Submission{
		{Status: model.StatusCompleted, OverallVerdict: verdict.OK, TotalScore: 100},
		{Status: model.StatusCompleted, OverallVerdict: verdict.WA, TotalScore: 25},
		{Status: model.StatusError},
	}
	aggregate := Summarize(1, 7, submissions, 300)

	if aggregate.QuestionsAttempted != 3 {
		t.Errorf("attempted = %d, want 3", aggregate.QuestionsAttempted)
	}
	if aggregate.QuestionsCorrect != 1 {
		t.Errorf("correct = %d, want 1", aggregate.QuestionsCorrect)
	}
	if math.Abs(aggregate.TotalScore-125) > 1e-9 {
		t.Errorf("total = %v, want 125", aggregate.TotalScore)
	}
	if math.Abs(aggregate.PercentageScore-125.0/300*100) > 1e-9 {
		t.Errorf("percentage = %v", aggregate.PercentageScore)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	aggregate := Summarize(1, 7, nil, 300)
	if aggregate.QuestionsAttempted != 0 || aggregate.TotalScore != 0 || aggregate.PercentageScore != 0 {
		t.Errorf("empty aggregate = %+v", aggregate)
	}
}

func TestHandleFinalEventRecomputes(t *testing.T) {
	repo := &fakeAssessments{
		submissions: []model.Submission{
			{Status: model.StatusCompleted, OverallVerdict: verdict.OK, TotalScore: 100},
		},
		maxTotal: 100,
	}
	consumer := NewConsumer(repo, Config{})

	body, _ := json.Marshal(model.GradedEvent{
		SubmissionID: "sub-1",
		CandidateID:  7,
		AssessmentID: 1,
		IsFinal:      true,
		Status:       model.StatusCompleted,
	})
	if err := consumer.Handle(context.Background(), mq.NewMessage(body)); err != nil {
		t.Fatal(err)
	}
	if repo.saved == nil {
		t.Fatal("aggregate not saved")
	}
	if repo.saved.PercentageScore != 100 {
		t.Errorf("percentage = %v, want 100", repo.saved.PercentageScore)
	}
}

func TestHandleIgnoresNonFinalEvents(t *testing.T) {
	repo := &fakeAssessments{}
	consumer := NewConsumer(repo, Config{})

	body, _ := json.Marshal(model.GradedEvent{
		SubmissionID: "sub-1",
		CandidateID:  7,
		AssessmentID: 1,
		IsFinal:      false,
	})
	if err := consumer.Handle(context.Background(), mq.NewMessage(body)); err != nil {
		t.Fatal(err)
	}
	if repo.saved != nil {
		t.Error("non-final event updated the aggregate")
	}
}

func TestHandleMalformedPayloadIsDropped(t *testing.T) {
	consumer := NewConsumer(&fakeAssessments{}, Config{})
	if err := consumer.Handle(context.Background(), mq.NewMessage([]byte("{"))); err != nil {
		t.Errorf("malformed payload returned error %v, want nil (no retry)", err)
	}
}
