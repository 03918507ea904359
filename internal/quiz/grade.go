package quiz

import (
	"context"
	"log"
	"time"

	"github.com/quizgate/quizgate/internal/audit"
	"github.com/quizgate/quizgate/internal/grading"
)

// GradedResult is the outcome of grading one attempt.
type GradedResult struct {
	AttemptID string   `json:"attempt_id"`
	Score     int      `json:"score"`
	MaxScore  int      `json:"max_score"`
	TimeSpent int      `json:"time_spent"`
	Answers   []Answer `json:"answers"`
}

// GradeService computes per-question correctness and the aggregate score
// for a finished attempt. Grading is deterministic and idempotent:
// re-running it on a graded attempt reproduces the same score and the
// same answer rows.
type GradeService struct {
	store  *SQLStore
	grader grading.Grader
	events *audit.EventRepo
	now    func() time.Time
}

func NewGradeService(store *SQLStore, events *audit.EventRepo) *GradeService {
	return &GradeService{
		store:  store,
		grader: grading.NewDefaultGrader(),
		events: events,
		now:    time.Now,
	}
}

// WithClock overrides the service clock. Tests only.
func (s *GradeService) WithClock(now func() time.Time) *GradeService {
	s.now = now
	return s
}

// Grade scores every question of the attempt's quiz against the
// authoritative answer key. Unanswered questions earn zero but still
// count toward max_score. Expiry-triggered and student-triggered
// submissions take this same path; elapsed time is measured server-side
// from started_at, never taken from the client.
func (s *GradeService) Grade(ctx context.Context, attemptID string) (GradedResult, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return GradedResult{}, err
	}
	q, err := s.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return GradedResult{}, err
	}
	questions, err := s.store.GetQuestions(ctx, a.QuizID)
	if err != nil {
		return GradedResult{}, err
	}
	texts, err := s.store.AnswerTexts(ctx, attemptID)
	if err != nil {
		return GradedResult{}, err
	}

	score, maxScore := 0, 0
	rows := make([]Answer, 0, len(questions))
	for _, qq := range questions {
		maxScore += qq.Points
		text, answered := texts[qq.ID]
		res := s.grader.Grade(grading.Q{
			Type:          qq.Type,
			Points:        qq.Points,
			CorrectAnswer: qq.CorrectAnswer,
		}, text, answered)
		score += res.Earned
		rows = append(rows, Answer{
			AttemptID:    attemptID,
			QuestionID:   qq.ID,
			AnswerText:   text,
			IsCorrect:    res.Correct,
			PointsEarned: res.Earned,
		})
		if res.NeedsManual {
			log.Printf("grading: attempt %s question %s flagged for manual review", attemptID, qq.ID)
		}
	}

	// Server-observed elapsed time, clamped to the quiz budget. On
	// re-grade the store keeps the originally persisted values.
	submittedAt := a.SubmittedAt
	if submittedAt == 0 {
		submittedAt = s.now().Unix()
	}
	elapsed := submittedAt - a.StartedAt
	if elapsed < 0 {
		elapsed = 0
	}
	if budget := int64(q.Duration) * 60; elapsed > budget {
		elapsed = budget
	}

	if err := s.store.FinalizeGrading(ctx, attemptID, rows, int64(score), int64(maxScore), submittedAt, elapsed); err != nil {
		return GradedResult{}, err
	}

	s.events.Record(ctx, audit.TypeAttemptGraded, attemptID, map[string]any{
		"quiz_id":   a.QuizID,
		"score":     score,
		"max_score": maxScore,
	})

	timeSpent := int(elapsed)
	if a.TimeSpent != nil {
		timeSpent = *a.TimeSpent
	}
	return GradedResult{
		AttemptID: attemptID,
		Score:     score,
		MaxScore:  maxScore,
		TimeSpent: timeSpent,
		Answers:   rows,
	}, nil
}
