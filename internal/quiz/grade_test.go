package quiz_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quizgate/quizgate/internal/audit"
	"github.com/quizgate/quizgate/internal/quiz"
)

func gradedQuestions() []quiz.Question {
	return []quiz.Question{
		{ID: "q-mc", Text: "Pick B", Type: quiz.TypeMultipleChoice,
			Options: []string{"A", "B"}, CorrectAnswer: "B", Points: 2, OrderIndex: 0},
		{ID: "q-fb", Text: "Capital of France", Type: quiz.TypeFillBlank,
			CorrectAnswer: "Paris", Points: 3, OrderIndex: 1},
		{ID: "q-sa", Text: "Explain", Type: quiz.TypeShortAnswer, Points: 5, OrderIndex: 2},
	}
}

func TestGradeScoresAndManualReview(t *testing.T) {
	store, dbh := newTestStore(t)
	q := seedQuiz(t, store, quiz.Quiz{Status: quiz.StatusPublished}, gradedQuestions())
	adm := newAdmission(store, dbh)
	svc := quiz.NewGradeService(store, audit.NewEventRepo(dbh))

	a, _, err := adm.Admit(context.Background(), q.ID, quiz.Authenticated{UserID: "u1"})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	err = store.SaveAnswers(context.Background(), a.ID, map[string]string{
		"q-mc": "B",
		"q-fb": "  paris ",
		"q-sa": "Masses attract.",
	})
	if err != nil {
		t.Fatalf("save answers: %v", err)
	}

	res, err := svc.Grade(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.Score != 5 || res.MaxScore != 10 {
		t.Fatalf("score = %d/%d, want 5/10", res.Score, res.MaxScore)
	}

	byQ := map[string]quiz.Answer{}
	for _, ans := range res.Answers {
		byQ[ans.QuestionID] = ans
	}
	if c := byQ["q-mc"].IsCorrect; c == nil || !*c {
		t.Error("multiple-choice exact match should be correct")
	}
	if c := byQ["q-fb"].IsCorrect; c == nil || !*c {
		t.Error("fill-blank should match after trimming and case folding")
	}
	if byQ["q-sa"].IsCorrect != nil {
		t.Error("short answer correctness must stay null pending manual review")
	}
	if byQ["q-sa"].PointsEarned != 0 {
		t.Error("ungraded short answer must earn zero")
	}
}

func TestGradeMultipleChoiceIsCaseSensitive(t *testing.T) {
	store, dbh := newTestStore(t)
	q := seedQuiz(t, store, quiz.Quiz{Status: quiz.StatusPublished}, gradedQuestions())
	adm := newAdmission(store, dbh)
	svc := quiz.NewGradeService(store, audit.NewEventRepo(dbh))

	a, _, _ := adm.Admit(context.Background(), q.ID, quiz.Authenticated{UserID: "u1"})
	if err := store.SaveAnswers(context.Background(), a.ID, map[string]string{"q-mc": "b"}); err != nil {
		t.Fatalf("save answers: %v", err)
	}
	res, err := svc.Grade(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.Score != 0 {
		t.Fatalf("score = %d, want 0: choices are matched exactly", res.Score)
	}
}

func TestGradeUnansweredStillCountTowardMax(t *testing.T) {
	store, dbh := newTestStore(t)
	q := seedQuiz(t, store, quiz.Quiz{Status: quiz.StatusPublished}, gradedQuestions())
	adm := newAdmission(store, dbh)
	svc := quiz.NewGradeService(store, audit.NewEventRepo(dbh))

	a, _, _ := adm.Admit(context.Background(), q.ID, quiz.Authenticated{UserID: "u1"})

	res, err := svc.Grade(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.Score != 0 || res.MaxScore != 10 {
		t.Fatalf("score = %d/%d, want 0/10", res.Score, res.MaxScore)
	}
	if len(res.Answers) != 3 {
		t.Fatalf("answer rows = %d, want one per question", len(res.Answers))
	}
}

func TestGradeIdempotent(t *testing.T) {
	store, dbh := newTestStore(t)
	q := seedQuiz(t, store, quiz.Quiz{Status: quiz.StatusPublished}, gradedQuestions())
	adm := newAdmission(store, dbh)
	svc := quiz.NewGradeService(store, audit.NewEventRepo(dbh))

	a, _, _ := adm.Admit(context.Background(), q.ID, quiz.Authenticated{UserID: "u1"})
	if err := store.SaveAnswers(context.Background(), a.ID, map[string]string{"q-mc": "B"}); err != nil {
		t.Fatalf("save answers: %v", err)
	}

	first, err := svc.Grade(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("first grade: %v", err)
	}

	// Re-grading later must not drift the score, timing or row count.
	svc.WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
	second, err := svc.Grade(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("second grade: %v", err)
	}
	if second.Score != first.Score || second.MaxScore != first.MaxScore {
		t.Fatalf("score drifted: %d/%d then %d/%d",
			first.Score, first.MaxScore, second.Score, second.MaxScore)
	}
	if second.TimeSpent != first.TimeSpent {
		t.Fatalf("time_spent drifted: %d then %d", first.TimeSpent, second.TimeSpent)
	}

	rows, err := store.ListAnswers(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("answer rows = %d after re-grade, want 3 (no duplicates)", len(rows))
	}

	got, err := store.GetAttempt(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if got.Status != quiz.AttemptGraded {
		t.Fatalf("status = %s, want graded", got.Status)
	}
	if got.SubmittedAt == 0 {
		t.Fatal("submitted_at not persisted")
	}
}

func TestGradeClampsTimeSpentToBudget(t *testing.T) {
	store, dbh := newTestStore(t)
	started := time.Now().Add(-3 * time.Hour)
	store.WithClock(func() time.Time { return started })

	q := seedQuiz(t, store, quiz.Quiz{Status: quiz.StatusPublished, Duration: 30}, gradedQuestions())
	adm := newAdmission(store, dbh)
	a, _, err := adm.Admit(context.Background(), q.ID, quiz.Authenticated{UserID: "u1"})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	store.WithClock(time.Now)

	svc := quiz.NewGradeService(store, audit.NewEventRepo(dbh))
	res, err := svc.Grade(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if want := 30 * 60; res.TimeSpent != want {
		t.Fatalf("time_spent = %d, want clamped to %d", res.TimeSpent, want)
	}
}

func TestSaveAnswersRejectedAfterGrading(t *testing.T) {
	store, dbh := newTestStore(t)
	q := seedQuiz(t, store, quiz.Quiz{Status: quiz.StatusPublished}, gradedQuestions())
	adm := newAdmission(store, dbh)
	svc := quiz.NewGradeService(store, audit.NewEventRepo(dbh))

	a, _, _ := adm.Admit(context.Background(), q.ID, quiz.Authenticated{UserID: "u1"})
	if _, err := svc.Grade(context.Background(), a.ID); err != nil {
		t.Fatalf("grade: %v", err)
	}

	err := store.SaveAnswers(context.Background(), a.ID, map[string]string{"q-mc": "A"})
	if !errors.Is(err, quiz.ErrAttemptClosed) {
		t.Fatalf("got %v, want ErrAttemptClosed", err)
	}
}
