package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quizgate/quizgate/internal/db"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	now    func() time.Time
}

func NewSQLStore(dbh *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: dbh, driver: driver, now: time.Now}
}

// WithClock overrides the store clock. Tests only.
func (s *SQLStore) WithClock(now func() time.Time) *SQLStore {
	s.now = now
	return s
}

func (s *SQLStore) PutQuiz(ctx context.Context, q Quiz, questions []Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Status == "" {
		q.Status = StatusDraft
	}
	var maxAttempts any
	if q.MaxAttempts > 0 {
		maxAttempts = q.MaxAttempts
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO quizzes
		(id,title,description,duration,status,allow_multiple_attempts,max_attempts,
		 shuffle_questions,show_results_immediately,password_hash,
		 require_seb,seb_config_key,seb_browser_exam_key,seb_quit_url,created_by,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		q.ID, q.Title, q.Description, q.Duration, q.Status,
		q.AllowMultipleAttempts, maxAttempts, q.ShuffleQuestions, q.ShowResultsImmediately,
		q.PasswordHash, q.RequireSEB, q.SEBConfigKey, q.SEBBrowserExamKey, q.SEBQuitURL,
		q.CreatedBy, s.now().Unix())
	if err != nil {
		return err
	}

	for _, qq := range questions {
		if qq.ID == "" {
			qq.ID = uuid.NewString()
		}
		oj, err := json.Marshal(qq.Options)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO questions
			(id,quiz_id,question_text,question_type,options_json,correct_answer,points,order_index,image_url)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			qq.ID, q.ID, qq.Text, qq.Type, string(oj), nullStr(qq.CorrectAnswer),
			qq.Points, qq.OrderIndex, qq.ImageURL)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

const quizCols = `id,title,description,duration,status,allow_multiple_attempts,
	max_attempts,shuffle_questions,show_results_immediately,password_hash,
	require_seb,seb_config_key,seb_browser_exam_key,seb_quit_url,created_by,created_at`

func scanQuiz(row *sql.Row) (Quiz, error) {
	var q Quiz
	var maxAttempts sql.NullInt64
	err := row.Scan(&q.ID, &q.Title, &q.Description, &q.Duration, &q.Status,
		&q.AllowMultipleAttempts, &maxAttempts, &q.ShuffleQuestions, &q.ShowResultsImmediately,
		&q.PasswordHash, &q.RequireSEB, &q.SEBConfigKey, &q.SEBBrowserExamKey,
		&q.SEBQuitURL, &q.CreatedBy, &q.CreatedAt)
	if err != nil {
		return Quiz{}, err
	}
	if maxAttempts.Valid {
		q.MaxAttempts = int(maxAttempts.Int64)
	}
	return q, nil
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+quizCols+` FROM quizzes WHERE id=$1`, id)
	q, err := scanQuiz(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, ErrQuizNotFound
	}
	return q, err
}

// GetPublishedQuiz returns the quiz only when attempts are allowed
// against it. Draft and archived quizzes look unavailable to students.
func (s *SQLStore) GetPublishedQuiz(ctx context.Context, id string) (Quiz, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+quizCols+` FROM quizzes WHERE id=$1 AND status=$2`, id, StatusPublished)
	q, err := scanQuiz(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, ErrQuizUnavailable
	}
	return q, err
}

func (s *SQLStore) SetQuizStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE quizzes SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQuizNotFound
	}
	return nil
}

func (s *SQLStore) GetQuestions(ctx context.Context, quizID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id,quiz_id,question_text,question_type,options_json,correct_answer,points,order_index,image_url
		FROM questions WHERE quiz_id=$1 ORDER BY order_index`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		var q Question
		var oj string
		var correct sql.NullString
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Text, &q.Type, &oj, &correct,
			&q.Points, &q.OrderIndex, &q.ImageURL); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(oj), &q.Options); err != nil {
			return nil, fmt.Errorf("question %s options: %w", q.ID, err)
		}
		q.CorrectAnswer = correct.String
		out = append(out, q)
	}
	return out, rows.Err()
}

const attemptCols = `id,quiz_id,user_id,student_name,student_email,access_token,
	status,score,max_score,started_at,submitted_at,time_spent,is_seb_session`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var a Attempt
	var userID, name, email, token sql.NullString
	var score, maxScore, submittedAt, timeSpent sql.NullInt64
	err := row.Scan(&a.ID, &a.QuizID, &userID, &name, &email, &token,
		&a.Status, &score, &maxScore, &a.StartedAt, &submittedAt, &timeSpent, &a.IsSEBSession)
	if err != nil {
		return Attempt{}, err
	}
	a.UserID = userID.String
	a.StudentName = name.String
	a.StudentEmail = email.String
	a.AccessToken = token.String
	if score.Valid {
		v := int(score.Int64)
		a.Score = &v
	}
	if maxScore.Valid {
		v := int(maxScore.Int64)
		a.MaxScore = &v
	}
	a.SubmittedAt = submittedAt.Int64
	if timeSpent.Valid {
		v := int(timeSpent.Int64)
		a.TimeSpent = &v
	}
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM quiz_attempts WHERE id=$1`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, err
}

func (s *SQLStore) GetAttemptByToken(ctx context.Context, token string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM quiz_attempts WHERE access_token=$1`, token)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, err
}

func (s *SQLStore) ListAttempts(ctx context.Context, quizID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptCols+` FROM quiz_attempts WHERE quiz_id=$1 ORDER BY started_at DESC`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AdmitTx runs the admission algorithm atomically: resume an in_progress
// attempt if one exists, enforce the single-attempt and max-attempt
// policies, otherwise insert a fresh attempt. The partial unique index on
// (quiz_id, identity_key, status='in_progress') closes the window between
// the checks and the insert: a concurrent duplicate insert fails with a
// unique violation the caller retries as a resume.
func (s *SQLStore) AdmitTx(ctx context.Context, q Quiz, id Identity, token string) (Attempt, bool, error) {
	key := id.Key()
	if key == "" {
		return Attempt{}, false, ErrBadIdentity
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, false, err
	}
	defer tx.Rollback()

	// 1. Idempotent resume.
	row := tx.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM quiz_attempts
		WHERE quiz_id=$1 AND identity_key=$2 AND status=$3`, q.ID, key, AttemptInProgress)
	a, err := scanAttempt(row)
	switch {
	case err == nil:
		return a, true, tx.Commit()
	case !errors.Is(err, sql.ErrNoRows):
		return Attempt{}, false, err
	}

	// 2. Single-attempt policy.
	if !q.AllowMultipleAttempts {
		var n int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM quiz_attempts
			WHERE quiz_id=$1 AND identity_key=$2 AND status IN ($3,$4)`,
			q.ID, key, AttemptSubmitted, AttemptGraded).Scan(&n)
		if err != nil {
			return Attempt{}, false, err
		}
		if n > 0 {
			return Attempt{}, false, ErrAlreadyCompleted
		}
	}

	// 3. Max-attempt policy counts every status.
	if q.MaxAttempts > 0 {
		var n int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM quiz_attempts
			WHERE quiz_id=$1 AND identity_key=$2`, q.ID, key).Scan(&n)
		if err != nil {
			return Attempt{}, false, err
		}
		if n >= q.MaxAttempts {
			return Attempt{}, false, ErrAttemptLimitExceeded
		}
	}

	// 4. Fresh attempt.
	a = Attempt{
		ID:           uuid.NewString(),
		QuizID:       q.ID,
		Status:       AttemptInProgress,
		StartedAt:    s.now().Unix(),
		IsSEBSession: q.RequireSEB,
	}
	switch v := id.(type) {
	case Authenticated:
		a.UserID = v.UserID
	case Anonymous:
		a.StudentName = v.Name
		a.StudentEmail = v.Email
		a.AccessToken = token
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO quiz_attempts
		(id,quiz_id,user_id,student_name,student_email,identity_key,access_token,
		 status,started_at,is_seb_session)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.QuizID, nullStr(a.UserID), nullStr(a.StudentName), nullStr(a.StudentEmail),
		key, nullStr(a.AccessToken), a.Status, a.StartedAt, a.IsSEBSession)
	if err != nil {
		return Attempt{}, false, err
	}
	return a, false, tx.Commit()
}

// SaveAnswers upserts the student's answer texts while the attempt is
// still open. Grading fields are untouched here.
func (s *SQLStore) SaveAnswers(ctx context.Context, attemptID string, answers map[string]string) error {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if a.Status != AttemptInProgress {
		return ErrAttemptClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now().Unix()
	for qid, text := range answers {
		_, err := tx.ExecContext(ctx, `INSERT INTO attempt_answers
			(id,attempt_id,question_id,answer_text,created_at,updated_at)
			VALUES ($1,$2,$3,$4,$5,$5)
			ON CONFLICT (attempt_id,question_id)
			DO UPDATE SET answer_text=EXCLUDED.answer_text, updated_at=EXCLUDED.updated_at`,
			uuid.NewString(), attemptID, qid, text, now)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) AnswerTexts(ctx context.Context, attemptID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id, answer_text FROM attempt_answers WHERE attempt_id=$1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var qid string
		var text sql.NullString
		if err := rows.Scan(&qid, &text); err != nil {
			return nil, err
		}
		out[qid] = text.String
	}
	return out, rows.Err()
}

func (s *SQLStore) ListAnswers(ctx context.Context, attemptID string) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT a.id, a.attempt_id, a.question_id,
		a.answer_text, a.is_correct, a.points_earned
		FROM attempt_answers a
		JOIN questions q ON q.id = a.question_id
		WHERE a.attempt_id=$1 ORDER BY q.order_index`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Answer
	for rows.Next() {
		var a Answer
		var text sql.NullString
		var correct sql.NullBool
		if err := rows.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &text, &correct, &a.PointsEarned); err != nil {
			return nil, err
		}
		a.AnswerText = text.String
		if correct.Valid {
			v := correct.Bool
			a.IsCorrect = &v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// FinalizeGrading persists graded answer rows and the attempt aggregate
// in one transaction. The status flip to graded is the last statement, so
// a failure while writing answers never leaves the attempt marked graded.
func (s *SQLStore) FinalizeGrading(ctx context.Context, attemptID string, answers []Answer, score, maxScore, submittedAt int64, timeSpent int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now().Unix()
	for _, a := range answers {
		var correct any
		if a.IsCorrect != nil {
			correct = *a.IsCorrect
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO attempt_answers
			(id,attempt_id,question_id,answer_text,is_correct,points_earned,created_at,updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
			ON CONFLICT (attempt_id,question_id)
			DO UPDATE SET answer_text=EXCLUDED.answer_text,
			              is_correct=EXCLUDED.is_correct,
			              points_earned=EXCLUDED.points_earned,
			              updated_at=EXCLUDED.updated_at`,
			uuid.NewString(), attemptID, a.QuestionID, a.AnswerText, correct, a.PointsEarned, now)
		if err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx, `UPDATE quiz_attempts
		SET status=$1, score=$2, max_score=$3,
		    submitted_at=COALESCE(submitted_at,$4),
		    time_spent=COALESCE(time_spent,$5)
		WHERE id=$6`,
		AttemptGraded, score, maxScore, submittedAt, timeSpent, attemptID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAttemptNotFound
	}
	return tx.Commit()
}

// IsUniqueViolation is re-exported so callers retrying admission don't
// import the db package for one predicate.
func IsUniqueViolation(err error) bool { return db.IsUniqueViolation(err) }

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
