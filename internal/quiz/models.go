package quiz

import "strings"

// Quiz statuses.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Attempt statuses. Transitions are monotonic:
// in_progress -> submitted -> graded.
const (
	AttemptInProgress = "in_progress"
	AttemptSubmitted  = "submitted"
	AttemptGraded     = "graded"
)

// Question types.
const (
	TypeMultipleChoice = "multiple-choice"
	TypeFillBlank      = "fill-blank"
	TypeShortAnswer    = "short-answer"
)

type Quiz struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	// Duration is the exam time budget in minutes.
	Duration int    `json:"duration"`
	Status   string `json:"status"`

	AllowMultipleAttempts  bool `json:"allow_multiple_attempts"`
	MaxAttempts            int  `json:"max_attempts,omitempty"` // 0 = unlimited
	ShuffleQuestions       bool `json:"shuffle_questions"`
	ShowResultsImmediately bool `json:"show_results_immediately"`

	// PasswordHash is a bcrypt hash of the access password, empty when the
	// quiz is open. Never serialized.
	PasswordHash string `json:"-"`

	// Lockdown policy. If RequireSEB is true a config key must exist.
	RequireSEB        bool   `json:"require_seb"`
	SEBConfigKey      string `json:"-"`
	SEBBrowserExamKey string `json:"-"`
	SEBQuitURL        string `json:"seb_quit_url,omitempty"`

	CreatedBy string `json:"created_by,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

type Question struct {
	ID     string `json:"id"`
	QuizID string `json:"quiz_id"`
	Text   string `json:"question_text"`
	Type   string `json:"question_type"`
	// Options apply to multiple-choice only. CorrectAnswer must equal one
	// of them; grading compares option strings, never indices.
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"-"`
	Points        int      `json:"points"`
	OrderIndex    int      `json:"order_index"`
	ImageURL      string   `json:"image_url,omitempty"`
}

// Identity is the party taking an attempt: either an authenticated user
// or an anonymous name+email pair. The two modes are mutually exclusive.
type Identity interface {
	// Key is the stable per-quiz dedup key used by admission: the user id
	// for authenticated identities, the normalized email for anonymous ones.
	Key() string
	Anonymous() bool
}

type Authenticated struct {
	UserID string
}

func (a Authenticated) Key() string     { return a.UserID }
func (a Authenticated) Anonymous() bool { return false }

type Anonymous struct {
	Name  string
	Email string
}

func (a Anonymous) Key() string     { return strings.ToLower(strings.TrimSpace(a.Email)) }
func (a Anonymous) Anonymous() bool { return true }

type Attempt struct {
	ID     string `json:"id"`
	QuizID string `json:"quiz_id"`

	UserID       string `json:"user_id,omitempty"`
	StudentName  string `json:"student_name,omitempty"`
	StudentEmail string `json:"student_email,omitempty"`
	// AccessToken is set iff the attempt is anonymous.
	AccessToken string `json:"access_token,omitempty"`

	Status       string `json:"status"`
	Score        *int   `json:"score"`     // nil until graded
	MaxScore     *int   `json:"max_score"` // nil until graded
	StartedAt    int64  `json:"started_at"`
	SubmittedAt  int64  `json:"submitted_at,omitempty"`
	TimeSpent    *int   `json:"time_spent,omitempty"` // seconds, set at submission
	IsSEBSession bool   `json:"is_seb_session"`
}

// IdentityOf reconstructs the tagged identity from a stored attempt.
func (a Attempt) IdentityOf() Identity {
	if a.UserID != "" {
		return Authenticated{UserID: a.UserID}
	}
	return Anonymous{Name: a.StudentName, Email: a.StudentEmail}
}

type Answer struct {
	ID           string `json:"id"`
	AttemptID    string `json:"attempt_id"`
	QuestionID   string `json:"question_id"`
	AnswerText   string `json:"answer_text"`
	IsCorrect    *bool  `json:"is_correct"` // nil = not auto-gradable
	PointsEarned int    `json:"points_earned"`
}
