package quiz

import "errors"

var (
	// ErrQuizUnavailable: the quiz does not exist or is not published.
	ErrQuizUnavailable = errors.New("quiz not found or not published")
	// ErrAlreadyCompleted: allow_multiple_attempts is false and a
	// submitted or graded attempt already exists for this identity.
	ErrAlreadyCompleted = errors.New("multiple attempts not allowed")
	// ErrAttemptLimitExceeded: the identity has reached max_attempts.
	ErrAttemptLimitExceeded = errors.New("maximum attempts exceeded")

	ErrQuizNotFound    = errors.New("quiz not found")
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAttemptClosed: the attempt has left in_progress and no longer
	// accepts answer writes.
	ErrAttemptClosed = errors.New("attempt no longer in progress")
	ErrBadIdentity   = errors.New("identity requires a user id or a name and email")
)
