package quiz

import (
	"context"
	"errors"
	"log"

	"github.com/quizgate/quizgate/internal/audit"
)

// AdmissionService decides whether a new attempt may start for a quiz
// and identity, and creates or resumes the attempt record. All policy
// checks and the insert happen inside one store transaction; the service
// layers quiz lookup, token issuance and the single allowed retry on top.
type AdmissionService struct {
	store  *SQLStore
	tokens TokenSource
	events *audit.EventRepo
}

func NewAdmissionService(store *SQLStore, events *audit.EventRepo) *AdmissionService {
	return &AdmissionService{store: store, tokens: NewAccessToken, events: events}
}

// WithTokenSource overrides token generation. Tests only.
func (s *AdmissionService) WithTokenSource(src TokenSource) *AdmissionService {
	s.tokens = src
	return s
}

// Admit returns the attempt for (quizID, identity), creating one when
// policy allows. Resuming an existing in_progress attempt is idempotent:
// a client that reloaded or lost its token gets the same attempt back.
func (s *AdmissionService) Admit(ctx context.Context, quizID string, id Identity) (Attempt, Quiz, error) {
	q, err := s.store.GetPublishedQuiz(ctx, quizID)
	if err != nil {
		return Attempt{}, Quiz{}, err
	}

	a, resumed, err := s.admitOnce(ctx, q, id)
	if IsUniqueViolation(err) {
		// Either a concurrent admit won the in_progress slot (the retry
		// resumes it) or the access token collided (the retry draws a new
		// one). One retry is the only automatic recovery here.
		a, resumed, err = s.admitOnce(ctx, q, id)
	}
	if err != nil {
		s.audit(ctx, q.ID, id, err)
		// The quiz is still returned so callers can phrase policy errors.
		return Attempt{}, q, err
	}

	typ := audit.TypeAttemptAdmitted
	if resumed {
		typ = audit.TypeAttemptResumed
	}
	s.events.Record(ctx, typ, q.ID, map[string]any{
		"attempt_id": a.ID,
		"identity":   id.Key(),
		"anonymous":  id.Anonymous(),
	})
	return a, q, nil
}

func (s *AdmissionService) admitOnce(ctx context.Context, q Quiz, id Identity) (Attempt, bool, error) {
	var token string
	if id.Anonymous() {
		var err error
		if token, err = s.tokens(); err != nil {
			return Attempt{}, false, err
		}
	}
	return s.store.AdmitTx(ctx, q, id, token)
}

func (s *AdmissionService) audit(ctx context.Context, quizID string, id Identity, err error) {
	switch {
	case errors.Is(err, ErrAlreadyCompleted), errors.Is(err, ErrAttemptLimitExceeded):
		s.events.Record(ctx, audit.TypeAdmissionDenied, quizID, map[string]any{
			"identity": id.Key(),
			"reason":   err.Error(),
		})
	default:
		log.Printf("admission: quiz %s identity %s: %v", quizID, id.Key(), err)
	}
}
