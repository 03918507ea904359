package grading

// Q is a minimal view of a question needed for grading. The values come
// from the authoritative question row, never from the client.
type Q struct {
	Type          string
	Points        int
	CorrectAnswer string
}

// Result is the outcome of grading a single question response.
type Result struct {
	Earned int
	// Correct is nil when the question is not auto-gradable
	// (short-answer, pending manual review).
	Correct     *bool
	NeedsManual bool
}

// Strategy grades a single question.
type Strategy interface {
	Grade(q Q, answer string, answered bool) Result
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(q Q, answer string, answered bool) Result
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(q Q, answer string, answered bool) Result {
	s, ok := g.strategies[q.Type]
	if !ok {
		// Unknown type scores zero rather than aborting the pass.
		wrong := false
		return Result{Correct: &wrong}
	}
	return s.Grade(q, answer, answered)
}

// NewDefaultGrader installs the built-in strategies.
func NewDefaultGrader() Grader {
	return &defaultGrader{
		strategies: map[string]Strategy{
			"multiple-choice": multipleChoiceStrategy{},
			"fill-blank":      fillBlankStrategy{},
			"short-answer":    shortAnswerStrategy{},
		},
	}
}

// --- Strategies ---

// multipleChoiceStrategy compares option strings exactly. Options are the
// comparison unit, not indices, so reordering options between authoring
// and grading cannot flip correctness.
type multipleChoiceStrategy struct{}

func (multipleChoiceStrategy) Grade(q Q, answer string, answered bool) Result {
	correct := answered && answer == q.CorrectAnswer
	res := Result{Correct: &correct}
	if correct {
		res.Earned = q.Points
	}
	return res
}

// fillBlankStrategy compares after trimming and case-folding both sides.
type fillBlankStrategy struct{}

func (fillBlankStrategy) Grade(q Q, answer string, answered bool) Result {
	correct := answered && fold(answer) == fold(q.CorrectAnswer)
	res := Result{Correct: &correct}
	if correct {
		res.Earned = q.Points
	}
	return res
}

// shortAnswerStrategy never auto-grades; correctness stays null and the
// response is flagged for manual review.
type shortAnswerStrategy struct{}

func (shortAnswerStrategy) Grade(_ Q, _ string, answered bool) Result {
	return Result{NeedsManual: answered}
}
