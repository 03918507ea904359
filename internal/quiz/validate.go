package quiz

import "fmt"

// Validate checks the authoring invariants before a quiz is persisted.
func Validate(q Quiz, questions []Question) error {
	if q.Title == "" {
		return fmt.Errorf("quiz title required")
	}
	if q.Duration <= 0 {
		return fmt.Errorf("quiz duration must be positive")
	}
	if q.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must be positive when set")
	}
	if q.RequireSEB && q.SEBConfigKey == "" {
		return fmt.Errorf("require_seb quiz needs a config key secret")
	}

	seen := map[int]bool{}
	for i, qq := range questions {
		if qq.Text == "" {
			return fmt.Errorf("question %d: text required", i)
		}
		if qq.Points <= 0 {
			return fmt.Errorf("question %d: points must be positive", i)
		}
		if seen[qq.OrderIndex] {
			return fmt.Errorf("question %d: duplicate order_index %d", i, qq.OrderIndex)
		}
		seen[qq.OrderIndex] = true

		switch qq.Type {
		case TypeMultipleChoice:
			if len(qq.Options) < 2 {
				return fmt.Errorf("question %d: multiple-choice needs at least two options", i)
			}
			found := false
			for _, opt := range qq.Options {
				if opt == qq.CorrectAnswer {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("question %d: correct_answer must be one of the options", i)
			}
		case TypeFillBlank:
			if qq.CorrectAnswer == "" {
				return fmt.Errorf("question %d: fill-blank needs a correct_answer", i)
			}
		case TypeShortAnswer:
			// manually graded, no key required
		default:
			return fmt.Errorf("question %d: unknown type %q", i, qq.Type)
		}
	}
	return nil
}
