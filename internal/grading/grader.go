package grading

// Response is a stored answer handed to the grader.
type Response struct {
	QuestionID  uint
	AnswerValue []byte
}

// Result holds per-question scores and the running total of known scores.
type Result struct {
	Scores   map[uint]*float64
	Total    float64
	Complete bool
}

// Grade scores every objective response by exact match against the key.
// Responses to subjective questions, or to questions no longer in the
// catalog, are left unscored and make the result incomplete.
func Grade(questions []Question, responses []Response) Result {
	byID := make(map[uint]Question, len(questions))
	for _, q := range questions {
		byID[q.QuestionID()] = q
	}

	result := Result{
		Scores:   make(map[uint]*float64, len(responses)),
		Complete: true,
	}

	for _, response := range responses {
		question, ok := byID[response.QuestionID]
		if !ok {
			result.Scores[response.QuestionID] = nil
			result.Complete = false
			continue
		}

		score := ScoreResponse(question, response.AnswerValue)
		result.Scores[response.QuestionID] = score
		if score == nil {
			result.Complete = false
			continue
		}
		result.Total += *score
	}

	return result
}

// ScoreResponse returns nil for subjective questions. Objective questions
// earn full marks on an exact match and zero otherwise, including for
// answers that no longer parse.
func ScoreResponse(question Question, raw []byte) *float64 {
	switch q := question.(type) {
	case SingleChoice:
		awarded := 0.0
		if answer, err := q.ParseAnswer(raw); err == nil {
			if optionIndex(q.Options, answer.(SelectedOption).OptionID) == q.Correct {
				awarded = q.Marks()
			}
		}
		return &awarded
	case MultiSelect:
		awarded := 0.0
		if answer, err := q.ParseAnswer(raw); err == nil {
			selected := answer.(SelectedOptions).OptionIDs
			indices := make([]int, 0, len(selected))
			for _, id := range selected {
				indices = append(indices, optionIndex(q.Options, id))
			}
			if sameSet(indices, q.Correct) {
				awarded = q.Marks()
			}
		}
		return &awarded
	default:
		return nil
	}
}

func sameSet(a, b []int) bool {
	left := make(map[int]struct{}, len(a))
	for _, v := range a {
		left[v] = struct{}{}
	}
	right := make(map[int]struct{}, len(b))
	for _, v := range b {
		right[v] = struct{}{}
	}
	if len(left) != len(right) {
		return false
	}
	for v := range left {
		if _, ok := right[v]; !ok {
			return false
		}
	}
	return true
}

// MaxScore sums the marks of all questions.
func MaxScore(questions []Question) float64 {
	var total float64
	for _, q := range questions {
		total += q.Marks()
	}
	return total
}
