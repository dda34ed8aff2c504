package grading

import (
	"errors"
	"fmt"
	"strings"
)

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	TypeSingleChoice QuestionType = "single_choice"
	TypeMultiSelect  QuestionType = "multi_select"
	TypeShortAnswer  QuestionType = "short_answer"
	TypeEssay        QuestionType = "essay"
	TypeFileUpload   QuestionType = "file_upload"
)

// legacyMultipleChoice is accepted on input and stored as single_choice.
const legacyMultipleChoice = "multiple_choice"

// ErrInvalidQuestion is returned when a question definition cannot form a valid variant.
var ErrInvalidQuestion = errors.New("invalid question definition")

// ParseQuestionType normalises a raw type string.
func ParseQuestionType(raw string) (QuestionType, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == legacyMultipleChoice {
		return TypeSingleChoice, nil
	}

	switch QuestionType(normalized) {
	case TypeSingleChoice, TypeMultiSelect, TypeShortAnswer, TypeEssay, TypeFileUpload:
		return QuestionType(normalized), nil
	default:
		return "", fmt.Errorf("%w: unknown question type %q", ErrInvalidQuestion, raw)
	}
}

// IsObjective reports whether the type can be scored from an answer key.
func (t QuestionType) IsObjective() bool {
	return t == TypeSingleChoice || t == TypeMultiSelect
}

// Option is a selectable choice of an objective question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Definition is the loosely typed catalog shape a Question is built from.
type Definition struct {
	ID             uint
	Type           string
	Marks          float64
	Options        []Option
	CorrectAnswers []int
}

// Question is a closed set of variants, one per question type. Each variant
// carries only the fields meaningful to it.
type Question interface {
	QuestionID() uint
	Type() QuestionType
	Marks() float64
	ParseAnswer(raw []byte) (Answer, error)

	sealed()
}

type base struct {
	id    uint
	marks float64
}

func (b base) QuestionID() uint { return b.id }
func (b base) Marks() float64   { return b.marks }
func (base) sealed()            {}

// SingleChoice has exactly one correct option.
type SingleChoice struct {
	base
	Options []Option
	Correct int
}

// MultiSelect is scored by exact match of the selected option set.
type MultiSelect struct {
	base
	Options []Option
	Correct []int
}

// ShortAnswer requires manual grading.
type ShortAnswer struct{ base }

// Essay requires manual grading.
type Essay struct{ base }

// FileUpload references an externally stored file and requires manual grading.
type FileUpload struct{ base }

func (SingleChoice) Type() QuestionType { return TypeSingleChoice }
func (MultiSelect) Type() QuestionType  { return TypeMultiSelect }
func (ShortAnswer) Type() QuestionType  { return TypeShortAnswer }
func (Essay) Type() QuestionType        { return TypeEssay }
func (FileUpload) Type() QuestionType   { return TypeFileUpload }

// NewQuestion validates a definition and returns the matching variant.
func NewQuestion(def Definition) (Question, error) {
	qType, err := ParseQuestionType(def.Type)
	if err != nil {
		return nil, err
	}

	marks := def.Marks
	if marks < 0 {
		return nil, fmt.Errorf("%w: question %d has negative marks", ErrInvalidQuestion, def.ID)
	}
	if marks == 0 {
		marks = 1
	}
	b := base{id: def.ID, marks: marks}

	if !qType.IsObjective() {
		if len(def.CorrectAnswers) > 0 {
			return nil, fmt.Errorf("%w: %s question %d cannot carry an answer key", ErrInvalidQuestion, qType, def.ID)
		}
		switch qType {
		case TypeShortAnswer:
			return ShortAnswer{b}, nil
		case TypeEssay:
			return Essay{b}, nil
		default:
			return FileUpload{b}, nil
		}
	}

	if err := validateOptions(def); err != nil {
		return nil, err
	}

	if qType == TypeSingleChoice {
		if len(def.CorrectAnswers) != 1 {
			return nil, fmt.Errorf("%w: single choice question %d needs exactly one correct answer", ErrInvalidQuestion, def.ID)
		}
		return SingleChoice{base: b, Options: def.Options, Correct: def.CorrectAnswers[0]}, nil
	}

	if len(def.CorrectAnswers) == 0 {
		return nil, fmt.Errorf("%w: multi select question %d needs at least one correct answer", ErrInvalidQuestion, def.ID)
	}
	correct := make([]int, 0, len(def.CorrectAnswers))
	seen := make(map[int]struct{}, len(def.CorrectAnswers))
	for _, idx := range def.CorrectAnswers {
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		correct = append(correct, idx)
	}
	return MultiSelect{base: b, Options: def.Options, Correct: correct}, nil
}

func validateOptions(def Definition) error {
	if len(def.Options) == 0 {
		return fmt.Errorf("%w: question %d has no options", ErrInvalidQuestion, def.ID)
	}

	ids := make(map[string]struct{}, len(def.Options))
	for _, option := range def.Options {
		id := strings.TrimSpace(option.ID)
		if id == "" {
			return fmt.Errorf("%w: question %d has an option without id", ErrInvalidQuestion, def.ID)
		}
		if _, dup := ids[id]; dup {
			return fmt.Errorf("%w: question %d repeats option %q", ErrInvalidQuestion, def.ID, id)
		}
		ids[id] = struct{}{}
	}

	for _, idx := range def.CorrectAnswers {
		if idx < 0 || idx >= len(def.Options) {
			return fmt.Errorf("%w: question %d answer index %d out of range", ErrInvalidQuestion, def.ID, idx)
		}
	}

	return nil
}

func optionIndex(options []Option, id string) int {
	for i, option := range options {
		if option.ID == id {
			return i
		}
	}
	return -1
}
