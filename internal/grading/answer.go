package grading

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxTextAnswerLength bounds free-text answers, counted in runes.
const MaxTextAnswerLength = 20000

// ErrInvalidAnswer is returned when an answer payload does not fit its question.
var ErrInvalidAnswer = errors.New("invalid answer")

// Answer is a parsed response payload. The concrete type always matches the
// question variant that produced it.
type Answer interface {
	Encode() ([]byte, error)

	answer()
}

// SelectedOption answers a SingleChoice question.
type SelectedOption struct {
	OptionID string
}

// SelectedOptions answers a MultiSelect question.
type SelectedOptions struct {
	OptionIDs []string
}

// Text answers ShortAnswer and Essay questions.
type Text struct {
	Value string
}

// FileReference answers a FileUpload question.
type FileReference struct {
	Ref string
}

func (SelectedOption) answer()  {}
func (SelectedOptions) answer() {}
func (Text) answer()            {}
func (FileReference) answer()   {}

func (a SelectedOption) Encode() ([]byte, error)  { return json.Marshal(a.OptionID) }
func (a SelectedOptions) Encode() ([]byte, error) { return json.Marshal(a.OptionIDs) }
func (a Text) Encode() ([]byte, error)            { return json.Marshal(a.Value) }
func (a FileReference) Encode() ([]byte, error)   { return json.Marshal(a.Ref) }

func (q SingleChoice) ParseAnswer(raw []byte) (Answer, error) {
	id, err := decodeString(raw)
	if err != nil {
		return nil, err
	}
	if optionIndex(q.Options, id) < 0 {
		return nil, fmt.Errorf("%w: unknown option %q", ErrInvalidAnswer, id)
	}
	return SelectedOption{OptionID: id}, nil
}

func (q MultiSelect) ParseAnswer(raw []byte) (Answer, error) {
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: expected a list of option ids", ErrInvalidAnswer)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: select at least one option", ErrInvalidAnswer)
	}

	selected := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if optionIndex(q.Options, id) < 0 {
			return nil, fmt.Errorf("%w: unknown option %q", ErrInvalidAnswer, id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		selected = append(selected, id)
	}
	return SelectedOptions{OptionIDs: selected}, nil
}

func (ShortAnswer) ParseAnswer(raw []byte) (Answer, error) { return parseText(raw) }
func (Essay) ParseAnswer(raw []byte) (Answer, error)       { return parseText(raw) }

func (FileUpload) ParseAnswer(raw []byte) (Answer, error) {
	ref, err := decodeString(raw)
	if err != nil {
		return nil, err
	}
	return FileReference{Ref: ref}, nil
}

func parseText(raw []byte) (Answer, error) {
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("%w: expected text", ErrInvalidAnswer)
	}
	if utf8.RuneCountInString(value) > MaxTextAnswerLength {
		return nil, fmt.Errorf("%w: text exceeds %d characters", ErrInvalidAnswer, MaxTextAnswerLength)
	}
	return Text{Value: value}, nil
}

func decodeString(raw []byte) (string, error) {
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("%w: expected a string", ErrInvalidAnswer)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: value is empty", ErrInvalidAnswer)
	}
	return value, nil
}
