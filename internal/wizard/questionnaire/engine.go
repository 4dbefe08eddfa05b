// internal/wizard/questionnaire/engine.go
package questionnaire

import (
	"errors"
	"strings"

	"loan-wizard/internal/models"
)

var (
	ErrAnswerRequired   = errors.New("ANSWER_REQUIRED")
	ErrNoAnswerExpected = errors.New("NO_ANSWER_EXPECTED")
	ErrRecording        = errors.New("VOICE_RECORDING_ACTIVE")
	ErrNotRecording     = errors.New("VOICE_RECORDING_NOT_ACTIVE")
	ErrAtStart          = errors.New("AT_FIRST_QUESTION")
	ErrReviewRequired   = errors.New("REVIEW_REQUIRED")
	ErrCompleted        = errors.New("QUESTIONNAIRE_COMPLETED")
)

// ReviewItem is one question/answer pair shown before confirmation.
type ReviewItem struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Provided bool   `json:"provided"`
}

// Engine walks the question list for one loan type and captures answers.
// It is not safe for concurrent use; the session machine serializes access.
type Engine struct {
	loanType  models.LoanType
	questions []Question
	index     int
	answers   map[string]string
	draft     string
	recording bool
	reviewing bool
	completed bool
}

func NewEngine(loanType models.LoanType) *Engine {
	return &Engine{
		loanType:  loanType,
		questions: QuestionsFor(loanType),
		answers:   make(map[string]string),
	}
}

// Current returns the question under the pointer.
func (e *Engine) Current() Question {
	return e.questions[e.index]
}

// Position returns the zero-based pointer and the list length.
func (e *Engine) Position() (index, total int) {
	return e.index, len(e.questions)
}

// Questions returns a copy of the full ordered list.
func (e *Engine) Questions() []Question {
	return append([]Question(nil), e.questions...)
}

// Draft is the editable answer for the current question.
func (e *Engine) Draft() string {
	return e.draft
}

func (e *Engine) Recording() bool { return e.recording }
func (e *Engine) InReview() bool  { return e.reviewing }
func (e *Engine) Completed() bool { return e.completed }

// SetAnswer replaces the editable answer with typed text.
func (e *Engine) SetAnswer(text string) error {
	if err := e.editable(); err != nil {
		return err
	}
	if e.recording {
		return ErrRecording
	}
	e.draft = text
	return nil
}

// BeginVoiceAnswer suspends typed input while speech is being captured.
func (e *Engine) BeginVoiceAnswer() error {
	if err := e.editable(); err != nil {
		return err
	}
	if e.recording {
		return ErrRecording
	}
	e.recording = true
	return nil
}

// EndVoiceAnswer stops capture; the final transcript becomes the editable answer.
func (e *Engine) EndVoiceAnswer(transcript string) error {
	if !e.recording {
		return ErrNotRecording
	}
	e.recording = false
	e.draft = strings.TrimSpace(transcript)
	return nil
}

// CancelVoiceAnswer stops capture and keeps the previous draft.
func (e *Engine) CancelVoiceAnswer() {
	e.recording = false
}

func (e *Engine) editable() error {
	if e.completed {
		return ErrCompleted
	}
	if e.reviewing {
		return ErrNoAnswerExpected
	}
	if e.Current().Type != TypeText {
		return ErrNoAnswerExpected
	}
	return nil
}

// Next stores the current answer and moves forward. Text questions need a
// non-empty answer; intro and outro advance unconditionally. Moving past the
// outro opens the review.
func (e *Engine) Next() error {
	if e.completed {
		return ErrCompleted
	}
	if e.recording {
		return ErrRecording
	}
	if e.reviewing {
		return ErrReviewRequired
	}

	q := e.Current()
	if q.Type == TypeText {
		answer := strings.TrimSpace(e.draft)
		if answer == "" {
			return ErrAnswerRequired
		}
		e.answers[q.ID] = answer
	}

	if e.index == len(e.questions)-1 {
		e.reviewing = true
		e.draft = ""
		return nil
	}

	e.index++
	e.draft = e.answers[e.Current().ID]
	return nil
}

// Back leaves the review, or moves to the previous question restoring its answer.
func (e *Engine) Back() error {
	if e.completed {
		return ErrCompleted
	}
	if e.recording {
		return ErrRecording
	}
	if e.reviewing {
		e.reviewing = false
		e.draft = e.answers[e.Current().ID]
		return nil
	}
	if e.index == 0 {
		return ErrAtStart
	}
	e.index--
	e.draft = e.answers[e.Current().ID]
	return nil
}

// Review lists every text question with its captured answer.
func (e *Engine) Review() []ReviewItem {
	items := make([]ReviewItem, 0, len(e.questions))
	for _, q := range e.questions {
		if q.Type != TypeText {
			continue
		}
		answer, ok := e.answers[q.ID]
		items = append(items, ReviewItem{
			ID:       q.ID,
			Question: q.Text,
			Answer:   answer,
			Provided: ok && answer != "",
		})
	}
	return items
}

// Confirm completes the questionnaire and hands back the answers. It is only
// allowed from the review and cannot be undone short of Restart.
func (e *Engine) Confirm() (map[string]string, error) {
	if e.completed {
		return nil, ErrCompleted
	}
	if !e.reviewing {
		return nil, ErrReviewRequired
	}
	e.completed = true
	return e.Answers(), nil
}

// Answers returns a copy of the captured answers.
func (e *Engine) Answers() map[string]string {
	out := make(map[string]string, len(e.answers))
	for k, v := range e.answers {
		out[k] = v
	}
	return out
}

// Restart clears every answer and returns to the intro.
func (e *Engine) Restart() {
	e.index = 0
	e.answers = make(map[string]string)
	e.draft = ""
	e.recording = false
	e.reviewing = false
	e.completed = false
}

// Restore rehydrates the engine from a saved pointer and answers.
func (e *Engine) Restore(index int, answers map[string]string, completed bool) {
	e.Restart()
	if index >= 0 && index < len(e.questions) {
		e.index = index
	}
	for k, v := range answers {
		e.answers[k] = v
	}
	e.draft = e.answers[e.Current().ID]
	e.completed = completed
	if completed {
		e.index = len(e.questions) - 1
		e.reviewing = true
	}
}
