package domain

import "time"

// Role values carried in bearer tokens.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// AttemptStatus is the server-side lifecycle of a quiz attempt.
type AttemptStatus string

const (
	AttemptActive    AttemptStatus = "active"
	AttemptSubmitted AttemptStatus = "submitted"
	AttemptExpired   AttemptStatus = "expired"
)

// Question models an MCQ question with exactly one correct option.
// CorrectOptionIndex is nil in student-facing views.
type Question struct {
	ID                 string   `json:"id"`
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex *int     `json:"correct_option_index,omitempty"`
}

// Quiz is a timed collection of questions.
type Quiz struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	Questions        []Question `json:"questions"`
}

// StudentView returns a copy of the quiz with correct answers removed.
func (q Quiz) StudentView() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.CorrectOptionIndex = nil
		question.Options = append([]string(nil), question.Options...)
		out.Questions[i] = question
	}
	return out
}

// QuizAttempt is the server's record of one timed attempt.
type QuizAttempt struct {
	ID               string        `json:"id"`
	QuizID           string        `json:"quiz_id"`
	UserID           string        `json:"user_id"`
	StartTime        time.Time     `json:"start_time"`
	EndTime          *time.Time    `json:"end_time,omitempty"`
	TimeLimitMinutes int           `json:"time_limit_minutes"`
	Status           AttemptStatus `json:"status"`
}

// Deadline is the instant the attempt's time limit runs out.
func (a QuizAttempt) Deadline() time.Time {
	return Deadline(a.StartTime, a.TimeLimitMinutes)
}

// Deadline computes startTime + minutes*60000ms.
func Deadline(start time.Time, minutes int) time.Time {
	return start.Add(time.Duration(minutes) * time.Minute)
}

// StartRecord is the attempt store's answer to a start request.
type StartRecord struct {
	AttemptID        string `json:"attempt_id"`
	StartTime        string `json:"start_time"`
	TimeLimitMinutes int    `json:"time_limit_minutes"`
}

// Answer is one (question, chosen option) pair of a submission.
type Answer struct {
	QuestionID  string `json:"question_id"`
	ChosenIndex int    `json:"chosen_index"`
}

// SubmitRequest is the payload sent to the submit endpoint.
type SubmitRequest struct {
	AttemptID string   `json:"attempt_id"`
	Answers   []Answer `json:"answers"`
}

// QuestionResult is the per-question breakdown of a scored submission.
type QuestionResult struct {
	QuestionID   string `json:"question_id"`
	QuestionText string `json:"question_text"`
	ChosenIndex  int    `json:"chosen_index"`
	CorrectIndex int    `json:"correct_index"`
	IsCorrect    bool   `json:"is_correct"`
}

// SubmissionResult is the immutable outcome of a submitted attempt.
type SubmissionResult struct {
	ID              string           `json:"id"`
	QuizID          string           `json:"quiz_id"`
	QuizTitle       string           `json:"quiz_title"`
	UserID          string           `json:"user_id"`
	UserName        string           `json:"user_name,omitempty"`
	StartTime       string           `json:"start_time"`
	EndTime         string           `json:"end_time"`
	Score           float64          `json:"score"`
	TotalQuestions  int              `json:"total_questions"`
	CorrectAnswers  int              `json:"correct_answers"`
	QuestionResults []QuestionResult `json:"question_results"`
}

// User identifies the caller of an attempt-store operation. Name is the display name carried
// in the bearer token, if any.
type User struct {
	ID   string
	Name string
	Role string
}
