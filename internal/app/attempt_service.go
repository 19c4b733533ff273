package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"timed-quiz/internal/domain"
)

// DefaultGrace is the slack the server allows past an attempt's time limit.
const DefaultGrace = 30 * time.Second

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// AttemptRepository persists attempts and their results (in-memory, Redis, etc).
type AttemptRepository interface {
	Create(ctx context.Context, attempt domain.QuizAttempt) error
	Get(ctx context.Context, attemptID string) (domain.QuizAttempt, error)
	// ActiveFor returns the user's unfinished attempt for a quiz, if any.
	ActiveFor(ctx context.Context, quizID, userID string) (domain.QuizAttempt, bool, error)
	// Expire closes an active attempt with the given end time. Closing a non-active attempt is a no-op.
	Expire(ctx context.Context, attemptID string, endTime time.Time) error
	// Complete stores result as the attempt's only result. When a result already exists it is
	// returned unchanged with created=false.
	Complete(ctx context.Context, attemptID string, endTime time.Time, result domain.SubmissionResult) (stored domain.SubmissionResult, created bool, err error)
	Result(ctx context.Context, attemptID string) (domain.SubmissionResult, error)
	LatestResult(ctx context.Context, quizID, userID string) (domain.SubmissionResult, error)
	HasSubmitted(ctx context.Context, quizID, userID string) (bool, error)
}

// Recorder receives attempt lifecycle events for metrics.
type Recorder interface {
	AttemptStarted(outcome string)
	SubmissionRecorded(outcome string)
	AttemptExpired()
}

type nopRecorder struct{}

func (nopRecorder) AttemptStarted(string)     {}
func (nopRecorder) SubmissionRecorded(string) {}
func (nopRecorder) AttemptExpired()           {}

// ServiceOption configures an AttemptService.
type ServiceOption func(*AttemptService)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *AttemptService) { s.now = now }
}

func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *AttemptService) { s.newID = newID }
}

func WithGrace(grace time.Duration) ServiceOption {
	return func(s *AttemptService) {
		if grace >= 0 {
			s.grace = grace
		}
	}
}

// WithRetakes allows a new attempt after a submitted one.
func WithRetakes(allow bool) ServiceOption {
	return func(s *AttemptService) { s.allowRetakes = allow }
}

func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *AttemptService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithRecorder(rec Recorder) ServiceOption {
	return func(s *AttemptService) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// AttemptService is the authoritative attempt store: it hands out attempts, enforces the
// time limit and scores submissions.
type AttemptService struct {
	quizzes  QuizRepository
	attempts AttemptRepository

	now          func() time.Time
	newID        func() string
	grace        time.Duration
	allowRetakes bool
	logger       *zap.Logger
	metrics      Recorder

	starts singleflight.Group
}

func NewAttemptService(quizzes QuizRepository, attempts AttemptRepository, opts ...ServiceOption) *AttemptService {
	s := &AttemptService{
		quizzes:  quizzes,
		attempts: attempts,
		now:      time.Now,
		newID:    uuid.NewString,
		grace:    DefaultGrace,
		logger:   zap.NewNop(),
		metrics:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start returns the user's open attempt for the quiz, or mints a new one.
// An open attempt past limit+grace is closed as expired first.
func (s *AttemptService) Start(ctx context.Context, quizID string, user domain.User) (domain.StartRecord, error) {
	if user.Role != "" && user.Role != domain.RoleStudent {
		return domain.StartRecord{}, domain.ErrForbidden
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.StartRecord{}, err
	}

	// Concurrent starts for one (quiz, user) share a single attempt.
	result, err, _ := s.starts.Do(quizID+"\x00"+user.ID, func() (interface{}, error) {
		return s.start(ctx, quiz, user)
	})
	if err != nil {
		return domain.StartRecord{}, err
	}
	return result.(domain.StartRecord), nil
}

func (s *AttemptService) start(ctx context.Context, quiz domain.Quiz, user domain.User) (domain.StartRecord, error) {
	if !s.allowRetakes {
		done, err := s.attempts.HasSubmitted(ctx, quiz.ID, user.ID)
		if err != nil {
			return domain.StartRecord{}, err
		}
		if done {
			return domain.StartRecord{}, domain.ErrAttemptCompleted
		}
	}

	now := s.now().UTC()
	open, ok, err := s.attempts.ActiveFor(ctx, quiz.ID, user.ID)
	if err != nil {
		return domain.StartRecord{}, err
	}
	if ok {
		if !s.pastGrace(open, now) {
			s.metrics.AttemptStarted("resumed")
			s.logger.Info("resuming attempt", zap.String("attempt_id", open.ID), zap.String("user_id", user.ID))
			return startRecord(open), nil
		}
		if err := s.expire(ctx, open); err != nil {
			return domain.StartRecord{}, err
		}
	}

	attempt := domain.QuizAttempt{
		ID:               s.newID(),
		QuizID:           quiz.ID,
		UserID:           user.ID,
		StartTime:        now,
		TimeLimitMinutes: quiz.TimeLimitMinutes,
		Status:           domain.AttemptActive,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return domain.StartRecord{}, fmt.Errorf("create attempt: %w", err)
	}
	s.metrics.AttemptStarted("new")
	s.logger.Info("attempt started",
		zap.String("attempt_id", attempt.ID),
		zap.String("quiz_id", quiz.ID),
		zap.String("user_id", user.ID),
		zap.Int("time_limit_minutes", attempt.TimeLimitMinutes))
	return startRecord(attempt), nil
}

// Quiz returns the quiz; everyone but admins gets the view without correct answers.
func (s *AttemptService) Quiz(ctx context.Context, quizID string, user domain.User) (domain.Quiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if user.Role == domain.RoleAdmin {
		return quiz, nil
	}
	return quiz.StudentView(), nil
}

// Submit scores an attempt once. Resubmitting a submitted attempt returns the stored result.
func (s *AttemptService) Submit(ctx context.Context, quizID string, user domain.User, req domain.SubmitRequest) (domain.SubmissionResult, error) {
	attempt, err := s.attempts.Get(ctx, req.AttemptID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	if attempt.QuizID != quizID || attempt.UserID != user.ID {
		s.metrics.SubmissionRecorded("forbidden")
		return domain.SubmissionResult{}, domain.ErrForbidden
	}

	switch attempt.Status {
	case domain.AttemptSubmitted:
		s.metrics.SubmissionRecorded("duplicate")
		return s.attempts.Result(ctx, attempt.ID)
	case domain.AttemptExpired:
		s.metrics.SubmissionRecorded("late")
		return domain.SubmissionResult{}, domain.ErrTimeLimitExceeded
	}

	now := s.now().UTC()
	if s.pastGrace(attempt, now) {
		if err := s.expire(ctx, attempt); err != nil {
			return domain.SubmissionResult{}, err
		}
		s.metrics.SubmissionRecorded("late")
		return domain.SubmissionResult{}, domain.ErrTimeLimitExceeded
	}

	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}

	result := Score(quiz, attempt, req.Answers, now)
	result.UserName = user.Name
	stored, created, err := s.attempts.Complete(ctx, attempt.ID, now, result)
	if errors.Is(err, domain.ErrTimeLimitExceeded) {
		// Another request closed the attempt as expired first.
		s.metrics.SubmissionRecorded("late")
		return domain.SubmissionResult{}, domain.ErrTimeLimitExceeded
	}
	if err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("complete attempt: %w", err)
	}
	if !created {
		s.metrics.SubmissionRecorded("duplicate")
		return stored, nil
	}
	s.metrics.SubmissionRecorded("accepted")
	s.logger.Info("attempt submitted",
		zap.String("attempt_id", attempt.ID),
		zap.String("user_id", user.ID),
		zap.Int("answered", len(req.Answers)),
		zap.Float64("score", stored.Score))
	return stored, nil
}

// Result returns a submitted attempt's result to its owner or an admin.
func (s *AttemptService) Result(ctx context.Context, attemptID string, user domain.User) (domain.SubmissionResult, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	if attempt.UserID != user.ID && user.Role != domain.RoleAdmin {
		return domain.SubmissionResult{}, domain.ErrForbidden
	}
	return s.attempts.Result(ctx, attemptID)
}

// MyResult returns the caller's latest submitted result for a quiz.
func (s *AttemptService) MyResult(ctx context.Context, quizID string, user domain.User) (domain.SubmissionResult, error) {
	return s.attempts.LatestResult(ctx, quizID, user.ID)
}

// Attempt returns the caller's attempt, used by the countdown feed.
func (s *AttemptService) Attempt(ctx context.Context, attemptID string, user domain.User) (domain.QuizAttempt, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	if attempt.UserID != user.ID {
		return domain.QuizAttempt{}, domain.ErrForbidden
	}
	return attempt, nil
}

// Now exposes the service clock so countdown feeds agree with the time-limit checks.
func (s *AttemptService) Now() time.Time {
	return s.now()
}

func (s *AttemptService) pastGrace(attempt domain.QuizAttempt, now time.Time) bool {
	return now.Sub(attempt.StartTime) > time.Duration(attempt.TimeLimitMinutes)*time.Minute+s.grace
}

func (s *AttemptService) expire(ctx context.Context, attempt domain.QuizAttempt) error {
	if err := s.attempts.Expire(ctx, attempt.ID, attempt.Deadline()); err != nil {
		return fmt.Errorf("expire attempt: %w", err)
	}
	s.metrics.AttemptExpired()
	s.logger.Info("attempt closed as expired", zap.String("attempt_id", attempt.ID), zap.Time("deadline", attempt.Deadline()))
	return nil
}

func startRecord(attempt domain.QuizAttempt) domain.StartRecord {
	return domain.StartRecord{
		AttemptID:        attempt.ID,
		StartTime:        domain.FormatTimestamp(attempt.StartTime),
		TimeLimitMinutes: attempt.TimeLimitMinutes,
	}
}

// Score grades answers against the quiz. Unanswered questions count as wrong and are left out
// of the breakdown; answers to unknown questions are ignored; a repeated question keeps its last answer.
func Score(quiz domain.Quiz, attempt domain.QuizAttempt, answers []domain.Answer, end time.Time) domain.SubmissionResult {
	chosen := make(map[string]int, len(answers))
	for _, a := range answers {
		chosen[a.QuestionID] = a.ChosenIndex
	}

	breakdown := make([]domain.QuestionResult, 0, len(chosen))
	correct := 0
	for _, q := range quiz.Questions {
		idx, ok := chosen[q.ID]
		if !ok {
			continue
		}
		correctIndex := -1
		if q.CorrectOptionIndex != nil {
			correctIndex = *q.CorrectOptionIndex
		}
		isCorrect := correctIndex >= 0 && idx == correctIndex
		if isCorrect {
			correct++
		}
		breakdown = append(breakdown, domain.QuestionResult{
			QuestionID:   q.ID,
			QuestionText: q.Text,
			ChosenIndex:  idx,
			CorrectIndex: correctIndex,
			IsCorrect:    isCorrect,
		})
	}

	total := len(quiz.Questions)
	score := 0.0
	if total > 0 {
		score = math.Round(float64(correct)/float64(total)*100*100) / 100
	}

	return domain.SubmissionResult{
		ID:              attempt.ID,
		QuizID:          quiz.ID,
		QuizTitle:       quiz.Title,
		UserID:          attempt.UserID,
		StartTime:       domain.FormatTimestamp(attempt.StartTime),
		EndTime:         domain.FormatTimestamp(end),
		Score:           score,
		TotalQuestions:  total,
		CorrectAnswers:  correct,
		QuestionResults: breakdown,
	}
}
