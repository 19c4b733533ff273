package attempt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"timed-quiz/internal/domain"
	"timed-quiz/internal/timer"
)

// ErrWrongState is returned when an operation is not allowed in the controller's current state.
var ErrWrongState = errors.New("operation not allowed in current attempt state")

const defaultSubmitTimeout = 30 * time.Second

// Store is the attempt-store collaborator consumed by the controller.
type Store interface {
	Start(ctx context.Context, quizID string) (domain.StartRecord, error)
	FetchQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	Submit(ctx context.Context, quizID string, req domain.SubmitRequest) (domain.SubmissionResult, error)
}

// Countdown is the deadline timer armed once an attempt is acquired.
type Countdown interface {
	Start(deadline time.Time, onExpire func()) error
	Stop()
}

// Confirmer asks the user to confirm a manual submission.
type Confirmer func(ctx context.Context) bool

// TimeoutHandler receives the outcome of the automatic submission fired at the deadline.
// A non-nil error means the UI must keep offering a retry.
type TimeoutHandler func(result domain.SubmissionResult, err error)

// Snapshot is the client's read-only view of an acquired attempt.
type Snapshot struct {
	Attempt  domain.QuizAttempt
	Quiz     domain.Quiz
	Deadline time.Time
}

// Option configures a Controller.
type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithCountdown(countdown Countdown) Option {
	return func(c *Controller) { c.timer = countdown }
}

func WithConfirmer(confirm Confirmer) Option {
	return func(c *Controller) { c.confirm = confirm }
}

func WithTimeoutHandler(h TimeoutHandler) Option {
	return func(c *Controller) { c.onTimeout = h }
}

// WithSubmitTimeout bounds the automatic submission's network call.
func WithSubmitTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.submitTimeout = d
		}
	}
}

// Controller drives a single attempt from acquisition to exactly-once submission.
type Controller struct {
	store         Store
	timer         Countdown
	now           func() time.Time
	logger        *zap.Logger
	confirm       Confirmer
	onTimeout     TimeoutHandler
	submitTimeout time.Duration

	mu       sync.Mutex
	state    State
	quizID   string
	attempt  domain.QuizAttempt
	quiz     domain.Quiz
	deadline time.Time
	answers  map[string]int
	expired  bool
	closed   bool
	result   *domain.SubmissionResult
}

func NewController(store Store, opts ...Option) *Controller {
	c := &Controller{
		store:         store,
		now:           time.Now,
		logger:        zap.NewNop(),
		submitTimeout: defaultSubmitTimeout,
		answers:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timer == nil {
		c.timer = timer.New(timer.WithClock(c.now))
	}
	return c
}

// Acquire obtains a start record and the quiz, derives the deadline and arms the countdown.
// A start record whose deadline already passed is retried exactly once.
func (c *Controller) Acquire(ctx context.Context, quizID string) (Snapshot, error) {
	c.mu.Lock()
	switch c.state {
	case StateActive:
		defer c.mu.Unlock()
		if quizID != c.quizID {
			return Snapshot{}, fmt.Errorf("acquire %s while %s is active: %w", quizID, c.quizID, ErrWrongState)
		}
		// A remount after Close re-arms the countdown; a passed deadline fires the timeout path at once.
		if c.closed {
			if err := c.timer.Start(c.deadline, c.handleExpiry); err != nil {
				return Snapshot{}, err
			}
			c.closed = false
		}
		return c.snapshotLocked(), nil
	case StateUnstarted, StateFailed:
	default:
		state := c.state
		c.mu.Unlock()
		return Snapshot{}, fmt.Errorf("acquire while %s: %w", state, ErrWrongState)
	}
	c.state = StateAcquiring
	c.mu.Unlock()

	snap, err := c.acquire(ctx, quizID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateFailed
		c.logger.Warn("attempt acquisition failed", zap.String("quiz_id", quizID), zap.Error(err))
		return Snapshot{}, err
	}

	c.quizID = quizID
	c.attempt = snap.Attempt
	c.quiz = snap.Quiz
	c.deadline = snap.Deadline
	c.answers = make(map[string]int)
	c.expired = false
	c.closed = false
	c.result = nil

	if err := c.timer.Start(snap.Deadline, c.handleExpiry); err != nil {
		c.state = StateFailed
		return Snapshot{}, err
	}
	c.state = StateActive
	c.logger.Info("attempt active",
		zap.String("quiz_id", quizID),
		zap.String("attempt_id", snap.Attempt.ID),
		zap.Time("deadline", snap.Deadline))
	return snap, nil
}

func (c *Controller) acquire(ctx context.Context, quizID string) (Snapshot, error) {
	var (
		quiz   domain.Quiz
		record domain.StartRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := c.store.FetchQuiz(gctx, quizID)
		if err != nil {
			return fmt.Errorf("fetch quiz: %w", err)
		}
		quiz = q
		return nil
	})
	g.Go(func() error {
		r, err := c.store.Start(gctx, quizID)
		if err != nil {
			return fmt.Errorf("start attempt: %w", err)
		}
		record = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	attempt, err := attemptFromRecord(quizID, record, quiz.TimeLimitMinutes)
	if err != nil {
		return Snapshot{}, err
	}
	if attempt.Deadline().Sub(c.now()) > 0 {
		return Snapshot{Attempt: attempt, Quiz: quiz, Deadline: attempt.Deadline()}, nil
	}

	c.logger.Warn("start record already past its deadline, retrying once",
		zap.String("attempt_id", attempt.ID),
		zap.Time("start_time", attempt.StartTime),
		zap.Int("time_limit_minutes", attempt.TimeLimitMinutes))

	record, err = c.store.Start(ctx, quizID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("restart attempt: %w", err)
	}
	retried, err := attemptFromRecord(quizID, record, attempt.TimeLimitMinutes)
	if err != nil {
		return Snapshot{}, err
	}
	if retried.Deadline().Sub(c.now()) <= 0 {
		return Snapshot{}, fmt.Errorf("attempt %s: %w", retried.ID, domain.ErrAlreadyExpired)
	}
	return Snapshot{Attempt: retried, Quiz: quiz, Deadline: retried.Deadline()}, nil
}

// attemptFromRecord validates a start record. A missing time limit falls back to fallbackLimit.
func attemptFromRecord(quizID string, record domain.StartRecord, fallbackLimit int) (domain.QuizAttempt, error) {
	if record.AttemptID == "" {
		return domain.QuizAttempt{}, &domain.ProtocolError{Op: "start", Reason: "missing attempt_id"}
	}
	if record.StartTime == "" {
		return domain.QuizAttempt{}, &domain.ProtocolError{Op: "start", Reason: "missing start_time"}
	}
	start, err := domain.ParseTimestamp(record.StartTime)
	if err != nil {
		return domain.QuizAttempt{}, &domain.ProtocolError{Op: "start", Reason: "unparseable start_time", Err: err}
	}
	limit := record.TimeLimitMinutes
	if limit <= 0 {
		limit = fallbackLimit
	}
	if limit <= 0 {
		return domain.QuizAttempt{}, &domain.ProtocolError{Op: "start", Reason: "missing time_limit_minutes"}
	}
	return domain.QuizAttempt{
		ID:               record.AttemptID,
		QuizID:           quizID,
		StartTime:        start,
		TimeLimitMinutes: limit,
		Status:           domain.AttemptActive,
	}, nil
}

// RecordAnswer stores the chosen option for a question. The last write wins.
func (c *Controller) RecordAnswer(questionID string, optionIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers[questionID] = optionIndex
}

// Submit is the single exactly-once gate for both manual and timeout submissions.
func (c *Controller) Submit(ctx context.Context, trigger Trigger) (domain.SubmissionResult, error) {
	c.mu.Lock()
	if err := c.gateLocked(); err != nil {
		res := c.storedResultLocked()
		c.mu.Unlock()
		return res, err
	}

	if trigger == TriggerManual {
		if n := c.unansweredLocked(); n > 0 {
			c.mu.Unlock()
			return domain.SubmissionResult{}, &domain.IncompleteAnswersError{Unanswered: n}
		}
		if c.confirm != nil {
			c.mu.Unlock()
			ok := c.confirm(ctx)
			c.mu.Lock()
			if !ok {
				c.mu.Unlock()
				return domain.SubmissionResult{}, domain.ErrSubmitCancelled
			}
			// The timeout path may have taken the gate while the user was deciding.
			if err := c.gateLocked(); err != nil {
				res := c.storedResultLocked()
				c.mu.Unlock()
				return res, err
			}
			if n := c.unansweredLocked(); n > 0 {
				c.mu.Unlock()
				return domain.SubmissionResult{}, &domain.IncompleteAnswersError{Unanswered: n}
			}
		}
	}

	c.state = StateSubmitting
	quizID := c.quizID
	req := domain.SubmitRequest{AttemptID: c.attempt.ID, Answers: c.payloadLocked()}
	c.mu.Unlock()

	c.logger.Info("submitting attempt",
		zap.String("attempt_id", req.AttemptID),
		zap.Stringer("trigger", trigger),
		zap.Int("answered", len(req.Answers)))

	res, err := c.store.Submit(ctx, quizID, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateActive
		c.logger.Warn("submission failed", zap.String("attempt_id", req.AttemptID), zap.Stringer("trigger", trigger), zap.Error(err))
		return domain.SubmissionResult{}, &domain.SubmissionFailedError{Trigger: trigger.String(), Err: err}
	}
	c.state = StateSubmitted
	c.result = &res
	c.timer.Stop()
	return res, nil
}

func (c *Controller) handleExpiry() {
	c.mu.Lock()
	c.expired = true
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.submitTimeout)
	defer cancel()

	res, err := c.Submit(ctx, TriggerTimeout)
	if errors.Is(err, domain.ErrAlreadySubmitted) {
		return
	}
	if c.onTimeout != nil {
		c.onTimeout(res, err)
	}
}

// Close stops the countdown. The attempt stays active on the server until its deadline, and a
// later Acquire for the same quiz re-arms it.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timer.Stop()
	c.closed = true
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Expired reports whether the countdown reached the deadline.
func (c *Controller) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Snapshot returns the acquired attempt, if any.
func (c *Controller) Snapshot() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt.ID == "" {
		return Snapshot{}, false
	}
	return c.snapshotLocked(), true
}

// Answers returns a copy of the answer set.
func (c *Controller) Answers() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.answers))
	for k, v := range c.answers {
		out[k] = v
	}
	return out
}

// Unanswered counts the quiz questions without an answer.
func (c *Controller) Unanswered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unansweredLocked()
}

// Result returns the submission result once the attempt is submitted.
func (c *Controller) Result() (domain.SubmissionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return domain.SubmissionResult{}, false
	}
	return *c.result, true
}

func (c *Controller) gateLocked() error {
	switch c.state {
	case StateActive:
		return nil
	case StateSubmitting, StateSubmitted:
		return domain.ErrAlreadySubmitted
	default:
		return domain.ErrNotActive
	}
}

func (c *Controller) storedResultLocked() domain.SubmissionResult {
	if c.result == nil {
		return domain.SubmissionResult{}
	}
	return *c.result
}

func (c *Controller) unansweredLocked() int {
	n := 0
	for _, q := range c.quiz.Questions {
		if _, ok := c.answers[q.ID]; !ok {
			n++
		}
	}
	return n
}

// payloadLocked serializes answers in quiz question order, omitting unanswered questions.
func (c *Controller) payloadLocked() []domain.Answer {
	out := make([]domain.Answer, 0, len(c.answers))
	for _, q := range c.quiz.Questions {
		if idx, ok := c.answers[q.ID]; ok {
			out = append(out, domain.Answer{QuestionID: q.ID, ChosenIndex: idx})
		}
	}
	return out
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{Attempt: c.attempt, Quiz: c.quiz, Deadline: c.deadline}
}
