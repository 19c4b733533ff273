package attempt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"timed-quiz/internal/domain"
	"timed-quiz/internal/timer"
)

var t0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return t0 }

// scriptedStore replays start records in order and counts every network call.
type scriptedStore struct {
	mu       sync.Mutex
	quiz     domain.Quiz
	starts   []domain.StartRecord
	startN   int
	submits  []domain.SubmitRequest
	submitFn func(n int) (domain.SubmissionResult, error)

	entered chan struct{}
	release chan struct{}
}

func (s *scriptedStore) Start(_ context.Context, _ string) (domain.StartRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startN >= len(s.starts) {
		return domain.StartRecord{}, errors.New("no more start records")
	}
	rec := s.starts[s.startN]
	s.startN++
	return rec, nil
}

func (s *scriptedStore) FetchQuiz(_ context.Context, _ string) (domain.Quiz, error) {
	return s.quiz, nil
}

func (s *scriptedStore) Submit(_ context.Context, _ string, req domain.SubmitRequest) (domain.SubmissionResult, error) {
	s.mu.Lock()
	s.submits = append(s.submits, req)
	n := len(s.submits)
	fn := s.submitFn
	s.mu.Unlock()

	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	if fn != nil {
		return fn(n)
	}
	return domain.SubmissionResult{ID: req.AttemptID, CorrectAnswers: len(req.Answers)}, nil
}

func (s *scriptedStore) startCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startN
}

func (s *scriptedStore) submitCalls() []domain.SubmitRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SubmitRequest(nil), s.submits...)
}

// fakeCountdown records arming and lets tests fire the expiry by hand.
type fakeCountdown struct {
	mu       sync.Mutex
	starts   []time.Time
	onExpire func()
	stops    int
}

func (f *fakeCountdown) Start(deadline time.Time, onExpire func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, deadline)
	f.onExpire = onExpire
	return nil
}

func (f *fakeCountdown) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeCountdown) fire() {
	f.mu.Lock()
	fn := f.onExpire
	f.mu.Unlock()
	fn()
}

func (f *fakeCountdown) armed() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.starts...)
}

func fourQuestionQuiz() domain.Quiz {
	return domain.Quiz{
		ID:               "quiz-1",
		Title:            "Go basics",
		TimeLimitMinutes: 15,
		Questions: []domain.Question{
			{ID: "q1", Text: "first", Options: []string{"a", "b"}},
			{ID: "q2", Text: "second", Options: []string{"a", "b"}},
			{ID: "q3", Text: "third", Options: []string{"a", "b"}},
			{ID: "q4", Text: "fourth", Options: []string{"a", "b"}},
		},
	}
}

func startRecord(id string, start time.Time, minutes int) domain.StartRecord {
	return domain.StartRecord{AttemptID: id, StartTime: domain.FormatTimestamp(start), TimeLimitMinutes: minutes}
}

func newTestController(store *scriptedStore, countdown *fakeCountdown, opts ...Option) *Controller {
	opts = append([]Option{WithClock(fixedClock), WithCountdown(countdown)}, opts...)
	return NewController(store, opts...)
}

func acquire(t *testing.T, c *Controller) Snapshot {
	t.Helper()
	snap, err := c.Acquire(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	return snap
}

func TestAcquireDerivesDeadlineFromStartRecord(t *testing.T) {
	store := &scriptedStore{
		quiz:   fourQuestionQuiz(),
		starts: []domain.StartRecord{startRecord("a1", t0.Add(-5*time.Minute), 15)},
	}
	countdown := &fakeCountdown{}
	c := newTestController(store, countdown)

	snap := acquire(t, c)
	want := t0.Add(10 * time.Minute)
	if !snap.Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", snap.Deadline, want)
	}
	if secs := int(snap.Deadline.Sub(t0) / time.Second); secs != 600 {
		t.Fatalf("expected 600 seconds remaining, got %d", secs)
	}
	armed := countdown.armed()
	if len(armed) != 1 || !armed[0].Equal(want) {
		t.Fatalf("expected countdown armed once at %v, got %v", want, armed)
	}
	if c.State() != StateActive {
		t.Fatalf("expected active state, got %s", c.State())
	}
	if store.startCalls() != 1 {
		t.Fatalf("expected one start call, got %d", store.startCalls())
	}
}

func TestAcquireTreatsNaiveStartTimeAsUTC(t *testing.T) {
	store := &scriptedStore{
		quiz:   fourQuestionQuiz(),
		starts: []domain.StartRecord{{AttemptID: "a1", StartTime: "2024-01-15T09:55:00", TimeLimitMinutes: 15}},
	}
	c := newTestController(store, &fakeCountdown{})

	snap := acquire(t, c)
	if want := time.Date(2024, 1, 15, 10, 10, 0, 0, time.UTC); !snap.Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", snap.Deadline, want)
	}
}

func TestAcquireRetriesStaleStartOnce(t *testing.T) {
	store := &scriptedStore{
		quiz: fourQuestionQuiz(),
		starts: []domain.StartRecord{
			startRecord("stale", t0.Add(-20*time.Minute), 15),
			startRecord("fresh", t0.Add(-time.Minute), 15),
		},
	}
	countdown := &fakeCountdown{}
	c := newTestController(store, countdown)

	snap := acquire(t, c)
	if snap.Attempt.ID != "fresh" {
		t.Fatalf("expected retried attempt, got %s", snap.Attempt.ID)
	}
	if want := t0.Add(14 * time.Minute); !snap.Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", snap.Deadline, want)
	}
	if store.startCalls() != 2 {
		t.Fatalf("expected exactly two start calls, got %d", store.startCalls())
	}
	if len(countdown.armed()) != 1 {
		t.Fatalf("expected countdown armed once")
	}
}

func TestAcquireReportsAlreadyExpiredAfterSingleRetry(t *testing.T) {
	store := &scriptedStore{
		quiz: fourQuestionQuiz(),
		starts: []domain.StartRecord{
			startRecord("stale-1", t0.Add(-20*time.Minute), 15),
			startRecord("stale-2", t0.Add(-20*time.Minute), 15),
			startRecord("never-used", t0, 15),
		},
	}
	countdown := &fakeCountdown{}
	c := newTestController(store, countdown)

	_, err := c.Acquire(context.Background(), "quiz-1")
	if !errors.Is(err, domain.ErrAlreadyExpired) {
		t.Fatalf("expected ErrAlreadyExpired, got %v", err)
	}
	if store.startCalls() != 2 {
		t.Fatalf("expected exactly one retry, got %d start calls", store.startCalls())
	}
	if len(countdown.armed()) != 0 {
		t.Fatalf("countdown must never be armed for an expired attempt")
	}
	if c.State() != StateFailed {
		t.Fatalf("expected failed state, got %s", c.State())
	}
	if len(store.submitCalls()) != 0 {
		t.Fatalf("expired acquisition must not submit")
	}
}

func TestAcquireRetryFallsBackToFirstTimeLimit(t *testing.T) {
	store := &scriptedStore{
		quiz: fourQuestionQuiz(),
		starts: []domain.StartRecord{
			startRecord("stale", t0.Add(-40*time.Minute), 30),
			{AttemptID: "fresh", StartTime: domain.FormatTimestamp(t0)},
		},
	}
	c := newTestController(store, &fakeCountdown{})

	snap := acquire(t, c)
	if snap.Attempt.TimeLimitMinutes != 30 {
		t.Fatalf("expected fallback time limit 30, got %d", snap.Attempt.TimeLimitMinutes)
	}
}

func TestAcquireFallsBackToQuizTimeLimit(t *testing.T) {
	store := &scriptedStore{
		quiz:   fourQuestionQuiz(),
		starts: []domain.StartRecord{{AttemptID: "a1", StartTime: domain.FormatTimestamp(t0)}},
	}
	c := newTestController(store, &fakeCountdown{})

	snap := acquire(t, c)
	if snap.Attempt.TimeLimitMinutes != 15 {
		t.Fatalf("expected quiz time limit 15, got %d", snap.Attempt.TimeLimitMinutes)
	}
}

func TestAcquireMalformedStartIsProtocolError(t *testing.T) {
	cases := map[string]domain.StartRecord{
		"missing id":         {StartTime: domain.FormatTimestamp(t0), TimeLimitMinutes: 15},
		"missing start time": {AttemptID: "a1", TimeLimitMinutes: 15},
		"garbage start time": {AttemptID: "a1", StartTime: "soon", TimeLimitMinutes: 15},
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			store := &scriptedStore{quiz: fourQuestionQuiz(), starts: []domain.StartRecord{rec}}
			countdown := &fakeCountdown{}
			c := newTestController(store, countdown)

			_, err := c.Acquire(context.Background(), "quiz-1")
			var perr *domain.ProtocolError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ProtocolError, got %v", err)
			}
			if c.State() != StateFailed {
				t.Fatalf("expected failed state, got %s", c.State())
			}
			if len(countdown.armed()) != 0 {
				t.Fatalf("countdown must not be armed")
			}
			if _, ok := c.Snapshot(); ok {
				t.Fatalf("no attempt should be active")
			}
		})
	}
}

func TestAcquireIsIdempotentWhileActive(t *testing.T) {
	store := &scriptedStore{
		quiz:   fourQuestionQuiz(),
		starts: []domain.StartRecord{startRecord("a1", t0, 15)},
	}
	c := newTestController(store, &fakeCountdown{})

	first := acquire(t, c)
	second := acquire(t, c)
	if first.Attempt.ID != second.Attempt.ID || !first.Deadline.Equal(second.Deadline) {
		t.Fatalf("expected identical snapshots, got %+v and %+v", first, second)
	}
	if store.startCalls() != 1 {
		t.Fatalf("expected no extra network calls, got %d start calls", store.startCalls())
	}
}

func TestAcquireWhileActiveRejectsOtherQuiz(t *testing.T) {
	store := &scriptedStore{quiz: fourQuestionQuiz(), starts: []domain.StartRecord{startRecord("a1", t0, 15)}}
	c := newTestController(store, &fakeCountdown{})
	acquire(t, c)

	if _, err := c.Acquire(context.Background(), "quiz-2"); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState for a different quiz, got %v", err)
	}
	if snap, _ := c.Snapshot(); snap.Attempt.QuizID != "quiz-1" || c.State() != StateActive {
		t.Fatalf("rejected acquire must leave the active attempt untouched, got %+v in %s", snap.Attempt, c.State())
	}
}

func TestReacquireAfterCloseRearmsCountdown(t *testing.T) {
	store := &scriptedStore{quiz: fourQuestionQuiz(), starts: []domain.StartRecord{startRecord("a1", t0, 15)}}
	countdown := &fakeCountdown{}
	c := newTestController(store, countdown)
	first := acquire(t, c)

	c.Close()
	second := acquire(t, c)
	if second.Attempt.ID != first.Attempt.ID {
		t.Fatalf("remount must keep the attempt, got %s then %s", first.Attempt.ID, second.Attempt.ID)
	}
	armed := countdown.armed()
	if len(armed) != 2 || !armed[1].Equal(first.Deadline) {
		t.Fatalf("expected countdown re-armed at %v, got %v", first.Deadline, armed)
	}
	if store.startCalls() != 1 {
		t.Fatalf("remount must not start a new attempt, got %d start calls", store.startCalls())
	}

	acquire(t, c)
	if n := len(countdown.armed()); n != 2 {
		t.Fatalf("acquire without a close must not re-arm, armed %d times", n)
	}
}

func TestRecordAnswerLastWriteWins(t *testing.T) {
	store := &scriptedStore{quiz: fourQuestionQuiz(), starts: []domain.StartRecord{startRecord("a1", t0, 15)}}
	c := newTestController(store, &fakeCountdown{})
	acquire(t, c)

	c.RecordAnswer("q1", 0)
	c.RecordAnswer("q1", 1)
	if got := c.Answers()["q1"]; got != 1 {
		t.Fatalf("expected last answer 1, got %d", got)
	}
	if c.Unanswered() != 3 {
		t.Fatalf("expected 3 unanswered, got %d", c.Unanswered())
	}
	if len(store.submitCalls()) != 0 {
		t.Fatalf("recording answers must not touch the network")
	}
}

func TestManualSubmitBlockedByUnansweredQuestions(t *testing.T) {
	store := &scriptedStore{quiz: fourQuestionQuiz(), starts: []domain.StartRecord{startRecord("a1", t0, 15)}}
	c := newTestController(store, &fakeCountdown{})
	acquire(t, c)

	c.RecordAnswer("q1", 0)
	c.RecordAnswer("q3", 1)

	_, err := c.Submit(context.Background(), TriggerManual)
	var incomplete *domain.IncompleteAnswersError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteAnswersError, got %v", err)
	}
	if incomplete.Unanswered != 2 {
		t.Fatalf("expected 2 unanswered, got %d", incomplete.Unanswered)
	}
	if len(store.submitCalls()) != 0 {
		t.Fatalf("incomplete manual submit must not call the network")
	}
	if c.State() != StateActive {
		t.Fatalf("expected attempt to stay active, got %s", c.State())
	}
}

func TestTimeoutSubmitsAnsweredSubsetInQuestionOrder(t *testing.T) {
	store := &scriptedStore{quiz: fourQuestionQuiz(), starts: []domain.StartRecord{startRecord("a1", t0, 15)}}
	countdown := &fakeCountdown{}
	outcome := make(chan error, 1)
	c := newTestController(store, countdown, WithTimeoutHandler(func(_ domain.SubmissionResult, err error) {
		outcome <- err
	}))
	acquire(t, c)

	c.RecordAnswer("q3", 0)
	c.RecordAnswer("q1", 1)
	c.RecordAnswer("q2", 1)
	countdown.fire()

	if err := <-outcome; err != nil {
		t.Fatalf("timeout submission failed: %v", err)
	}
	calls := store.submitCalls()
	if len(calls) != 1 {
		t.Fatalf("expected one submit call, got %d", len(calls))
	}
	want := []domain.Answer{{QuestionID: "q1", ChosenIndex: 1}, {QuestionID: "q2", ChosenIndex: 1}, {QuestionID: "q3", ChosenIndex: 0}}
	got := calls[0].Answers
	if len(got) != len(want) {
		t.Fatalf("expected %d answers, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("answer %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if calls[0].AttemptID != "a1" {
		t.Fatalf("expected attempt id a1, got %s", calls[0].AttemptID)
	}
	if !c.Expired() || c.State() != StateSubmitted {
		t.Fatalf("expected expired+submitted, got expired=%v state=%s", c.Expired(), c.State())
	}
}

func TestTimeoutWithNoAnswersSendsEmptyList(t *testing.T) {
	store := &scriptedStore{quiz: fourQuestionQuiz(), starts: []domain.StartRecord{startRecord("a1", t0, 15)}}
	countdown := &fakeCountdown{}
	c := newTestController(store, countdown)
	acquire(t, c)

	countdown.fire()

	calls := store.submitCalls()
	if len(calls) != 1 {
		t.Fatalf("expected one submit call, got %d", len(calls))
	}
	if calls[0].Answers == nil || len(calls[0].Answers) != 0 {
		t.Fatalf("expected empty, non-nil answer list, got %#v", calls[0].Answers)
	}
}

func TestSubmitTwiceIssuesOneNetworkCall(t *testing.T) {
	pairs := []struct {
		name          string
		first, second Trigger
	}{
		{"manual+manual", TriggerManual, TriggerManual},
		{"manual+timeout", TriggerManual, TriggerTimeout},
		{"timeout+manual", TriggerTimeout, TriggerManual},
		{"timeout+timeout", TriggerTimeout, TriggerTimeout},
	}
	for _, tc := range pairs {
		t.Run(tc.name, func(t *testing.T) {
			store := &scriptedStore{
				quiz:    fourQuestionQuiz(),
				starts:  []domain.StartRecord{startRecord("a1", t0, 15)},
				entered: make(chan struct{}, 1),
				release: make(chan struct{}),
			}
			c := newTestController(store, &fakeCountdown{})
			acquire(t, c)
			for _, q := range []string{"q1", "q2", "q3", "q4"} {
				c.RecordAnswer(q, 0)
			}

			done := make(chan error, 1)
			go func() {
				_, err := c.Submit(context.Background(), tc.first)
				done <- err
			}()
			<-store.entered

			if _, err := c.Submit(context.Background(), tc.second); !errors.Is(err, domain.ErrAlreadySubmitted) {
				t.Fatalf("expected in-flight submit to be a no-op, got %v", err)
			}
			close(store.release)
			if err := <-done; err != nil {
				t.Fatalf("first submit: %v", err)
			}

			res, err := c.Submit(context.Background(), tc.second)
			if !errors.Is(err, domain.ErrAlreadySubmitted) {
				t.Fatalf("expected completed submit to be a no-op, got %v", err)
			}
			if res.ID != "a1" {
				t.Fatalf("expected stored result returned, got %+v", res)
			}
			if n := len(store.submitCalls()); n != 1 {
				t.Fatalf("expected exactly one network submit, got %d", n)
			}
		})
	}
}

func TestConcurrentManualAndTimeoutSubmitOnce(t *testing.T) {
	store := &scriptedStore{quiz: fourQuestionQuiz(), starts: []domain.StartRecord{startRecord("a1", t0, 15)}}
	countdown := &fakeCountdown{}
	c := newTestController(store, countdown)
	acquire(t, c)
	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		c.RecordAnswer(q, 1)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				countdown.fire()
				return
			}
			_, _ = c.Submit(context.Background(), TriggerManual)
		}(i)
	}
	wg.Wait()

	if n := len(store.submitCalls()); n != 1 {
		t.Fatalf("expected exactly one network submit, got %d", n)
	}
}

func TestFailedSubmitReopensGate(t *testing.T) {
	store := &scriptedStore{
		quiz:   fourQuestionQuiz(),
		starts: []domain.StartRecord{startRecord("a1", t0, 15)},
		submitFn: func(n int) (domain.SubmissionResult, error) {
			if n == 1 {
				return domain.SubmissionResult{}, errors.New("connection reset")
			}
			return domain.SubmissionResult{ID: "a1", Score: 50}, nil
		},
	}
	countdown := &fakeCountdown{}
	outcome := make(chan error, 1)
	c := newTestController(store, countdown, WithTimeoutHandler(func(_ domain.SubmissionResult, err error) {
		outcome <- err
	}))
	acquire(t, c)

	countdown.fire()
	err := <-outcome
	var failed *domain.SubmissionFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected SubmissionFailedError surfaced to the timeout handler, got %v", err)
	}
	if failed.Trigger != "timeout" {
		t.Fatalf("expected timeout trigger, got %s", failed.Trigger)
	}
	if c.State() != StateActive {
		t.Fatalf("expected gate reopened, got %s", c.State())
	}

	res, err := c.Submit(context.Background(), TriggerTimeout)
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if res.Score != 50 {
		t.Fatalf("expected retried result, got %+v", res)
	}
	if _, err := c.Submit(context.Background(), TriggerTimeout); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected no resubmission after success, got %v", err)
	}
	if n := len(store.submitCalls()); n != 2 {
		t.Fatalf("expected two network submits, got %d", n)
	}
}

func TestManualSubmitRequiresConfirmation(t *testing.T) {
	store := &scriptedStore{quiz: fourQuestionQuiz(), starts: []domain.StartRecord{startRecord("a1", t0, 15)}}
	confirm := false
	countdown := &fakeCountdown{}
	c := newTestController(store, countdown, WithConfirmer(func(context.Context) bool { return confirm }))
	acquire(t, c)
	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		c.RecordAnswer(q, 0)
	}

	if _, err := c.Submit(context.Background(), TriggerManual); !errors.Is(err, domain.ErrSubmitCancelled) {
		t.Fatalf("expected ErrSubmitCancelled, got %v", err)
	}
	if len(store.submitCalls()) != 0 {
		t.Fatalf("declined confirmation must not submit")
	}

	confirm = true
	if _, err := c.Submit(context.Background(), TriggerManual); err != nil {
		t.Fatalf("confirmed submit: %v", err)
	}
	if c.State() != StateSubmitted {
		t.Fatalf("expected submitted, got %s", c.State())
	}
	if countdown.stops == 0 {
		t.Fatalf("expected countdown stopped after successful submit")
	}
}

func TestTimeoutBypassesConfirmation(t *testing.T) {
	store := &scriptedStore{quiz: fourQuestionQuiz(), starts: []domain.StartRecord{startRecord("a1", t0, 15)}}
	countdown := &fakeCountdown{}
	c := newTestController(store, countdown, WithConfirmer(func(context.Context) bool {
		t.Errorf("timeout path must not ask for confirmation")
		return false
	}))
	acquire(t, c)

	countdown.fire()
	if n := len(store.submitCalls()); n != 1 {
		t.Fatalf("expected timeout submit, got %d calls", n)
	}
}

func TestSubmitBeforeAcquireIsRejected(t *testing.T) {
	store := &scriptedStore{quiz: fourQuestionQuiz()}
	c := newTestController(store, &fakeCountdown{})
	if _, err := c.Submit(context.Background(), TriggerTimeout); !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestCloseStopsCountdown(t *testing.T) {
	store := &scriptedStore{quiz: fourQuestionQuiz(), starts: []domain.StartRecord{startRecord("a1", t0, 15)}}
	countdown := &fakeCountdown{}
	c := newTestController(store, countdown)
	acquire(t, c)

	c.Close()
	if countdown.stops != 1 {
		t.Fatalf("expected countdown stopped once, got %d", countdown.stops)
	}
	if c.State() != StateActive {
		t.Fatalf("closing must not change the attempt state, got %s", c.State())
	}
}

func TestRealTimerDrivesAutomaticSubmission(t *testing.T) {
	now := time.Now()
	store := &scriptedStore{
		quiz:   fourQuestionQuiz(),
		starts: []domain.StartRecord{startRecord("a1", now.Add(-time.Minute+80*time.Millisecond), 1)},
	}
	outcome := make(chan error, 1)
	c := NewController(store,
		WithCountdown(timer.New(timer.WithInterval(10*time.Millisecond))),
		WithTimeoutHandler(func(_ domain.SubmissionResult, err error) { outcome <- err }),
	)
	defer c.Close()

	snap := acquire(t, c)
	c.RecordAnswer("q2", 1)

	select {
	case err := <-outcome:
		if err != nil {
			t.Fatalf("automatic submission failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("deadline %v passed without automatic submission", snap.Deadline)
	}
	calls := store.submitCalls()
	if len(calls) != 1 || len(calls[0].Answers) != 1 {
		t.Fatalf("expected one submit with one answer, got %+v", calls)
	}
}

func TestRemountedAttemptStillSubmitsAtDeadline(t *testing.T) {
	now := time.Now()
	store := &scriptedStore{
		quiz:   fourQuestionQuiz(),
		starts: []domain.StartRecord{startRecord("a1", now.Add(-time.Minute+150*time.Millisecond), 1)},
	}
	outcome := make(chan error, 2)
	c := NewController(store,
		WithCountdown(timer.New(timer.WithInterval(10*time.Millisecond))),
		WithTimeoutHandler(func(_ domain.SubmissionResult, err error) { outcome <- err }),
	)
	defer c.Close()

	acquire(t, c)
	c.Close()
	acquire(t, c)

	select {
	case err := <-outcome:
		if err != nil {
			t.Fatalf("automatic submission failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("deadline passed after remount without automatic submission")
	}
	time.Sleep(50 * time.Millisecond)
	if n := len(store.submitCalls()); n != 1 {
		t.Fatalf("expected exactly one timeout submit, got %d", n)
	}
	if c.State() != StateSubmitted {
		t.Fatalf("expected submitted, got %s", c.State())
	}
}
