package player

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"timed-quiz/internal/attempt"
	"timed-quiz/internal/client"
	"timed-quiz/internal/domain"
	"timed-quiz/internal/timer"
)

// Config wires a terminal session for one quiz.
type Config struct {
	QuizID       string
	Store        attempt.Store
	TickInterval time.Duration
	Clock        func() time.Time
	Logger       *zap.Logger
}

type timeoutOutcome struct {
	result domain.SubmissionResult
	err    error
}

type session struct {
	out       io.Writer
	lines     <-chan string
	ctrl      *attempt.Controller
	countdown *timer.Timer
	timeouts  chan timeoutOutcome
	now       func() time.Time
	failed    bool
}

// Run takes the quiz interactively: it acquires an attempt, shows the countdown, records answers
// and submits exactly once, manually or when time runs out. It returns after a submission, on
// quit or when input ends.
func Run(ctx context.Context, in io.Reader, out io.Writer, cfg Config) error {
	if strings.TrimSpace(cfg.QuizID) == "" {
		return errors.New("quiz id is required")
	}
	if cfg.Store == nil {
		return errors.New("attempt store is required")
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &session{
		out:      out,
		lines:    readLines(ctx, in),
		timeouts: make(chan timeoutOutcome, 1),
		now:      now,
	}
	s.countdown = timer.New(timer.WithClock(now), timer.WithInterval(cfg.TickInterval))
	s.ctrl = attempt.NewController(cfg.Store,
		attempt.WithClock(now),
		attempt.WithLogger(cfg.Logger),
		attempt.WithCountdown(s.countdown),
		attempt.WithConfirmer(s.confirm),
		attempt.WithTimeoutHandler(func(res domain.SubmissionResult, err error) {
			s.timeouts <- timeoutOutcome{result: res, err: err}
		}),
	)
	defer s.ctrl.Close()

	snap, err := s.ctrl.Acquire(ctx, cfg.QuizID)
	if err != nil {
		return describeError(err)
	}
	printQuiz(out, snap)
	printHelp(out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case secs := <-s.countdown.Ticks():
			if shouldAnnounce(secs) {
				fmt.Fprintf(out, "[%s remaining]\n", timer.FormatRemaining(secs))
			}
		case outcome := <-s.timeouts:
			if done := s.handleTimeout(outcome); done {
				return nil
			}
		case line, ok := <-s.lines:
			if !ok {
				fmt.Fprintln(out, "\nInput closed; leaving the attempt open until its deadline.")
				return nil
			}
			if done := s.handleCommand(ctx, line); done {
				return nil
			}
		}
	}
}

func (s *session) handleCommand(ctx context.Context, line string) bool {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false
	}
	switch strings.ToLower(args[0]) {
	case "help":
		printHelp(s.out)
	case "quit", "exit":
		fmt.Fprintln(s.out, "Leaving; the attempt stays open on the server until its deadline.")
		return true
	case "status":
		s.printStatus()
	case "submit":
		return s.submit(ctx, attempt.TriggerManual)
	case "retry":
		if !s.failed {
			fmt.Fprintln(s.out, "Nothing to retry.")
			return false
		}
		trigger := attempt.TriggerManual
		if s.ctrl.Expired() {
			trigger = attempt.TriggerTimeout
		}
		return s.submit(ctx, trigger)
	default:
		s.answer(args)
	}
	return false
}

func (s *session) answer(args []string) {
	snap, _ := s.ctrl.Snapshot()
	if len(args) != 2 {
		fmt.Fprintln(s.out, "unknown command. type 'help' for usage.")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(snap.Quiz.Questions) {
		fmt.Fprintf(s.out, "question number must be between 1 and %d\n", len(snap.Quiz.Questions))
		return
	}
	question := snap.Quiz.Questions[n-1]
	idx, ok := parseLetter(args[1], len(question.Options))
	if !ok {
		fmt.Fprintf(s.out, "answer must be a letter A-%c\n", byte('A'+len(question.Options)-1))
		return
	}
	if s.ctrl.State() != attempt.StateActive {
		fmt.Fprintln(s.out, "The attempt is no longer accepting answers.")
		return
	}
	s.ctrl.RecordAnswer(question.ID, idx)
	fmt.Fprintf(s.out, "Q%d -> %c\n", n, byte('A'+idx))
}

func (s *session) submit(ctx context.Context, trigger attempt.Trigger) bool {
	res, err := s.ctrl.Submit(ctx, trigger)
	var incomplete *domain.IncompleteAnswersError
	var failed *domain.SubmissionFailedError
	switch {
	case err == nil:
		s.failed = false
		fmt.Fprintln(s.out, "Submitted.")
		printResult(s.out, res)
		return true
	case errors.As(err, &incomplete):
		fmt.Fprintf(s.out, "%d question(s) unanswered; answer all questions before submitting.\n", incomplete.Unanswered)
	case errors.Is(err, domain.ErrSubmitCancelled):
		fmt.Fprintln(s.out, "Submission cancelled.")
	case errors.Is(err, domain.ErrAlreadySubmitted):
		// The automatic submission won the race; its outcome arrives on the timeout channel.
	case errors.As(err, &failed):
		s.failed = true
		fmt.Fprintf(s.out, "!! Submission failed: %v. Type 'retry' to try again.\n", describeError(failed.Err))
	default:
		fmt.Fprintf(s.out, "error: %v\n", describeError(err))
	}
	return false
}

func (s *session) handleTimeout(outcome timeoutOutcome) bool {
	fmt.Fprintln(s.out, "\nTime is up.")
	if outcome.err != nil {
		s.failed = true
		fmt.Fprintf(s.out, "!! Automatic submission failed: %v. Type 'retry' to try again.\n", describeError(outcome.err))
		return false
	}
	fmt.Fprintln(s.out, "Your answers were submitted automatically.")
	printResult(s.out, outcome.result)
	return true
}

func (s *session) confirm(ctx context.Context) bool {
	for {
		fmt.Fprint(s.out, "Submit now? (y/n): ")
		select {
		case <-ctx.Done():
			return false
		case line, ok := <-s.lines:
			if !ok {
				return false
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return true
			case "n", "no":
				return false
			default:
				fmt.Fprintln(s.out, "Please answer yes or no.")
			}
		}
	}
}

func (s *session) printStatus() {
	snap, ok := s.ctrl.Snapshot()
	if !ok {
		fmt.Fprintln(s.out, "No active attempt.")
		return
	}
	remaining := int(snap.Deadline.Sub(s.now()) / time.Second)
	total := len(snap.Quiz.Questions)
	unanswered := s.ctrl.Unanswered()
	fmt.Fprintf(s.out, "%s remaining, %d/%d answered, state %s\n",
		timer.FormatRemaining(remaining), total-unanswered, total, s.ctrl.State())
}

// shouldAnnounce keeps the countdown readable: every minute, then every second near the end.
func shouldAnnounce(secs int) bool {
	return secs%60 == 0 || secs <= 10
}

func parseLetter(raw string, optionCount int) (int, bool) {
	answer := strings.ToUpper(strings.TrimSpace(raw))
	if len(answer) != 1 || optionCount < 1 {
		return 0, false
	}
	letter := answer[0]
	maxLetter := byte('A' + optionCount - 1)
	if letter < 'A' || letter > maxLetter {
		return 0, false
	}
	return int(letter - 'A'), true
}

func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func describeError(err error) error {
	if errors.Is(err, client.ErrServiceUnavailable) {
		return fmt.Errorf("quiz service unavailable: %w", err)
	}
	if errors.Is(err, domain.ErrAlreadyExpired) {
		return fmt.Errorf("the time for this quiz has already run out: %w", err)
	}
	return err
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  <n> <letter>   answer question n, e.g. '2 b'")
	fmt.Fprintln(out, "  status         time remaining and progress")
	fmt.Fprintln(out, "  submit         submit your answers")
	fmt.Fprintln(out, "  retry          retry a failed submission")
	fmt.Fprintln(out, "  quit")
}

func printQuiz(out io.Writer, snap attempt.Snapshot) {
	fmt.Fprintf(out, "%s\n", snap.Quiz.Title)
	if snap.Quiz.Description != "" {
		fmt.Fprintln(out, snap.Quiz.Description)
	}
	fmt.Fprintf(out, "Time limit: %d minutes, deadline %s\n\n",
		snap.Attempt.TimeLimitMinutes, snap.Deadline.Local().Format("15:04:05"))
	for i, q := range snap.Quiz.Questions {
		fmt.Fprintf(out, "Q%d: %s\n", i+1, q.Text)
		for j, opt := range q.Options {
			fmt.Fprintf(out, "   %c. %s\n", byte('A'+j), opt)
		}
	}
	fmt.Fprintln(out)
}

func printResult(out io.Writer, res domain.SubmissionResult) {
	fmt.Fprintf(out, "Score: %s%% (%d/%d correct)\n",
		strconv.FormatFloat(res.Score, 'f', -1, 64), res.CorrectAnswers, res.TotalQuestions)
	for _, qr := range res.QuestionResults {
		mark := "wrong"
		if qr.IsCorrect {
			mark = "correct"
		}
		fmt.Fprintf(out, "  %s: chose %c, %s\n", qr.QuestionID, byte('A'+qr.ChosenIndex), mark)
	}
}
