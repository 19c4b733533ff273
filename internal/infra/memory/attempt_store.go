package memory

import (
	"context"
	"sync"
	"time"

	"timed-quiz/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
type AttemptStore struct {
	mu        sync.RWMutex
	attempts  map[string]domain.QuizAttempt
	active    map[string]string // quiz/user -> attempt id
	results   map[string]domain.SubmissionResult
	submitted map[string]string // quiz/user -> latest submitted attempt id
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts:  make(map[string]domain.QuizAttempt),
		active:    make(map[string]string),
		results:   make(map[string]domain.SubmissionResult),
		submitted: make(map[string]string),
	}
}

func userKey(quizID, userID string) string {
	return quizID + "/" + userID
}

func (s *AttemptStore) Create(_ context.Context, attempt domain.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attempt.ID] = attempt
	if attempt.Status == domain.AttemptActive {
		s.active[userKey(attempt.QuizID, attempt.UserID)] = attempt.ID
	}
	return nil
}

func (s *AttemptStore) Get(_ context.Context, attemptID string) (domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptStore) ActiveFor(_ context.Context, quizID, userID string) (domain.QuizAttempt, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[userKey(quizID, userID)]
	if !ok {
		return domain.QuizAttempt{}, false, nil
	}
	attempt, ok := s.attempts[id]
	if !ok || attempt.Status != domain.AttemptActive {
		return domain.QuizAttempt{}, false, nil
	}
	return attempt, true, nil
}

func (s *AttemptStore) Expire(_ context.Context, attemptID string, endTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if attempt.Status != domain.AttemptActive {
		return nil
	}
	end := endTime.UTC()
	attempt.Status = domain.AttemptExpired
	attempt.EndTime = &end
	s.attempts[attemptID] = attempt
	s.clearActiveLocked(attempt)
	return nil
}

func (s *AttemptStore) Complete(_ context.Context, attemptID string, endTime time.Time, result domain.SubmissionResult) (domain.SubmissionResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.SubmissionResult{}, false, domain.ErrAttemptNotFound
	}
	if existing, ok := s.results[attemptID]; ok {
		return existing, false, nil
	}
	if attempt.Status == domain.AttemptExpired {
		return domain.SubmissionResult{}, false, domain.ErrTimeLimitExceeded
	}

	end := endTime.UTC()
	attempt.Status = domain.AttemptSubmitted
	attempt.EndTime = &end
	s.attempts[attemptID] = attempt
	s.results[attemptID] = result
	s.submitted[userKey(attempt.QuizID, attempt.UserID)] = attemptID
	s.clearActiveLocked(attempt)
	return result, true, nil
}

func (s *AttemptStore) Result(_ context.Context, attemptID string) (domain.SubmissionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[attemptID]
	if !ok {
		return domain.SubmissionResult{}, domain.ErrResultNotFound
	}
	return result, nil
}

func (s *AttemptStore) LatestResult(_ context.Context, quizID, userID string) (domain.SubmissionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.submitted[userKey(quizID, userID)]
	if !ok {
		return domain.SubmissionResult{}, domain.ErrResultNotFound
	}
	return s.results[id], nil
}

func (s *AttemptStore) HasSubmitted(_ context.Context, quizID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.submitted[userKey(quizID, userID)]
	return ok, nil
}

func (s *AttemptStore) clearActiveLocked(attempt domain.QuizAttempt) {
	key := userKey(attempt.QuizID, attempt.UserID)
	if s.active[key] == attempt.ID {
		delete(s.active, key)
	}
}
