package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"timed-quiz/internal/domain"
)

const maxTxRetries = 5

// AttemptStore keeps attempts and results in Redis so several server instances share them.
//
//	attempt:{id}                      attempt JSON
//	attempt:{id}:result               result JSON, written once under WATCH
//	attempt:active:{quiz}:{user}      id of the open attempt
//	attempt:submitted:{quiz}:{user}   id of the latest submitted attempt
type AttemptStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAttemptStore keeps records for ttl; zero keeps them forever.
func NewAttemptStore(client *redis.Client, ttl time.Duration) *AttemptStore {
	return &AttemptStore{client: client, ttl: ttl}
}

func attemptKey(id string) string { return "attempt:" + id }

func resultKey(id string) string { return "attempt:" + id + ":result" }

func activeKey(quizID, userID string) string { return "attempt:active:" + quizID + ":" + userID }

func submittedKey(quizID, userID string) string { return "attempt:submitted:" + quizID + ":" + userID }

func (s *AttemptStore) Create(ctx context.Context, attempt domain.QuizAttempt) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, attemptKey(attempt.ID), payload, s.ttl)
		if attempt.Status == domain.AttemptActive {
			pipe.Set(ctx, activeKey(attempt.QuizID, attempt.UserID), attempt.ID, s.ttl)
		}
		return nil
	})
	return err
}

func (s *AttemptStore) Get(ctx context.Context, attemptID string) (domain.QuizAttempt, error) {
	return loadAttempt(ctx, s.client, attemptID)
}

func (s *AttemptStore) ActiveFor(ctx context.Context, quizID, userID string) (domain.QuizAttempt, bool, error) {
	id, err := s.client.Get(ctx, activeKey(quizID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.QuizAttempt{}, false, nil
	}
	if err != nil {
		return domain.QuizAttempt{}, false, err
	}
	attempt, err := loadAttempt(ctx, s.client, id)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		return domain.QuizAttempt{}, false, nil
	}
	if err != nil {
		return domain.QuizAttempt{}, false, err
	}
	if attempt.Status != domain.AttemptActive {
		return domain.QuizAttempt{}, false, nil
	}
	return attempt, true, nil
}

func (s *AttemptStore) Expire(ctx context.Context, attemptID string, endTime time.Time) error {
	return s.update(ctx, attemptID, func(a *domain.QuizAttempt) bool {
		if a.Status != domain.AttemptActive {
			return false
		}
		end := endTime.UTC()
		a.Status = domain.AttemptExpired
		a.EndTime = &end
		return true
	}, nil)
}

// Complete stores the first result for an attempt. The attempt and result keys are watched
// together, so a racing Complete or Expire forces a retry that sees the winner's state.
func (s *AttemptStore) Complete(ctx context.Context, attemptID string, endTime time.Time, result domain.SubmissionResult) (domain.SubmissionResult, bool, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return domain.SubmissionResult{}, false, err
	}

	var (
		stored  domain.SubmissionResult
		created bool
	)
	txf := func(tx *redis.Tx) error {
		attempt, err := loadAttempt(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		raw, err := tx.Get(ctx, resultKey(attemptID)).Bytes()
		switch {
		case err == nil:
			created = false
			return json.Unmarshal(raw, &stored)
		case !errors.Is(err, redis.Nil):
			return err
		}
		if attempt.Status == domain.AttemptExpired {
			return domain.ErrTimeLimitExceeded
		}

		end := endTime.UTC()
		attempt.Status = domain.AttemptSubmitted
		attempt.EndTime = &end
		attemptPayload, err := json.Marshal(attempt)
		if err != nil {
			return err
		}
		index := activeKey(attempt.QuizID, attempt.UserID)
		openID, err := tx.Get(ctx, index).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, attemptKey(attemptID), attemptPayload, s.ttl)
			pipe.Set(ctx, resultKey(attemptID), payload, s.ttl)
			pipe.Set(ctx, submittedKey(attempt.QuizID, attempt.UserID), attemptID, s.ttl)
			if openID == attemptID {
				pipe.Del(ctx, index)
			}
			return nil
		})
		if err != nil {
			return err
		}
		stored, created = result, true
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, attemptKey(attemptID), resultKey(attemptID))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.SubmissionResult{}, false, err
		}
		return stored, created, nil
	}
	return domain.SubmissionResult{}, false, fmt.Errorf("complete attempt %s: %w", attemptID, redis.TxFailedErr)
}

func (s *AttemptStore) Result(ctx context.Context, attemptID string) (domain.SubmissionResult, error) {
	raw, err := s.client.Get(ctx, resultKey(attemptID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SubmissionResult{}, domain.ErrResultNotFound
	}
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	var result domain.SubmissionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("decode result %s: %w", attemptID, err)
	}
	return result, nil
}

func (s *AttemptStore) LatestResult(ctx context.Context, quizID, userID string) (domain.SubmissionResult, error) {
	id, err := s.client.Get(ctx, submittedKey(quizID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.SubmissionResult{}, domain.ErrResultNotFound
	}
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	return s.Result(ctx, id)
}

func (s *AttemptStore) HasSubmitted(ctx context.Context, quizID, userID string) (bool, error) {
	n, err := s.client.Exists(ctx, submittedKey(quizID, userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// update applies mutate to the stored attempt under WATCH and clears the active index when it
// still points at this attempt. mutate returning false leaves everything untouched.
func (s *AttemptStore) update(ctx context.Context, attemptID string, mutate func(*domain.QuizAttempt) bool, extra func(redis.Pipeliner, domain.QuizAttempt)) error {
	key := attemptKey(attemptID)
	txf := func(tx *redis.Tx) error {
		attempt, err := loadAttempt(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		if !mutate(&attempt) {
			return nil
		}
		payload, err := json.Marshal(attempt)
		if err != nil {
			return err
		}
		index := activeKey(attempt.QuizID, attempt.UserID)
		openID, err := tx.Get(ctx, index).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			if openID == attempt.ID {
				pipe.Del(ctx, index)
			}
			if extra != nil {
				extra(pipe, attempt)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("attempt %s: %w", attemptID, redis.TxFailedErr)
}

func loadAttempt(ctx context.Context, c redis.Cmdable, attemptID string) (domain.QuizAttempt, error) {
	raw, err := c.Get(ctx, attemptKey(attemptID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	var attempt domain.QuizAttempt
	if err := json.Unmarshal(raw, &attempt); err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("decode attempt %s: %w", attemptID, err)
	}
	return attempt, nil
}
