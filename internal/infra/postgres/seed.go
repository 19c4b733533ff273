package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/uptrace/bun"

	"timed-quiz/internal/domain"
)

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes"`

	ID   string      `bun:"id,pk"`
	Data domain.Quiz `bun:"data,type:jsonb"`
}

// SeedQuizzes upserts quizzes into the quizzes table.
func SeedQuizzes(ctx context.Context, db bun.IDB, quizzes map[string]domain.Quiz) error {
	if len(quizzes) == 0 {
		return nil
	}
	ids := make([]string, 0, len(quizzes))
	for id := range quizzes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]quizRow, 0, len(ids))
	for _, id := range ids {
		quiz := quizzes[id]
		quiz.ID = id
		rows = append(rows, quizRow{ID: id, Data: quiz})
	}

	_, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("seed quizzes: %w", err)
	}
	return nil
}
