package core

import (
	"context"

	"sleevemark/internal/logging"
	"sleevemark/internal/marking"
	"sleevemark/pkg/domain"
)

// ResetMarks clears the marks inside scope and the counters it owns in one
// transaction. Unbounded scopes are rejected before anything is written.
func (s *Service) ResetMarks(ctx context.Context, scope marking.ResetScope) (marking.ResetResult, error) {
	var result marking.ResetResult
	err := s.run(ctx, OpResetMarks, func(ctx context.Context, log logging.Logger) (map[string]any, error) {
		if err := scope.Validate(); err != nil {
			return nil, err
		}
		_, err := s.store.RunInTransaction(ctx, "reset marks", func(tx domain.DocumentTx) error {
			var err error
			result, err = marking.ResetMarks(tx, scope, log)
			return err
		})
		return map[string]any{
			"cleared":        result.Cleared,
			"counters_reset": result.CountersReset,
			"errors":         result.Errors,
		}, err
	})
	return result, err
}
