package core

import (
	"context"

	"sleevemark/internal/logging"
	"sleevemark/internal/transfer"
	"sleevemark/pkg/domain"
)

// ExecuteBatchTransfer copies snapshot attributes onto targets. An empty
// target list is a domain.ValidationError and nothing is written. Per-write
// failures are counted in the result; only configuration and commit
// failures are returned as errors.
func (s *Service) ExecuteBatchTransfer(ctx context.Context, targets []domain.ElementID, cfg domain.ParameterTransferConfiguration) (domain.TransferResult, error) {
	var result domain.TransferResult
	err := s.run(ctx, OpBatchTransfer, func(ctx context.Context, log logging.Logger) (map[string]any, error) {
		if cfg.Workers == 0 {
			cfg.Workers = s.workers
		}
		var err error
		result, err = transfer.NewPipeline(s.store, s.store, log).Execute(ctx, targets, cfg)
		return map[string]any{
			"config":      cfg.Name,
			"workers":     cfg.Workers,
			"targets":     len(targets),
			"transferred": result.Transferred,
			"failed":      result.Failed,
			"success":     result.Success,
		}, err
	})
	return result, err
}

// MappedSleeves lists every sleeve whose category an enabled mapping of cfg
// applies to, for callers that want to transfer onto the whole document.
func (s *Service) MappedSleeves(ctx context.Context, cfg domain.ParameterTransferConfiguration) ([]domain.ElementID, error) {
	var ids []domain.ElementID
	err := s.store.View(ctx, func(v domain.DocumentView) error {
		enabled := cfg.EnabledMappings()
		for _, sleeve := range v.ListSleeves() {
			for _, im := range enabled {
				if im.Mapping.AppliesTo(sleeve.Category) {
					ids = append(ids, sleeve.ID)
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
