package transfer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"sleevemark/internal/logging"
	"sleevemark/pkg/domain"
)

// Transaction name used for the write phase.
const txName = "parameter transfer"

// Pipeline runs batch transfers against one document and snapshot store.
type Pipeline struct {
	doc       domain.Document
	snapshots domain.SnapshotStore
	logger    logging.Logger
}

// NewPipeline constructs a Pipeline.
func NewPipeline(doc domain.Document, snapshots domain.SnapshotStore, logger logging.Logger) *Pipeline {
	return &Pipeline{doc: doc, snapshots: snapshots, logger: logging.OrNoop(logger)}
}

// Execute copies the attributes cfg selects onto every target. Configuration
// problems and transaction failures are returned as errors together with a
// failed result; a snapshot index that cannot be loaded yields a failed
// result and a nil error.
func (p *Pipeline) Execute(ctx context.Context, targets []domain.ElementID, cfg domain.ParameterTransferConfiguration) (domain.TransferResult, error) {
	if err := cfg.Validate(); err != nil {
		return domain.TransferResult{Message: err.Error()}, err
	}
	if len(targets) == 0 {
		err := domain.ValidationError{Field: "targets", Message: "no target elements given"}
		return domain.TransferResult{Message: err.Error()}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.TransferResult{Message: err.Error()}, err
	}

	index, res, ok := p.load(ctx)
	if !ok {
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		return domain.TransferResult{Message: err.Error()}, err
	}
	var identities []domain.SleeveIdentity
	err := p.doc.View(ctx, func(view domain.DocumentView) error {
		var warnings []string
		identities, warnings = ReadIdentities(view, targets)
		res.Warnings = append(res.Warnings, warnings...)
		return nil
	})
	if err != nil {
		return domain.TransferResult{Message: err.Error()}, err
	}

	actions, missing, err := p.calculate(ctx, index, identities, cfg)
	if err != nil {
		return domain.TransferResult{Message: err.Error()}, err
	}
	if missing > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d target(s) had no snapshot", missing))
	}

	if err := ctx.Err(); err != nil {
		return domain.TransferResult{Message: err.Error()}, err
	}
	return p.write(ctx, actions, res)
}

// load builds the snapshot index. ok is false when the batch must stop; res
// then carries the outcome.
func (p *Pipeline) load(ctx context.Context) (*Index, domain.TransferResult, bool) {
	count, countErr := p.snapshots.SnapshotCount(ctx)
	if countErr == nil && count == 0 {
		msg := "no snapshots have been captured; nothing to transfer"
		p.logger.Info(msg)
		return nil, domain.TransferResult{Success: true, Message: msg, Warnings: []string{msg}}, false
	}
	data, err := p.snapshots.LoadSnapshotIndex(ctx)
	if err == nil && countErr != nil {
		err = countErr
	}
	if errors.Is(err, domain.ErrNoSnapshots) {
		msg := "no snapshots have been captured; nothing to transfer"
		return nil, domain.TransferResult{Success: true, Message: msg, Warnings: []string{msg}}, false
	}
	if err != nil {
		p.logger.Error("snapshot index load failed", "records", count, "error", err)
		return nil, domain.TransferResult{Message: fmt.Sprintf("snapshot index failed to load, refresh snapshots: %v", err)}, false
	}
	index := NewIndex(data)
	p.logger.Debug("snapshot index loaded", "records", index.Len())
	return index, domain.TransferResult{Success: true}, true
}

type accumulator struct {
	mu      sync.Mutex
	actions []domain.UpdateAction
	missing int
}

func (a *accumulator) add(actions []domain.UpdateAction, found bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, actions...)
	if !found {
		a.missing++
	}
}

// calculate resolves every update action in parallel. The document is not
// touched here.
func (p *Pipeline) calculate(ctx context.Context, index *Index, identities []domain.SleeveIdentity, cfg domain.ParameterTransferConfiguration) ([]domain.UpdateAction, int, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	resolver := NewValueResolver(cfg)
	mappings := cfg.EnabledMappings()
	acc := &accumulator{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range identities {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			actions, found := actionsFor(index, resolver, mappings, id)
			acc.add(actions, found)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	sort.Slice(acc.actions, func(i, j int) bool {
		a, b := acc.actions[i], acc.actions[j]
		if a.TargetID != b.TargetID {
			return a.TargetID < b.TargetID
		}
		return a.MappingIndex < b.MappingIndex
	})
	return acc.actions, acc.missing, nil
}

func actionsFor(index *Index, resolver ValueResolver, mappings []domain.IndexedMapping, id domain.SleeveIdentity) ([]domain.UpdateAction, bool) {
	src, found := index.Resolve(id)
	var out []domain.UpdateAction
	for _, im := range mappings {
		if !im.Mapping.AppliesTo(id.Category) {
			continue
		}
		if !found && im.Mapping.Kind != domain.TransferLevelToOpening {
			continue
		}
		v, ok := resolver.ResolveValue(src, im.Mapping, id)
		if !ok {
			continue
		}
		out = append(out, domain.UpdateAction{
			TargetID:     id.TargetID,
			Attribute:    strings.TrimSpace(im.Mapping.Target),
			Value:        domain.StringValue(v),
			MappingIndex: im.Index,
		})
	}
	return out, found
}

// write applies actions inside a single transaction.
func (p *Pipeline) write(ctx context.Context, actions []domain.UpdateAction, res domain.TransferResult) (domain.TransferResult, error) {
	res.Attempted = len(actions)
	if len(actions) == 0 {
		res.Message = "no attribute values resolved"
		return res, nil
	}
	targets := make(map[domain.ElementID]bool)
	status, err := p.doc.RunInTransaction(ctx, txName, func(tx domain.DocumentTx) error {
		for _, a := range actions {
			v := a.Value
			if current, ok := tx.ReadAttribute(a.TargetID, a.Attribute); ok {
				coerced, cerr := coerce(current.Kind, v)
				if cerr != nil {
					res.Failed++
					p.logger.Warn("attribute value rejected", "element", a.TargetID, "attribute", a.Attribute, "error", cerr)
					continue
				}
				v = coerced
			}
			if werr := tx.WriteAttribute(a.TargetID, a.Attribute, v); werr != nil {
				res.Failed++
				p.logger.Warn("attribute write failed", "element", a.TargetID, "attribute", a.Attribute, "error", werr)
				continue
			}
			res.Written++
			targets[a.TargetID] = true
		}
		return nil
	})
	if err != nil {
		p.logger.Error("transfer commit failed", "status", status, "error", err)
		return domain.TransferResult{
			Message:   fmt.Sprintf("transaction %s: %v", status, err),
			Attempted: res.Attempted,
			Warnings:  res.Warnings,
		}, err
	}
	res.Transferred = len(targets)
	res.Message = fmt.Sprintf("transferred to %d element(s), %d write(s) failed", res.Transferred, res.Failed)
	p.logger.Info("transfer committed", "transferred", res.Transferred, "written", res.Written, "failed", res.Failed)
	return res, nil
}

// coerce converts a resolved string to the storage type of an existing
// attribute.
func coerce(kind domain.ValueKind, v domain.Value) (domain.Value, error) {
	switch kind {
	case domain.ValueNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return domain.Value{}, fmt.Errorf("%q is not a number", v.Str)
		}
		return domain.NumberValue(n), nil
	case domain.ValueID:
		n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		if err != nil {
			return domain.Value{}, fmt.Errorf("%q is not an element id", v.Str)
		}
		return domain.IDValue(domain.ElementID(n)), nil
	default:
		return v, nil
	}
}
