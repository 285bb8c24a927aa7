package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"lineage/internal/config"
	"lineage/internal/parents"
	"lineage/internal/search"
)

type nodeStore interface {
	GetNodes(context.Context, []string) ([]parents.Node, error)
	Ping(context.Context) error
}

type propagator interface {
	Propagate(context.Context, parents.Request) (parents.Result, error)
	PurgeCache(context.Context, string) error
}

type chainLookup interface {
	Lookup(context.Context, string) (search.ParentsRecord, bool, error)
}

type Service struct {
	cfg        config.Config
	store      nodeStore
	propagator propagator
	chains     chainLookup
}

// New wires the service. chains may be nil when chains are not recorded.
func New(cfg config.Config, store nodeStore, propagator propagator, chains chainLookup) *Service {
	return &Service{
		cfg:        cfg,
		store:      store,
		propagator: propagator,
		chains:     chains,
	}
}

// PropagateInput names the changed nodes of a sync. NodeIDs are raw node ids
// and DocumentIDs carry the configured document prefix; both are loaded from
// the synced-node store. Seeds are taken as given.
type PropagateInput struct {
	NodeIDs     []string       `json:"nodeIds"`
	DocumentIDs []string       `json:"documentIds"`
	Seeds       []parents.Node `json:"seeds"`
	CacheKey    string         `json:"cacheKey"`
}

type PropagateOutput struct {
	Written int               `json:"written"`
	Errors  []NodeErrorOutput `json:"errors"`
}

type NodeErrorOutput struct {
	NodeID         string `json:"nodeId"`
	Error          string `json:"error"`
	SubtreeSkipped bool   `json:"subtreeSkipped,omitempty"`
}

func (s *Service) Propagate(ctx context.Context, input PropagateInput) (PropagateOutput, error) {
	ids, err := s.normalizeIDs(input.NodeIDs, input.DocumentIDs)
	if err != nil {
		return PropagateOutput{}, err
	}
	if len(ids) == 0 && len(input.Seeds) == 0 {
		return PropagateOutput{}, domainError(http.StatusBadRequest, "EMPTY_SEEDS", "nodeIds, documentIds or seeds required", nil)
	}

	seeds, err := s.loadSeeds(ctx, ids)
	if err != nil {
		return PropagateOutput{}, err
	}
	seeds = append(seeds, input.Seeds...)

	if s.cfg.PropagateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PropagateTimeout)
		defer cancel()
	}

	result, err := s.propagator.Propagate(ctx, parents.Request{
		Seeds:    seeds,
		CacheKey: strings.TrimSpace(input.CacheKey),
	})
	if errors.Is(err, parents.ErrInvalidSeed) {
		return PropagateOutput{}, domainError(http.StatusBadRequest, "INVALID_SEED", err.Error(), nil)
	}
	output := toOutput(result)
	if err != nil {
		return output, domainError(http.StatusServiceUnavailable, "PROPAGATION_INTERRUPTED", err.Error(), output)
	}
	return output, nil
}

func (s *Service) normalizeIDs(nodeIDs, documentIDs []string) ([]string, error) {
	seen := make(map[string]struct{}, len(nodeIDs)+len(documentIDs))
	ids := make([]string, 0, len(nodeIDs)+len(documentIDs))
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for _, id := range nodeIDs {
		if id = strings.TrimSpace(id); id != "" {
			add(id)
		}
	}
	var invalid []string
	for _, documentID := range documentIDs {
		documentID = strings.TrimSpace(documentID)
		if documentID == "" {
			continue
		}
		nodeID, ok := search.NodeIDFromDocument(s.cfg.DocumentPrefix, documentID)
		if !ok {
			invalid = append(invalid, documentID)
			continue
		}
		add(nodeID)
	}
	if len(invalid) > 0 {
		return nil, domainError(http.StatusBadRequest, "INVALID_DOCUMENT_ID", "document ids must carry the document prefix", map[string]any{"documentIds": invalid})
	}
	return ids, nil
}

func (s *Service) loadSeeds(ctx context.Context, ids []string) ([]parents.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	nodes, err := s.store.GetNodes(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(nodes) == len(ids) {
		return nodes, nil
	}

	found := make(map[string]struct{}, len(nodes))
	for _, node := range nodes {
		found[node.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return nil, domainError(http.StatusBadRequest, "UNKNOWN_NODE", "some nodes are not synced", map[string]any{"nodeIds": missing})
}

// PurgeCache drops a shared memoization scope.
func (s *Service) PurgeCache(ctx context.Context, cacheKey string) error {
	cacheKey = strings.TrimSpace(cacheKey)
	if cacheKey == "" {
		return domainError(http.StatusBadRequest, "EMPTY_CACHE_KEY", "cache key required", nil)
	}
	return s.propagator.PurgeCache(ctx, cacheKey)
}

// DocumentParents returns the last written chain of a document.
func (s *Service) DocumentParents(ctx context.Context, documentID string) (search.ParentsRecord, error) {
	if s.chains == nil {
		return search.ParentsRecord{}, domainError(http.StatusNotImplemented, "CHAINS_NOT_RECORDED", "chains are not recorded", nil)
	}
	record, ok, err := s.chains.Lookup(ctx, documentID)
	if err != nil {
		return search.ParentsRecord{}, err
	}
	if !ok {
		return search.ParentsRecord{}, domainError(http.StatusNotFound, "DOCUMENT_NOT_FOUND", "document not found", nil)
	}
	return record, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func toOutput(result parents.Result) PropagateOutput {
	output := PropagateOutput{
		Written: result.Written,
		Errors:  make([]NodeErrorOutput, 0, len(result.Errors)),
	}
	for _, nodeErr := range result.Errors {
		output.Errors = append(output.Errors, NodeErrorOutput{
			NodeID:         nodeErr.NodeID,
			Error:          nodeErr.Err.Error(),
			SubtreeSkipped: nodeErr.SubtreeSkipped(),
		})
	}
	return output
}
