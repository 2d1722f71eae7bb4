// Package identity maps local model artifacts to the upstream repository
// identity needed to fetch a matching tokenizer and base weights. Resolution
// results are cached in a sidecar file next to the artifact; a resolution
// miss is not an error.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tunerd/internal/common/fsutil"
	"tunerd/pkg/types"
)

// SidecarSuffix is appended to the model path to form the sidecar file name.
const SidecarSuffix = ".metadata.json"

// sidecar is the on-disk schema of the identity sidecar file. External
// LoRA-aware tooling reads and writes these, so the key casing is fixed.
type sidecar struct {
	ModelPath          string `json:"modelPath"`
	HuggingFaceModelID string `json:"huggingFaceModelId"`
	Quantization       string `json:"quantization"`
	AddedDate          string `json:"addedDate"`
	Notes              string `json:"notes,omitempty"`
}

func sidecarFromRecord(rec *types.ModelIdentity) sidecar {
	return sidecar{
		ModelPath:          rec.ModelPath,
		HuggingFaceModelID: rec.HuggingFaceModelID,
		Quantization:       rec.Quantization,
		AddedDate:          rec.AddedDate,
		Notes:              rec.Notes,
	}
}

func (s sidecar) record() *types.ModelIdentity {
	return &types.ModelIdentity{
		ModelPath:          s.ModelPath,
		HuggingFaceModelID: s.HuggingFaceModelID,
		Quantization:       s.Quantization,
		AddedDate:          s.AddedDate,
		Notes:              s.Notes,
	}
}

// noUpstreamIdentityError signals that an operation strictly required an
// upstream identity and none could be resolved.
type noUpstreamIdentityError struct{ path string }

func (e noUpstreamIdentityError) Error() string {
	return "no upstream identity for model: " + e.path
}

// ErrNoUpstreamIdentity constructs a noUpstreamIdentityError.
func ErrNoUpstreamIdentity(path string) error { return noUpstreamIdentityError{path: path} }

// IsNoUpstreamIdentity reports whether err indicates unresolved model identity.
func IsNoUpstreamIdentity(err error) bool {
	_, ok := err.(noUpstreamIdentityError)
	return ok
}

// Hub is the remote lookup used as the last resolution step.
type Hub interface {
	ModelInfo(ctx context.Context, repoID string) (*CardInfo, error)
}

// Registry resolves and records model identities. It is an injected service
// owned by the composition root; there is no package-level state.
type Registry struct {
	hub Hub
	log zerolog.Logger

	mu    sync.Mutex
	cache map[string]*types.ModelIdentity
}

// NewRegistry builds a Registry. hub may be nil to disable remote lookup.
func NewRegistry(hub Hub, log zerolog.Logger) *Registry {
	return &Registry{hub: hub, log: log, cache: make(map[string]*types.ModelIdentity)}
}

// Resolve finds the upstream identity for a local model artifact.
// Order: in-memory cache, sidecar file, path heuristic, hub lookup.
// A nil, nil return means the identity is unknown; callers that strictly
// need one surface ErrNoUpstreamIdentity themselves.
func (r *Registry) Resolve(ctx context.Context, modelPath string) (*types.ModelIdentity, error) {
	r.mu.Lock()
	if rec, ok := r.cache[modelPath]; ok {
		r.mu.Unlock()
		return rec, nil
	}
	r.mu.Unlock()

	if rec, err := r.readSidecar(modelPath); err != nil {
		return nil, err
	} else if rec != nil {
		r.remember(rec)
		return rec, nil
	}

	repoID, ok := repoIDFromPath(modelPath)
	if !ok {
		r.log.Debug().Str("model", modelPath).Msg("no plausible repo id in path")
		return nil, nil
	}

	upstream := r.lookupUpstream(ctx, repoID)
	if upstream == "" {
		r.log.Debug().Str("model", modelPath).Str("repo", repoID).Msg("identity unresolved")
		return nil, nil
	}

	rec := &types.ModelIdentity{
		ModelPath:          modelPath,
		HuggingFaceModelID: upstream,
		Quantization:       QuantLabel(modelPath),
		AddedDate:          time.Now().UTC().Format(time.RFC3339),
		Notes:              "resolved from path " + repoID,
	}
	if err := r.Register(rec); err != nil {
		// resolution succeeded; a sidecar write failure only costs a re-resolve
		r.log.Warn().Err(err).Str("model", modelPath).Msg("sidecar write failed")
	}
	return rec, nil
}

// lookupUpstream turns a repository id into the base-model id, via the hub
// card when available, else via naming conventions.
func (r *Registry) lookupUpstream(ctx context.Context, repoID string) string {
	if r.hub != nil {
		info, err := r.hub.ModelInfo(ctx, repoID)
		switch {
		case err == nil:
			if base := info.BaseModel(); base != "" {
				return base
			}
			// the repo exists and is either itself the base model or
			// name-mapped to one
			if inferred := inferBaseRepo(repoID); inferred != "" {
				return inferred
			}
			return repoID
		case errors.Is(err, ErrHubModelNotFound):
			// fall through to naming conventions
		default:
			r.log.Warn().Err(err).Str("repo", repoID).Msg("hub lookup failed")
		}
	}
	return inferBaseRepo(repoID)
}

// Register writes the record's sidecar file and caches it.
func (r *Registry) Register(rec *types.ModelIdentity) error {
	if rec.ModelPath == "" {
		return fmt.Errorf("identity record without model path")
	}
	if rec.Quantization == "" {
		rec.Quantization = QuantLabel(rec.ModelPath)
	}
	if rec.AddedDate == "" {
		rec.AddedDate = time.Now().UTC().Format(time.RFC3339)
	}
	b, err := json.MarshalIndent(sidecarFromRecord(rec), "", "  ")
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(rec.ModelPath+SidecarSuffix, b, 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	r.remember(rec)
	r.log.Info().Str("model", rec.ModelPath).Str("upstream", rec.HuggingFaceModelID).
		Str("quant", rec.Quantization).Msg("model identity registered")
	return nil
}

func (r *Registry) remember(rec *types.ModelIdentity) {
	r.mu.Lock()
	r.cache[rec.ModelPath] = rec
	r.mu.Unlock()
}

// readSidecar loads an existing sidecar file; a missing file is not an error,
// a corrupt one is skipped with a warning so resolution can continue.
func (r *Registry) readSidecar(modelPath string) (*types.ModelIdentity, error) {
	path := modelPath + SidecarSuffix
	if !fsutil.PathExists(path) {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sidecar: %w", err)
	}
	var sc sidecar
	if err := json.Unmarshal(b, &sc); err != nil {
		r.log.Warn().Err(err).Str("sidecar", path).Msg("ignoring corrupt sidecar")
		return nil, nil
	}
	rec := sc.record()
	if rec.ModelPath == "" {
		rec.ModelPath = modelPath
	}
	return rec, nil
}
