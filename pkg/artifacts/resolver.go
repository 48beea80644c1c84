package artifacts

import (
	"context"
	"fmt"
	"log/slog"
)

// Fetcher pulls an artifact's bytes from the platform. The platform client
// implements it with a signed request.
type Fetcher interface {
	FetchArtifact(ctx context.Context, batchID, artifactID string) ([]byte, error)
}

// Resolver serves candidate code to the evaluation pipeline: local cache
// first, platform fetch on miss. Every fetched blob is re-hashed against the
// expected content hash before it is cached or returned; a mismatch is a
// hard failure for that candidate.
type Resolver struct {
	cache   Store
	fetcher Fetcher
	logger  *slog.Logger
}

// NewResolver wires a cache and a fetcher.
func NewResolver(cache Store, fetcher Fetcher, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cache: cache, fetcher: fetcher, logger: logger}
}

// Resolve returns the script bytes for the artifact, verifying contentHash.
func (r *Resolver) Resolve(ctx context.Context, batchID, artifactID, contentHash string) ([]byte, error) {
	if _, err := parseHash(contentHash); err != nil {
		return nil, err
	}

	if data, err := r.cache.Get(ctx, contentHash); err == nil {
		return data, nil
	}

	data, err := r.fetcher.FetchArtifact(ctx, batchID, artifactID)
	if err != nil {
		return nil, fmt.Errorf("artifacts: fetch %s: %w", artifactID, err)
	}
	if got := HashBytes(data); got != contentHash {
		r.logger.WarnContext(ctx, "artifact hash mismatch",
			"artifact_id", artifactID, "expected", contentHash, "got", got)
		return nil, fmt.Errorf("%w: artifact %s", ErrHashMismatch, artifactID)
	}
	if _, err := r.cache.Put(ctx, data); err != nil {
		// Cache failure is not fatal; the bytes are already verified.
		r.logger.WarnContext(ctx, "artifact cache write failed",
			"artifact_id", artifactID, "error", err)
	}
	return data, nil
}
