// Package tenant maps sessions to message-log partition keys.
package tenant

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/TheInfexted/livechat-cs-sub000/internal/models"
)

// Unknown is the reserved partition for sessions whose tenant cannot be
// resolved. Messages are never dropped for lack of a tenant; they land here.
const Unknown = "unknown"

// Directory answers tenant identity questions. Both lookups return the
// tenant's canonical handle, or "" on a miss. The credential lookup is the
// in-house face of the API-key subsystem's validate capability.
type Directory interface {
	TenantHandleByKey(ctx context.Context, apiKey string) (string, error)
	TenantHandleByName(ctx context.Context, name string) (string, error)
}

// PartitionProber reports whether a message-log partition already exists.
type PartitionProber interface {
	HasPartition(ctx context.Context, partition string) (bool, error)
}

// Resolution is the outcome of resolving a session's tenant. Partition is the
// sanitized message-log key. Handle is the tenant's canonical handle as
// stored in the directory, used for rule and credential lookups; it is ""
// when resolution landed on a partition with no backing tenant row (an
// external-identity partition, the default tenant, or Unknown).
type Resolution struct {
	Partition string
	Handle    string
}

// Resolver derives a partition key for a session through an ordered cascade
// of strategies, first success wins. It never fails: the worst outcome is
// the reserved Unknown partition.
type Resolver struct {
	dir           Directory
	log           PartitionProber
	defaultTenant string
	logger        zerolog.Logger
}

// NewResolver creates a resolver. defaultTenant may be empty, which disables
// the default-tenant fallback strategy.
func NewResolver(dir Directory, log PartitionProber, defaultTenant string, logger zerolog.Logger) *Resolver {
	return &Resolver{
		dir:           dir,
		log:           log,
		defaultTenant: Sanitize(defaultTenant),
		logger:        logger.With().Str("component", "tenant").Logger(),
	}
}

// Resolve returns the partition key and canonical handle for a session.
// Lookup failures are logged and treated as strategy misses so the cascade
// keeps going.
func (r *Resolver) Resolve(ctx context.Context, session *models.Session) Resolution {
	// Linkage persisted from an earlier resolution short-circuits the
	// cascade.
	if handle := session.TenantHandle; Sanitize(handle) != "" {
		return Resolution{Partition: Sanitize(handle), Handle: handle}
	}

	// 1. Credential lookup via the tenant directory.
	if session.APIKey != "" {
		handle, err := r.dir.TenantHandleByKey(ctx, session.APIKey)
		if err != nil {
			r.logger.Warn().Err(err).Str("token", session.Token).Msg("credential lookup failed")
		} else if handle != "" {
			return Resolution{Partition: Sanitize(handle), Handle: handle}
		}
	}

	if session.ExternalID != "" {
		// 2. External identity matching a known tenant handle.
		handle, err := r.dir.TenantHandleByName(ctx, session.ExternalID)
		if err != nil {
			r.logger.Warn().Err(err).Str("token", session.Token).Msg("handle lookup failed")
		} else if handle != "" {
			return Resolution{Partition: Sanitize(handle), Handle: handle}
		}

		// 3. A partition already populated under the external identity.
		// No tenant row backs it, so there is no canonical handle.
		if external := Sanitize(session.ExternalID); external != "" {
			has, err := r.log.HasPartition(ctx, external)
			if err != nil {
				r.logger.Warn().Err(err).Str("token", session.Token).Msg("partition probe failed")
			} else if has {
				return Resolution{Partition: external}
			}
		}
	}

	// 4. Designated default tenant, but only if its partition is non-empty.
	if r.defaultTenant != "" {
		has, err := r.log.HasPartition(ctx, r.defaultTenant)
		if err != nil {
			r.logger.Warn().Err(err).Msg("default partition probe failed")
		} else if has {
			return Resolution{Partition: r.defaultTenant}
		}
	}

	// 5. Reserved fallback.
	return Resolution{Partition: Unknown}
}

// Sanitize reduces a tenant identity to a safe partition key: lower-case
// with everything outside [a-z0-9_-] collapsed to underscores.
func Sanitize(identity string) string {
	identity = strings.ToLower(strings.TrimSpace(identity))
	if identity == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(identity))
	for _, r := range identity {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
