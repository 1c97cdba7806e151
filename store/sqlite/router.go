/*
router.go - Store routing for multi-incident isolation

PURPOSE:
  Maps an incident identifier to its own SQLite file and hands out cached
  store handles. Tenant isolation is physical: {dir}/master.db holds shared
  reference data, {dir}/{incident_id}.db holds that incident's transactional
  records, and no query can cross files.

PROVISIONING:
  The first request for an unknown incident creates its database and schema.
  Subsequent requests reuse the cached handle. A failed open surfaces as
  ErrStoreUnavailable; the operation that needed the store fails, nothing is
  silently redirected.

SEE ALSO:
  - incident.go / master.go: The stores being routed to
*/
package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/warp/incident-finance/finance"
	"go.uber.org/zap"
)

// Router opens and caches one store per incident plus the shared master store.
type Router struct {
	dir    string
	logger *zap.Logger

	mu        sync.Mutex
	master    *MasterStore
	incidents map[string]*IncidentStore
}

// NewRouter creates a router rooted at dir, creating dir if needed.
func NewRouter(dir string, logger *zap.Logger) (*Router, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return &Router{
		dir:       dir,
		logger:    logger,
		incidents: make(map[string]*IncidentStore),
	}, nil
}

// Master returns the shared master store, opening it on first use.
func (r *Router) Master() (finance.MasterStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.master != nil {
		return r.master, nil
	}
	path := filepath.Join(r.dir, "master.db")
	store, err := OpenMaster(path)
	if err != nil {
		return nil, fmt.Errorf("master store at %s: %w (%v)", path, finance.ErrStoreUnavailable, err)
	}
	r.logger.Info("opened master store", zap.String("path", path))
	r.master = store
	return store, nil
}

// Incident returns the store for one incident, provisioning its database on
// first use.
func (r *Router) Incident(incidentID string) (finance.TxIncidentStore, error) {
	if err := validateIncidentID(incidentID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if store, ok := r.incidents[incidentID]; ok {
		return store, nil
	}
	path := filepath.Join(r.dir, incidentID+".db")
	store, err := OpenIncident(path)
	if err != nil {
		return nil, fmt.Errorf("incident store for %s: %w (%v)", incidentID, finance.ErrStoreUnavailable, err)
	}
	r.logger.Info("opened incident store",
		zap.String("incident_id", incidentID),
		zap.String("path", path))
	r.incidents[incidentID] = store
	return store, nil
}

// Close closes every open store. The router is unusable afterwards.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	if r.master != nil {
		if err := r.master.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.master = nil
	}
	for id, store := range r.incidents {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.incidents, id)
	}
	return firstErr
}

// validateIncidentID rejects identifiers that would escape the data directory
// or collide with the master file.
func validateIncidentID(id string) error {
	switch {
	case id == "":
		return &finance.ValidationError{Field: "incident_id", Message: "required"}
	case id == "master":
		return &finance.ValidationError{Field: "incident_id", Message: "reserved identifier"}
	case strings.ContainsAny(id, "/\\") || strings.Contains(id, ".."):
		return &finance.ValidationError{Field: "incident_id", Message: "must not contain path separators"}
	}
	return nil
}
