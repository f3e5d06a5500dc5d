package appointment

import (
	"context"
)

// failingAuditRepo wraps a Repository so InsertAudit always fails, to
// verify that audit gaps never fail the mutation they document.
type failingAuditRepo struct {
	Repository
	err error
}

func (r *failingAuditRepo) InsertAudit(_ context.Context, _ AuditRecord) error {
	return r.err
}

func (r *MemoryRepository) auditCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.audits)
}

func (r *MemoryRepository) appointmentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.appointments)
}
