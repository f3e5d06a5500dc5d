package directory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory directory used by the api-server demo
// mode and by tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	doctors  map[uuid.UUID]*DoctorProfile
	patients map[uuid.UUID]*Patient
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		doctors:  make(map[uuid.UUID]*DoctorProfile),
		patients: make(map[uuid.UUID]*Patient),
	}
}

func (r *MemoryRepository) AddDoctor(p DoctorProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := p
	doc.Segments = append([]WeeklySegment(nil), p.Segments...)
	r.doctors[p.ID] = &doc
}

func (r *MemoryRepository) AddPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	patient := p
	r.patients[p.ID] = &patient
}

func (r *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*DoctorProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	c := *doc
	c.Segments = append([]WeeklySegment(nil), doc.Segments...)
	return &c, nil
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	c := *p
	return &c, nil
}

func (r *MemoryRepository) ListDoctors(_ context.Context, limit, offset int) ([]DoctorProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []DoctorProfile
	for _, doc := range r.doctors {
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	if offset > len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
