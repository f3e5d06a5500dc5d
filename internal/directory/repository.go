package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound  = errors.New("doctor not found")
	ErrPatientNotFound = errors.New("patient not found")
)

// Repository is the read-only user directory lookup the scheduling core
// depends on.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*DoctorProfile, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	ListDoctors(ctx context.Context, limit, offset int) ([]DoctorProfile, error)
}
