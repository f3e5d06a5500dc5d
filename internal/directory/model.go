package directory

import (
	"time"

	"github.com/google/uuid"
)

// WeeklySegment is a recurring availability window in a doctor's week.
// Times are wall-clock "HH:MM" strings in server-local time.
type WeeklySegment struct {
	DayOfWeek    int    // 0 (Sunday) .. 6 (Saturday)
	StartTime    string // e.g. "09:00"
	EndTime      string // e.g. "12:00"
	SlotDuration int    // minutes
}

// DoctorProfile is the projection of a doctor's directory entry that the
// scheduling core reads. The profile itself is owned and mutated elsewhere.
type DoctorProfile struct {
	ID        uuid.UUID
	FullName  string
	Specialty string
	// Segments are kept in declaration order; slot generation preserves it.
	Segments  []WeeklySegment
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SegmentsForDay returns the profile's segments for the given weekday in
// declaration order.
func (p *DoctorProfile) SegmentsForDay(dayOfWeek int) []WeeklySegment {
	var out []WeeklySegment
	for _, seg := range p.Segments {
		if seg.DayOfWeek == dayOfWeek {
			out = append(out, seg)
		}
	}
	return out
}

// Patient is the minimal directory view of a patient. Booking only needs the
// identity to exist; everything else about patients lives outside the core.
type Patient struct {
	ID        uuid.UUID
	FullName  string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
