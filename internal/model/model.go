package model

import "time"

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
)

// CommittedStatuses are the appointment statuses that occupy a provider's time.
// Slot generation and commit-time conflict checks use the same set.
var CommittedStatuses = []AppointmentStatus{StatusScheduled, StatusConfirmed, StatusInProgress}

func (s AppointmentStatus) Committed() bool {
	for _, c := range CommittedStatuses {
		if s == c {
			return true
		}
	}
	return false
}

func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type AssignmentRole string

const (
	RolePrimary   AssignmentRole = "primary"
	RoleSecondary AssignmentRole = "secondary"
	RoleBackup    AssignmentRole = "backup"
)

func ValidRole(r AssignmentRole) bool {
	return r == RolePrimary || r == RoleSecondary || r == RoleBackup
}

type AssignmentStatus string

const (
	AssignmentAssigned  AssignmentStatus = "assigned"
	AssignmentConfirmed AssignmentStatus = "confirmed"
	AssignmentDeclined  AssignmentStatus = "declined"
	AssignmentCompleted AssignmentStatus = "completed"
)

type ProviderKind string

const (
	ProviderInternal   ProviderKind = "internal"
	ProviderExternal   ProviderKind = "external"
	ProviderContractor ProviderKind = "contractor"
)

// ServiceType is the catalog entry a booking is made against. Rows are
// projected from the catalog collaborator and treated as immutable once an
// appointment references them; new versions arrive under a new id.
type ServiceType struct {
	ID              string
	TenantID        string
	Name            string
	DurationMinutes int
	BufferMinutes   int
	RequiresOrder   bool
	SkillTags       []string
	Active          bool
}

// Provider is a bookable resource (technician, installer, consultant).
// Owned by the provider-management collaborator; this service only reads it.
type Provider struct {
	ID                  string
	TenantID            string
	Name                string
	Kind                ProviderKind
	SkillTags           []string
	AreaTags            []string
	MaxConcurrent       int
	TravelBufferMinutes int
	Timezone            string
	Active              bool
}

// AvailabilityWindow is one recurring weekly open interval for a provider,
// expressed as wall-clock minutes from provider-local midnight.
// StartMinute < EndMinute always holds; windows on the same weekday need not
// be contiguous.
type AvailabilityWindow struct {
	ProviderID      string
	Weekday         int // 0 = Sunday .. 6 = Saturday
	StartMinute     int
	EndMinute       int
	Available       bool
	MaxAppointments int // 0 = unlimited
}

type Appointment struct {
	ID             string
	Number         string
	TenantID       string
	OrderID        string
	ServiceTypeID  string
	ScheduledStart time.Time
	ScheduledEnd   time.Time
	Status         AppointmentStatus
	Priority       int
	Address        string
	ContactName    string
	ContactPhone   string
	ContactEmail   string
	CreatedAt      time.Time
}

type Assignment struct {
	AppointmentID string
	ProviderID    string
	TenantID      string
	Role          AssignmentRole
	Status        AssignmentStatus
	CreatedAt     time.Time
}

// Active reports whether the assignment still occupies the provider's time.
func (a Assignment) Active() bool {
	return a.Status == AssignmentAssigned || a.Status == AssignmentConfirmed
}

// HistoryEntry is one row of the append-only appointment audit log.
type HistoryEntry struct {
	ID             int64
	AppointmentID  string
	TenantID       string
	Action         string
	PreviousStatus AppointmentStatus
	NewStatus      AppointmentStatus
	Actor          string
	Reason         string
	OccurredAt     time.Time
}

// History actions. One entry is appended per accepted mutation.
const (
	ActionCreated    = "created"
	ActionStatus     = "status_changed"
	ActionReschedule = "rescheduled"
	ActionAssigned   = "provider_assigned"
	ActionUnassigned = "provider_unassigned"
)
