package model

import (
	"time"

	"autoguardian/server/internal/scoring"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RefreshSession struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	UserAgent *string
	IPAddress *string
}

type Vehicle struct {
	ID                    string
	UserID                string
	Make                  string
	Model                 string
	Year                  *int
	VIN                   *string
	Registration          *string
	Engine                *string
	FuelType              *string
	MileageKM             int
	FirstRegistrationDate *time.Time
	Photos                []string
	ServiceIntervalMonths *int
	ServiceIntervalKM     *int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Policy struct {
	ID                  string
	UserID              string
	VehicleID           string
	PolicyType          string
	Insurer             string
	PolicyNumber        string
	StartDate           time.Time
	EndDate             time.Time
	PremiumTotal        float64
	PremiumInstallments []map[string]any
	Coverage            map[string]any
	Deductible          *float64
	Exclusions          []string
	Documents           []string
	RawText             *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Event struct {
	ID           string
	UserID       string
	VehicleID    string
	Type         string
	Date         time.Time
	MileageKM    *int
	CostTotal    *float64
	WorkshopName *string
	Notes        *string
	Attachments  []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const (
	ReminderStatusPending   = "pending"
	ReminderStatusSent      = "sent"
	ReminderStatusDismissed = "dismissed"
)

type Reminder struct {
	ID          string
	UserID      string
	EntityType  string
	EntityID    string
	VehicleID   *string
	PolicyID    *string
	EventID     *string
	DueDate     time.Time
	Channel     string
	Status      string
	SnoozeUntil *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Offer struct {
	ID              string
	UserID          string
	VehicleID       string
	BasePolicyID    *string
	Provider        string
	PremiumTotal    float64
	Coverage        map[string]any
	Deductible      *float64
	AssistanceLevel *string
	LinkOut         *string
	ScoreBreakdown  scoring.Breakdown
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
