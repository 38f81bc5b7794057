package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Provider string

const (
	ProviderMTN    Provider = "mtn"
	ProviderAirtel Provider = "airtel"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

type EntityType string

const (
	EntityTypeInvoice         EntityType = "invoice"
	EntityTypePlanInstallment EntityType = "plan_installment"
	// EntityTypeGeneralPayment targets a student; EntityID is the student ID.
	EntityTypeGeneralPayment EntityType = "general_payment"
)

func (e EntityType) Valid() bool {
	switch e {
	case EntityTypeInvoice, EntityTypePlanInstallment, EntityTypeGeneralPayment:
		return true
	}
	return false
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Transaction tracks one mobile money prompt. It leaves pending exactly once.
type Transaction struct {
	ID                    snowflake.ID   `gorm:"primaryKey" json:"id"`
	SchoolID              snowflake.ID   `gorm:"not null;index" json:"school_id"`
	Provider              Provider       `gorm:"type:text;not null" json:"provider"`
	PhoneNumber           string         `gorm:"not null" json:"phone_number"`
	Amount                int64          `gorm:"not null" json:"amount"`
	Status                Status         `gorm:"size:32;not null;index" json:"status"`
	ExternalReference     string         `gorm:"size:128;not null;uniqueIndex" json:"external_reference"`
	EntityType            EntityType     `gorm:"type:text;not null" json:"entity_type"`
	EntityID              snowflake.ID   `gorm:"not null" json:"entity_id"`
	FeeType               string         `json:"fee_type,omitempty"`
	PaymentID             *snowflake.ID  `json:"payment_id,omitempty"`
	ProviderTransactionID string         `json:"provider_transaction_id,omitempty"`
	FailureReason         string         `json:"failure_reason,omitempty"`
	CallbackReceivedAt    *time.Time     `json:"callback_received_at,omitempty"`
	RawCallbackData       datatypes.JSON `json:"raw_callback_data,omitempty"`
	CreatedAt             time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"not null" json:"updated_at"`
}

func (Transaction) TableName() string { return "mobile_money_transactions" }

// CallbackEvent is a provider delivery kept for deduplication and retry.
type CallbackEvent struct {
	ID                snowflake.ID   `gorm:"primaryKey" json:"id"`
	Provider          Provider       `gorm:"size:32;not null;uniqueIndex:ux_mm_callback_events_dedupe,priority:1" json:"provider"`
	DedupeKey         string         `gorm:"size:191;not null;uniqueIndex:ux_mm_callback_events_dedupe,priority:2" json:"dedupe_key"`
	ExternalReference string         `gorm:"size:128;not null;index" json:"external_reference"`
	Payload           datatypes.JSON `gorm:"not null" json:"payload"`
	Attempts          int            `gorm:"not null;default:0" json:"attempts"`
	LastError         string         `json:"last_error,omitempty"`
	ReceivedAt        time.Time      `gorm:"not null" json:"received_at"`
	ProcessedAt       *time.Time     `json:"processed_at,omitempty"`
}

func (CallbackEvent) TableName() string { return "mobile_money_callback_events" }
