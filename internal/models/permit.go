package models

import (
	"time"
)

// FieldType is the input kind of a permit form field.
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldTextarea  FieldType = "textarea"
	FieldSelect    FieldType = "select"
	FieldCheckbox  FieldType = "checkbox"
	FieldDate      FieldType = "date"
	FieldTime      FieldType = "time"
	FieldSignature FieldType = "signature"
)

// FormField describes one field of a permit form.
type FormField struct {
	ID       string    `json:"id" yaml:"id"`
	Label    string    `json:"label" yaml:"label"`
	Type     FieldType `json:"type" yaml:"type"`
	Required bool      `json:"required" yaml:"required"`
	Default  string    `json:"default,omitempty" yaml:"default,omitempty"`
	Options  []string  `json:"options,omitempty" yaml:"options,omitempty"`
}

// PermitType is the reference definition of a work permit.
type PermitType struct {
	ID               string      `json:"id" yaml:"id"`
	Code             string      `json:"code" yaml:"code"`
	Name             string      `json:"name" yaml:"name"`
	Color            string      `json:"color" yaml:"color"`
	FormFields       []FormField `json:"form_fields" yaml:"form_fields"`
	ApprovalRequired bool        `json:"approval_required" yaml:"approval_required"`
	ExpirationHours  float64     `json:"expiration_hours" yaml:"expiration_hours"`
}

// Validity returns how long a submission of this type stays valid.
func (p PermitType) Validity() time.Duration {
	return time.Duration(p.ExpirationHours * float64(time.Hour))
}

// PermitStatus is the state of a permit submission.
type PermitStatus string

const (
	PermitNone     PermitStatus = "none"
	PermitPending  PermitStatus = "pending"
	PermitApproved PermitStatus = "approved"
	PermitRejected PermitStatus = "rejected"
	PermitExpired  PermitStatus = "expired"
)

// FormData maps form field ids to submitted values. Checkbox values are bools,
// everything else is a string.
type FormData map[string]interface{}

// PermitSubmission is one submitted permit for a work order.
type PermitSubmission struct {
	ID              string       `json:"id" bson:"_id"`
	PermitTypeID    string       `json:"permit_type_id" bson:"permit_type_id"`
	WorkOrderID     string       `json:"work_order_id" bson:"work_order_id"`
	SubmittedBy     string       `json:"submitted_by" bson:"submitted_by"`
	SubmittedByName string       `json:"submitted_by_name" bson:"submitted_by_name"`
	SubmittedAt     time.Time    `json:"submitted_at" bson:"submitted_at"`
	Status          PermitStatus `json:"status" bson:"status"` // stored status; never "expired"
	ExpiresAt       time.Time    `json:"expires_at" bson:"expires_at"`
	FormData        FormData     `json:"form_data" bson:"form_data"`
	Location        string       `json:"location" bson:"location"`
	Equipment       string       `json:"equipment" bson:"equipment"`
}

// StatusAt derives the effective status at the given instant. Rejected is
// terminal; any other submission past its expiry reads as expired.
func (p PermitSubmission) StatusAt(now time.Time) PermitStatus {
	if p.Status == PermitRejected {
		return PermitRejected
	}
	if !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt) {
		return PermitExpired
	}
	return p.Status
}
