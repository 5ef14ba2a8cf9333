package model

import "time"

// AuditAction enumerates security-relevant actions. The first group is
// emitted by this core; the generic CRUD/EXPORT group is emitted by
// collaborating business endpoints through the same recorder.
type AuditAction string

const (
	ActionLogin            AuditAction = "LOGIN"
	ActionLoginFailed      AuditAction = "LOGIN_FAILED"
	ActionLogout           AuditAction = "LOGOUT"
	ActionPasswordChange   AuditAction = "PASSWORD_CHANGE"
	ActionPasswordReset    AuditAction = "PASSWORD_RESET"
	ActionAccessDenied     AuditAction = "ACCESS_DENIED"
	ActionPermissionChange AuditAction = "PERMISSION_CHANGE"

	ActionCreate AuditAction = "CREATE"
	ActionRead   AuditAction = "READ"
	ActionUpdate AuditAction = "UPDATE"
	ActionDelete AuditAction = "DELETE"
	ActionExport AuditAction = "EXPORT"
	ActionShare  AuditAction = "SHARE"
)

// AuditEntity names the resource type an action targets.
type AuditEntity string

const (
	EntityAuth           AuditEntity = "Auth"
	EntityPrincipal      AuditEntity = "Principal"
	EntityPatient        AuditEntity = "Patient"
	EntityClinicalRecord AuditEntity = "ClinicalRecord"
	EntityLabSample      AuditEntity = "LabSample"
	EntityCertificate    AuditEntity = "Certificate"
	EntityCompany        AuditEntity = "Company"
	EntityInvoice        AuditEntity = "Invoice"
)

// AuditResult is the outcome of the recorded action.
type AuditResult string

const (
	ResultSuccess AuditResult = "SUCCESS"
	ResultFailure AuditResult = "FAILURE"
)

// DefaultRetention is how long an audit event is kept before the archival
// sweep may touch it, unless a longer horizon is supplied at write time.
const DefaultRetention = 5 * 365 * 24 * time.Hour

// AuditEvent mirrors the append-only `audit_events` table. Once written,
// action, entity, result, timestamp and the derived flags are never updated;
// the only mutation the schema allows is the archival sweep flipping
// IsArchived.
type AuditEvent struct {
	ID              string      // audit_events.id (uuid)
	ActorID         *string     // audit_events.actor_id (nullable: failed logins, unknown users)
	ActorEmail      string      // audit_events.actor_email
	ActorRole       string      // audit_events.actor_role ("" when unknown)
	ActorIP         string      // audit_events.actor_ip
	ActorUserAgent  string      // audit_events.actor_user_agent
	Action          AuditAction // audit_events.action
	Entity          AuditEntity // audit_events.entity
	EntityID        *string     // audit_events.entity_id (nullable)
	Result          AuditResult // audit_events.result
	ErrorMessage    string      // audit_events.error_message
	Timestamp       time.Time   // audit_events.timestamp (write time)
	IsHighRisk      bool        // derived at write time, immutable
	IsSensitiveData bool        // derived at write time, immutable
	RetentionDate   time.Time   // audit_events.retention_date
	IsArchived      bool        // flipped only by the out-of-process retention sweep
}

// Classify derives the risk and sensitivity flags for an event. It is a pure
// function of (action, entity) and is invoked explicitly at write time; the
// storage layer has no lifecycle hooks.
func Classify(action AuditAction, entity AuditEntity) (highRisk, sensitive bool) {
	switch action {
	case ActionDelete, ActionPermissionChange, ActionPasswordChange, ActionExport, ActionShare:
		highRisk = true
	}
	switch entity {
	case EntityPatient, EntityClinicalRecord, EntityLabSample, EntityCertificate:
		sensitive = true
	}
	return highRisk, sensitive
}
