package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifySensitiveEntities(t *testing.T) {
	sensitive := []AuditEntity{EntityPatient, EntityClinicalRecord, EntityLabSample, EntityCertificate}
	for _, entity := range sensitive {
		_, isSensitive := Classify(ActionRead, entity)
		assert.True(t, isSensitive, "entity %s must classify as sensitive", entity)
	}
	for _, entity := range []AuditEntity{EntityAuth, EntityPrincipal, EntityCompany, EntityInvoice} {
		_, isSensitive := Classify(ActionRead, entity)
		assert.False(t, isSensitive, "entity %s must not classify as sensitive", entity)
	}
}

func TestClassifyHighRiskActions(t *testing.T) {
	highRisk := []AuditAction{ActionDelete, ActionPermissionChange, ActionPasswordChange, ActionExport, ActionShare}
	for _, action := range highRisk {
		isHighRisk, _ := Classify(action, EntityCompany)
		assert.True(t, isHighRisk, "action %s must classify as high risk", action)
	}
	for _, action := range []AuditAction{ActionLogin, ActionLoginFailed, ActionLogout, ActionCreate, ActionRead, ActionUpdate, ActionAccessDenied} {
		isHighRisk, _ := Classify(action, EntityCompany)
		assert.False(t, isHighRisk, "action %s must not classify as high risk", action)
	}
}

func TestClassifyIsIndependentDimensions(t *testing.T) {
	isHighRisk, isSensitive := Classify(ActionDelete, EntityPatient)
	assert.True(t, isHighRisk)
	assert.True(t, isSensitive)
}

func TestRoleValid(t *testing.T) {
	for _, r := range Roles {
		assert.True(t, r.Valid())
	}
	assert.False(t, Role("SUPERUSER").Valid())
	assert.False(t, Role("").Valid())
}

func TestRoleInternal(t *testing.T) {
	assert.True(t, RoleAdmin.Internal())
	assert.True(t, RoleLaboratory.Internal())
	assert.False(t, RoleCompanyHR.Internal())
	assert.False(t, RolePatient.Internal())
}

func TestSanitizedStripsSecrets(t *testing.T) {
	token := "refresh-token"
	hash := "reset-hash"
	p := Principal{
		ID:                 "p1",
		Email:              "a@b.c",
		PasswordHash:       "$2a$10$abc",
		Role:               RolePhysician,
		ActiveRefreshToken: &token,
		ResetTokenHash:     &hash,
	}
	pub := p.Sanitized()
	assert.Equal(t, "p1", pub.ID)
	assert.Equal(t, "a@b.c", pub.Email)
	assert.Equal(t, RolePhysician, pub.Role)
	assert.NotNil(t, pub.Permissions, "permissions must marshal as [] not null")
}
