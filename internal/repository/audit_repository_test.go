package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/cliniva/access-core/internal/model"
)

func TestAuditInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewAuditRepo(db)

	actor := "p1"
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	event := model.AuditEvent{
		ID:              "e1",
		ActorID:         &actor,
		ActorEmail:      "dr@clinic.example",
		ActorRole:       "PHYSICIAN",
		Action:          model.ActionLogin,
		Entity:          model.EntityAuth,
		Result:          model.ResultSuccess,
		Timestamp:       ts,
		RetentionDate:   ts.AddDate(5, 0, 0),
		IsHighRisk:      false,
		IsSensitiveData: false,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
		WithArgs("e1", &actor, "dr@clinic.example", "PHYSICIAN", "", "",
			"LOGIN", "Auth", nil, "SUCCESS", "", ts, false, false, event.RetentionDate, false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Insert(context.Background(), event))
	require.NoError(t, mock.ExpectationsWereMet())
}
