package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/horecaops/backoffice/pkg/contextkeys"
	"github.com/horecaops/backoffice/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDBLogger_RequiresDB(t *testing.T) {
	_, err := NewDBLogger(nil)
	assert.Error(t, err)
}

func TestDBLogger_LogAndSearch(t *testing.T) {
	logger, err := NewDBLogger(dbtest.NewSQLite(t))
	require.NoError(t, err)
	ctx := contextkeys.WithRequestID(context.Background(), "req-1")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []*Event{
		{EventType: EventTypeRoleCreate, Status: EventStatusSuccess, ActorID: "U1", TenantID: "T1", ResourceType: ResourceTypeRole, ResourceID: "R1"},
		{EventType: EventTypeRoleAssign, Status: EventStatusSuccess, ActorID: "U1", TenantID: "T1", ResourceType: ResourceTypeUserRole, ResourceID: "U2"},
		{EventType: EventTypeAccessDenied, Status: EventStatusDenied, ActorID: "U3", TenantID: "T2", ErrorMessage: "forbidden"},
	}
	for i, e := range events {
		full := NewEvent(ctx, e.EventType, e.Status)
		full.Timestamp = base.Add(time.Duration(i) * time.Minute)
		full.ActorID, full.TenantID = e.ActorID, e.TenantID
		full.ResourceType, full.ResourceID = e.ResourceType, e.ResourceID
		full.ErrorMessage = e.ErrorMessage
		require.NoError(t, logger.Log(ctx, full))
	}

	t.Run("all newest first", func(t *testing.T) {
		got, err := logger.Search(ctx, SearchFilter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, EventTypeAccessDenied, got[0].EventType)
		assert.Equal(t, "forbidden", got[0].ErrorMessage)
		assert.Equal(t, "req-1", got[0].Metadata["request_id"])
	})

	t.Run("by tenant", func(t *testing.T) {
		got, err := logger.Search(ctx, SearchFilter{TenantID: "T1"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("by event types and status", func(t *testing.T) {
		denied := EventStatusDenied
		got, err := logger.Search(ctx, SearchFilter{
			EventTypes: []EventType{EventTypeAccessDenied, EventTypeRoleAssign},
			Status:     &denied,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "U3", got[0].ActorID)
	})

	t.Run("by resource", func(t *testing.T) {
		got, err := logger.Search(ctx, SearchFilter{ResourceType: ResourceTypeRole, ResourceID: "R1"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, EventTypeRoleCreate, got[0].EventType)
	})

	t.Run("pagination", func(t *testing.T) {
		got, err := logger.Search(ctx, SearchFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, EventTypeRoleAssign, got[0].EventType)
	})
}

func TestDBLogger_LogFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(errors.New("read-only transaction"))

	logger, err := NewDBLogger(conn)
	require.NoError(t, err)

	err = logger.Log(context.Background(), NewEvent(context.Background(), EventTypeRoleDelete, EventStatusSuccess))
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
