package report

import (
	"bytes"
	"testing"
	"time"

	"escaperoom/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteBookings(t *testing.T) {
	created := time.Date(2025, 2, 20, 12, 30, 0, 0, time.UTC)
	bookings := []models.Booking{
		{ID: 3, RoomID: 5, UserID: 42, Date: "2025-03-01", StartTime: "14:00", NumberOfPlayers: 4,
			Status: models.BookingStatusCompleted, PaymentStatus: models.PaymentStatusCompleted,
			PaymentAmount: 120, PaymentMethod: "card", CreatedAt: created, UpdatedAt: created},
		{ID: 2, RoomID: 5, UserID: 43, Date: "2025-03-02", StartTime: "10:00", NumberOfPlayers: 3,
			Status: models.BookingStatusActive, PaymentStatus: models.PaymentStatusPending,
			PaymentAmount: 90, CreatedAt: created, UpdatedAt: created},
		{ID: 1, RoomID: 8, UserID: 42, Date: "2025-02-21", StartTime: "18:00", NumberOfPlayers: 2,
			Status: models.BookingStatusCancelled, PaymentStatus: models.PaymentStatusCancelled,
			PaymentAmount: 50, CreatedAt: created, UpdatedAt: created},
	}
	rooms := []models.Room{{ID: 5, Theme: "Asylum"}}

	var buf bytes.Buffer
	require.NoError(t, WriteBookings(&buf, bookings, rooms))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{bookingsSheet, summarySheet}, f.GetSheetList())

	rows, err := f.GetRows(bookingsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, bookingColumns, rows[0])
	assert.Equal(t, []string{"3", "Asylum", "2025-03-01", "14:00", "4", "42", "completed",
		"completed", "120", "card", "2025-02-20 12:30", "2025-02-20 12:30"}, rows[1])
	assert.Equal(t, "room 8", rows[3][1])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, summaryColumns, summary[0])
	assert.Equal(t, []string{"Asylum", "2", "1", "1", "0", "120"}, summary[1])
	assert.Equal(t, []string{"room 8", "1", "0", "0", "1", "0"}, summary[2])
}

func TestWriteBookings_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBookings(&buf, nil, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(bookingsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
