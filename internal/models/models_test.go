package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datetime(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestBookingStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to BookingStatus
		allowed  bool
	}{
		{BookingStatusActive, BookingStatusCompleted, true},
		{BookingStatusActive, BookingStatusCancelled, true},
		{BookingStatusActive, BookingStatusActive, false},
		{BookingStatusCompleted, BookingStatusCancelled, false},
		{BookingStatusCompleted, BookingStatusActive, false},
		{BookingStatusCancelled, BookingStatusActive, false},
		{BookingStatusCancelled, BookingStatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.False(t, BookingStatusActive.IsTerminal())
	assert.True(t, BookingStatusCompleted.IsTerminal())
	assert.True(t, BookingStatusCancelled.IsTerminal())
	assert.False(t, BookingStatus("paused").Valid())
}

func TestPaymentStatus_Transitions(t *testing.T) {
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusCompleted))
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusCancelled))
	assert.False(t, PaymentStatusCompleted.CanTransitionTo(PaymentStatusPending))
	assert.False(t, PaymentStatusCompleted.CanTransitionTo(PaymentStatusCancelled))
	assert.False(t, PaymentStatusCancelled.CanTransitionTo(PaymentStatusCompleted))
	assert.True(t, PaymentStatusCompleted.Valid())
	assert.False(t, PaymentStatus("refunded").Valid())
}

func TestBooking_EndsAt(t *testing.T) {
	b := Booking{ID: 1, Date: "2025-03-01", StartTime: "14:00"}

	end, err := b.EndsAt(time.UTC, 90*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, datetime(2025, 3, 1, 15, 30), end)

	bad := Booking{ID: 2, Date: "01.03.2025", StartTime: "14:00"}
	_, err = bad.EndsAt(time.UTC, time.Hour)
	assert.Error(t, err)
}

func TestBooking_ExpiryOutcome(t *testing.T) {
	paid := Booking{Status: BookingStatusActive, PaymentStatus: PaymentStatusCompleted}
	status, payment := paid.ExpiryOutcome()
	assert.Equal(t, BookingStatusCompleted, status)
	assert.Equal(t, PaymentStatusCompleted, payment)

	unpaid := Booking{Status: BookingStatusActive, PaymentStatus: PaymentStatusPending}
	status, payment = unpaid.ExpiryOutcome()
	assert.Equal(t, BookingStatusCancelled, status)
	assert.Equal(t, PaymentStatusCancelled, payment)
}

func TestRoom_Helpers(t *testing.T) {
	r := Room{Duration: 60, Price: 25, PlayersMin: 2, PlayersMax: 6}

	assert.Equal(t, time.Hour, r.SlotDuration())
	assert.False(t, r.AcceptsPlayers(1))
	assert.True(t, r.AcceptsPlayers(2))
	assert.True(t, r.AcceptsPlayers(6))
	assert.False(t, r.AcceptsPlayers(7))
	assert.Equal(t, int64(100), r.PriceFor(4))
}

func TestNormalizeClock(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"10:00", "10:00", false},
		{"9:30", "09:30", false},
		{"14:00:00", "14:00", false},
		{"14:00:30", "", true},
		{"24:00", "", true},
		{"12:60", "", true},
		{"noon", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlot_Equal(t *testing.T) {
	a := Slot{RoomID: 5, Date: "2025-03-01", StartTime: "14:00", StartsAt: datetime(2025, 3, 1, 14, 0)}
	b := Slot{RoomID: 5, Date: "2025-03-01", StartTime: "14:00"}
	c := Slot{RoomID: 6, Date: "2025-03-01", StartTime: "14:00"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, SlotKey{Date: "2025-03-01", StartTime: "14:00"}, a.Key())
}
