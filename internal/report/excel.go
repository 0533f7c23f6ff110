// Package report renders booking exports for administrators.
package report

import (
	"fmt"
	"io"
	"sort"

	"escaperoom/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet = "Bookings"
	summarySheet  = "Summary"
)

var bookingColumns = []string{
	"ID", "Room", "Date", "Time", "Players", "User", "Status",
	"Payment", "Amount", "Method", "Created", "Updated",
}

var summaryColumns = []string{"Room", "Bookings", "Active", "Completed", "Cancelled", "Paid amount"}

// sheetWriter appends rows to excelize sheets.
type sheetWriter struct {
	file  *excelize.File
	sheet string
	row   int
	bold  int
}

func (w *sheetWriter) addSheet(name string) error {
	if w.sheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.sheet = name
	w.row = 1
	return nil
}

func (w *sheetWriter) writeHeader(columns []string) error {
	if err := w.writeRow(toRow(columns)); err != nil {
		return err
	}
	start, _ := excelize.CoordinatesToCellName(1, w.row-1)
	end, _ := excelize.CoordinatesToCellName(len(columns), w.row-1)
	_ = w.file.SetCellStyle(w.sheet, start, end, w.bold)
	return w.file.SetPanes(w.sheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	})
}

func (w *sheetWriter) writeRow(values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.sheet, cell, &values); err != nil {
		return err
	}
	w.row++
	return nil
}

func toRow(columns []string) []interface{} {
	row := make([]interface{}, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	return row
}

type roomTotals struct {
	total, active, completed, cancelled int
	paid                                int64
}

// WriteBookings writes an xlsx workbook with every booking and a per-room
// summary to out. Rooms missing from rooms are labelled by id.
func WriteBookings(out io.Writer, bookings []models.Booking, rooms []models.Room) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	w := &sheetWriter{file: f, bold: bold}

	themes := make(map[int64]string, len(rooms))
	for _, r := range rooms {
		themes[r.ID] = r.Theme
	}
	roomName := func(id int64) string {
		if theme, ok := themes[id]; ok {
			return theme
		}
		return fmt.Sprintf("room %d", id)
	}

	if err := w.addSheet(bookingsSheet); err != nil {
		return err
	}
	if err := w.writeHeader(bookingColumns); err != nil {
		return err
	}

	totals := make(map[int64]*roomTotals)
	for _, b := range bookings {
		if err := w.writeRow([]interface{}{
			b.ID,
			roomName(b.RoomID),
			b.Date,
			b.StartTime,
			b.NumberOfPlayers,
			b.UserID,
			string(b.Status),
			string(b.PaymentStatus),
			b.PaymentAmount,
			b.PaymentMethod,
			b.CreatedAt.Format("2006-01-02 15:04"),
			b.UpdatedAt.Format("2006-01-02 15:04"),
		}); err != nil {
			return fmt.Errorf("write booking %d: %w", b.ID, err)
		}

		t, ok := totals[b.RoomID]
		if !ok {
			t = &roomTotals{}
			totals[b.RoomID] = t
		}
		t.total++
		switch b.Status {
		case models.BookingStatusActive:
			t.active++
		case models.BookingStatusCompleted:
			t.completed++
		case models.BookingStatusCancelled:
			t.cancelled++
		}
		if b.PaymentStatus == models.PaymentStatusCompleted {
			t.paid += b.PaymentAmount
		}
	}

	if err := w.addSheet(summarySheet); err != nil {
		return err
	}
	if err := w.writeHeader(summaryColumns); err != nil {
		return err
	}

	ids := make([]int64, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		t := totals[id]
		if err := w.writeRow([]interface{}{roomName(id), t.total, t.active, t.completed, t.cancelled, t.paid}); err != nil {
			return err
		}
	}

	if idx, err := f.GetSheetIndex(bookingsSheet); err == nil {
		f.SetActiveSheet(idx)
	}
	return f.Write(out)
}
