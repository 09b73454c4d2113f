package domain

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatBooked    SeatStatus = "BOOKED"
	SeatHeld      SeatStatus = "HELD"
)

type SeatCategory struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Color      string          `json:"color"`
	Rows       []string        `json:"rows"`
	AisleAfter []int           `json:"aisleAfter"`
}

type EventSeat struct {
	ID         int64           `json:"id"`
	RowLabel   string          `json:"rowLabel"`
	SeatNumber int             `json:"seatNumber"`
	CategoryID int64           `json:"categoryId"`
	Price      decimal.Decimal `json:"price"`
	Status     SeatStatus      `json:"status"`
}

// Label is the human seat name, e.g. "A1".
func (s EventSeat) Label() string {
	return s.RowLabel + strconv.Itoa(s.SeatNumber)
}

// SeatLayout is a read-only snapshot of one event's seating as returned by
// the venue catalog.
type SeatLayout struct {
	Categories []SeatCategory `json:"categories"`
	Seats      []EventSeat    `json:"seats"`
}

// Clone returns a deep copy so a session can apply status changes without
// touching a shared (cached) snapshot.
func (l SeatLayout) Clone() SeatLayout {
	out := SeatLayout{
		Categories: make([]SeatCategory, len(l.Categories)),
		Seats:      make([]EventSeat, len(l.Seats)),
	}
	for i, c := range l.Categories {
		c.Rows = append([]string(nil), c.Rows...)
		c.AisleAfter = append([]int(nil), c.AisleAfter...)
		out.Categories[i] = c
	}
	copy(out.Seats, l.Seats)
	return out
}

func (l SeatLayout) Category(id int64) (SeatCategory, bool) {
	for _, c := range l.Categories {
		if c.ID == id {
			return c, true
		}
	}
	return SeatCategory{}, false
}

// SeatsByRow groups seats by row label, each row ordered by seat number.
func (l SeatLayout) SeatsByRow() map[string][]EventSeat {
	grouped := make(map[string][]EventSeat)
	for _, s := range l.Seats {
		grouped[s.RowLabel] = append(grouped[s.RowLabel], s)
	}
	for _, seats := range grouped {
		sort.SliceStable(seats, func(i, j int) bool { return seats[i].SeatNumber < seats[j].SeatNumber })
	}
	return grouped
}

// OrderedRows is the union of every category's declared rows, sorted.
func (l SeatLayout) OrderedRows() []string {
	seen := make(map[string]struct{})
	var rows []string
	for _, c := range l.Categories {
		for _, r := range c.Rows {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			rows = append(rows, r)
		}
	}
	sort.Strings(rows)
	return rows
}

type DisplaySeat struct {
	EventSeat
	Label      string `json:"label"`
	AisleAfter bool   `json:"aisleAfter"`
}

type DisplayRow struct {
	Label    string        `json:"label"`
	Category *SeatCategory `json:"category,omitempty"`
	Seats    []DisplaySeat `json:"seats"`
}

// Rows lays the snapshot out for rendering. A row takes its category from its
// first seat; rows declared by a category but without seats are skipped.
func (l SeatLayout) Rows() []DisplayRow {
	byRow := l.SeatsByRow()
	var out []DisplayRow
	for _, label := range l.OrderedRows() {
		seats := byRow[label]
		if len(seats) == 0 {
			continue
		}
		row := DisplayRow{Label: label, Seats: make([]DisplaySeat, 0, len(seats))}
		aisles := map[int]bool{}
		if cat, ok := l.Category(seats[0].CategoryID); ok {
			c := cat
			row.Category = &c
			for _, n := range cat.AisleAfter {
				aisles[n] = true
			}
		}
		for _, s := range seats {
			row.Seats = append(row.Seats, DisplaySeat{EventSeat: s, Label: s.Label(), AisleAfter: aisles[s.SeatNumber]})
		}
		out = append(out, row)
	}
	return out
}
