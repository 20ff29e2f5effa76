package engage

// Default classroom seat grid dimensions.
const (
	DefaultGridRows = 5
	DefaultGridCols = 10
)

// Seat is a coarse classroom position derived from a detection's normalised
// centre point. Numbering is row-major and 1-based: the top-left seat is 1.
type Seat struct {
	Number int `json:"seat_number"`
	Row    int `json:"row"`
	Col    int `json:"col"`
}

// AssignSeats maps each detection onto a fixed rows x cols grid by its
// normalised centre. Purely geometric; out-of-range centres clamp to the
// nearest edge cell.
func AssignSeats(detections []StudentDetection, rows, cols int) map[string]Seat {
	if rows <= 0 {
		rows = DefaultGridRows
	}
	if cols <= 0 {
		cols = DefaultGridCols
	}

	seats := make(map[string]Seat, len(detections))
	for _, det := range detections {
		col := int(det.CenterX * float64(cols))
		row := int(det.CenterY * float64(rows))

		col = clampInt(col, 0, cols-1)
		row = clampInt(row, 0, rows-1)

		seats[det.ID] = Seat{
			Number: row*cols + col + 1,
			Row:    row,
			Col:    col,
		}
	}
	return seats
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
