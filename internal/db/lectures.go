package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrLectureNotFound is returned when a lecture ID has no stored results.
var ErrLectureNotFound = errors.New("lecture not found")

// Lecture is the stored summary row for one processed lecture video.
type Lecture struct {
	LectureID     string    `json:"lecture_id"`
	Source        string    `json:"source"`
	FrameCount    int       `json:"frame_count"`
	StudentCount  int       `json:"student_count"`
	AvgEngagement float64   `json:"avg_engagement"`
	CreatedAt     time.Time `json:"created_at"`
}

// FrameRow holds the class-wide metrics for one processed frame.
type FrameRow struct {
	LectureID         string  `json:"lecture_id"`
	FrameIndex        int     `json:"frame_index"`
	AverageEngagement float64 `json:"average_engagement"`
	HighlyEngaged     int     `json:"highly_engaged"`
	ModeratelyEngaged int     `json:"moderately_engaged"`
	Disengaged        int     `json:"disengaged"`
	TotalStudents     int     `json:"total_students"`
}

// StudentRow holds one student's result within one frame. The per-state
// prediction columns are nullable: frames processed before a student's
// buffer warmed up have no predictions.
type StudentRow struct {
	LectureID       string   `json:"lecture_id"`
	FrameIndex      int      `json:"frame_index"`
	StudentID       string   `json:"student_id"`
	SeatNumber      int      `json:"seat_number"`
	SeatRow         int      `json:"seat_row"`
	SeatCol         int      `json:"seat_col"`
	EngagementScore float64  `json:"engagement_score"`
	Boredom         *float64 `json:"boredom,omitempty"`
	Engagement      *float64 `json:"engagement,omitempty"`
	Confusion       *float64 `json:"confusion,omitempty"`
	Frustration     *float64 `json:"frustration,omitempty"`
}

// LectureResults bundles everything stored for one lecture.
type LectureResults struct {
	Lecture  Lecture      `json:"lecture"`
	Frames   []FrameRow   `json:"frames"`
	Students []StudentRow `json:"students"`
}

// SaveLecture stores a lecture summary with all of its frame and student
// rows in a single transaction.
func (db *DB) SaveLecture(lecture Lecture, frames []FrameRow, students []StudentRow) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin save lecture: %w", err)
	}
	defer tx.Rollback()

	createdAt := lecture.CreatedAt
	if createdAt.IsZero() {
		createdAt = db.clock.Now().UTC()
	}
	_, err = tx.Exec(`
		INSERT INTO lectures (lecture_id, source, frame_count, student_count, avg_engagement, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		lecture.LectureID, lecture.Source, lecture.FrameCount,
		lecture.StudentCount, lecture.AvgEngagement, createdAt)
	if err != nil {
		return fmt.Errorf("insert lecture %s: %w", lecture.LectureID, err)
	}

	frameStmt, err := tx.Prepare(`
		INSERT INTO frame_results (
			lecture_id, frame_index, average_engagement,
			highly_engaged, moderately_engaged, disengaged, total_students
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare frame insert: %w", err)
	}
	defer frameStmt.Close()

	for _, f := range frames {
		_, err := frameStmt.Exec(lecture.LectureID, f.FrameIndex, f.AverageEngagement,
			f.HighlyEngaged, f.ModeratelyEngaged, f.Disengaged, f.TotalStudents)
		if err != nil {
			return fmt.Errorf("insert frame %d: %w", f.FrameIndex, err)
		}
	}

	studentStmt, err := tx.Prepare(`
		INSERT INTO student_results (
			lecture_id, frame_index, student_id,
			seat_number, seat_row, seat_col, engagement_score,
			boredom, engagement, confusion, frustration
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare student insert: %w", err)
	}
	defer studentStmt.Close()

	for _, s := range students {
		_, err := studentStmt.Exec(lecture.LectureID, s.FrameIndex, s.StudentID,
			s.SeatNumber, s.SeatRow, s.SeatCol, s.EngagementScore,
			s.Boredom, s.Engagement, s.Confusion, s.Frustration)
		if err != nil {
			return fmt.Errorf("insert student %s frame %d: %w", s.StudentID, s.FrameIndex, err)
		}
	}

	return tx.Commit()
}

// ListLectures returns all stored lecture summaries, newest first.
func (db *DB) ListLectures() ([]Lecture, error) {
	rows, err := db.Query(`
		SELECT lecture_id, source, frame_count, student_count, avg_engagement, created_at
		FROM lectures ORDER BY created_at DESC, lecture_id`)
	if err != nil {
		return nil, fmt.Errorf("list lectures: %w", err)
	}
	defer rows.Close()

	lectures := []Lecture{}
	for rows.Next() {
		var l Lecture
		if err := rows.Scan(&l.LectureID, &l.Source, &l.FrameCount,
			&l.StudentCount, &l.AvgEngagement, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lecture: %w", err)
		}
		lectures = append(lectures, l)
	}
	return lectures, rows.Err()
}

// GetLecture loads a lecture summary with all frame and student rows.
// Returns ErrLectureNotFound if the lecture does not exist.
func (db *DB) GetLecture(lectureID string) (*LectureResults, error) {
	var res LectureResults
	err := db.QueryRow(`
		SELECT lecture_id, source, frame_count, student_count, avg_engagement, created_at
		FROM lectures WHERE lecture_id = ?`, lectureID).
		Scan(&res.Lecture.LectureID, &res.Lecture.Source, &res.Lecture.FrameCount,
			&res.Lecture.StudentCount, &res.Lecture.AvgEngagement, &res.Lecture.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrLectureNotFound, lectureID)
	}
	if err != nil {
		return nil, fmt.Errorf("get lecture %s: %w", lectureID, err)
	}

	frames, err := db.Query(`
		SELECT lecture_id, frame_index, average_engagement,
		       highly_engaged, moderately_engaged, disengaged, total_students
		FROM frame_results WHERE lecture_id = ? ORDER BY frame_index`, lectureID)
	if err != nil {
		return nil, fmt.Errorf("get lecture frames %s: %w", lectureID, err)
	}
	defer frames.Close()
	for frames.Next() {
		var f FrameRow
		if err := frames.Scan(&f.LectureID, &f.FrameIndex, &f.AverageEngagement,
			&f.HighlyEngaged, &f.ModeratelyEngaged, &f.Disengaged, &f.TotalStudents); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		res.Frames = append(res.Frames, f)
	}
	if err := frames.Err(); err != nil {
		return nil, err
	}

	students, err := db.Query(`
		SELECT lecture_id, frame_index, student_id,
		       seat_number, seat_row, seat_col, engagement_score,
		       boredom, engagement, confusion, frustration
		FROM student_results WHERE lecture_id = ? ORDER BY frame_index, student_id`, lectureID)
	if err != nil {
		return nil, fmt.Errorf("get lecture students %s: %w", lectureID, err)
	}
	defer students.Close()
	for students.Next() {
		var s StudentRow
		if err := students.Scan(&s.LectureID, &s.FrameIndex, &s.StudentID,
			&s.SeatNumber, &s.SeatRow, &s.SeatCol, &s.EngagementScore,
			&s.Boredom, &s.Engagement, &s.Confusion, &s.Frustration); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		res.Students = append(res.Students, s)
	}
	return &res, students.Err()
}

// StudentTimeline returns one student's per-frame engagement scores within a
// lecture, ordered by frame index.
func (db *DB) StudentTimeline(lectureID, studentID string) ([]StudentRow, error) {
	rows, err := db.Query(`
		SELECT lecture_id, frame_index, student_id,
		       seat_number, seat_row, seat_col, engagement_score,
		       boredom, engagement, confusion, frustration
		FROM student_results
		WHERE lecture_id = ? AND student_id = ?
		ORDER BY frame_index`, lectureID, studentID)
	if err != nil {
		return nil, fmt.Errorf("student timeline %s/%s: %w", lectureID, studentID, err)
	}
	defer rows.Close()

	var out []StudentRow
	for rows.Next() {
		var s StudentRow
		if err := rows.Scan(&s.LectureID, &s.FrameIndex, &s.StudentID,
			&s.SeatNumber, &s.SeatRow, &s.SeatCol, &s.EngagementScore,
			&s.Boredom, &s.Engagement, &s.Confusion, &s.Frustration); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteLecture removes a lecture and all of its rows. Returns
// ErrLectureNotFound when nothing was deleted.
func (db *DB) DeleteLecture(lectureID string) error {
	res, err := db.Exec(`DELETE FROM lectures WHERE lecture_id = ?`, lectureID)
	if err != nil {
		return fmt.Errorf("delete lecture %s: %w", lectureID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrLectureNotFound, lectureID)
	}
	return nil
}
