package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classlens-data/classlens/internal/timeutil"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func ptr(v float64) *float64 { return &v }

func sampleLecture(id string) (Lecture, []FrameRow, []StudentRow) {
	lecture := Lecture{
		LectureID:     id,
		Source:        "lecture.mp4",
		FrameCount:    2,
		StudentCount:  1,
		AvgEngagement: 0.55,
	}
	frames := []FrameRow{
		{LectureID: id, FrameIndex: 1, AverageEngagement: 0.5, ModeratelyEngaged: 1, TotalStudents: 1},
		{LectureID: id, FrameIndex: 2, AverageEngagement: 0.6, ModeratelyEngaged: 1, TotalStudents: 1},
	}
	students := []StudentRow{
		{LectureID: id, FrameIndex: 1, StudentID: "s1", SeatNumber: 12, SeatRow: 1, SeatCol: 1, EngagementScore: 0.5},
		{
			LectureID: id, FrameIndex: 2, StudentID: "s1", SeatNumber: 12, SeatRow: 1, SeatCol: 1,
			EngagementScore: 0.6,
			Boredom:         ptr(1.0), Engagement: ptr(2.2), Confusion: ptr(0.4), Frustration: ptr(0.1),
		},
	}
	return lecture, frames, students
}

func TestSaveAndGetLecture(t *testing.T) {
	database := newTestDB(t)

	lecture, frames, students := sampleLecture("lec-1")
	require.NoError(t, database.SaveLecture(lecture, frames, students))

	res, err := database.GetLecture("lec-1")
	require.NoError(t, err)

	assert.Equal(t, lecture.LectureID, res.Lecture.LectureID)
	assert.Equal(t, lecture.Source, res.Lecture.Source)
	assert.Equal(t, lecture.AvgEngagement, res.Lecture.AvgEngagement)
	assert.False(t, res.Lecture.CreatedAt.IsZero())

	require.Len(t, res.Frames, 2)
	assert.Equal(t, 0.5, res.Frames[0].AverageEngagement)
	assert.Equal(t, 2, res.Frames[1].FrameIndex)

	require.Len(t, res.Students, 2)
	// Cold frame has nullable predictions.
	assert.Nil(t, res.Students[0].Boredom)
	require.NotNil(t, res.Students[1].Engagement)
	assert.Equal(t, 2.2, *res.Students[1].Engagement)
}

func TestSaveLecture_CreatedAtFromClock(t *testing.T) {
	database := newTestDB(t)
	stamp := time.Date(2025, 9, 1, 10, 30, 0, 0, time.UTC)
	database.SetClock(timeutil.NewMockClock(stamp))

	lecture, frames, students := sampleLecture("lec-clock")
	require.NoError(t, database.SaveLecture(lecture, frames, students))

	res, err := database.GetLecture("lec-clock")
	require.NoError(t, err)
	assert.True(t, res.Lecture.CreatedAt.Equal(stamp),
		"created_at = %v, want %v", res.Lecture.CreatedAt, stamp)
}

func TestGetLecture_NotFound(t *testing.T) {
	database := newTestDB(t)
	_, err := database.GetLecture("nope")
	assert.True(t, errors.Is(err, ErrLectureNotFound))
}

func TestListLectures(t *testing.T) {
	database := newTestDB(t)

	lectures, err := database.ListLectures()
	require.NoError(t, err)
	assert.Empty(t, lectures)

	for _, id := range []string{"lec-a", "lec-b"} {
		lecture, frames, students := sampleLecture(id)
		require.NoError(t, database.SaveLecture(lecture, frames, students))
	}

	lectures, err = database.ListLectures()
	require.NoError(t, err)
	assert.Len(t, lectures, 2)
}

func TestDeleteLecture_Cascades(t *testing.T) {
	database := newTestDB(t)

	lecture, frames, students := sampleLecture("lec-del")
	require.NoError(t, database.SaveLecture(lecture, frames, students))

	require.NoError(t, database.DeleteLecture("lec-del"))

	_, err := database.GetLecture("lec-del")
	assert.True(t, errors.Is(err, ErrLectureNotFound))

	var count int
	require.NoError(t, database.QueryRow(
		`SELECT COUNT(*) FROM student_results WHERE lecture_id = ?`, "lec-del").Scan(&count))
	assert.Zero(t, count, "student rows must cascade on delete")

	assert.True(t, errors.Is(database.DeleteLecture("lec-del"), ErrLectureNotFound))
}

func TestStudentTimeline(t *testing.T) {
	database := newTestDB(t)

	lecture, frames, students := sampleLecture("lec-tl")
	require.NoError(t, database.SaveLecture(lecture, frames, students))

	rows, err := database.StudentTimeline("lec-tl", "s1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].FrameIndex)
	assert.Equal(t, 0.6, rows[1].EngagementScore)

	empty, err := database.StudentTimeline("lec-tl", "ghost")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSaveLecture_DuplicateFails(t *testing.T) {
	database := newTestDB(t)

	lecture, frames, students := sampleLecture("lec-dup")
	require.NoError(t, database.SaveLecture(lecture, frames, students))
	assert.Error(t, database.SaveLecture(lecture, frames, students))
}

func TestMigrateVersion(t *testing.T) {
	database := newTestDB(t)

	migrations, err := MigrationsFS()
	require.NoError(t, err)

	version, dirty, err := database.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}
