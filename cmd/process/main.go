// process runs the full engagement pipeline over a lecture recorded as a
// directory of frame images: YuNet face tracking, feature extraction,
// prediction, and persistence into the engagement history database. It is
// the offline counterpart of the server's /api/process-video route, for
// lectures that have not been pre-tracked.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/classlens-data/classlens/internal/db"
	"github.com/classlens-data/classlens/internal/engage"
	"github.com/classlens-data/classlens/internal/vision"
)

var (
	framesDir  = flag.String("frames", "", "Directory of lecture frame images (required)")
	lectureID  = flag.String("lecture", "", "Lecture ID (defaults to a generated one)")
	dbPath     = flag.String("db", "classlens.db", "Path to the SQLite database file")
	modelDir   = flag.String("models", "models/engagement", "Directory with trained engagement models")
	faceModel  = flag.String("face-model", "", "YuNet ONNX model (required)")
	phoneModel = flag.String("phone-model", "", "YOLO ONNX model for phone detection")
	gridRows   = flag.Int("grid-rows", engage.DefaultGridRows, "Seat grid rows")
	gridCols   = flag.Int("grid-cols", engage.DefaultGridCols, "Seat grid columns")
)

func main() {
	flag.Parse()
	if *framesDir == "" || *faceModel == "" {
		flag.Usage()
		os.Exit(2)
	}
	id := *lectureID
	if id == "" {
		id = uuid.New().String()
	}

	frames, err := engage.ReadFrameDir(*framesDir)
	if err != nil {
		log.Fatalf("load frames: %v", err)
	}
	log.Printf("processing %d frames from %s", len(frames), *framesDir)

	tracker, err := vision.NewFaceTracker(*faceModel)
	if err != nil {
		log.Fatalf("face tracker: %v", err)
	}
	defer tracker.Close()

	classifier := engage.NewEngagementClassifier(engage.DefaultBoosterConfig())
	if err := classifier.Load(*modelDir); err != nil {
		log.Printf("no trained models in %s: %v (predictions disabled)", *modelDir, err)
		classifier = nil
	}

	processor := engage.NewEngagementProcessor(engage.ProcessorConfig{
		GridRows: *gridRows,
		GridCols: *gridCols,
	}, tracker, engage.NewAggregator(buildDetectors()...), classifier)

	results := make([]*engage.FrameResult, 0, len(frames))
	for i, frame := range frames {
		res, err := processor.ProcessFrame(frame)
		if err != nil {
			log.Fatalf("frame %d: %v", i+1, err)
		}
		results = append(results, res)
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	lecture, frameRows, studentRows := flattenResults(id, *framesDir, results)
	if err := database.SaveLecture(lecture, frameRows, studentRows); err != nil {
		log.Fatalf("save lecture: %v", err)
	}
	log.Printf("lecture %s saved: %d frames, %d students, avg engagement %.3f",
		id, lecture.FrameCount, lecture.StudentCount, lecture.AvgEngagement)
}

// buildDetectors assembles the vision adapters, padding missing namespaces
// with static defaults so the feature layout matches the trained models.
func buildDetectors() []engage.Detector {
	var detectors []engage.Detector

	facial, err := vision.NewFacialDetector(vision.DefaultFacialConfig(*faceModel))
	if err != nil {
		log.Fatalf("facial detector: %v", err)
	}
	pose, err := vision.NewPoseDetector(*faceModel)
	if err != nil {
		log.Fatalf("pose detector: %v", err)
	}
	detectors = append(detectors, facial, pose)

	if *phoneModel != "" {
		phone, err := vision.NewPhoneDetector(*phoneModel)
		if err != nil {
			log.Fatalf("phone detector: %v", err)
		}
		detectors = append(detectors, phone)
	} else {
		fm := engage.PhoneDefaults()
		detectors = append(detectors, engage.NewStaticDetector(engage.NamespacePhone, fm, fm))
	}

	hand := engage.HandDefaults()
	detectors = append(detectors, engage.NewStaticDetector(engage.NamespaceHand, hand, hand))
	return detectors
}

// flattenResults turns per-frame results into store rows and the lecture
// summary.
func flattenResults(id, source string, results []*engage.FrameResult) (db.Lecture, []db.FrameRow, []db.StudentRow) {
	var frames []db.FrameRow
	var students []db.StudentRow
	seen := make(map[string]bool)
	var sum float64

	for _, fr := range results {
		frames = append(frames, db.FrameRow{
			LectureID:         id,
			FrameIndex:        fr.FrameNumber,
			AverageEngagement: fr.ClassEngagement,
			HighlyEngaged:     fr.HighlyEngaged,
			ModeratelyEngaged: fr.ModeratelyEngaged,
			Disengaged:        fr.Disengaged,
			TotalStudents:     fr.TotalStudents,
		})
		sum += fr.ClassEngagement

		for _, st := range fr.Students {
			seen[st.ID] = true
			row := db.StudentRow{
				LectureID:       id,
				FrameIndex:      fr.FrameNumber,
				StudentID:       st.ID,
				SeatNumber:      st.Seat.Number,
				SeatRow:         st.Seat.Row,
				SeatCol:         st.Seat.Col,
				EngagementScore: st.Score,
			}
			for state, v := range st.Predictions {
				v := v
				switch state {
				case "boredom":
					row.Boredom = &v
				case "engagement":
					row.Engagement = &v
				case "confusion":
					row.Confusion = &v
				case "frustration":
					row.Frustration = &v
				}
			}
			students = append(students, row)
		}
	}

	avg := 0.0
	if len(frames) > 0 {
		avg = sum / float64(len(frames))
	}
	lecture := db.Lecture{
		LectureID:     id,
		Source:        source,
		FrameCount:    len(frames),
		StudentCount:  len(seen),
		AvgEngagement: avg,
	}
	return lecture, frames, students
}
