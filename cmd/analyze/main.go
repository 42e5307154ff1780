// Command analyze runs the batch timing pipeline over a recorded pose-frame
// file and prints the sprint result. Frames come from the pose-estimation
// collaborator as a JSON array; reference lines are given as "x1,y1,x2,y2".
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/strideworks/sprintgate/internal/db"
	"github.com/strideworks/sprintgate/internal/geom"
	"github.com/strideworks/sprintgate/internal/pose"
	"github.com/strideworks/sprintgate/internal/run"
	"github.com/strideworks/sprintgate/internal/timing"
	"github.com/strideworks/sprintgate/internal/units"
)

func main() {
	var inputPath string
	var fps float64
	var startStr string
	var finishStr string
	var workers int
	var dbPath string
	var migrationsDir string
	var displayUnits string

	flag.StringVar(&inputPath, "input", "", "path to JSON pose frames file")
	flag.Float64Var(&fps, "fps", 30.0, "source video frame rate")
	flag.StringVar(&startStr, "start", "", "start line as x1,y1,x2,y2")
	flag.StringVar(&finishStr, "finish", "", "finish line as x1,y1,x2,y2")
	flag.IntVar(&workers, "workers", 4, "extraction worker count")
	flag.StringVar(&dbPath, "db", "", "optional sqlite db to record the result")
	flag.StringVar(&migrationsDir, "migrations", "internal/db/migrations", "migrations directory")
	flag.StringVar(&displayUnits, "units", units.MPS, "display units ("+units.ValidUnitsString()+")")
	flag.Parse()

	if inputPath == "" || startStr == "" || finishStr == "" {
		log.Fatalf("input, start and finish must be provided")
	}
	if !units.IsValid(displayUnits) {
		log.Fatalf("invalid units %q; valid values: %s", displayUnits, units.ValidUnitsString())
	}

	startLine, err := parseLine(geom.StartLine, startStr)
	if err != nil {
		log.Fatalf("invalid start line: %v", err)
	}
	finishLine, err := parseLine(geom.FinishLine, finishStr)
	if err != nil {
		log.Fatalf("invalid finish line: %v", err)
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		log.Fatalf("read frames: %v", err)
	}
	var frames []pose.Frame
	if err := json.Unmarshal(data, &frames); err != nil {
		log.Fatalf("parse frames: %v", err)
	}

	session := timing.NewSession(timing.DefaultConfig(), nil)
	cal, err := session.Calibrate(startLine, finishLine, geom.DefaultConfig())
	if err != nil {
		log.Fatalf("calibrate: %v", err)
	}
	fmt.Printf("calibrated: %.4f m/px over %.0fpx, direction %+.0f\n",
		cal.Scale, cal.PixelSeparation(), cal.Direction)

	cfg := run.DefaultBatchConfig(fps)
	cfg.Workers = workers
	result, err := run.NewBatchAnalyzer(session, cfg).Analyze(frames)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}

	speed := units.Convert(result.SpeedMS, displayUnits)
	fmt.Printf("%.0fm in %.3fs: %.2f %s (start %.3fs, finish %.3fs)\n",
		result.DistanceMeters, result.ElapsedSeconds, speed, displayUnits,
		result.StartTime, result.FinishTime)

	if dbPath != "" {
		recordResult(dbPath, migrationsDir, session.ID(), result)
	}
}

func recordResult(dbPath, migrationsDir, sessionID string, result *timing.Result) {
	database, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer database.Close()

	if err := database.MigrateUp(migrationsDir); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	id, err := database.RecordResult(db.ResultRow{
		SessionID:      sessionID,
		Mode:           "batch",
		DistanceMeters: result.DistanceMeters,
		ElapsedSeconds: result.ElapsedSeconds,
		SpeedMS:        result.SpeedMS,
		SpeedKmh:       result.SpeedKmh,
	})
	if err != nil {
		log.Fatalf("record result: %v", err)
	}
	fmt.Printf("recorded result %d\n", id)
}

// parseLine parses a "x1,y1,x2,y2" flag value.
func parseLine(role geom.LineRole, s string) (geom.Line, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geom.Line{}, fmt.Errorf("expected 4 comma-separated values, got %d", len(parts))
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geom.Line{}, fmt.Errorf("value %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return geom.Line{
		Role: role,
		P1:   geom.Point{X: vals[0], Y: vals[1]},
		P2:   geom.Point{X: vals[2], Y: vals[3]},
	}, nil
}
