package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DetectionRow is one tracker output line from a recorded session.
//
// CSV columns: timestamp (RFC3339), track_id, class_id, class_name, confidence, x1, y1, x2, y2
type DetectionRow struct {
	Timestamp  time.Time
	TrackID    int64
	ClassID    int
	ClassName  string
	Confidence float64
	X1, Y1     float64
	X2, Y2     float64
}

type detectionPayload struct {
	TrackID    int64      `json:"track_id"`
	ClassID    int        `json:"class_id"`
	ClassName  string     `json:"class_name,omitempty"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"`
}

// FramePayload matches the body accepted by POST /api/v1/frames.
type FramePayload struct {
	Timestamp  time.Time          `json:"timestamp"`
	Width      int                `json:"width"`
	Height     int                `json:"height"`
	Detections []detectionPayload `json:"detections"`
}

const (
	defaultServiceURL = "http://localhost:8080"
	frameWidth        = 640
	frameHeight       = 480
)

var (
	// Integration token; falls back to FORECOURT_TOKEN and then a prompt.
	authToken = ""
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run replay_detections.go <path-to-csv> [service-url] [speed]")
		fmt.Println("Example: go run replay_detections.go session.csv http://localhost:8080 4")
		os.Exit(1)
	}

	csvPath := os.Args[1]
	serviceURL := defaultServiceURL
	if len(os.Args) > 2 {
		serviceURL = strings.TrimRight(os.Args[2], "/")
	}
	speed := 1.0
	if len(os.Args) > 3 {
		parsed, err := strconv.ParseFloat(os.Args[3], 64)
		if err != nil || parsed <= 0 {
			fmt.Printf("Error: invalid speed '%s'. Use a positive number, 0 is not allowed.\n", os.Args[3])
			os.Exit(1)
		}
		speed = parsed
	}

	if authToken == "" {
		authToken = os.Getenv("FORECOURT_TOKEN")
	}
	if authToken == "" {
		fmt.Print("Enter integration token (Bearer token): ")
		fmt.Scanln(&authToken)
	}

	fmt.Println("Step 1: Reading CSV file...")
	rows, err := readCSV(csvPath)
	if err != nil {
		fmt.Printf("Error reading CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Read %d detections\n", len(rows))

	frames := groupFrames(rows)
	fmt.Printf("✓ Grouped into %d frames\n", len(frames))

	fmt.Printf("\nStep 2: Replaying frames at %.1fx...\n", speed)
	client := &http.Client{Timeout: 10 * time.Second}
	sent, failed := 0, 0
	var previous time.Time
	for i, frame := range frames {
		if i > 0 {
			gap := frame.Timestamp.Sub(previous)
			if gap > 0 {
				time.Sleep(time.Duration(float64(gap) / speed))
			}
		}
		previous = frame.Timestamp

		if err := postFrame(client, serviceURL, frame); err != nil {
			failed++
			fmt.Printf("  ✗ frame %s: %v\n", frame.Timestamp.Format(time.RFC3339), err)
			continue
		}
		sent++
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("SUMMARY")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("  Frames sent:   %d\n", sent)
	fmt.Printf("  Frames failed: %d\n", failed)
	fmt.Println(strings.Repeat("=", 60))
}

// readCSV reads tracker rows, skipping the header and blank lines.
func readCSV(path string) ([]DetectionRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows []DetectionRow
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "timestamp") {
			continue
		}
		if len(record) < 9 {
			fmt.Printf("  skipping line %d: expected 9 columns, got %d\n", line, len(record))
			continue
		}

		row, err := parseRow(record)
		if err != nil {
			fmt.Printf("  skipping line %d: %v\n", line, err)
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(record []string) (DetectionRow, error) {
	var row DetectionRow
	var err error

	if row.Timestamp, err = time.Parse(time.RFC3339Nano, strings.TrimSpace(record[0])); err != nil {
		return row, fmt.Errorf("timestamp: %w", err)
	}
	if row.TrackID, err = strconv.ParseInt(strings.TrimSpace(record[1]), 10, 64); err != nil {
		return row, fmt.Errorf("track_id: %w", err)
	}
	if row.ClassID, err = strconv.Atoi(strings.TrimSpace(record[2])); err != nil {
		return row, fmt.Errorf("class_id: %w", err)
	}
	row.ClassName = strings.TrimSpace(record[3])

	numbers := make([]float64, 5)
	for i := range numbers {
		numbers[i], err = strconv.ParseFloat(strings.TrimSpace(record[4+i]), 64)
		if err != nil {
			return row, fmt.Errorf("column %d: %w", 5+i, err)
		}
	}
	row.Confidence = numbers[0]
	row.X1, row.Y1, row.X2, row.Y2 = numbers[1], numbers[2], numbers[3], numbers[4]
	return row, nil
}

// groupFrames merges rows sharing a timestamp into one frame, ordered by time.
func groupFrames(rows []DetectionRow) []FramePayload {
	byTime := make(map[time.Time]*FramePayload)
	for _, row := range rows {
		key := row.Timestamp.UTC()
		frame, ok := byTime[key]
		if !ok {
			frame = &FramePayload{Timestamp: key, Width: frameWidth, Height: frameHeight}
			byTime[key] = frame
		}
		frame.Detections = append(frame.Detections, detectionPayload{
			TrackID:    row.TrackID,
			ClassID:    row.ClassID,
			ClassName:  row.ClassName,
			Confidence: row.Confidence,
			Box:        [4]float64{row.X1, row.Y1, row.X2, row.Y2},
		})
	}

	frames := make([]FramePayload, 0, len(byTime))
	for _, frame := range byTime {
		frames = append(frames, *frame)
	}
	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Timestamp.Before(frames[j].Timestamp)
	})
	return frames
}

func postFrame(client *http.Client, serviceURL string, frame FramePayload) error {
	body, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, serviceURL+"/api/v1/frames", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+authToken)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
