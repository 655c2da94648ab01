package forecourt

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
	"time"
)

// COCO class ids reported by the upstream detector.
const (
	ClassPerson     = 0
	ClassBicycle    = 1
	ClassCar        = 2
	ClassMotorcycle = 3
	ClassBus        = 5
	ClassTruck      = 7
	ClassCellPhone  = 67
)

var classNames = map[int]string{
	ClassPerson:     "person",
	ClassBicycle:    "bicycle",
	ClassCar:        "car",
	ClassMotorcycle: "motorcycle",
	ClassBus:        "bus",
	ClassTruck:      "truck",
	ClassCellPhone:  "cell phone",
}

type Category int

const (
	CategoryIgnored Category = iota
	CategoryPerson
	CategoryPhone
	CategoryVehicle
)

func Categorize(classID int) Category {
	switch classID {
	case ClassPerson:
		return CategoryPerson
	case ClassCellPhone:
		return CategoryPhone
	case ClassBicycle, ClassCar, ClassMotorcycle, ClassBus, ClassTruck:
		return CategoryVehicle
	default:
		return CategoryIgnored
	}
}

// ClassName returns the COCO name for classID, or "class_<id>" when unknown.
func ClassName(classID int) string {
	if name, ok := classNames[classID]; ok {
		return name
	}
	return fmt.Sprintf("class_%d", classID)
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) DistanceTo(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Box is an axis-aligned rectangle in frame pixels. On the wire it is [x1, y1, x2, y2].
type Box struct {
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
}

// Normalize orders the corners so that X1<=X2 and Y1<=Y2.
func (b Box) Normalize() Box {
	return Box{
		X1: math.Min(b.X1, b.X2),
		Y1: math.Min(b.Y1, b.Y2),
		X2: math.Max(b.X1, b.X2),
		Y2: math.Max(b.Y1, b.Y2),
	}
}

// Overlaps reports a non-empty intersection. Boxes that only touch on an edge do not overlap.
func (b Box) Overlaps(o Box) bool {
	return b.X1 < o.X2 && b.X2 > o.X1 && b.Y1 < o.Y2 && b.Y2 > o.Y1
}

func (b Box) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

func (b Box) Empty() bool {
	return b.X2 <= b.X1 || b.Y2 <= b.Y1
}

func (b Box) Finite() bool {
	for _, v := range [4]float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X1, b.Y1, b.X2, b.Y2})
}

func (b *Box) UnmarshalJSON(data []byte) error {
	var coords []float64
	if err := json.Unmarshal(data, &coords); err != nil {
		return fmt.Errorf("box must be [x1, y1, x2, y2]: %w", err)
	}
	if len(coords) != 4 {
		return fmt.Errorf("box must have 4 coordinates, got %d", len(coords))
	}
	*b = Box{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}
	return nil
}

type Detection struct {
	TrackID    int64   `json:"track_id"`
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name,omitempty"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

func (d Detection) Label() string {
	if d.ClassName != "" {
		return d.ClassName
	}
	return ClassName(d.ClassID)
}

// Frame is one tracker output batch. Image is optional and only used for snapshots.
type Frame struct {
	Timestamp   time.Time
	Detections  []Detection
	InferenceMs float64
	Width       int
	Height      int
	Image       image.Image
}

type EventKind string

const (
	EventIdleVehicle       EventKind = "idle_vehicle"
	EventUnattendedVehicle EventKind = "unattended_vehicle"
	EventMobileUser        EventKind = "mobile_user"
)

type CameraIdentity struct {
	CustomerID    string `json:"customer_id"`
	CameraID      string `json:"camera_id"`
	StationNumber string `json:"station_number"`
}

type Alert struct {
	Kind     EventKind `json:"kind"`
	TrackID  int64     `json:"track_id"`
	Region   string    `json:"region"`
	Message  string    `json:"message"`
	Snapshot string    `json:"snapshot,omitempty"`
	Level    int       `json:"level,omitempty"`
	Box      Box       `json:"box"`
	At       time.Time `json:"at"`
}

// CaptureRequest asks for a snapshot of Image to accompany Alert.
type CaptureRequest struct {
	Alert Alert
	Image image.Image
}

type FrameSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}
