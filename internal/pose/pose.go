// Package pose normalises raw per-frame pose-estimator output into the
// single tracked reference point used for crossing detection. The pose model
// itself runs in an external collaborator; this package only consumes its
// keypoints.
package pose

// COCO keypoint indices as emitted by YOLO-family pose models.
const (
	Nose          = 0
	LeftEye       = 1
	RightEye      = 2
	LeftEar       = 3
	RightEar      = 4
	LeftShoulder  = 5
	RightShoulder = 6
	LeftElbow     = 7
	RightElbow    = 8
	LeftWrist     = 9
	RightWrist    = 10
	LeftHip       = 11
	RightHip      = 12
	LeftKnee      = 13
	RightKnee     = 14
	LeftAnkle     = 15
	RightAnkle    = 16
	NumKeypoints  = 17
)

// Keypoint is a single detected landmark in pixel space. Detectors report
// missing landmarks as zero coordinates with zero confidence.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// Frame is one processed video frame worth of landmarks for the subject.
type Frame struct {
	Index     int64      `json:"index"`
	Keypoints []Keypoint `json:"keypoints"`
}

// TrackedPoint is the per-frame reference location fed to the crossing
// detector. Absence of a usable detection is data, not an error: Valid is
// false and the position is undefined.
type TrackedPoint struct {
	FrameIndex int64
	X, Y       float64
	Valid      bool
}

// AdapterConfig controls how the reference point is derived from landmarks.
type AdapterConfig struct {
	// MinConfidence is the per-keypoint confidence floor; below it a hip
	// detection is treated as missing.
	MinConfidence float64
	// LeftIndex and RightIndex select the landmark pair whose midpoint is
	// tracked. Defaults to the hips.
	LeftIndex  int
	RightIndex int
}

// DefaultAdapterConfig returns the hip-midpoint adapter configuration.
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		MinConfidence: 0.25,
		LeftIndex:     LeftHip,
		RightIndex:    RightHip,
	}
}

// ExtractReferencePoint computes the midpoint of the configured landmark
// pair. When either landmark is missing, outside the frame, or below the
// confidence floor, the returned point is invalid rather than guessed.
func ExtractReferencePoint(f Frame, cfg AdapterConfig) TrackedPoint {
	tp := TrackedPoint{FrameIndex: f.Index}

	if cfg.LeftIndex >= len(f.Keypoints) || cfg.RightIndex >= len(f.Keypoints) {
		return tp
	}
	left := f.Keypoints[cfg.LeftIndex]
	right := f.Keypoints[cfg.RightIndex]
	if !usable(left, cfg.MinConfidence) || !usable(right, cfg.MinConfidence) {
		return tp
	}

	tp.X = (left.X + right.X) / 2
	tp.Y = (left.Y + right.Y) / 2
	tp.Valid = true
	return tp
}

// usable reports whether a keypoint is a real detection. Zeroed coordinates
// are the detector's convention for landmarks it could not place.
func usable(kp Keypoint, minConfidence float64) bool {
	if kp.Confidence < minConfidence {
		return false
	}
	return kp.X > 0 && kp.Y > 0
}
