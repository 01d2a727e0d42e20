// Package hand provides geometric heuristics over a single 21-point hand
// landmark frame: raised-finger counting, left/right detection and a fast
// check for the one-finger alif pose.
//
// Landmarks follow the MediaPipe hand model: 21 points of [x, y, z] in
// normalized image coordinates, where smaller y means higher in the image.
package hand

// LandmarkCount is the number of points in a full hand landmark frame.
const LandmarkCount = 21

// MediaPipe landmark indices used by the heuristics.
const (
	thumbMCP = 2
	thumbIP  = 3
	thumbTip = 4

	indexMCP  = 5
	indexPIP  = 6
	indexTip  = 8
	middlePIP = 10
	middleTip = 12
	ringPIP   = 14
	ringTip   = 16
	pinkyMCP  = 17
	pinkyPIP  = 18
	pinkyTip  = 20
)

// Type identifies which hand a landmark frame belongs to.
type Type string

const (
	Left    Type = "left"
	Right   Type = "right"
	Unknown Type = "unknown"
)

// Analysis is the full heuristic summary of one landmark frame.
type Analysis struct {
	FingersUp      int     `json:"fingers_up"`
	HandType       Type    `json:"hand_type"`
	IsAlif         bool    `json:"is_alif"`
	AlifConfidence float64 `json:"alif_confidence"`
}

// TwoHands combines the analyses of a left and a right landmark frame.
type TwoHands struct {
	LeftHand     Analysis `json:"left_hand"`
	RightHand    Analysis `json:"right_hand"`
	TotalFingers int      `json:"total_fingers"`
}

// FromFlat reshapes a flattened frame of 63 values into 21 [x, y, z] points.
// Returns nil when the frame is not a full hand landmark set.
func FromFlat(frame []float64) [][]float64 {
	if len(frame) != LandmarkCount*3 {
		return nil
	}
	lm := make([][]float64, LandmarkCount)
	for i := range lm {
		lm[i] = frame[i*3 : i*3+3]
	}
	return lm
}

// PairFromFlat splits a flattened two-hand frame of 126 values into the left
// and right 21-point landmark sets, left half first. Returns nils when the
// frame is not a full two-hand landmark set.
func PairFromFlat(frame []float64) (left, right [][]float64) {
	if len(frame) != 2*LandmarkCount*3 {
		return nil, nil
	}
	return FromFlat(frame[:LandmarkCount*3]), FromFlat(frame[LandmarkCount*3:])
}

// valid reports whether lm is a complete landmark frame with 3-wide points.
func valid(lm [][]float64) bool {
	if len(lm) != LandmarkCount {
		return false
	}
	for _, p := range lm {
		if len(p) < 2 {
			return false
		}
	}
	return true
}

// CountFingersUp counts raised fingers in a landmark frame, 0 to 5.
// Incomplete frames count as zero.
//
// The four long fingers are raised when the tip sits above the PIP joint.
// The thumb moves horizontally, so it is compared against the IP joint with
// the direction inferred from the pinky side of the palm.
func CountFingersUp(lm [][]float64) int {
	if !valid(lm) {
		return 0
	}

	up := 0
	if lm[thumbTip][0] < lm[thumbIP][0] {
		up++
	} else if lm[thumbTip][0] > lm[pinkyMCP][0] && lm[thumbTip][0] > lm[thumbIP][0] {
		up++
	}

	tips := [...]int{indexTip, middleTip, ringTip, pinkyTip}
	pips := [...]int{indexPIP, middlePIP, ringPIP, pinkyPIP}
	for i := range tips {
		if lm[tips[i]][1] < lm[pips[i]][1] {
			up++
		}
	}
	return up
}

// DetectHandType reports which hand a landmark frame belongs to. When the
// capture layer already labelled the hand, that label wins; otherwise the
// thumb position relative to the index finger base decides.
func DetectHandType(lm [][]float64, labelled Type) Type {
	if labelled == Left || labelled == Right {
		return labelled
	}
	if !valid(lm) {
		return Unknown
	}
	if lm[thumbTip][0] < lm[indexMCP][0] {
		return Right
	}
	return Left
}

// DetectAlif checks for the alif pose: index finger raised, all other
// fingers folded. The confidence is a weighted sum of the five per-finger
// conditions, 0.5 of it carried by the index finger alone.
func DetectAlif(lm [][]float64) (bool, float64) {
	if !valid(lm) {
		return false, 0
	}

	indexUp := lm[indexTip][1] < lm[indexPIP][1]
	middleDown := lm[middleTip][1] > lm[middlePIP][1]
	ringDown := lm[ringTip][1] > lm[ringPIP][1]
	pinkyDown := lm[pinkyTip][1] > lm[pinkyPIP][1]
	thumbDown := lm[thumbTip][1] > lm[thumbMCP][1]

	confidence := 0.0
	if indexUp {
		confidence += 0.5
	}
	if middleDown {
		confidence += 0.15
	}
	if ringDown {
		confidence += 0.15
	}
	if pinkyDown {
		confidence += 0.1
	}
	if thumbDown {
		confidence += 0.1
	}

	return indexUp && middleDown && ringDown && pinkyDown, confidence
}

// Analyze runs all heuristics over one landmark frame.
func Analyze(lm [][]float64, labelled Type) Analysis {
	isAlif, alifConf := DetectAlif(lm)
	return Analysis{
		FingersUp:      CountFingersUp(lm),
		HandType:       DetectHandType(lm, labelled),
		IsAlif:         isAlif,
		AlifConfidence: alifConf,
	}
}

// AnalyzeBoth combines the analyses of two hands captured in the same frame.
func AnalyzeBoth(left, right [][]float64) TwoHands {
	l := Analyze(left, Left)
	r := Analyze(right, Right)
	return TwoHands{
		LeftHand:     l,
		RightHand:    r,
		TotalFingers: l.FingersUp + r.FingersUp,
	}
}
