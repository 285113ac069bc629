// Package gps evaluates location pings against a user's recent history to
// flag spoofed or inconsistent readings. It never blocks a user on its own;
// it lowers a confidence value and emits flags for the fraud aggregator.
package gps

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// earthRadiusKm is the sphere radius used for great-circle distances.
const earthRadiusKm = 6371.0

const (
	// HistoryLimit bounds the retained samples per user.
	HistoryLimit = 50

	// teleportSpeedKmh is the implied speed above which a ping is
	// treated as a teleport (and therefore mocked).
	teleportSpeedKmh = 500.0
	teleportMinKm    = 10.0

	// minAccuracyMeters below which a reading is suspiciously precise
	// for consumer hardware.
	minAccuracyMeters = 3.0

	// minFractionDigits is the coordinate precision a real GPS fix
	// produces on both axes.
	minFractionDigits = 4

	// jumpFactor flags a jump this many times larger than the recent
	// mean inter-sample distance.
	jumpFactor  = 10.0
	jumpMinMean = 0.1
)

// Sample is a single location ping as reported by a client.
type Sample struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy"` // meters, 0 = unreported
	MockFlag  bool      `json:"mockFlag"` // client OS mock-location indicator
	Timestamp time.Time `json:"timestamp"`
}

// Evaluation is the verdict for one sample.
type Evaluation struct {
	Valid      bool     `json:"valid"`
	Mocked     bool     `json:"mocked"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
}

// Haversine returns the great-circle distance in kilometers between two
// coordinates.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180.0
	dLat := (lat2 - lat1) * degToRad
	dLng := (lng2 - lng1) * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Evaluate scores a sample against the user's history. Each failed check
// multiplies confidence down; nothing ever raises it. history is ordered
// oldest first and the sample itself is not yet part of it.
func Evaluate(sample Sample, history []Sample) Evaluation {
	confidence := 1.0
	mocked := false
	var reasons []string

	if sample.MockFlag {
		confidence *= 0.1
		mocked = true
		reasons = append(reasons, "mock location flag set by client OS")
	}

	// Zero accuracy means the client did not report one.
	if sample.Accuracy != 0 && sample.Accuracy < minAccuracyMeters {
		confidence *= 0.5
		reasons = append(reasons, "reported accuracy suspiciously precise")
	}

	if len(history) > 0 {
		prev := history[len(history)-1]
		dist := Haversine(prev.Lat, prev.Lng, sample.Lat, sample.Lng)
		hours := sample.Timestamp.Sub(prev.Timestamp).Hours()
		if hours > 0 && dist > teleportMinKm && dist/hours > teleportSpeedKmh {
			confidence *= 0.2
			mocked = true
			reasons = append(reasons, "implied speed exceeds plausible travel")
		}
	}

	if fractionDigits(sample.Lat) < minFractionDigits && fractionDigits(sample.Lng) < minFractionDigits {
		confidence *= 0.7
		reasons = append(reasons, "coordinate precision too low for a real fix")
	}

	// A jump an order of magnitude beyond the recent movement pattern.
	if mean := recentMeanDistance(history, 4); mean > jumpMinMean && len(history) > 0 {
		prev := history[len(history)-1]
		jump := Haversine(prev.Lat, prev.Lng, sample.Lat, sample.Lng)
		if jump > jumpFactor*mean {
			confidence *= 0.3
			reasons = append(reasons, "jump far outside recent movement pattern")
		}
	}

	return Evaluation{
		Valid:      confidence > 0.5 && !mocked,
		Mocked:     mocked,
		Confidence: confidence,
		Reasons:    reasons,
	}
}

// ConsistencyScore rates a movement history 0..100. Jitter and implausible
// speeds multiply the score down, floor 0. Short histories score 100 since
// there is nothing to contradict.
func ConsistencyScore(history []Sample) int {
	if len(history) < 3 {
		return 100
	}

	score := 100.0
	var prevDist float64
	for i := 1; i < len(history); i++ {
		a, b := history[i-1], history[i]
		dist := Haversine(a.Lat, a.Lng, b.Lat, b.Lng)

		if hours := b.Timestamp.Sub(a.Timestamp).Hours(); hours > 0 {
			speed := dist / hours
			if speed > 300 {
				score *= 0.5
			} else if speed > 200 {
				score *= 0.8
			}
		}

		// Jitter: consecutive hops that differ wildly in length.
		if i > 1 && prevDist > jumpMinMean {
			ratio := dist / prevDist
			if ratio > 5 || (ratio > 0 && ratio < 0.2) {
				score *= 0.9
			}
		}
		prevDist = dist
	}

	if score < 0 {
		score = 0
	}
	return int(math.Round(score))
}

// recentMeanDistance averages the inter-sample distances across the last
// n hops of history. Returns 0 when there are fewer than n hops.
func recentMeanDistance(history []Sample, n int) float64 {
	if len(history) < n+1 {
		return 0
	}
	tail := history[len(history)-(n+1):]
	var total float64
	for i := 1; i < len(tail); i++ {
		total += Haversine(tail[i-1].Lat, tail[i-1].Lng, tail[i].Lat, tail[i].Lng)
	}
	return total / float64(n)
}

// fractionDigits counts decimal places in a coordinate as serialized by
// the shortest round-trip formatting.
func fractionDigits(v float64) int {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}
	return len(s) - dot - 1
}
