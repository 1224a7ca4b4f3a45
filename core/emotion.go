package core

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// DeviceClass buckets biometric hardware by reported precision.
type DeviceClass string

const (
	DeviceMedical      DeviceClass = "medical"
	DeviceProfessional DeviceClass = "professional"
	DeviceConsumer     DeviceClass = "consumer"
)

// BiometricReading is a single raw sample from a sensor device. The device
// layer aggregates readings into snapshots before they reach the engine.
type BiometricReading struct {
	Timestamp int64   `json:"timestamp"`
	DeviceID  string  `json:"deviceId"`
	Type      string  `json:"type"` // heartRate, stress, focus, authenticity
	Value     float64 `json:"value"`
	Quality   float64 `json:"quality"` // [0,1]
}

// BiometricSnapshot is the aggregated multi-modal view of a validator's
// current physiological state. Values are sensor-supplied; the scoring
// function clamps them rather than rejecting noise.
type BiometricSnapshot struct {
	HeartRate           float64 `json:"heartRate"`           // bpm
	HRV                 float64 `json:"hrv"`                 // ms
	StressLevel         float64 `json:"stressLevel"`         // [0,1]
	FocusLevel          float64 `json:"focusLevel"`          // [0,1]
	Authenticity        float64 `json:"authenticity"`        // [0,1]
	GalvanicResponse    float64 `json:"galvanicResponse"`    // [0,1]
	Movement            float64 `json:"movement"`            // [0,1] magnitude
	BlinkRate           float64 `json:"blinkRate"`           // [0,1] fatigue proxy
	ReactionTime        float64 `json:"reactionTime"`        // [0,1] proxy, higher is slower
	ResponseConsistency float64 `json:"responseConsistency"` // [0,1]
	FacialValence       float64 `json:"facialValence"`       // [0,1], zero when absent
	Precision           float64 `json:"precision"`           // [0,1] device-reported
	SessionMinutes      float64 `json:"sessionMinutes"`
	Timestamp           int64   `json:"timestamp"`
}

const (
	restingHeartRate = 65.0
	stressBaseline   = 0.2

	primaryWeight   = 0.60
	secondaryWeight = 0.10

	maxSessionPenalty  = 0.30
	sessionPenaltySpan = 240.0 // minutes to reach the full penalty
)

// ClassifyDevice detects the hardware tier from authenticity and precision
// indicators.
func ClassifyDevice(s BiometricSnapshot) DeviceClass {
	switch {
	case s.Authenticity > 0.98 && s.Precision > 0.95:
		return DeviceMedical
	case s.Authenticity > 0.95 && s.Precision > 0.90:
		return DeviceProfessional
	default:
		return DeviceConsumer
	}
}

// EmotionalScore converts a biometric snapshot into the bounded [0,100]
// fitness score, applying device-class fairness normalization so that
// higher-precision hardware cannot mechanically dominate selection.
func EmotionalScore(s BiometricSnapshot) float64 {
	raw := rawScore(s)
	return round2(normalizeForDevice(raw, ClassifyDevice(s)))
}

// rawScore combines four primary and four secondary sub-scores. The primary
// sub-scores fill a 60% bucket equally; each secondary carries 10%.
func rawScore(s BiometricSnapshot) float64 {
	primary := stat.Mean([]float64{
		1 - clamp01(s.StressLevel),
		clamp01(s.FocusLevel),
		clamp01(s.Authenticity),
		calmness(s),
	}, nil)

	secondary := valence(s) + arousal(s) + (1 - fatigue(s)) + confidence(s)

	return (primary*primaryWeight + secondary*secondaryWeight) * 100
}

// calmness blends closeness to the resting heart rate with normalized HRV.
func calmness(s BiometricSnapshot) float64 {
	hrCalm := clamp01(1 - math.Abs(s.HeartRate-restingHeartRate)/60)
	return stat.Mean([]float64{hrCalm, hrvNorm(s.HRV)}, nil)
}

// valence estimates positivity from HRV and inverse galvanic response,
// re-blended with the facial-expression signal when one is present.
func valence(s BiometricSnapshot) float64 {
	v := stat.Mean([]float64{hrvNorm(s.HRV), 1 - clamp01(s.GalvanicResponse)}, nil)
	if s.FacialValence > 0 {
		v = v*0.7 + clamp01(s.FacialValence)*0.3
	}
	return clamp01(v)
}

// arousal estimates energy/activation from heart rate, galvanic response,
// and movement magnitude.
func arousal(s BiometricSnapshot) float64 {
	hr := clamp01((s.HeartRate - 40) / 120)
	return stat.Mean([]float64{hr, clamp01(s.GalvanicResponse), clamp01(s.Movement)}, nil)
}

// fatigue accumulates inverse HRV, blink-rate and reaction-time proxies,
// plus a monotonic session-duration penalty capped at 30%.
func fatigue(s BiometricSnapshot) float64 {
	f := 0.4*(1-hrvNorm(s.HRV)) + 0.3*clamp01(s.BlinkRate) + 0.3*clamp01(s.ReactionTime)
	penalty := math.Min(maxSessionPenalty, clamp01(s.SessionMinutes/sessionPenaltySpan)*maxSessionPenalty)
	return clamp01(f + penalty)
}

// confidence combines heart-rate stability, response consistency, and
// closeness of the stress level to a low baseline.
func confidence(s BiometricSnapshot) float64 {
	stability := clamp01(1 - math.Abs(s.HeartRate-restingHeartRate)/100)
	baseline := 1 - math.Abs(clamp01(s.StressLevel)-stressBaseline)
	return stat.Mean([]float64{stability, clamp01(s.ResponseConsistency), baseline}, nil)
}

// normalizeForDevice caps scores per hardware tier. Consumer devices keep
// the full range; medical and professional tiers are capped with a small
// bonus when the raw score cleared the cap comfortably.
func normalizeForDevice(raw float64, class DeviceClass) float64 {
	switch class {
	case DeviceMedical:
		score := math.Min(raw, 95)
		if raw > 90 {
			score += 2
		}
		return score
	case DeviceProfessional:
		score := math.Min(raw, 92)
		if raw > 85 {
			score += 1
		}
		return score
	default:
		return raw
	}
}

func hrvNorm(hrv float64) float64 {
	return clamp01(hrv / 100)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func clampRange(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
