package vitals

import "math"

// Эвристики, клинически не проверены. Пороги настраиваемые.
const (
	OptimalBpmLow  = 60
	OptimalBpmHigh = 70

	bpmPenaltyPerBeat = 1.5
	bpmPenaltyMax     = 50.0

	stressBpmWeight   = 1.2
	stressHRVWeight   = 0.8
	stressHRVCenter   = 50.0
	stressLowBelow    = 30
	stressMediumBelow = 60
)

// Категории оценки сердца
const (
	HeartExcellent      = "Excellent"
	HeartGood           = "Good"
	HeartFair           = "Fair"
	HeartNeedsAttention = "Needs Attention"
	HeartConcerning     = "Concerning"
)

// Уровни стресса
const (
	StressLow    = "low"
	StressMedium = "medium"
	StressHigh   = "high"
)

// Эмоциональные состояния
const (
	EmotionStressed = "stressed"
	EmotionExcited  = "excited"
	EmotionCalm     = "calm"
	EmotionRelaxed  = "relaxed"
	EmotionNeutral  = "neutral"
)

// HeartScore оценка 0–100: штраф за отклонение ЧСС от 60–70 и за низкий RMSSD
func HeartScore(bpm int, hrv HRV, hasHRV bool) (int, string) {
	if bpm <= 0 {
		return 0, ""
	}

	score := 100.0
	distance := 0.0
	switch {
	case bpm < OptimalBpmLow:
		distance = float64(OptimalBpmLow - bpm)
	case bpm > OptimalBpmHigh:
		distance = float64(bpm - OptimalBpmHigh)
	}
	score -= math.Min(distance*bpmPenaltyPerBeat, bpmPenaltyMax)

	if hasHRV {
		switch {
		case hrv.RMSSD >= 50:
		case hrv.RMSSD >= 30:
			score -= 10
		case hrv.RMSSD >= 20:
			score -= 20
		default:
			score -= 30
		}
	}

	s := clampInt(int(math.Round(score)), 0, 100)
	return s, HeartCategory(s)
}

// HeartCategory категория по значению оценки
func HeartCategory(score int) string {
	switch {
	case score >= 90:
		return HeartExcellent
	case score >= 75:
		return HeartGood
	case score >= 60:
		return HeartFair
	case score >= 40:
		return HeartNeedsAttention
	default:
		return HeartConcerning
	}
}

// StressLevel оценка стресса 0–100 и уровень
func StressLevel(bpm int, hrv HRV, hasHRV bool) (int, string) {
	if bpm <= 0 {
		return 0, ""
	}

	score := float64(bpm-OptimalBpmLow) * stressBpmWeight
	if hasHRV {
		score += (stressHRVCenter - hrv.RMSSD) * stressHRVWeight
	}
	s := clampInt(int(math.Round(score)), 0, 100)

	switch {
	case s < stressLowBelow:
		return s, StressLow
	case s < stressMediumBelow:
		return s, StressMedium
	default:
		return s, StressHigh
	}
}

// Emotion грубая классификация состояния по ЧСС и RMSSD
func Emotion(bpm int, hrv HRV, hasHRV bool) string {
	switch {
	case bpm <= 0:
		return ""
	case bpm > 100 && hasHRV && hrv.RMSSD < 20:
		return EmotionStressed
	case bpm > 90:
		return EmotionExcited
	case bpm < 65 && hasHRV && hrv.RMSSD > 40:
		return EmotionCalm
	case hasHRV && hrv.RMSSD > 50:
		return EmotionRelaxed
	default:
		return EmotionNeutral
	}
}
