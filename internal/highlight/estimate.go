package highlight

import (
	"math"
	"time"
)

// WordsPerMinute is the assumed speaking rate at playback speed 1.
const WordsPerMinute = 150

// EstimateDuration guesses how long reading wordCount words takes at the
// given playback rate.
func EstimateDuration(wordCount int, rate float64) time.Duration {
	if wordCount <= 0 {
		return 0
	}
	if rate <= 0 {
		rate = 1
	}
	wordsPerSecond := WordsPerMinute * rate / 60
	return time.Duration(float64(wordCount) / wordsPerSecond * float64(time.Second))
}

// EstimateIndex maps a playback position linearly onto count segments. It
// returns -1 when there is nothing to map onto.
func EstimateIndex(position, duration time.Duration, count int) int {
	if count <= 0 || duration <= 0 {
		return -1
	}
	if position < 0 {
		position = 0
	}
	i := int(math.Floor(float64(position) / float64(duration) * float64(count)))
	return min(max(i, 0), count-1)
}

// ResumeIndex is the word to resume highlighting from after a pause. The
// result is always a valid index, or 0 when there are no words.
func ResumeIndex(pausedAt, total time.Duration, wordCount int) int {
	if total <= 0 || wordCount <= 0 || pausedAt <= 0 {
		return 0
	}
	i := int(math.Floor(float64(pausedAt) / float64(total) * float64(wordCount)))
	return min(max(i, 0), wordCount-1)
}
