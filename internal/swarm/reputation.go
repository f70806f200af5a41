package swarm

// AdjustReputation applies a performance score in [0, 1000] to rep. Scores
// above 500 raise reputation by (score-500)/10, scores below lower it by
// (500-score)/10. The result saturates at MinReputation and MaxReputation.
func AdjustReputation(rep uint16, score int) uint16 {
	r := int(rep)
	if score > neutralPerformanceScore {
		r += (score - neutralPerformanceScore) / performanceDivisor
	} else {
		r -= (neutralPerformanceScore - score) / performanceDivisor
	}
	switch {
	case r > int(MaxReputation):
		return MaxReputation
	case r < int(MinReputation):
		return MinReputation
	}
	return uint16(r)
}

func validateScore(score int) error {
	if score < 0 || score > MaxPerformanceScore {
		return ErrInvalidScore
	}
	return nil
}
