package chunkspan

import "math"

// Similarity is the scoring model. The engine calls it at fixed points:
// term weights, proximity, chunk normalisation, and dedup damping.
type Similarity interface {
	// IDF weighs a term found in df of numDocs chunks.
	IDF(df, numDocs int) float64
	// SloppyFreq scales a proximity match that needed slop words of slack.
	SloppyFreq(slop int) float64
	// Coord rewards chunks matching more of the query's clauses.
	Coord(overlap, maxOverlap int) float64
	// LengthNorm normalises for a field of n tokens.
	LengthNorm(n int) float64
	// Damp scales a hit lying distance words from a better hit, where
	// 0 <= distance < overlap.
	Damp(distance, overlap int) float64
}

// DefaultSimilarity is the built-in model:
//
//	idf        = ln(numDocs / (df + 1)) + 1
//	sloppyFreq = 1 / (slop + 1)
//	coord      = overlap / maxOverlap
//	lengthNorm = 1 / sqrt(n)
//	damp       = sqrt(distance / overlap)
type DefaultSimilarity struct{}

func (DefaultSimilarity) IDF(df, numDocs int) float64 {
	if numDocs <= 0 {
		return 1
	}
	return math.Log(float64(numDocs)/float64(df+1)) + 1
}

func (DefaultSimilarity) SloppyFreq(slop int) float64 {
	return 1 / float64(slop+1)
}

func (DefaultSimilarity) Coord(overlap, maxOverlap int) float64 {
	if maxOverlap <= 0 {
		return 1
	}
	return float64(overlap) / float64(maxOverlap)
}

func (DefaultSimilarity) LengthNorm(n int) float64 {
	if n <= 0 {
		return 1
	}
	return 1 / math.Sqrt(float64(n))
}

func (DefaultSimilarity) Damp(distance, overlap int) float64 {
	if overlap <= 0 || distance >= overlap {
		return 1
	}
	if distance <= 0 {
		return 0
	}
	return math.Sqrt(float64(distance) / float64(overlap))
}
