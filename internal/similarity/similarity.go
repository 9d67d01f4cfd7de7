package similarity

// Jaccard returns |A∩B| / |A∪B| over the word sets of a and b. Two texts
// without words are identical; one empty side shares nothing.
func Jaccard(a, b string) float64 {
	setA, setB := WordSet(a), WordSet(b)
	switch {
	case len(setA) == 0 && len(setB) == 0:
		return 1
	case len(setA) == 0 || len(setB) == 0:
		return 0
	}

	shared := 0
	for w := range setA {
		if setB[w] {
			shared++
		}
	}
	return float64(shared) / float64(len(setA)+len(setB)-shared)
}

// InterestOverlap returns the fraction of interest tags that appear in text.
// A multi-word tag such as "trail running" matches when any of its words
// appears. No tags yields 0.
func InterestOverlap(interests []string, text string) float64 {
	if len(interests) == 0 {
		return 0
	}
	words := WordSet(text)
	hits := 0
	for _, tag := range interests {
		for _, w := range Tokenize(tag) {
			if words[w] {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(interests))
}
