package spectrum

// BassEnergy returns the mean magnitude of the lowest BassBins bins.
// Snapshots shorter than BassBins average what they have.
func BassEnergy(s Snapshot) float64 {
	n := BassBins
	if len(s) < n {
		n = len(s)
	}
	if n == 0 {
		return 0
	}

	sum := 0
	for _, v := range s[:n] {
		sum += int(v)
	}
	return float64(sum) / float64(n)
}
