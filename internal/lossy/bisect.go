package lossy

// Bisect returns the smallest n in [lo, hi] for which ok(n) holds, assuming
// ok is monotone (false up to some n, true from there on). When no n below
// hi satisfies ok, hi is returned without being evaluated. The second
// result counts predicate evaluations.
func Bisect(lo, hi int, ok func(n int) (bool, error)) (int, int, error) {
	steps := 0
	for lo < hi {
		mid := lo + (hi-lo)/2
		steps++
		pass, err := ok(mid)
		if err != nil {
			return 0, steps, err
		}
		if pass {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo, steps, nil
}
