// select.go - Decoy selection around the real output.

package ring

import "fmt"

// SelectIndices picks size registry indices out of n as a wrapping window
// centred on signer, and returns them with signer's position inside the
// window. size is clamped to [1, n].
func SelectIndices(n, signer, size int) ([]int, int, error) {
	if n <= 0 {
		return nil, 0, fmt.Errorf("%w: empty registry", ErrRingSize)
	}
	if signer < 0 || signer >= n {
		return nil, 0, ErrRealIndex
	}
	size = max(1, min(size, n))
	half := size / 2
	start := ((signer-half)%n + n) % n

	idxs := make([]int, size)
	for k := range idxs {
		idxs[k] = (start + k) % n
	}
	return idxs, half, nil
}
