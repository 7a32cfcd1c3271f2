package pattern

// ExactDistanceLimit is the lowest distance which might be approximated.
const ExactDistanceLimit = 1 << 8

// Approximate reduces the precision of long distances, keeping around 8 significant bits, so the number of distinct
// distances recorded per pattern stays low. The distance is rounded to the nearest representable value.
// Distances below ExactDistanceLimit are returned unchanged.
func Approximate(distance uint64) uint64 {
	half := distance >> 8
	if half == 0 {
		return distance
	}

	delta := half << 1
	distance += half
	for x, shift := half, 2; x > 0; shift <<= 1 {
		delta |= x
		x = delta >> shift
	}
	return distance &^ delta
}
