package matrix

import "fmt"

// AddrLines is the number of row address lines on the connector.
const AddrLines = 5

// maxHalfHeight is the number of rows reachable with AddrLines lines.
const maxHalfHeight = 1 << AddrLines

// buildAddressCache precomputes the row address for every row. Both halves of
// the panel share the address lines, so row y is addressed as y mod half.
func buildAddressCache(height, half int) ([]uint8, error) {
	if half <= 0 || half > maxHalfHeight {
		return nil, fmt.Errorf("matrix: half height %d not addressable with %d lines", half, AddrLines)
	}
	out := make([]uint8, height)
	for y := range out {
		out[y] = uint8(y % half)
	}
	return out, nil
}
