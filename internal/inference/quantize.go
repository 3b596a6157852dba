package inference

import (
	"fmt"
	"math"
	"strings"

	"wakeword/internal/features"
)

// Quantize packs feature frames into an int8 tensor of size bytes using
// q = round(v/scale) + zeroPoint, saturated to [-128, 127]. When the frames
// hold more than size values the most recent ones are kept; unused space is
// filled with zeroPoint.
func Quantize(frames []features.Frame, scale float64, zeroPoint int, size int) []byte {
	out := make([]byte, size)
	fill := byte(int8(clampInt8(zeroPoint)))
	for i := range out {
		out[i] = fill
	}
	if scale <= 0 || size == 0 {
		return out
	}

	total := 0
	for _, f := range frames {
		total += len(f)
	}
	skip := max(total-size, 0)

	n := 0
	for _, f := range frames {
		for _, v := range f {
			if skip > 0 {
				skip--
				continue
			}
			q := int(math.Round(float64(v)/scale)) + zeroPoint
			out[n] = byte(int8(clampInt8(q)))
			n++
		}
	}
	return out
}

func clampInt8(v int) int {
	return min(max(v, math.MinInt8), math.MaxInt8)
}

// FormatOutput renders a model output as signed scores.
func FormatOutput(out []byte) string {
	var sb strings.Builder
	sb.WriteString("Output = [")
	for _, b := range out {
		fmt.Fprintf(&sb, "%02d, ", int8(b))
	}
	sb.WriteString("]")
	return sb.String()
}
