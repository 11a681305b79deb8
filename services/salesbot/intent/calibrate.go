// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

// calibrateConfidence compensates for LLM overconfidence with a
// monotone piecewise-linear map. Raw self-reported confidences cluster
// near 0.9-1.0; the map spreads them down without ever reordering two
// results.
func calibrateConfidence(raw float64) float64 {
	switch {
	case raw <= 0:
		return 0
	case raw >= 1:
		return 0.93
	case raw <= 0.5:
		return raw * 0.9
	case raw <= 0.8:
		// 0.45 at 0.5 -> 0.66 at 0.8
		return 0.45 + (raw-0.5)*0.7
	default:
		// 0.66 at 0.8 -> 0.93 at 1.0
		return 0.66 + (raw-0.8)*1.35
	}
}
