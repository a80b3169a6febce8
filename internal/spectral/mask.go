package spectral

import "math"

// QA60 bit flags for opaque clouds and cirrus.
const (
	OpaqueCloudBit = 10
	CirrusBit      = 11

	cloudMask = 1<<OpaqueCloudBit | 1<<CirrusBit
)

// CloudFree reports whether a QA60 value has both the opaque cloud and the
// cirrus bit clear. NaN is never cloud free.
func CloudFree(qa float64) bool {
	if math.IsNaN(qa) || math.IsInf(qa, 0) || qa < 0 {
		return false
	}
	return int64(qa)&cloudMask == 0
}

// MaskSample applies the QA60 mask to a raw sample and scales reflectance to
// 0..1. A cloudy sample comes back with every band set to NaN. Samples
// without a QA60 band are only scaled.
func MaskSample(s Sample) Sample {
	out := make(Sample, len(s))
	qa, hasQA := s[QA60]
	clean := !hasQA || CloudFree(qa)
	for k, v := range s {
		if !clean {
			out[k] = math.NaN()
			continue
		}
		out[k] = v / ReflectanceScale
	}
	return out
}
