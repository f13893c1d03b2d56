// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sampler

// Sampler is the common interface for index sampling.
type Sampler interface {
	Sample(size int) ([]int, bool)
}

// Weighted samples indices proportional to initialized weights.
type Weighted interface {
	Sampler
	Initialize(weights []uint64) error
}

// WeightedWithoutReplacement is a Weighted sampler that never returns the
// same index twice within one Sample call.
type WeightedWithoutReplacement interface {
	Weighted
}

// Uniform samples indices with equal probability.
type Uniform interface {
	Sampler
	Initialize(count int) error
}
