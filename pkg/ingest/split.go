// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"math/rand"

	"github.com/gomlx/whalecalls/pkg/manifest"
)

// splitPoint is the number of records of a class that go to the training subset.
func splitPoint(count int, trainFrac float64) int {
	return int(float64(count) * trainFrac)
}

// splitSubsets builds the labeled subsets and the noise subset from the records of each class.
//
// Each class is split independently, so train and val keep the class balance. Negatives come first
// in each subset, shuffling is done separately.
func splitSubsets(negatives, positives []manifest.Record, trainFrac float64) map[manifest.Subset][]manifest.Record {
	negPart, posPart := splitPoint(len(negatives), trainFrac), splitPoint(len(positives), trainFrac)
	sets := make(map[manifest.Subset][]manifest.Record, len(manifest.Subsets))
	sets[manifest.SubsetAll] = concat(negatives, positives)
	sets[manifest.SubsetTrain] = concat(negatives[:negPart], positives[:posPart])
	sets[manifest.SubsetVal] = concat(negatives[negPart:], positives[posPart:])

	// Non-whale-call clips of the training split double as noise samples.
	noise := make([]manifest.Record, 0, negPart)
	for _, r := range negatives[:negPart] {
		noise = append(noise, manifest.Record{Audio: r.Audio})
	}
	sets[manifest.SubsetNoise] = noise
	return sets
}

// concat returns a new slice with the contents of a followed by b.
func concat(a, b []manifest.Record) []manifest.Record {
	c := make([]manifest.Record, 0, len(a)+len(b))
	c = append(c, a...)
	return append(c, b...)
}

// shuffleSubsets shuffles every subset except test in place, in manifest.Subsets order,
// drawing from a single generator seeded with seed.
func shuffleSubsets(sets map[manifest.Subset][]manifest.Record, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for _, subset := range manifest.Subsets {
		if subset == manifest.SubsetTest {
			continue
		}
		records := sets[subset]
		rng.Shuffle(len(records), func(i, j int) {
			records[i], records[j] = records[j], records[i]
		})
	}
}
