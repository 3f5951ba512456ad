package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultHashingDimension = 256

// hashingBackend embeds text locally by hashing word tokens and character
// trigrams into a fixed-size, L2-normalized vector. It needs no network and is
// deterministic, which makes it the default for offline runs and tests.
type hashingBackend struct {
	dimension int
}

func newHashingBackend(dimension int) *hashingBackend {
	if dimension <= 0 {
		dimension = defaultHashingDimension
	}
	return &hashingBackend{dimension: dimension}
}

func (h *hashingBackend) name() string { return "local-hashing" }

func (h *hashingBackend) embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *hashingBackend) vector(text string) []float32 {
	vec := make([]float64, h.dimension)
	words := strings.FieldsFunc(strings.ToUpper(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for _, w := range words {
		h.add(vec, "w:"+w, 1.0)
		padded := "^" + w + "$"
		runes := []rune(padded)
		for j := 0; j+3 <= len(runes); j++ {
			h.add(vec, "t:"+string(runes[j:j+3]), 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, h.dimension)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (h *hashingBackend) add(vec []float64, feature string, weight float64) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(feature))
	sum := hasher.Sum64()
	idx := int(sum % uint64(h.dimension))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}
