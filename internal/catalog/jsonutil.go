package catalog

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"sort"
)

func encodeStrings(ss []string) string {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var ss []string
	_ = json.Unmarshal([]byte(raw), &ss)
	return ss
}

func encodeMap(m map[string]any) string {
	if m == nil {
		m = map[string]any{}
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func decodeMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	m := map[string]any{}
	_ = json.Unmarshal([]byte(raw), &m)
	return m
}

// packVector encodes a float32 vector as a little-endian blob for the
// sqlite backend, which has no native vector column type.
func packVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func unpackVector(buf []byte) []float32 {
	n := len(buf) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// unionTags computes the deterministic, sorted union of several tag sets,
// backing the pad.cell_tags == union(cell tags) invariant (spec §3, #3).
func unionTags(sets ...[]string) []string {
	seen := map[string]bool{}
	for _, s := range sets {
		for _, t := range s {
			seen[t] = true
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// tagsIntersect reports whether a and b share at least one element. An
// empty b is treated as "no filter" and matches any a.
func tagsIntersect(a, b []string) bool {
	if len(b) == 0 {
		return true
	}
	set := map[string]bool{}
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		if set[t] {
			return true
		}
	}
	return false
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
