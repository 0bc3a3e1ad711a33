package series

import (
	"fmt"
	"hash/fnv"

	"github.com/wonny/portfolioviz/internal/contracts"
)

// Normalized is the weight series ready for the stacked chart
type Normalized struct {
	Rows    []contracts.WeightRecord `json:"rows"`
	Keys    []string                 `json:"keys"`
	Colors  map[string]string        `json:"colors"`
	Dropped []string                 `json:"dropped,omitempty"` // keys seen only after the first record
}

// Normalize derives the series keys from the first record and colours them.
// Rows are passed through unchanged.
// ⭐ SSOT: 첫 번째 레코드의 키 순서가 스키마
func Normalize(records []contracts.WeightRecord) Normalized {
	keys := Keys(records)

	out := Normalized{
		Rows:   records,
		Keys:   keys,
		Colors: Palette(keys),
	}
	if out.Rows == nil {
		out.Rows = []contracts.WeightRecord{}
	}

	if len(records) > 1 {
		known := make(map[string]bool, len(keys))
		for _, k := range keys {
			known[k] = true
		}
		for _, rec := range records[1:] {
			for _, k := range rec.Keys {
				if !known[k] {
					known[k] = true
					out.Dropped = append(out.Dropped, k)
				}
			}
		}
	}

	return out
}

// Keys returns the first record's keys in order, excluding the date field
func Keys(records []contracts.WeightRecord) []string {
	if len(records) == 0 {
		return []string{}
	}

	keys := make([]string, 0, len(records[0].Keys))
	for _, k := range records[0].Keys {
		if k == contracts.DateField {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// ColorFor maps a key to a fixed #rrggbb colour
func ColorFor(key string) string {
	return hexColor(hashKey(key))
}

// Palette colours every key. Keys whose colours collide are re-hashed with a probe
// suffix until unique, so the result depends only on the ordered key set.
func Palette(keys []string) map[string]string {
	colors := make(map[string]string, len(keys))
	used := make(map[string]bool, len(keys))

	for _, k := range keys {
		c := ColorFor(k)
		for probe := 1; used[c]; probe++ {
			c = hexColor(hashKey(fmt.Sprintf("%s#%d", k, probe)))
		}
		used[c] = true
		colors[k] = c
	}
	return colors
}

func hashKey(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

func hexColor(h uint32) string {
	return fmt.Sprintf("#%06x", h&0xffffff)
}
