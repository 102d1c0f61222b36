package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by the sqlite and postgres backends, one row per bucket.
var Buckets = []string{"zones", "elements", "snapshots", "aliases", "counters", "selection"}

func (s *Snapshot) bucketTarget(bucket string) any {
	switch bucket {
	case "zones":
		return &s.Zones
	case "elements":
		return &s.Elements
	case "snapshots":
		return &s.Snapshots
	case "aliases":
		return &s.Aliases
	case "counters":
		return &s.Counters
	case "selection":
		return &s.Selection
	}
	return nil
}

// EncodeBuckets marshals every bucket of s to JSON.
func EncodeBuckets(s Snapshot) (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		data, err := json.Marshal(s.bucketTarget(bucket))
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBucket unmarshals payload into the matching field of s. Unknown
// buckets and empty payloads are ignored.
func DecodeBucket(s *Snapshot, bucket string, payload []byte) error {
	target := s.bucketTarget(bucket)
	if target == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
