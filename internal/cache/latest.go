// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"time"
)

// LatestFilename is the name of the latest-tags index inside the data directory.
const LatestFilename = "latest.json"

type (
	// LatestMetadata describes the latest-tags index.
	LatestMetadata struct {
		// LastUpdated is the write time in Unix seconds
		LastUpdated float64 `json:"last_updated"`
	}

	// LatestIndex maps a repository reference (registry/namespace/name) to
	// the concrete tag its "latest" tag pointed at.
	LatestIndex struct {
		Metadata LatestMetadata    `json:"metadata"`
		Data     map[string]string `json:"data"`
	}
)

// ReadLatest loads the index at path. A missing file yields an empty index.
func ReadLatest(path string) (*LatestIndex, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &LatestIndex{Data: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read latest index: %w", err)
	}

	var idx LatestIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("decode latest index %s: %w", path, err)
	}
	if idx.Data == nil {
		idx.Data = map[string]string{}
	}
	return &idx, nil
}

// WriteLatestIfChanged writes data to path unless the file already holds the
// same repository to tag mapping. It reports whether the file was written.
func WriteLatestIfChanged(path string, data map[string]string, now time.Time) (bool, error) {
	prev, err := ReadLatest(path)
	if err != nil {
		return false, err
	}
	if maps.Equal(prev.Data, data) {
		return false, nil
	}

	if data == nil {
		data = map[string]string{}
	}
	idx := LatestIndex{
		Metadata: LatestMetadata{LastUpdated: UnixSeconds(now)},
		Data:     data,
	}
	raw, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode latest index: %w", err)
	}
	if err := WriteFileAtomic(path, raw); err != nil {
		return false, fmt.Errorf("write latest index %s: %w", path, err)
	}
	return true, nil
}
