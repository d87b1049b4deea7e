// Package cachekey fingerprints capture requests so identical captures
// can be served from the artifact cache
package cachekey

import (
	"encoding/json"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

const prefix = "artifact:"

// Fingerprint hashes every field that changes the artifact. Output
// path, verbosity and error policy do not.
func Fingerprint(req types.CaptureRequest) (string, error) {
	req.Output = ""
	req.Verbose = false
	req.Silent = false
	req.Policy = types.PolicyWarn

	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16), nil
}

// Key returns the Redis key for a request
func Key(req types.CaptureRequest) (string, error) {
	fp, err := Fingerprint(req)
	if err != nil {
		return "", err
	}
	return prefix + string(req.Format) + ":" + fp, nil
}
