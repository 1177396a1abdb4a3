// Package version checks the published releases for a newer build.
package version

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	releaseURL   = "https://api.github.com/repos/studiowebux/loadcheck/releases/latest"
	checkTimeout = 5 * time.Second
)

type release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// CheckForUpdate queries the latest published release and reports whether
// it is newer than the running build
func CheckForUpdate(current string) (available bool, latest string, url string, err error) {
	client := &http.Client{Timeout: checkTimeout}

	req, err := http.NewRequest(http.MethodGet, releaseURL, nil)
	if err != nil {
		return false, "", "", err
	}
	req.Header.Set("User-Agent", "loadcheck/"+current)

	resp, err := client.Do(req)
	if err != nil {
		return false, "", "", fmt.Errorf("failed to fetch latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, "", "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return false, "", "", fmt.Errorf("failed to decode release: %w", err)
	}

	latest = strings.TrimPrefix(rel.TagName, "v")
	current = strings.TrimPrefix(current, "v")

	return latest != "" && compare(latest, current) > 0, latest, rel.HTMLURL, nil
}

// compare orders two dotted version strings: 1 when a > b, -1 when a < b,
// 0 when equal. Pre-release and build suffixes are ignored.
func compare(a, b string) int {
	pa, pb := parts(a), parts(b)
	for len(pa) < len(pb) {
		pa = append(pa, 0)
	}
	for len(pb) < len(pa) {
		pb = append(pb, 0)
	}

	for i := range pa {
		if pa[i] != pb[i] {
			if pa[i] > pb[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

func parts(version string) []int {
	if idx := strings.IndexAny(version, "-+"); idx != -1 {
		version = version[:idx]
	}

	segments := strings.Split(version, ".")
	result := make([]int, 0, len(segments))
	for _, segment := range segments {
		if n, err := strconv.Atoi(segment); err == nil {
			result = append(result, n)
		}
	}
	return result
}
