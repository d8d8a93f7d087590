package plates

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	DefaultPrefix = "CAT"
	DefaultTarget = "CAT-2533"
	DefaultFrom   = 896
	DefaultTo     = 9999
)

// Format renders a plate number as PREFIX-NNNN.
func Format(prefix string, n int) string {
	return fmt.Sprintf("%s-%04d", prefix, n)
}

// Generate lists every plate in [from, to] the site may hand out, numbers
// containing the digit 4 are never issued.
func Generate(prefix string, from, to int) []string {
	out := []string{}
	for i := from; i <= to; i++ {
		digits := fmt.Sprintf("%04d", i)
		if strings.ContainsRune(digits, '4') {
			continue
		}
		out = append(out, prefix+"-"+digits)
	}
	return out
}

// Normalize pulls every PREFIX-N occurrence out of arbitrary text and returns
// them de-duplicated, sorted by number and zero padded.
func Normalize(raw []byte, prefix string) []string {
	pattern := regexp.MustCompile(regexp.QuoteMeta(prefix) + `-(\d{1,4})`)

	seen := map[int]bool{}
	nums := []int{}
	for _, m := range pattern.FindAllSubmatch(raw, -1) {
		n, err := strconv.Atoi(string(m[1]))
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		nums = append(nums, n)
	}
	sort.Ints(nums)

	out := make([]string, len(nums))
	for i, n := range nums {
		out[i] = Format(prefix, n)
	}
	return out
}

// Encode renders the list as a JSON array with ten plates per line.
func Encode(list []string) []byte {
	var buf bytes.Buffer
	buf.WriteString("[\n")
	for i := 0; i < len(list); i += 10 {
		end := min(i+10, len(list))
		items := make([]string, 0, end-i)
		for _, p := range list[i:end] {
			quoted, _ := json.Marshal(p)
			items = append(items, string(quoted))
		}
		buf.WriteString("  ")
		buf.WriteString(strings.Join(items, ", "))
		if end < len(list) {
			buf.WriteString(",")
		}
		buf.WriteString("\n")
	}
	buf.WriteString("]\n")
	return buf.Bytes()
}

// WriteFile replaces path with the encoded list. The new contents are
// written to a temporary file and validated before the rename, the first
// replaced version is kept as <path>.bak.
func WriteFile(path string, list []string) error {
	encoded := Encode(list)
	var check []string
	if err := json.Unmarshal(encoded, &check); err != nil {
		return fmt.Errorf("encode reference list: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0644); err != nil {
		return err
	}

	bak := path + ".bak"
	_, err := os.Stat(bak)
	if errors.Is(err, os.ErrNotExist) {
		err = os.Rename(path, bak)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return os.Rename(tmp, path)
}
