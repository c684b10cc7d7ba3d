package make_cache

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/meysamhadeli/unitcache/models"
)

var subdirPattern = regexp.MustCompile(`^subdir\s*:?=\s*(\S*)\s*$`)

// targetPattern matches rule lines whose prerequisites name basename.
func targetPattern(basename string) *regexp.Regexp {
	return regexp.MustCompile(`^([^\s:#=%.][^\s:=%]*)\s*::?(?:[^=].*)?(?:^|[\s/])` + regexp.QuoteMeta(basename) + `(?:\s|$)`)
}

// ScanTargets walks a make database and returns, in order of appearance, the
// deduplicated targets whose prerequisites reference basename. Each target is
// qualified by the closest preceding "subdir = X" assignment.
func ScanTargets(data []byte, basename string) []models.BuildTarget {
	if basename == "" {
		return nil
	}
	re := targetPattern(basename)
	needle := []byte(basename)

	var (
		subdir  string
		targets []models.BuildTarget
		seen    = make(map[models.BuildTarget]struct{})
	)

	for len(data) > 0 {
		var line []byte
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			line, data = data, nil
		}

		if bytes.HasPrefix(line, []byte("subdir")) {
			if m := subdirPattern.FindSubmatch(line); m != nil {
				subdir = strings.TrimPrefix(string(m[1]), "./")
				if subdir == "." {
					subdir = ""
				}
				continue
			}
		}
		if !bytes.Contains(line, needle) {
			continue
		}
		m := re.FindSubmatch(line)
		if m == nil {
			continue
		}
		t := models.BuildTarget{Subdir: subdir, Target: string(m[1])}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		targets = append(targets, t)
	}
	return targets
}
