package make_cache

import (
	"bufio"
	"bytes"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/meysamhadeli/unitcache/models"
)

// Sentinel compiler names substituted for CC and CXX so the compile line of
// interest can be picked out of the dry-run output.
const (
	CCSentinel  = "__unitcache_cc__"
	CXXSentinel = "__unitcache_cxx__"
)

// FindCompilerLine returns the first line of output that invokes one of the
// sentinel compilers, the text following the sentinel, and whether it was
// the C++ sentinel.
func FindCompilerLine(output []byte) (args string, cxx bool, ok bool) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, CCSentinel); i >= 0 {
			return line[i+len(CCSentinel):], false, true
		}
		if i := strings.Index(line, CXXSentinel); i >= 0 {
			return line[i+len(CXXSentinel):], true, true
		}
	}
	return "", false, false
}

// ParseCompilerArgs tokenizes the arguments of a captured compiler
// invocation and normalizes them. Relative include paths are resolved
// against dir, the directory the command ran in.
func ParseCompilerArgs(args string, cxx bool, dir string) (models.FlagSet, error) {
	words, err := shellquote.Split(args)
	if err != nil {
		return nil, err
	}
	flags := NormalizeFlags(words, dir)
	if cxx && !hasLanguage(flags) {
		flags = append(models.FlagSet{"-xc++"}, flags...)
	}
	return flags, nil
}

func hasLanguage(flags models.FlagSet) bool {
	for _, f := range flags {
		if strings.HasPrefix(f, "-x") {
			return true
		}
	}
	return false
}

// NormalizeFlags keeps the flags that influence parsing (-I, -D, -x, -std=,
// -f*, -W*, -m*) and drops everything else. Include paths become absolute.
func NormalizeFlags(words []string, dir string) models.FlagSet {
	flags := models.FlagSet{}
	for i := 0; i < len(words); i++ {
		w := words[i]
		switch {
		case w == "-I":
			if i+1 < len(words) {
				i++
				flags = append(flags, "-I"+resolveInclude(words[i], dir))
			}
		case strings.HasPrefix(w, "-I"):
			flags = append(flags, "-I"+resolveInclude(w[2:], dir))
		case w == "-D":
			if i+1 < len(words) {
				i++
				flags = append(flags, "-D"+words[i])
			}
		case w == "-x":
			if i+1 < len(words) {
				i++
				flags = append(flags, "-x"+words[i])
			}
		case len(w) > 2 && (strings.HasPrefix(w, "-D") ||
			strings.HasPrefix(w, "-x") ||
			strings.HasPrefix(w, "-f") ||
			strings.HasPrefix(w, "-W") ||
			strings.HasPrefix(w, "-m")),
			strings.HasPrefix(w, "-std="):
			flags = append(flags, w)
		}
	}
	return flags
}

func resolveInclude(path, dir string) string {
	if path == "" || filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}
