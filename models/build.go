package models

import "path/filepath"

// BuildTarget is a build-system target that mentions a source file.
type BuildTarget struct {
	Subdir string
	Target string
}

// Dir returns the target's directory below buildDir.
func (t BuildTarget) Dir(buildDir string) string {
	if t.Subdir == "" || t.Subdir == "." {
		return buildDir
	}
	return filepath.Join(buildDir, t.Subdir)
}

func (t BuildTarget) String() string {
	if t.Subdir == "" {
		return t.Target
	}
	return t.Subdir + "/" + t.Target
}

// FlagSet is the ordered list of compiler flags used to build one file.
// An empty FlagSet means "use the compiler defaults".
type FlagSet []string

func (f FlagSet) Clone() FlagSet {
	if f == nil {
		return nil
	}
	return append(FlagSet(nil), f...)
}
