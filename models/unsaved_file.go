package models

// UnsavedFile is a snapshot of editor content that differs from disk.
// Values handed out by the store own their Content slice.
type UnsavedFile struct {
	File     FileIdentity
	Content  []byte
	TempPath string
	Sequence int64
}

// Clone returns a copy that shares no memory with f.
func (f UnsavedFile) Clone() UnsavedFile {
	c := f
	if f.Content != nil {
		c.Content = append([]byte(nil), f.Content...)
	}
	return c
}
