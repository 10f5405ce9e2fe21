package edgar

import (
	"path"
	"time"
)

// Entry is one filing row of a period's manifest. Downloaded is the only
// field that mutates after creation; it flips to true once the document has
// been persisted and verified on disk.
type Entry struct {
	CIK         string
	CompanyName string
	FormType    string
	DateFiled   time.Time
	Filename    string
	Downloaded  bool
}

// Key uniquely identifies an entry within its period.
func (e Entry) Key() string {
	return e.CIK + "|" + e.Filename
}

// DocumentName is the local file name for the filing, the last element of
// the remote path.
func (e Entry) DocumentName() string {
	return path.Base(e.Filename)
}
