package index

import "time"

// Record is one indexed file. The composite (Path, SourcePrefix) key is
// unique; a record is only written after successful normalization and
// hashing, so both hashes are always non-empty.
type Record struct {
	Path           string
	SourcePrefix   string
	Format         string
	Width          int
	Height         int
	CreatedAt      time.Time
	ModifiedAt     time.Time // filesystem mtime observed at last (re)index
	Size           int64
	AverageHash    string
	PerceptualHash string
	IsRawFormat    bool
	HashVersion    int
}

// UpsertOutcome reports what an upsert did with a record.
type UpsertOutcome int

const (
	Skipped UpsertOutcome = iota
	Inserted
	Updated
)

func (o UpsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "skipped"
	}
}
