// Package storage owns the on-disk layout of an export.
//
// An export lives in scrapped_precise_<username>_<host>/ under the
// configured base directory and holds the JSON documents plus a media/
// folder. Every write goes through WriteAtomic (temporary file, fsync,
// rename) so an interrupted job never leaves a truncated document behind.
//
//	m, err := storage.NewManager(".", "alice", "example.social")
//	err = storage.WriteJSON(m.Path(storage.ProfileFile), profile)
//	err = m.SaveMedia(body, "110_7.png")
package storage
