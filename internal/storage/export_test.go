package storage

// SetAfterInsertConflict installs a hook that runs after MergeSelectionLog
// finds an existing row and before it merges into it.
func (db *DB) SetAfterInsertConflict(f func()) {
	db.afterInsertConflict = f
}
