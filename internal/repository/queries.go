package repository

// Shared by the sqlite and postgres repositories. Placeholders are '?';
// GORM rebinds them for postgres.
const (
	noteVersionColumns = `v.id, v.version, v.title, v.content, v.created, v.modified, v.deleted`

	selectCurrentVersionOf = `
SELECT ` + noteVersionColumns + `
FROM note_versions v
WHERE v.id = ?
ORDER BY v.version DESC
LIMIT 1`

	// Per-id MAX(version) joined back to the rows; one pass over the
	// primary key index instead of a correlated scan per row.
	selectCurrentVersionsOfAll = `
SELECT ` + noteVersionColumns + `
FROM note_versions v
JOIN (
	SELECT id, MAX(version) AS version
	FROM note_versions
	GROUP BY id
) latest ON latest.id = v.id AND latest.version = v.version
WHERE v.deleted = ?
ORDER BY v.id`

	selectHistoryOf = `
SELECT ` + noteVersionColumns + `
FROM note_versions v
WHERE v.id = ?
ORDER BY v.version`

	selectLatestVersionNumber = `
SELECT COALESCE(MAX(version), 0)
FROM note_versions
WHERE id = ?`

	insertNoteVersion = `
INSERT INTO note_versions (id, version, title, content, created, modified, deleted)
VALUES (?, ?, ?, ?, ?, ?, ?)`
)
