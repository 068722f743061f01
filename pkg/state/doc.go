// Package state persists detached realizations so ensembles can be restored
// without the directories they were read from.
//
// Responsibilities:
//   - Store only loads/saves the datasets of a single realization for a
//     single Ref.
//   - Archiver saves and restores whole ensembles through a Store and reports
//     each save as an ensemble.persisted activity event.
//   - Marshal/Unmarshal render one realization as a single YAML document.
//
// Deterministic keys:
//
//	Ref.Identifier() provides the canonical storage key
//	`<ensemble>/realization-<index>`. DirStore uses it as a relative
//	directory, the sqlite store as its primary key.
//
// Every dataset is written with its schema (form plus column kinds), so a
// reload never has to infer column types: Get on the restored realization
// returns what Get on the saved one returned.
package state
