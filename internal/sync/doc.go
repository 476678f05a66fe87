// Package sync reconciles a user's local projects, sections and tasks with
// their Todoist account.
//
// A reconciliation pulls the full remote state and merges it into the local
// store in three ordered passes:
//
//  1. Projects, keyed by (Todoist id, user)
//  2. Sections, keyed by (Todoist id, local project); sections whose project
//     is not known locally are skipped
//  3. Tasks, keyed by (Todoist id, user); unresolved project or section
//     references import the task without them
//
// Each remote entity either updates the local row linked to it or is
// imported as a new local row. Nothing is ever deleted. Any fetch or write
// failure aborts the run with an error wrapping apperr.ErrInternal; rows
// committed before the failure stay committed.
//
// Concurrent SyncAll calls for the same user share a single run and its
// result. Calls for different users run independently.
package sync
