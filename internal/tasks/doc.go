// Package tasks reads time-tagged checklist items from a folder of Markdown
// notes and marks them done in place.
//
// A task line looks like:
//
//	- [ ] ⏫ Write report [startTime:: 09:00] [endTime:: 10:30]
//
// The date comes from the first YYYY-MM-DD in the file name.
package tasks
