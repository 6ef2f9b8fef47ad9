// Package events defines the lifecycle-transition record shared by the
// status feed (wsapi) and the audit ledger (audit): one flat struct that
// describes any job transition either sink needs to report, rather than a
// struct per business object.
package events

import "time"

// JobEvent records a single lifecycle transition of a Job for an observer
// that is not part of the pipeline itself. Producing one never blocks, and
// never fails, the stage that emits it.
type JobEvent struct {
	JobID      string
	Status     string
	Format     string
	Printers   int
	Message    string
	OccurredAt time.Time
}
