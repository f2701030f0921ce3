// Package reminder is the scheduling and deduplication engine.
//
// It turns tasks (start/end instants) into reminder triggers, decides which
// triggers are due, dispatches them through a Deliverer exactly once per
// (task id, trigger key) and retracts reminders made obsolete by a later
// lifecycle stage. Reading tasks and talking to a chat platform are injected
// through TaskSource and Deliverer.
package reminder
