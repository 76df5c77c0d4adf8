// Package weekly implements the weekly campaign state machine.
//
// A WeeklyRun moves forward through pending, generated, locked and sent.
// Tick is the single clock-driven entry point: it ensures the run for the
// current week exists and then advances whichever of the generate, lock and
// send stages are due at that minute. Every stage is idempotent, so repeated
// or overlapping ticks never duplicate candidates, sends or deliveries.
//
// Correctness under overlap relies on the repository's uniqueness rules
// (week_of; weekly_run_id+funnel_stage; weekly_run_id+candidate_id;
// send_id+contact_id) and on conditional updates, never on in-process locks.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package weekly
