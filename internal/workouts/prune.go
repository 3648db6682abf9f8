package workouts

import "github.com/heracles-fit/heracles/internal/exercises"

// PruneSet drops every populated measurement field that is not legal
// for the given capabilities. Pruning, not rejection: clients holding
// a stale flag snapshot may send extraneous fields, storage stays
// consistent regardless.
func PruneSet(set Set, caps exercises.Capabilities) Set {
	if !caps.Allows(exercises.FieldReps) {
		set.Reps = nil
	}
	if !caps.Allows(exercises.FieldWeight) {
		set.Weight = nil
	}
	if !caps.Allows(exercises.FieldDurationSec) {
		set.DurationSec = nil
	}
	if !caps.Allows(exercises.FieldDistanceM) {
		set.DistanceM = nil
	}
	if !caps.Allows(exercises.FieldIntervals) {
		set.Intervals = nil
	}
	if !caps.Allows(exercises.FieldWorkSec) {
		set.WorkSec = nil
	}
	if !caps.Allows(exercises.FieldRestSec) {
		set.RestSec = nil
	}
	return set
}
