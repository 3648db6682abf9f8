package exercises

// FieldKind names one of the measurement fields a set can carry.
type FieldKind string

const (
	FieldReps        FieldKind = "reps"
	FieldWeight      FieldKind = "weight"
	FieldDurationSec FieldKind = "durationSec"
	FieldDistanceM   FieldKind = "distanceM"
	FieldIntervals   FieldKind = "intervals"
	FieldWorkSec     FieldKind = "workSec"
	FieldRestSec     FieldKind = "restSec"
	FieldNotes       FieldKind = "notes"
)

// LegalFields derives the ordered list of set fields legal for the
// given capabilities. Notes are always legal.
func LegalFields(caps Capabilities) []FieldKind {
	fields := make([]FieldKind, 0, 8)
	if caps.HasReps {
		fields = append(fields, FieldReps)
	}
	if caps.HasLoad {
		fields = append(fields, FieldWeight)
	}
	if caps.HasDuration {
		fields = append(fields, FieldDurationSec, FieldDistanceM)
	}
	if caps.HasIntervals {
		fields = append(fields, FieldIntervals, FieldWorkSec, FieldRestSec)
	}
	fields = append(fields, FieldNotes)
	return fields
}

// Allows reports whether a field is legal for the given capabilities.
func (caps Capabilities) Allows(field FieldKind) bool {
	switch field {
	case FieldReps:
		return caps.HasReps
	case FieldWeight:
		return caps.HasLoad
	case FieldDurationSec, FieldDistanceM:
		return caps.HasDuration
	case FieldIntervals, FieldWorkSec, FieldRestSec:
		return caps.HasIntervals
	case FieldNotes:
		return true
	}
	return false
}
