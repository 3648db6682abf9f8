package workouts

import (
	"fmt"
	"strings"
)

// FieldErrors maps payload field paths (e.g. "items[2].exerciseId")
// to what is wrong with them.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for field, msg := range fe {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return "invalid payload: " + strings.Join(parts, "; ")
}

// ValidatePayload runs the structural checks a payload must pass
// before any row is written. Returns nil when the payload is valid.
func ValidatePayload(payload Payload) FieldErrors {
	fieldErrors := FieldErrors{}

	if payload.Date == "" {
		fieldErrors["date"] = "date is required"
	}

	for i, item := range payload.Items {
		itemPath := fmt.Sprintf("items[%d]", i)

		if !item.ItemType.Valid() {
			fieldErrors[itemPath+".itemType"] = "unknown item type"
			continue
		}

		if item.ItemType == ItemTypeExercise {
			if item.ExerciseID == nil || *item.ExerciseID <= 0 {
				fieldErrors[itemPath+".exerciseId"] = "exercise items require an exercise id"
			}
			if len(item.GroupItems) > 0 {
				fieldErrors[itemPath+".groupItems"] = "exercise items cannot have group items"
			}
			continue
		}

		// superset / circuit
		if item.ExerciseID != nil {
			fieldErrors[itemPath+".exerciseId"] = "group items carry exercise ids, not the group itself"
		}
		if len(item.Sets) > 0 {
			fieldErrors[itemPath+".sets"] = "groups cannot own sets directly"
		}
		for j, groupItem := range item.GroupItems {
			if groupItem.ExerciseID <= 0 {
				fieldErrors[fmt.Sprintf("%s.groupItems[%d].exerciseId", itemPath, j)] = "group items require an exercise id"
			}
		}
	}

	if len(fieldErrors) == 0 {
		return nil
	}
	return fieldErrors
}
