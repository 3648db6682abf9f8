package workouts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/heracles-fit/heracles/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

var ErrWorkoutNotFound = errors.New("workout not found")

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// Create inserts the workout row and its whole item tree in one
// transaction. Order indexes are re-derived from slice positions,
// client-sent values are ignored.
func (r *Repo) Create(ctx context.Context, workout Workout) (workoutID int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = fmt.Errorf("failed to rollback transaction: %w: %w", rollbackErr, err)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
		INSERT INTO workouts (user_id, date, title, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`,
		workout.UserID,
		workout.Date,
		workout.Title,
		workout.Notes,
		time.Now(),
	).Scan(&workoutID)
	if err != nil {
		return 0, fmt.Errorf("insert workout: %w", err)
	}

	if err = r.insertItems(ctx, tx, workoutID, workout.Items); err != nil {
		return 0, err
	}

	span.SetAttributes(attribute.Int("workout.id", workoutID))
	return workoutID, nil
}

// Replace updates the workout scalars, then destroys and rebuilds the
// entire item subtree. Child ids are regenerated on every replace,
// external references to item/set ids do not survive an edit.
func (r *Repo) Replace(ctx context.Context, workout Workout) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.replace")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("workout.id", workout.ID))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = fmt.Errorf("failed to rollback transaction: %w: %w", rollbackErr, err)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE workouts SET date = $1, title = $2, notes = $3
		WHERE id = $4
	`,
		workout.Date, workout.Title, workout.Notes, workout.ID,
	)
	if err != nil {
		return fmt.Errorf("update workout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWorkoutNotFound
	}

	if err = r.deleteItemTree(ctx, tx, workout.ID); err != nil {
		return err
	}

	return r.insertItems(ctx, tx, workout.ID, workout.Items)
}

// Delete removes the item tree and the workout row, transactionally.
func (r *Repo) Delete(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("workout.id", id))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = fmt.Errorf("failed to rollback transaction: %w: %w", rollbackErr, err)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()

	if err = r.deleteItemTree(ctx, tx, id); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM workouts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWorkoutNotFound
	}
	return nil
}

// Get reconstructs the full workout tree.
func (r *Repo) Get(ctx context.Context, id int) (_ *Workout, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("workout.id", id))

	var workout Workout
	var createdAt time.Time
	err = r.db.QueryRow(ctx, `
		SELECT id, user_id, date, title, notes, created_at
		FROM workouts WHERE id = $1
	`, id).Scan(&workout.ID, &workout.UserID, &workout.Date, &workout.Title, &workout.Notes, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWorkoutNotFound
	} else if err != nil {
		return nil, err
	}
	workout.CreatedAt = &createdAt

	items, err := r.loadItems(ctx, workout.ID)
	if err != nil {
		return nil, err
	}
	workout.Items = items

	return &workout, nil
}

// ListByUser returns the user's workouts without item trees, newest
// first, optionally filtered by an inclusive date range.
func (r *Repo) ListByUser(ctx context.Context, userID int, from, to string) (_ []Workout, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.listbyuser")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, date, title, notes, created_at
		FROM workouts
		WHERE user_id = $1
			AND ($2::text = '' OR date >= $2)
			AND ($3::text = '' OR date <= $3)
		ORDER BY date DESC, id DESC
	`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return r.rows2workouts(rows)
}

// ListTrees returns all the user's workouts with their full item
// trees, date ascending. Feeds the statistics walk.
func (r *Repo) ListTrees(ctx context.Context, userID int) (_ []Workout, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.listtrees")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, date, title, notes, created_at
		FROM workouts
		WHERE user_id = $1
		ORDER BY date ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	workouts, err := r.rows2workouts(rows)
	if err != nil {
		return nil, err
	}

	for i := range workouts {
		items, err := r.loadItems(ctx, workouts[i].ID)
		if err != nil {
			return nil, err
		}
		workouts[i].Items = items
	}

	return workouts, nil
}

// ExerciseNames returns the distinct exercise names a workout touches,
// direct items first, then group items, in first-encounter order.
// Dangling exercise refs simply produce no name.
func (r *Repo) ExerciseNames(ctx context.Context, workoutID int) (_ []string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.exercisenames")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("workout.id", workoutID))

	names := make([]string, 0)
	seen := make(map[string]bool)
	collect := func(rows pgx.Rows) error {
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
		return rows.Err()
	}

	directRows, err := r.db.Query(ctx, `
		SELECT e.name
		FROM workout_items wi
		JOIN exercises e ON e.id = wi.exercise_id
		WHERE wi.workout_id = $1 AND wi.item_type = 'exercise'
		ORDER BY wi.order_index ASC
	`, workoutID)
	if err != nil {
		return nil, fmt.Errorf("query direct items: %w", err)
	}
	if err := collect(directRows); err != nil {
		return nil, err
	}

	groupRows, err := r.db.Query(ctx, `
		SELECT e.name
		FROM group_items gi
		JOIN workout_items wi ON wi.id = gi.workout_item_id
		JOIN exercises e ON e.id = gi.exercise_id
		WHERE wi.workout_id = $1
		ORDER BY wi.order_index ASC, gi.order_index ASC
	`, workoutID)
	if err != nil {
		return nil, fmt.Errorf("query group items: %w", err)
	}
	if err := collect(groupRows); err != nil {
		return nil, err
	}

	return names, nil
}

// ProgressionRow is one (date, set) pair for a single exercise,
// gathered via left join. SetID is nil for items with zero sets.
type ProgressionRow struct {
	Date        string
	SetID       *int
	Weight      *float64
	Reps        *int
	DurationSec *int
}

// ProgressionRows gathers every set of the user referencing the given
// exercise, both from direct items and through group items.
func (r *Repo) ProgressionRows(ctx context.Context, userID, exerciseID int) (_ []ProgressionRow, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.progressionrows")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))
	span.SetAttributes(attribute.Int("exercise.id", exerciseID))

	var progressionRows []ProgressionRow
	collect := func(rows pgx.Rows) error {
		defer rows.Close()
		for rows.Next() {
			var row ProgressionRow
			if err := rows.Scan(&row.Date, &row.SetID, &row.Weight, &row.Reps, &row.DurationSec); err != nil {
				return err
			}
			progressionRows = append(progressionRows, row)
		}
		return rows.Err()
	}

	directRows, err := r.db.Query(ctx, `
		SELECT w.date, s.id, s.weight, s.reps, s.duration_sec
		FROM workout_items wi
		JOIN workouts w ON w.id = wi.workout_id
		LEFT JOIN sets s ON s.workout_item_id = wi.id
		WHERE w.user_id = $1 AND wi.exercise_id = $2
	`, userID, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("query direct sets: %w", err)
	}
	if err := collect(directRows); err != nil {
		return nil, err
	}

	groupRows, err := r.db.Query(ctx, `
		SELECT w.date, s.id, s.weight, s.reps, s.duration_sec
		FROM group_items gi
		JOIN workout_items wi ON wi.id = gi.workout_item_id
		JOIN workouts w ON w.id = wi.workout_id
		LEFT JOIN sets s ON s.group_item_id = gi.id
		WHERE w.user_id = $1 AND gi.exercise_id = $2
	`, userID, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("query grouped sets: %w", err)
	}
	if err := collect(groupRows); err != nil {
		return nil, err
	}

	return progressionRows, nil
}

// DeleteAllForUser tears down every workout tree owned by the user.
// Runs inside the caller's transaction, used by the user cascade.
func DeleteAllForUser(ctx context.Context, tx pgx.Tx, userID int) error {
	if _, err := tx.Exec(ctx, `
		DELETE FROM sets WHERE workout_item_id IN (
			SELECT wi.id FROM workout_items wi
			JOIN workouts w ON w.id = wi.workout_id
			WHERE w.user_id = $1
		) OR group_item_id IN (
			SELECT gi.id FROM group_items gi
			JOIN workout_items wi ON wi.id = gi.workout_item_id
			JOIN workouts w ON w.id = wi.workout_id
			WHERE w.user_id = $1
		)
	`, userID); err != nil {
		return fmt.Errorf("delete sets: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM group_items WHERE workout_item_id IN (
			SELECT wi.id FROM workout_items wi
			JOIN workouts w ON w.id = wi.workout_id
			WHERE w.user_id = $1
		)
	`, userID); err != nil {
		return fmt.Errorf("delete group items: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM workout_items WHERE workout_id IN (
			SELECT id FROM workouts WHERE user_id = $1
		)
	`, userID); err != nil {
		return fmt.Errorf("delete workout items: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM workouts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete workouts: %w", err)
	}

	return nil
}

func (r *Repo) insertItems(ctx context.Context, tx pgx.Tx, workoutID int, items []WorkoutItem) error {
	for itemIndex, item := range items {
		var workoutItemID int
		err := tx.QueryRow(ctx, `
			INSERT INTO workout_items (workout_id, item_type, exercise_id, order_index)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`,
			workoutID, item.ItemType, item.ExerciseID, itemIndex,
		).Scan(&workoutItemID)
		if err != nil {
			return fmt.Errorf("insert workout item %d: %w", itemIndex, err)
		}

		if item.ItemType.IsGroup() {
			for groupIndex, groupItem := range item.GroupItems {
				var groupItemID int
				err := tx.QueryRow(ctx, `
					INSERT INTO group_items (workout_item_id, exercise_id, order_index)
					VALUES ($1, $2, $3)
					RETURNING id
				`,
					workoutItemID, groupItem.ExerciseID, groupIndex,
				).Scan(&groupItemID)
				if err != nil {
					return fmt.Errorf("insert group item %d/%d: %w", itemIndex, groupIndex, err)
				}

				for _, set := range groupItem.Sets {
					if err := insertSet(ctx, tx, nil, &groupItemID, set); err != nil {
						return err
					}
				}
			}
			continue
		}

		for _, set := range item.Sets {
			if err := insertSet(ctx, tx, &workoutItemID, nil, set); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertSet(ctx context.Context, tx pgx.Tx, workoutItemID, groupItemID *int, set Set) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO sets
			(workout_item_id, group_item_id, reps, weight, duration_sec, distance_m,
			 intervals, work_sec, rest_sec, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		workoutItemID, groupItemID,
		set.Reps, set.Weight, set.DurationSec, set.DistanceM,
		set.Intervals, set.WorkSec, set.RestSec, set.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert set: %w", err)
	}
	return nil
}

// deleteItemTree removes, in dependency order, everything beneath a
// workout: sets, then group items, then workout items.
func (r *Repo) deleteItemTree(ctx context.Context, tx pgx.Tx, workoutID int) error {
	if _, err := tx.Exec(ctx, `
		DELETE FROM sets WHERE workout_item_id IN (
			SELECT id FROM workout_items WHERE workout_id = $1
		) OR group_item_id IN (
			SELECT gi.id FROM group_items gi
			JOIN workout_items wi ON wi.id = gi.workout_item_id
			WHERE wi.workout_id = $1
		)
	`, workoutID); err != nil {
		return fmt.Errorf("delete sets: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM group_items WHERE workout_item_id IN (
			SELECT id FROM workout_items WHERE workout_id = $1
		)
	`, workoutID); err != nil {
		return fmt.Errorf("delete group items: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM workout_items WHERE workout_id = $1
	`, workoutID); err != nil {
		return fmt.Errorf("delete workout items: %w", err)
	}

	return nil
}

func (r *Repo) loadItems(ctx context.Context, workoutID int) ([]WorkoutItem, error) {
	itemRows, err := r.db.Query(ctx, `
		SELECT id, item_type, exercise_id, order_index
		FROM workout_items
		WHERE workout_id = $1
		ORDER BY order_index ASC
	`, workoutID)
	if err != nil {
		return nil, fmt.Errorf("query workout items: %w", err)
	}

	items := make([]WorkoutItem, 0)
	for itemRows.Next() {
		var item WorkoutItem
		if err := itemRows.Scan(&item.ID, &item.ItemType, &item.ExerciseID, &item.OrderIndex); err != nil {
			itemRows.Close()
			return nil, err
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		itemRows.Close()
		return nil, err
	}
	itemRows.Close()

	for i := range items {
		if items[i].ItemType.IsGroup() {
			groupItems, err := r.loadGroupItems(ctx, items[i].ID)
			if err != nil {
				return nil, err
			}
			items[i].GroupItems = groupItems
			continue
		}

		sets, err := r.querySets(ctx, setsByWorkoutItem, items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].Sets = sets
	}

	return items, nil
}

func (r *Repo) loadGroupItems(ctx context.Context, workoutItemID int) ([]GroupItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, exercise_id, order_index
		FROM group_items
		WHERE workout_item_id = $1
		ORDER BY order_index ASC
	`, workoutItemID)
	if err != nil {
		return nil, fmt.Errorf("query group items: %w", err)
	}

	groupItems := make([]GroupItem, 0)
	for rows.Next() {
		var groupItem GroupItem
		if err := rows.Scan(&groupItem.ID, &groupItem.ExerciseID, &groupItem.OrderIndex); err != nil {
			rows.Close()
			return nil, err
		}
		groupItems = append(groupItems, groupItem)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range groupItems {
		sets, err := r.querySets(ctx, setsByGroupItem, groupItems[i].ID)
		if err != nil {
			return nil, err
		}
		groupItems[i].Sets = sets
	}

	return groupItems, nil
}

const (
	setsByWorkoutItem = `
		SELECT id, reps, weight, duration_sec, distance_m, intervals, work_sec, rest_sec, notes
		FROM sets
		WHERE workout_item_id = $1
		ORDER BY id ASC`
	setsByGroupItem = `
		SELECT id, reps, weight, duration_sec, distance_m, intervals, work_sec, rest_sec, notes
		FROM sets
		WHERE group_item_id = $1
		ORDER BY id ASC`
)

func (r *Repo) querySets(ctx context.Context, query string, parentID int) ([]Set, error) {
	rows, err := r.db.Query(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("query sets: %w", err)
	}
	defer rows.Close()

	sets := make([]Set, 0)
	for rows.Next() {
		var set Set
		if err := rows.Scan(
			&set.ID, &set.Reps, &set.Weight, &set.DurationSec, &set.DistanceM,
			&set.Intervals, &set.WorkSec, &set.RestSec, &set.Notes,
		); err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sets, nil
}

func (r *Repo) rows2workouts(rows pgx.Rows) ([]Workout, error) {
	var workouts []Workout
	for rows.Next() {
		var workout Workout
		var createdAt time.Time
		if err := rows.Scan(
			&workout.ID, &workout.UserID, &workout.Date, &workout.Title, &workout.Notes, &createdAt,
		); err != nil {
			return nil, err
		}
		workout.CreatedAt = &createdAt
		workouts = append(workouts, workout)
	}

	if workouts == nil {
		workouts = make([]Workout, 0)
	}

	return workouts, nil
}
