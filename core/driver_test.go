package core

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// recordingDriver is an in-process Driver that counts calls and keeps the
// payloads it received. Filters and updates are evaluated with MatchFilter
// and ApplyUpdate.
type recordingDriver struct {
	mutex sync.Mutex
	rows  []map[string]any
	calls map[string]int

	updates  []Update
	replaced []map[string]any

	// findDelay slows FindOne down to widen concurrent read windows.
	findDelay time.Duration
	// failWith, when set, is returned by every write.
	failWith error
}

var _ Driver = (*recordingDriver)(nil)

func newRecordingDriver(rows ...map[string]any) *recordingDriver {
	d := &recordingDriver{calls: map[string]int{}}
	for _, row := range rows {
		d.rows = append(d.rows, normalizeMap(row))
	}
	return d
}

func (d *recordingDriver) count(name string) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.calls[name]
}

func (d *recordingDriver) total() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	n := 0
	for _, c := range d.calls {
		n += c
	}
	return n
}

func (d *recordingDriver) record(name string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.calls[name]++
}

// row returns a copy of the stored row with the given id.
func (d *recordingDriver) row(id any) map[string]any {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if i := d.indexOf(id); i >= 0 {
		return cloneMap(d.rows[i])
	}
	return nil
}

func (d *recordingDriver) indexOf(id any) int {
	for i, row := range d.rows {
		if ValuesEquivalent(row[IDField], id) {
			return i
		}
	}
	return -1
}

func (d *recordingDriver) Connect(ctx context.Context) error { return nil }
func (d *recordingDriver) Ping(ctx context.Context) error    { return nil }
func (d *recordingDriver) Close(ctx context.Context) error   { return nil }

func (d *recordingDriver) Transaction(ctx context.Context) (Transaction, error) {
	d.record("transaction")
	return &recordingTransaction{}, nil
}

func (d *recordingDriver) Insert(ctx context.Context, schema *SchemaCore, document map[string]any) (any, error) {
	d.record("insert")
	if d.failWith != nil {
		return nil, d.failWith
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	row := normalizeMap(document)
	if row[IDField] == nil {
		row[IDField] = primitive.NewObjectID()
	}
	d.rows = append(d.rows, row)
	return row[IDField], nil
}

func (d *recordingDriver) InsertMany(ctx context.Context, schema *SchemaCore, documents []map[string]any) ([]any, error) {
	d.record("insertMany")
	if d.failWith != nil {
		return nil, d.failWith
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	idList := make([]any, len(documents))
	for i, document := range documents {
		row := normalizeMap(document)
		if row[IDField] == nil {
			row[IDField] = primitive.NewObjectID()
		}
		d.rows = append(d.rows, row)
		idList[i] = row[IDField]
	}
	return idList, nil
}

func (d *recordingDriver) UpdatePartial(ctx context.Context, schema *SchemaCore, id any, update Update) error {
	d.record("updatePartial")
	if d.failWith != nil {
		return d.failWith
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.updates = append(d.updates, update)
	i := d.indexOf(id)
	if i < 0 {
		return ErrNoDocumentMatched
	}
	return ApplyUpdate(d.rows[i], update)
}

func (d *recordingDriver) UpdateFull(ctx context.Context, schema *SchemaCore, id any, document map[string]any) error {
	d.record("updateFull")
	if d.failWith != nil {
		return d.failWith
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.replaced = append(d.replaced, cloneMap(document))
	i := d.indexOf(id)
	if i < 0 {
		return ErrNoDocumentMatched
	}
	row := normalizeMap(document)
	row[IDField] = d.rows[i][IDField]
	d.rows[i] = row
	return nil
}

func (d *recordingDriver) matching(condition *Condition) []map[string]any {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	filter := condition.ToMap()
	var out []map[string]any
	for _, row := range d.rows {
		if MatchFilter(row, filter) {
			out = append(out, cloneMap(row))
		}
	}
	return out
}

func (d *recordingDriver) FindOne(ctx context.Context, schema *SchemaCore, options *Where) (map[string]any, error) {
	d.record("findOne")
	if d.findDelay > 0 {
		time.Sleep(d.findDelay)
	}
	rowList := d.matching(options.Condition)
	if len(rowList) == 0 {
		return nil, nil
	}
	return rowList[0], nil
}

func (d *recordingDriver) FindMany(ctx context.Context, schema *SchemaCore, options *Where) ([]map[string]any, error) {
	d.record("findMany")
	rowList := d.matching(options.Condition)
	if options.Limit > 0 && len(rowList) > options.Limit {
		rowList = rowList[:options.Limit]
	}
	return rowList, nil
}

func (d *recordingDriver) Delete(ctx context.Context, schema *SchemaCore, condition *Condition) (int64, error) {
	d.record("delete")
	if d.failWith != nil {
		return 0, d.failWith
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	filter := condition.ToMap()
	kept := d.rows[:0]
	var removed int64
	for _, row := range d.rows {
		if MatchFilter(row, filter) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	d.rows = kept
	return removed, nil
}

func (d *recordingDriver) Count(ctx context.Context, schema *SchemaCore, condition *Condition) (int64, error) {
	d.record("count")
	return int64(len(d.matching(condition))), nil
}

type recordingTransaction struct {
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *recordingTransaction) Commit(ctx context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *recordingTransaction) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}
