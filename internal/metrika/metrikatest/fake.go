// Package metrikatest provides an in-memory Logs API for tests.
package metrikatest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/youpoison/YM-Logs-API/internal/dataset"
	"github.com/youpoison/YM-Logs-API/internal/daterange"
	"github.com/youpoison/YM-Logs-API/internal/metrika"
)

var _ metrika.Client = (*Fake)(nil)

// Fake implements metrika.Client. Zero value answers every request as feasible, goes
// straight to processed, and serves one row per requested day in a single part.
type Fake struct {
	mu sync.Mutex

	// Feasible decides Evaluate answers. Nil means always feasible.
	Feasible func(req metrika.Request) bool

	// Statuses is the sequence Status returns for every job; the last one repeats.
	// Empty means processed.
	Statuses []metrika.Status

	// PartsPerJob splits the rows of a job into that many contiguous parts.
	PartsPerJob int

	// ReverseParts lists parts in descending order in Status answers.
	ReverseParts bool

	// Errs queues errors per operation name ("evaluate", "create", "status",
	// "download", "clean", "cancel", "list"); each call pops one before succeeding.
	Errs map[string][]error

	Calls     map[string]int
	Created   []metrika.Request
	Downloads []string

	jobs   map[string]*fakeJob
	nextID int
}

type fakeJob struct {
	req    metrika.Request
	polls  int
	status metrika.Status
	parts  [][][]string
}

// Rows is the content the fake serves for req: one row per day, each cell derived from
// the day and the column index.
func Rows(req metrika.Request) [][]string {
	days, _ := daterange.List(req.Range.Start, req.Range.End)
	rows := make([][]string, 0, len(days))
	for _, d := range days {
		row := make([]string, len(req.Fields))
		for i := range row {
			if i == 0 {
				row[i] = d
			} else {
				row[i] = fmt.Sprintf("%s-%d", d, i)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func (f *Fake) call(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Calls == nil {
		f.Calls = make(map[string]int)
	}
	f.Calls[op]++
	if q := f.Errs[op]; len(q) > 0 {
		f.Errs[op] = q[1:]
		return q[0]
	}
	return nil
}

// Count returns how many times op was called.
func (f *Fake) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[op]
}

func (f *Fake) Evaluate(ctx context.Context, req metrika.Request) (metrika.Evaluation, error) {
	if err := f.call("evaluate"); err != nil {
		return metrika.Evaluation{}, err
	}
	if f.Feasible != nil && !f.Feasible(req) {
		return metrika.Evaluation{Possible: false}, nil
	}
	return metrika.Evaluation{Possible: true, MaxPossibleDayQuantity: int64(req.Range.Days())}, nil
}

func (f *Fake) Create(ctx context.Context, req metrika.Request) (metrika.LogRequest, error) {
	if err := f.call("create"); err != nil {
		return metrika.LogRequest{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.jobs == nil {
		f.jobs = make(map[string]*fakeJob)
	}
	f.nextID++
	id := strconv.Itoa(f.nextID)

	n := f.PartsPerJob
	if n < 1 {
		n = 1
	}
	rows := Rows(req)
	parts := make([][][]string, n)
	size := (len(rows) + n - 1) / n
	for i := range parts {
		lo, hi := min(i*size, len(rows)), min((i+1)*size, len(rows))
		parts[i] = rows[lo:hi]
	}

	f.jobs[id] = &fakeJob{req: req, status: metrika.StatusCreated, parts: parts}
	f.Created = append(f.Created, req)
	return metrika.LogRequest{RequestID: json.Number(id), Status: metrika.StatusCreated}, nil
}

func (f *Fake) Status(ctx context.Context, id string) (metrika.LogRequest, error) {
	if err := f.call("status"); err != nil {
		return metrika.LogRequest{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return metrika.LogRequest{}, fmt.Errorf("unknown log request %s", id)
	}

	j.status = metrika.StatusProcessed
	if len(f.Statuses) > 0 {
		j.status = f.Statuses[min(j.polls, len(f.Statuses)-1)]
	}
	j.polls++

	lr := metrika.LogRequest{RequestID: json.Number(id), Status: j.status}
	if j.status == metrika.StatusProcessed {
		for i := range j.parts {
			lr.Parts = append(lr.Parts, metrika.Part{PartNumber: i, Size: int64(len(j.parts[i]))})
		}
		if f.ReverseParts {
			for l, r := 0, len(lr.Parts)-1; l < r; l, r = l+1, r-1 {
				lr.Parts[l], lr.Parts[r] = lr.Parts[r], lr.Parts[l]
			}
		}
	}
	return lr, nil
}

func (f *Fake) Download(ctx context.Context, id string, part int, columns []string) (*dataset.Dataset, error) {
	if err := f.call("download"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || part >= len(j.parts) {
		return nil, fmt.Errorf("unknown part %s/%d", id, part)
	}
	f.Downloads = append(f.Downloads, fmt.Sprintf("%s/%d", id, part))
	ds := dataset.New(j.req.Fields)
	ds.Rows = append(ds.Rows, j.parts[part]...)
	return ds, nil
}

func (f *Fake) Clean(ctx context.Context, id string) (metrika.LogRequest, error) {
	return f.remove("clean", id, metrika.StatusCleanedByUser)
}

func (f *Fake) Cancel(ctx context.Context, id string) (metrika.LogRequest, error) {
	return f.remove("cancel", id, metrika.StatusCanceled)
}

func (f *Fake) remove(op, id string, status metrika.Status) (metrika.LogRequest, error) {
	if err := f.call(op); err != nil {
		return metrika.LogRequest{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[id]; !ok {
		return metrika.LogRequest{}, fmt.Errorf("unknown log request %s", id)
	}
	delete(f.jobs, id)
	return metrika.LogRequest{RequestID: json.Number(id), Status: status}, nil
}

func (f *Fake) List(ctx context.Context) ([]metrika.LogRequest, error) {
	if err := f.call("list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]metrika.LogRequest, 0, len(f.jobs))
	for id, j := range f.jobs {
		out = append(out, metrika.LogRequest{RequestID: json.Number(id), Status: j.status})
	}
	return out, nil
}

// Open returns the number of jobs that were created and not yet removed.
func (f *Fake) Open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}
