// Package loadtest drives the sync engine with concurrent simulated users
// against an in-memory remote that injects transient faults.
//
// Each agent owns a folder, a prompt and the notes it creates, and runs a
// random mix of mutations against them. All agents share one engine and
// therefore one set of cache stores, which is what the run exercises: per
// mutation commit and rollback under contention, retries of transient
// failures, and the folder delete/restore cascade. After the agents finish
// the run checks the cache invariants and compares the cache against the
// remote.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mschirtzinger/notesync/internal/classify"
	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/engine"
	"github.com/mschirtzinger/notesync/internal/notify"
	"github.com/mschirtzinger/notesync/internal/remote"
	"github.com/mschirtzinger/notesync/internal/remote/memstore"
	"github.com/mschirtzinger/notesync/internal/retry"
	"github.com/mschirtzinger/notesync/internal/session"
	"github.com/mschirtzinger/notesync/internal/telemetry"
)

// Owner is the user every agent acts as.
const Owner = "loadtest"

// Operation names used in the latency breakdown.
const (
	OpNoteCreate    = "note.create"
	OpNoteUpdate    = "note.update"
	OpNoteMove      = "note.move"
	OpNoteDelete    = "note.delete"
	OpFolderDelete  = "folder.delete"
	OpFolderRestore = "folder.restore"
	OpPromptHide    = "prompt.hide"
	OpPromptShow    = "prompt.show"
)

// Config controls a run.
type Config struct {
	// Agents is the number of concurrent simulated users.
	Agents int
	// OpsPerAgent is how many mutations each agent performs.
	OpsPerAgent int
	// FaultRate is the probability that any remote call fails with a
	// transient network error.
	FaultRate float64
	// Latency is added to every remote call.
	Latency time.Duration
	// Seed makes the operation mix and the faults reproducible.
	Seed int64
	// Policy is the retry policy; load runs use short delays.
	Policy retry.Policy
}

// DefaultConfig returns a run that finishes in well under a second.
func DefaultConfig() Config {
	return Config{
		Agents:      20,
		OpsPerAgent: 25,
		FaultRate:   0.1,
		Latency:     time.Millisecond,
		Seed:        42,
		Policy: retry.Policy{
			MaxRetries:    3,
			InitialDelay:  time.Millisecond,
			MaxDelay:      5 * time.Millisecond,
			BackoffFactor: 2,
		},
	}
}

// Validate checks cfg.
func (c Config) Validate() error {
	if c.Agents <= 0 {
		return fmt.Errorf("agents must be positive (got %d)", c.Agents)
	}
	if c.OpsPerAgent <= 0 {
		return fmt.Errorf("ops per agent must be positive (got %d)", c.OpsPerAgent)
	}
	if c.FaultRate < 0 || c.FaultRate >= 1 {
		return fmt.Errorf("fault rate must be in [0, 1) (got %v)", c.FaultRate)
	}
	if c.Latency < 0 {
		return fmt.Errorf("latency must be >= 0")
	}
	return c.Policy.Validate()
}

// LatencyStats captures the latency distribution of one operation.
type LatencyStats struct {
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
	Count  int
	Errors int
}

// Report is the outcome of a run.
type Report struct {
	Duration time.Duration
	Overall  LatencyStats
	ByOp     map[string]LatencyStats

	// Recovered counts remote calls that succeeded after a retry.
	Recovered int
	// Retries counts attempts beyond the first across all remote calls.
	Retries int
	// RolledBack counts mutations undone after their remote call failed.
	RolledBack int
	// Faults counts injected failures.
	Faults int

	// Diverged counts notes whose cached folder differs from the remote
	// one, or that exist on only one side.
	Diverged int

	// Violations lists broken cache invariants. A healthy run has none.
	Violations []string
}

// Err returns the violations as one error, nil when there are none.
func (r *Report) Err() error {
	errs := make([]error, len(r.Violations))
	for i, v := range r.Violations {
		errs[i] = errors.New(v)
	}
	return errors.Join(errs...)
}

// Print writes a human-readable summary of r to w.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Duration:    %v\n", r.Duration)
	fmt.Fprintf(w, "Mutations:   %d (%d failed, %d rolled back)\n", r.Overall.Count, r.Overall.Errors, r.RolledBack)
	fmt.Fprintf(w, "Faults:      %d injected, %d retries, %d recovered\n", r.Faults, r.Retries, r.Recovered)
	fmt.Fprintf(w, "Diverged:    %d\n", r.Diverged)
	fmt.Fprintf(w, "Latency:     p50 %v  p95 %v  p99 %v  max %v\n", r.Overall.P50, r.Overall.P95, r.Overall.P99, r.Overall.Max)

	ops := make([]string, 0, len(r.ByOp))
	for op := range r.ByOp {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		s := r.ByOp[op]
		fmt.Fprintf(w, "  %-15s n=%-4d err=%-3d p50 %-10v p95 %v\n", op, s.Count, s.Errors, s.P50, s.P95)
	}
	for _, v := range r.Violations {
		fmt.Fprintf(w, "VIOLATION: %s\n", v)
	}
}

// faulter injects transient network failures at a fixed rate.
type faulter struct {
	mu    sync.Mutex
	rng   *rand.Rand
	rate  float64
	count int
}

func (f *faulter) inject(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rate == 0 || f.rng.Float64() >= f.rate {
		return nil
	}
	f.count++
	return &remote.Error{Code: "08006", Message: "injected connection failure during " + op}
}

func (f *faulter) injected() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

type sample struct {
	op  string
	d   time.Duration
	err error
}

// Run executes one load run. It returns an error only when the run could
// not be set up; broken invariants are reported in Report.Violations.
func Run(ctx context.Context, cfg Config, log zerolog.Logger) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	notes := memstore.New[domain.Note](memstore.WithLatency[domain.Note](cfg.Latency))
	folders := memstore.New[domain.Folder](memstore.WithLatency[domain.Folder](cfg.Latency))
	prompts := memstore.New[domain.Prompt](memstore.WithLatency[domain.Prompt](cfg.Latency))
	hidden := memstore.New[domain.HiddenPrompt](memstore.WithLatency[domain.HiddenPrompt](cfg.Latency))
	settings := memstore.New[domain.UserSettings](memstore.WithLatency[domain.UserSettings](cfg.Latency))

	sess, err := session.New(Owner)
	if err != nil {
		return nil, err
	}
	events := &telemetry.Recorder{}
	eng, err := engine.New(engine.Config{
		Session: sess,
		Remotes: engine.Remotes{
			Notes:         notes,
			Folders:       memstore.NewFolders(folders, notes),
			Prompts:       prompts,
			HiddenPrompts: hidden,
			Settings:      settings,
		},
		Policy:   cfg.Policy,
		Sink:     notify.Discard(),
		Observer: events,
		Log:      log,
	})
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	if err := eng.Warm(ctx); err != nil {
		return nil, fmt.Errorf("failed to warm cache: %w", err)
	}

	f := &faulter{rng: rand.New(rand.NewSource(cfg.Seed)), rate: cfg.FaultRate}
	notes.SetInjector(f.inject)
	folders.SetInjector(f.inject)
	prompts.SetInjector(f.inject)
	hidden.SetInjector(f.inject)

	start := time.Now()
	results := make(chan []sample, cfg.Agents)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Agents; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			a := &agent{
				id:  id,
				eng: eng,
				rng: rand.New(rand.NewSource(cfg.Seed + int64(id) + 1)),
			}
			results <- a.run(ctx, cfg.OpsPerAgent)
		}(i)
	}
	wg.Wait()
	close(results)
	eng.Drain()

	// Faults stop here so verification reads see the true remote state.
	notes.SetInjector(nil)
	folders.SetInjector(nil)
	prompts.SetInjector(nil)
	hidden.SetInjector(nil)

	report := &Report{
		Duration: time.Since(start),
		ByOp:     make(map[string]LatencyStats),
		Faults:   f.injected(),
	}
	var all []sample
	byOp := make(map[string][]sample)
	for batch := range results {
		for _, s := range batch {
			all = append(all, s)
			byOp[s.op] = append(byOp[s.op], s)
			if s.err != nil && !transient(s.err) {
				report.Violations = append(report.Violations,
					fmt.Sprintf("%s failed with non-transient error: %v", s.op, s.err))
			}
		}
	}
	report.Overall = computeLatencyStats(all)
	for op, samples := range byOp {
		report.ByOp[op] = computeLatencyStats(samples)
	}
	for _, e := range events.Events() {
		report.Retries += e.Retries
		switch e.Outcome {
		case telemetry.OutcomeRecovered:
			report.Recovered++
		case telemetry.OutcomeRolledBack:
			report.RolledBack++
		}
	}

	if err := verify(ctx, eng, notes, folders, report); err != nil {
		return nil, err
	}
	log.Info().
		Int("mutations", report.Overall.Count).
		Int("faults", report.Faults).
		Int("recovered", report.Recovered).
		Int("violations", len(report.Violations)).
		Dur("duration", report.Duration).
		Msg("load run finished")
	return report, nil
}

// transient reports whether err is a failure the run is expected to
// produce: an injected fault that outlasted the retries.
func transient(err error) bool {
	return classify.KindOf(err) == classify.KindNetwork
}

// verify checks the cache invariants and compares the cached notes with the
// remote ones.
func verify(ctx context.Context, eng *engine.Engine, remoteNotes *memstore.Store[domain.Note],
	remoteFolders *memstore.Store[domain.Folder], report *Report) error {

	violate := func(format string, args ...any) {
		report.Violations = append(report.Violations, fmt.Sprintf(format, args...))
	}

	if n := eng.Pending(); n != 0 {
		violate("%d mutations still pending after drain", n)
	}

	cachedNotes, err := eng.Notes(ctx)
	if err != nil {
		return fmt.Errorf("failed to read cached notes: %w", err)
	}
	cachedFolders, err := eng.Folders(ctx)
	if err != nil {
		return fmt.Errorf("failed to read cached folders: %w", err)
	}
	folderSet := make(map[string]bool, len(cachedFolders))
	for _, f := range cachedFolders {
		if domain.IsPlaceholderID(f.ID) {
			violate("placeholder folder %s left in cache", f.ID)
		}
		folderSet[f.ID] = true
	}
	cached := make(map[string]*string, len(cachedNotes))
	for _, n := range cachedNotes {
		if domain.IsPlaceholderID(n.ID) {
			violate("placeholder note %s left in cache", n.ID)
		}
		if n.FolderID != nil && !folderSet[*n.FolderID] {
			violate("cached note %s references missing folder %s", n.ID, *n.FolderID)
		}
		if _, dup := cached[n.ID]; dup {
			violate("note %s cached twice", n.ID)
		}
		cached[n.ID] = n.FolderID
	}

	rNotes, err := remoteNotes.Select(ctx, Owner)
	if err != nil {
		return fmt.Errorf("failed to read remote notes: %w", err)
	}
	rFolders, err := remoteFolders.Select(ctx, Owner)
	if err != nil {
		return fmt.Errorf("failed to read remote folders: %w", err)
	}
	remoteFolderSet := make(map[string]bool, len(rFolders))
	for _, f := range rFolders {
		remoteFolderSet[f.ID] = true
	}
	for _, n := range rNotes {
		if n.FolderID != nil && !remoteFolderSet[*n.FolderID] {
			violate("remote note %s references missing folder %s", n.ID, *n.FolderID)
		}
		c, ok := cached[n.ID]
		if !ok || !sameFolder(c, n.FolderID) {
			report.Diverged++
		}
		delete(cached, n.ID)
	}
	report.Diverged += len(cached)
	return nil
}

func sameFolder(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// computeLatencyStats calculates statistics from a slice of samples.
func computeLatencyStats(samples []sample) LatencyStats {
	if len(samples) == 0 {
		return LatencyStats{}
	}
	sorted := make([]time.Duration, len(samples))
	var sum time.Duration
	errs := 0
	for i, s := range samples {
		sorted[i] = s.d
		sum += s.d
		if s.err != nil {
			errs++
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return LatencyStats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   sum / time.Duration(len(sorted)),
		P50:    sorted[len(sorted)*50/100],
		P95:    sorted[len(sorted)*95/100],
		P99:    sorted[len(sorted)*99/100],
		Count:  len(sorted),
		Errors: errs,
	}
}
