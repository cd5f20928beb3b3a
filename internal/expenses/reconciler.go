package expenses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/opsledger/opsledger/internal/observability"
	"github.com/opsledger/opsledger/internal/projects"
	"github.com/opsledger/opsledger/internal/rates"
	"github.com/opsledger/opsledger/internal/shared"
	"github.com/opsledger/opsledger/internal/tracking"
)

var (
	// ErrInvalidRate indicates a non-positive hourly rate.
	ErrInvalidRate = errors.New("hourly rate must be positive")
	// ErrPersonRequired indicates a missing person email.
	ErrPersonRequired = errors.New("person email required")
	// ErrReconcileBusy indicates another reconciliation run holds the
	// per-person lock for the current period.
	ErrReconcileBusy = errors.New("reconciliation already running for person")
)

// featureScanConcurrency bounds parallel per-project feature fetches.
const featureScanConcurrency = 4

// WorkItemSource exposes the completed work items the reconciler bills.
type WorkItemSource interface {
	ListCompletedTasksByAssignee(ctx context.Context, assignee string) ([]tracking.WorkItem, error)
	ListCompletedUnassignedTasks(ctx context.Context) ([]tracking.WorkItem, error)
	ListFeaturesByProject(ctx context.Context, projectID string) ([]tracking.WorkItem, error)
}

// ProjectSource lists projects to scan for completed features.
type ProjectSource interface {
	ListProjects(ctx context.Context) ([]projects.Project, error)
}

// RateSource lists configured hourly rates for reconcile-all runs.
type RateSource interface {
	ListRates(ctx context.Context) ([]rates.RateEntry, error)
}

// Reconciler converts completed, unbilled work into expense records.
// Re-running it for the same person and period only creates expenses for
// candidates not already represented; the expense store's unique constraint
// backstops races the snapshot read cannot see.
type Reconciler struct {
	expenses Repository
	items    WorkItemSource
	projects ProjectSource
	rates    RateSource
	locker   *shared.Locker
	clock    shared.Clock
	loc      *time.Location
	fallback string
	logger   *slog.Logger
	metrics  *observability.Metrics
	printer  *message.Printer
}

// ReconcilerConfig collects Reconciler dependencies. Locker, Metrics and
// FallbackPerson are optional.
type ReconcilerConfig struct {
	Expenses       Repository
	Items          WorkItemSource
	Projects       ProjectSource
	Rates          RateSource
	Locker         *shared.Locker
	Clock          shared.Clock
	BillingLoc     *time.Location
	FallbackPerson string
	Logger         *slog.Logger
	Metrics        *observability.Metrics
}

// NewReconciler constructs a Reconciler.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	clock := cfg.Clock
	if clock == nil {
		clock = shared.SystemClock{}
	}
	loc := cfg.BillingLoc
	if loc == nil {
		loc = time.UTC
	}
	return &Reconciler{
		expenses: cfg.Expenses,
		items:    cfg.Items,
		projects: cfg.Projects,
		rates:    cfg.Rates,
		locker:   cfg.Locker,
		clock:    clock,
		loc:      loc,
		fallback: cfg.FallbackPerson,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		printer:  message.NewPrinter(language.English),
	}
}

// Result reports one reconciliation run.
type Result struct {
	Period  shared.BillingPeriod `json:"billingPeriod"`
	Created []ExpenseRecord      `json:"expenses"`
	Errors  []string             `json:"errors,omitempty"`
	Summary string               `json:"summary"`
}

// PersonSummary reports per-person counts in a reconcile-all run.
type PersonSummary struct {
	Person  string `json:"person"`
	Created int    `json:"created"`
}

// AllResult reports a reconcile-all run across the rate registry.
type AllResult struct {
	Period    shared.BillingPeriod `json:"billingPeriod"`
	Created   int                  `json:"created"`
	PerPerson []PersonSummary      `json:"perPerson"`
	Errors    []string             `json:"errors,omitempty"`
	Summary   string               `json:"summary"`
}

// GenerateExpenses creates the missing expense records for one person in the
// current billing period. Candidates already billed, or without positive
// actual hours, are skipped silently. Individual creation failures are
// collected and do not abort the run.
func (r *Reconciler) GenerateExpenses(ctx context.Context, person string, hourlyRate float64) (Result, error) {
	person = strings.TrimSpace(person)
	if person == "" {
		return Result{}, ErrPersonRequired
	}
	if hourlyRate <= 0 {
		return Result{}, ErrInvalidRate
	}

	period := shared.PeriodForTime(r.clock.Now(), r.loc)
	if r.locker != nil {
		key := shared.ReconcileLockKey(person, period)
		if err := r.locker.Acquire(ctx, key); err != nil {
			if errors.Is(err, shared.ErrLockBusy) {
				return Result{}, ErrReconcileBusy
			}
			return Result{}, err
		}
		defer func() {
			if err := r.locker.Release(ctx, key); err != nil {
				r.logger.Warn("release reconcile lock", slog.Any("error", err))
			}
		}()
	}

	result, err := r.reconcilePerson(ctx, person, hourlyRate, period, false)
	if err != nil {
		r.observeRun("error", 0, 0)
		return Result{}, err
	}
	r.observeRun(runResult(result.Errors), len(result.Created), len(result.Errors))
	return result, nil
}

// GenerateExpensesForAll runs reconciliation for every person in the rate
// registry. Unassigned completed tasks are billed to the configured fallback
// person when that person has a rate entry.
func (r *Reconciler) GenerateExpensesForAll(ctx context.Context) (AllResult, error) {
	period := shared.PeriodForTime(r.clock.Now(), r.loc)

	entries, err := r.rates.ListRates(ctx)
	if err != nil {
		r.observeRun("error", 0, 0)
		return AllResult{}, fmt.Errorf("expenses: list rates: %w", err)
	}
	all := AllResult{Period: period}
	if len(entries) == 0 {
		all.Summary = "no hourly rates configured"
		return all, nil
	}

	for _, entry := range entries {
		if entry.HourlyRate <= 0 {
			all.Errors = append(all.Errors, fmt.Sprintf("skipping %s: non-positive hourly rate", entry.PersonEmail))
			continue
		}
		includeUnassigned := r.fallback != "" && strings.EqualFold(entry.PersonEmail, r.fallback)
		result, err := r.reconcilePerson(ctx, entry.PersonEmail, entry.HourlyRate, period, includeUnassigned)
		if err != nil {
			// One person's failure must not stop the remaining runs.
			all.Errors = append(all.Errors, fmt.Sprintf("reconciling %s: %v", entry.PersonEmail, err))
			continue
		}
		all.Created += len(result.Created)
		all.PerPerson = append(all.PerPerson, PersonSummary{Person: entry.PersonEmail, Created: len(result.Created)})
		all.Errors = append(all.Errors, result.Errors...)
	}

	all.Summary = r.printer.Sprintf("created %d expense records for %s", all.Created, period)
	r.observeRun(runResult(all.Errors), all.Created, len(all.Errors))
	return all, nil
}

type candidate struct {
	item    tracking.WorkItem
	company string
}

func (r *Reconciler) reconcilePerson(ctx context.Context, person string, hourlyRate float64, period shared.BillingPeriod, includeUnassigned bool) (Result, error) {
	result := Result{Period: period}

	// Snapshot of everything already billed this period.
	existing, err := r.expenses.ListExpensesByPeriod(ctx, period)
	if err != nil {
		return Result{}, fmt.Errorf("expenses: list period %s: %w", period, err)
	}
	billed := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		billed[DedupKey(e.SourceKind, e.SourceID)] = struct{}{}
	}

	var candidates []candidate

	tasks, err := r.items.ListCompletedTasksByAssignee(ctx, person)
	if err != nil {
		return Result{}, fmt.Errorf("expenses: list completed tasks for %s: %w", person, err)
	}
	for _, t := range tasks {
		candidates = append(candidates, candidate{item: t})
	}
	if includeUnassigned {
		orphans, err := r.items.ListCompletedUnassignedTasks(ctx)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("listing unassigned tasks: %v", err))
		} else {
			for _, t := range orphans {
				candidates = append(candidates, candidate{item: t})
			}
		}
	}

	features, scanErrors := r.scanFeatures(ctx, person)
	candidates = append(candidates, features...)
	result.Errors = append(result.Errors, scanErrors...)

	for _, c := range candidates {
		key := DedupKey(c.item.Kind, c.item.ID)
		if _, ok := billed[key]; ok {
			continue
		}
		if c.item.ActualHours == nil || *c.item.ActualHours <= 0 {
			continue
		}

		record := r.buildRecord(c, person, hourlyRate, period)
		created, err := r.expenses.CreateExpense(ctx, record)
		if err != nil {
			if errors.Is(err, ErrDuplicateExpense) {
				// A concurrent run billed it first. The invariant holds;
				// nothing to report.
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("creating expense for %s %s: %v", c.item.Kind, c.item.ID, err))
			continue
		}
		billed[key] = struct{}{}
		result.Created = append(result.Created, created)
	}

	var total float64
	for _, e := range result.Created {
		total += e.Total
	}
	result.Summary = r.printer.Sprintf("created %d expense records totalling $%.2f for %s", len(result.Created), total, period)
	return result, nil
}

// scanFeatures collects completed features assigned to person across all
// projects. One project's failure is recorded and does not abort the scan.
func (r *Reconciler) scanFeatures(ctx context.Context, person string) ([]candidate, []string) {
	projectList, err := r.projects.ListProjects(ctx)
	if err != nil {
		return nil, []string{fmt.Sprintf("listing projects: %v", err)}
	}

	var (
		mu       sync.Mutex
		found    []candidate
		scanErrs []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(featureScanConcurrency)
	for _, project := range projectList {
		project := project
		g.Go(func() error {
			features, err := r.items.ListFeaturesByProject(gctx, project.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				scanErrs = append(scanErrs, fmt.Sprintf("scanning project %s: %v", project.ID, err))
				return nil
			}
			for _, f := range features {
				if !f.Completed() || !strings.EqualFold(f.Assignee, person) {
					continue
				}
				found = append(found, candidate{item: f, company: project.DisplayName()})
			}
			return nil
		})
	}
	_ = g.Wait()
	return found, scanErrs
}

func (r *Reconciler) buildRecord(c candidate, person string, hourlyRate float64, period shared.BillingPeriod) ExpenseRecord {
	hours := *c.item.ActualHours
	subtotal := hours * hourlyRate

	billTo := c.item.Assignee
	if billTo == "" {
		billTo = person
	}
	category := CategoryFeatures
	if c.item.Kind == tracking.KindTask {
		category = c.item.Category
		if category == "" {
			category = CategoryTeamTasks
		}
	}

	return ExpenseRecord{
		ID:            uuid.NewString(),
		Person:        billTo,
		Concept:       conceptFor(billTo, c.item.Title),
		Category:      category,
		Company:       c.company,
		Hours:         hours,
		HourlyRate:    hourlyRate,
		Subtotal:      subtotal,
		Tax:           0,
		Total:         subtotal,
		BillingPeriod: period,
		SourceKind:    c.item.Kind,
		SourceID:      c.item.ID,
		Status:        StatusPending,
	}
}

// conceptFor labels an expense with the assignee's mailbox name and the
// work-item title.
func conceptFor(person, title string) string {
	name := person
	if at := strings.Index(person, "@"); at > 0 {
		name = person[:at]
	}
	return name + " - " + title
}

func runResult(errs []string) string {
	if len(errs) > 0 {
		return "partial"
	}
	return "ok"
}

func (r *Reconciler) observeRun(result string, created, itemErrors int) {
	if r.metrics != nil {
		r.metrics.ObserveReconcileRun(result, created, itemErrors)
	}
}
