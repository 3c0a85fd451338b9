// File: internal/listing/filler.go
package listing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/xkilldash9x/marketpilot/api/schemas"
	"github.com/xkilldash9x/marketpilot/internal/catalog"
	"github.com/xkilldash9x/marketpilot/internal/config"
	"go.uber.org/zap"
)

// ErrNoTitle is returned for an item that cannot be listed because it has no title.
var ErrNoTitle = errors.New("item has no title")

// Catalog is the item source and status sink used by the filler.
type Catalog interface {
	FindByID(id int) (catalog.Item, bool)
	UpdateStatus(id int, status catalog.Status) error
	PhotoPaths(item catalog.Item) []string
}

// Step names one stage of filling the listing form.
type Step string

const (
	StepOpen        Step = "open_form"
	StepTitle       Step = "title"
	StepPrice       Step = "price"
	StepDescription Step = "description"
	StepCategory    Step = "category"
	StepCondition   Step = "condition"
	StepPhotos      Step = "photos"
	StepAdvance     Step = "next_page"
	StepPublish     Step = "publish"
	StepStatus      Step = "status"
)

// StepState is the result of a single step.
type StepState string

const (
	StateOK      StepState = "ok"
	StateSkipped StepState = "skipped"
	StateFailed  StepState = "failed"
)

// StepReport records what happened to one step.
type StepReport struct {
	Step     Step
	State    StepState
	Attempts int
	Detail   string
	Err      error
}

// Report is the outcome of filling one item.
type Report struct {
	ItemID    int
	Title     string
	Steps     []StepReport
	Published bool
	// Status is the catalog status written at the end, empty if none was written.
	Status catalog.Status
}

// Lookup returns the report for a step.
func (r Report) Lookup(step Step) (StepReport, bool) {
	for _, s := range r.Steps {
		if s.Step == step {
			return s, true
		}
	}
	return StepReport{}, false
}

func (r *Report) add(s StepReport) StepReport {
	r.Steps = append(r.Steps, s)
	return s
}

// Filler drives the listing form for one catalog item at a time.
type Filler struct {
	form   schemas.FormDriver
	items  Catalog
	logger *zap.Logger

	condition    string
	attempts     int
	retryDelay   time.Duration
	postedPolicy string
}

// New creates a Filler using the listing configuration section.
func New(form schemas.FormDriver, items Catalog, logger *zap.Logger, cfg config.ListingConfig) *Filler {
	f := &Filler{
		form:         form,
		items:        items,
		logger:       logger.Named("listing"),
		condition:    cfg.Condition,
		attempts:     cfg.StepAttempts,
		retryDelay:   cfg.StepRetryDelay,
		postedPolicy: cfg.PostedPolicy,
	}
	if f.attempts < 1 {
		f.attempts = 1
	}
	if f.postedPolicy == "" {
		f.postedPolicy = config.PostedPolicyAlways
	}
	return f
}

// Fill lists the item with the given id. Only a missing item, a missing
// title, an unopenable form, a failed title step, a lost session, or a failed
// status write end it with an error; other steps are best effort and show up
// in the report.
func (f *Filler) Fill(ctx context.Context, itemID int) (Report, error) {
	report := Report{ItemID: itemID}
	item, ok := f.items.FindByID(itemID)
	if !ok {
		return report, fmt.Errorf("%w: %d", catalog.ErrItemNotFound, itemID)
	}
	report.Title = item.Title
	if item.Title == "" {
		return report, fmt.Errorf("item %d: %w", itemID, ErrNoTitle)
	}
	log := f.logger.With(zap.Int("item_id", itemID))

	if s := report.add(f.run(ctx, log, StepOpen, f.form.OpenCreateForm)); s.State != StateOK {
		return report, fmt.Errorf("failed to open listing form: %w", s.Err)
	}
	if s := report.add(f.fill(ctx, log, StepTitle, schemas.FieldTitle, item.Title)); s.State != StateOK {
		return report, fmt.Errorf("failed to fill title: %w", s.Err)
	}

	priceText := ""
	if item.HasPrice() {
		priceText = strconv.FormatFloat(*item.Price, 'f', -1, 64)
	}
	optional := []struct {
		step  Step
		kind  schemas.FieldKind
		value string
	}{
		{StepPrice, schemas.FieldPrice, priceText},
		{StepDescription, schemas.FieldDescription, item.Description},
		{StepCategory, schemas.FieldCategory, item.Category},
		{StepCondition, schemas.FieldCondition, f.condition},
	}
	for _, o := range optional {
		if s := report.add(f.fill(ctx, log, o.step, o.kind, o.value)); isFatal(ctx, s.Err) {
			return report, s.Err
		}
	}

	if s := report.add(f.uploadPhotos(ctx, log, item)); isFatal(ctx, s.Err) {
		return report, s.Err
	}
	if s := report.add(f.run(ctx, log, StepAdvance, f.form.AdvancePage)); isFatal(ctx, s.Err) {
		return report, s.Err
	}
	publish := report.add(f.run(ctx, log, StepPublish, f.form.Publish))
	if isFatal(ctx, publish.Err) {
		return report, publish.Err
	}
	report.Published = publish.State == StateOK

	status := f.markPosted(log, item, report.Published)
	report.add(status)
	if status.State == StateOK {
		report.Status = catalog.StatusPosted
	}
	if status.State == StateFailed {
		return report, fmt.Errorf("failed to update item status: %w", status.Err)
	}
	return report, nil
}

func (f *Filler) fill(ctx context.Context, log *zap.Logger, step Step, kind schemas.FieldKind, value string) StepReport {
	if value == "" {
		log.Info("Skipping empty field.", zap.String("step", string(step)))
		return StepReport{Step: step, State: StateSkipped, Detail: "no value"}
	}
	return f.run(ctx, log, step, func(ctx context.Context) error {
		return f.form.FillField(ctx, kind, value)
	})
}

func (f *Filler) uploadPhotos(ctx context.Context, log *zap.Logger, item catalog.Item) StepReport {
	var present []string
	for _, p := range f.items.PhotoPaths(item) {
		if _, err := os.Stat(p); err != nil {
			log.Warn("Photo not found, leaving it out.", zap.String("path", p), zap.Error(err))
			continue
		}
		present = append(present, p)
	}
	if len(present) == 0 {
		return StepReport{Step: StepPhotos, State: StateSkipped, Detail: "no photos on disk"}
	}
	s := f.run(ctx, log, StepPhotos, func(ctx context.Context) error {
		return f.form.UploadFiles(ctx, present)
	})
	s.Detail = fmt.Sprintf("%d of %d photos", len(present), len(item.Photos))
	return s
}

// markPosted applies the posted policy once the form has been submitted.
func (f *Filler) markPosted(log *zap.Logger, item catalog.Item, published bool) StepReport {
	if !published && f.postedPolicy != config.PostedPolicyAlways {
		log.Warn("Publish did not succeed; status left unchanged.", zap.String("posted_policy", f.postedPolicy))
		return StepReport{Step: StepStatus, State: StateSkipped, Detail: "not published"}
	}
	if !published {
		log.Warn("Publish did not succeed; marking the item Posted anyway.", zap.String("posted_policy", f.postedPolicy))
	}
	if err := f.items.UpdateStatus(item.ID, catalog.StatusPosted); err != nil {
		return StepReport{Step: StepStatus, State: StateFailed, Attempts: 1, Err: err}
	}
	log.Info("Item marked Posted.", zap.Bool("published", published))
	return StepReport{Step: StepStatus, State: StateOK, Attempts: 1, Detail: string(catalog.StatusPosted)}
}

// run retries action up to the configured number of attempts. A lost session
// or cancelled context is not retried.
func (f *Filler) run(ctx context.Context, log *zap.Logger, step Step, action func(context.Context) error) StepReport {
	report := StepReport{Step: step}
	for report.Attempts < f.attempts {
		report.Attempts++
		err := action(ctx)
		if err == nil {
			report.State = StateOK
			report.Err = nil
			log.Debug("Step done.", zap.String("step", string(step)), zap.Int("attempt", report.Attempts))
			return report
		}
		report.Err = err
		if isFatal(ctx, err) {
			break
		}
		log.Warn("Step failed.", zap.String("step", string(step)), zap.Int("attempt", report.Attempts), zap.Error(err))
		if report.Attempts < f.attempts {
			if serr := sleepCtx(ctx, f.retryDelay); serr != nil {
				report.Err = serr
				break
			}
		}
	}
	report.State = StateFailed
	return report
}

// isFatal reports whether err should stop the whole fill: the browser is gone
// or the caller's context is done. A step that timed out on its own is not fatal.
func isFatal(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, schemas.ErrSessionLost) || ctx.Err() != nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
