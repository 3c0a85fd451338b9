// internal/browser/form.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marketpilot/api/schemas"
)

// dropdownSettle is the pause for a dropdown or suggestion list to render.
const dropdownSettle = 500 * time.Millisecond

// OpenCreateForm navigates to the item form. If the page lands on a chooser
// instead, the "item for sale" entry is clicked first.
func (m *Marketplace) OpenCreateForm(ctx context.Context) error {
	if err := m.page.Navigate(ctx, m.url(m.cfg.CreatePath)); err != nil {
		return err
	}
	sel, err := m.probe(ctx, titleStrategies)
	if err != nil {
		return err
	}
	if sel != "" {
		return nil
	}
	m.logger.Debug("Listing form not shown yet, looking for the create entry.")
	if err := m.clickFirst(ctx, "create listing entry", createEntryStrategies); err != nil && !errors.Is(err, schemas.ErrElementNotFound) {
		return err
	}
	if _, err := m.locate(ctx, "listing form", titleStrategies); err != nil {
		return fmt.Errorf("listing form did not open: %w", err)
	}
	return nil
}

// FillField fills one form field. Category accepts the first suggestion;
// condition is picked from its dropdown by visible text.
func (m *Marketplace) FillField(ctx context.Context, kind schemas.FieldKind, value string) error {
	switch kind {
	case schemas.FieldTitle:
		return m.typeInto(ctx, "title field", titleStrategies, value)
	case schemas.FieldPrice:
		return m.typeInto(ctx, "price field", priceStrategies, value)
	case schemas.FieldDescription:
		return m.typeInto(ctx, "description field", descriptionStrategies, value)
	case schemas.FieldCategory:
		return m.fillCategory(ctx, value)
	case schemas.FieldCondition:
		return m.selectCondition(ctx, value)
	default:
		return fmt.Errorf("unsupported form field %q", kind)
	}
}

func (m *Marketplace) fillCategory(ctx context.Context, value string) error {
	if err := m.typeInto(ctx, "category field", categoryStrategies, value); err != nil {
		return err
	}
	if err := m.page.Sleep(ctx, dropdownSettle); err != nil {
		return err
	}
	sel, err := m.probe(ctx, append(optionStrategies(value), firstOptionStrategies...))
	if err != nil {
		return err
	}
	if sel == "" {
		// No suggestion list; Enter commits the typed text.
		return m.page.PressEnter(ctx)
	}
	return m.page.Click(ctx, sel)
}

func (m *Marketplace) selectCondition(ctx context.Context, value string) error {
	if err := m.clickFirst(ctx, "condition dropdown", openConditionStrategies); err != nil {
		return err
	}
	if err := m.page.Sleep(ctx, dropdownSettle); err != nil {
		return err
	}
	return m.clickFirst(ctx, "condition option "+value, optionStrategies(value))
}

// UploadFiles attaches the photos and waits until no upload progress bar is showing.
func (m *Marketplace) UploadFiles(ctx context.Context, paths []string) error {
	sel, err := m.locate(ctx, "photo input", photoInputStrategies)
	if err != nil {
		return err
	}
	if err := m.page.UploadFiles(ctx, sel, paths); err != nil {
		return err
	}
	m.logger.Debug("Photos attached.", zap.Int("count", len(paths)))

	deadline := time.Now().Add(m.locateTimeout)
	for {
		if err := m.page.Sleep(ctx, max(m.settle, locatePollInterval)); err != nil {
			return err
		}
		busy, err := m.page.Count(ctx, uploadBusyStrategy)
		if err != nil {
			return err
		}
		if busy == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("photo upload still in progress after %v", m.locateTimeout)
		}
	}
}

// AdvancePage clicks the enabled Next button.
func (m *Marketplace) AdvancePage(ctx context.Context) error {
	if err := m.clickFirst(ctx, "next button", nextStrategies); err != nil {
		return err
	}
	return m.page.Sleep(ctx, m.settle)
}

// Publish clicks the enabled Publish (or Post) button.
func (m *Marketplace) Publish(ctx context.Context) error {
	if err := m.clickFirst(ctx, "publish button", publishStrategies); err != nil {
		return err
	}
	m.logger.Info("Listing submitted.")
	return m.page.Sleep(ctx, m.settle)
}
