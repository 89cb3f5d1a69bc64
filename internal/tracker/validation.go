package tracker

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/secutils-dev/scheduler/internal/apperrors"
	"github.com/secutils-dev/scheduler/internal/cronspec"
	"github.com/secutils-dev/scheduler/internal/model"
	"github.com/secutils-dev/scheduler/internal/resolver"
)

// trackerInput is the struct-tag validated shape of a create/update request,
// separate from model.Tracker so struct tags stay out of the domain model.
type trackerInput struct {
	Name string `validate:"required,max=100"`
	URL  string `validate:"required,url"`
}

// Validator enforces tracker invariants ahead of Registry.Create and
// Registry.Update: struct-level field constraints (go-playground/validator,
// as Geocoder89-event-hub and netresearch-ofelia use it for request DTOs),
// cron expression validity, and SSRF-safe URLs.
type Validator struct {
	structValidator *validator.Validate
	urls            *resolver.Validator
}

func NewValidator(urls *resolver.Validator) *Validator {
	return &Validator{structValidator: validator.New(), urls: urls}
}

// Validate checks a tracker's static fields, its optional job schedule, and
// resolves its URL for SSRF safety. Intended to run before Registry.Create
// or Registry.Update persist anything.
func (v *Validator) Validate(ctx context.Context, t model.Tracker) error {
	input := trackerInput{Name: t.Name, URL: t.URL}
	if err := v.structValidator.Struct(input); err != nil {
		return apperrors.Wrap(apperrors.KindClientValidation, "invalid tracker fields", err)
	}

	if t.Kind != model.KindPageResources && t.Kind != model.KindPageContent {
		return apperrors.New(apperrors.KindClientValidation, "unknown tracker kind")
	}

	if t.Settings.Job != nil && t.Settings.Job.Schedule != "" {
		if err := cronspec.Validate(t.Settings.Job.Schedule); err != nil {
			return apperrors.Wrap(apperrors.KindClientValidation, "invalid tracker schedule", err)
		}
	}

	if t.Settings.Job != nil && t.Settings.Job.Retry != nil {
		r := t.Settings.Job.Retry
		if r.MaxAttempts == 0 {
			return apperrors.New(apperrors.KindClientValidation, "retry strategy must allow at least one attempt")
		}
		if r.Multiplier == 0 {
			return apperrors.New(apperrors.KindClientValidation, "retry strategy multiplier must be positive")
		}
	}

	if err := v.urls.ValidateURL(ctx, t.URL); err != nil {
		return err
	}

	return nil
}
