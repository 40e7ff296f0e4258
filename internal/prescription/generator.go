package prescription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/mindmed/mindmed-api/internal/models"
	"github.com/mindmed/mindmed-api/internal/pdf"
	"github.com/mindmed/mindmed-api/internal/store"
)

var (
	ErrValidation           = errors.New("invalid prescription")
	ErrNoActiveSubscription = errors.New("no active subscription found")
	ErrQuotaExceeded        = errors.New("quota exceeded, please upgrade your plan")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrRender               = errors.New("failed to render prescription")
	ErrPersistence          = errors.New("failed to save prescription")
)

// Store is the persistence the generator needs.
type Store interface {
	GetActiveSubscription(ctx context.Context, userID string) (models.Subscription, error)
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	RecordPrescription(ctx context.Context, rx models.Prescription, sub models.Subscription) (models.Prescription, models.Subscription, error)
}

type Renderer interface {
	Render(doc pdf.Document) ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, event models.Event) error
}

type DashboardCache interface {
	InvalidateDashboard(ctx context.Context, userID string) error
}

// Recorder receives generation outcomes for metrics.
type Recorder interface {
	PrescriptionGenerated(plan models.Plan)
	PrescriptionFailed(reason string)
}

// Caller identifies the authenticated practitioner.
type Caller struct {
	UserID string
	Email  string
}

type Result struct {
	PDF          []byte
	Prescription models.Prescription
	Plan         models.Plan
	Remaining    *int // nil when unlimited
}

type Generator struct {
	store     Store
	renderer  Renderer
	publisher Publisher
	cache     DashboardCache
	recorder  Recorder
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
	location  *time.Location
}

type Option func(*Generator)

// WithClock overrides the time source used for the printed date.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithLocation sets the time zone the printed date is rendered in.
func WithLocation(loc *time.Location) Option {
	return func(g *Generator) { g.location = loc }
}

func NewGenerator(
	st Store,
	renderer Renderer,
	publisher Publisher,
	cache DashboardCache,
	recorder Recorder,
	validate *validator.Validate,
	logger *slog.Logger,
	opts ...Option,
) *Generator {
	g := &Generator{
		store:     st,
		renderer:  renderer,
		publisher: publisher,
		cache:     cache,
		recorder:  recorder,
		validate:  validate,
		logger:    logger.With("component", "prescription"),
		now:       time.Now,
		location:  time.UTC,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Normalize trims the request and drops medications without a name, then
// checks it against the rendering limits.
func (g *Generator) Normalize(req models.PrescriptionRequest) (models.PrescriptionRequest, error) {
	req.PatientName = strings.TrimSpace(req.PatientName)
	req.PatientAge = strings.TrimSpace(req.PatientAge)
	req.Observations = strings.TrimSpace(req.Observations)

	meds := make([]models.Medication, 0, len(req.Medications))
	for _, m := range req.Medications {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			continue
		}
		m.Dosage = strings.TrimSpace(m.Dosage)
		m.Frequency = strings.TrimSpace(m.Frequency)
		m.Duration = strings.TrimSpace(m.Duration)
		meds = append(meds, m)
	}
	req.Medications = meds

	switch {
	case req.PatientName == "":
		return req, fmt.Errorf("%w: patient name is required", ErrValidation)
	case len(meds) == 0:
		return req, fmt.Errorf("%w: at least one medication is required", ErrValidation)
	case len(meds) > pdf.MaxMedications:
		return req, fmt.Errorf("%w: at most %d medications are allowed", ErrValidation, pdf.MaxMedications)
	case utf8.RuneCountInString(req.Observations) > pdf.MaxObservationsLen:
		return req, fmt.Errorf("%w: observations must have at most %d characters", ErrValidation, pdf.MaxObservationsLen)
	}

	if g.validate != nil {
		if err := g.validate.Struct(req); err != nil {
			return req, fmt.Errorf("%w: %s", ErrValidation, err.Error())
		}
	}
	return req, nil
}

// Generate renders a prescription for caller and records it. Nothing is
// written unless every precondition holds and the PDF rendered.
func (g *Generator) Generate(ctx context.Context, caller Caller, req models.PrescriptionRequest) (Result, error) {
	req, err := g.Normalize(req)
	if err != nil {
		g.fail("validation")
		return Result{}, err
	}

	sub, err := g.store.GetActiveSubscription(ctx, caller.UserID)
	if errors.Is(err, store.ErrNotFound) {
		g.fail("no_subscription")
		return Result{}, ErrNoActiveSubscription
	}
	if err != nil {
		g.fail("store")
		return Result{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if !sub.HasQuota() {
		g.fail("quota")
		return Result{}, ErrQuotaExceeded
	}

	profile, err := g.store.GetProfile(ctx, caller.UserID)
	if errors.Is(err, store.ErrNotFound) {
		g.fail("no_profile")
		return Result{}, ErrProfileNotFound
	}
	if err != nil {
		g.fail("store")
		return Result{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	g.logger.Info("Generating prescription", "user_id", caller.UserID, "plan", sub.Plan)

	doc, err := g.renderer.Render(pdf.Document{
		Profile:      profile,
		PatientName:  req.PatientName,
		PatientAge:   req.PatientAge,
		Medications:  req.Medications,
		Observations: req.Observations,
		Date:         g.now().In(g.location),
	})
	if err != nil {
		g.fail("render")
		return Result{}, fmt.Errorf("%w: %v", ErrRender, err)
	}

	rx, sub, err := g.store.RecordPrescription(ctx, models.Prescription{
		UserID:       caller.UserID,
		PatientName:  req.PatientName,
		PatientAge:   req.PatientAge,
		Medications:  req.Medications,
		Observations: req.Observations,
	}, sub)
	if errors.Is(err, store.ErrQuotaExhausted) {
		g.fail("quota")
		return Result{}, ErrQuotaExceeded
	}
	if err != nil {
		g.fail("store")
		g.logger.Error("Failed to record prescription", "user_id", caller.UserID, "error", err)
		return Result{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	res := Result{PDF: doc, Prescription: rx, Plan: sub.Plan, Remaining: sub.Remaining()}
	g.afterCommit(ctx, caller, res)

	g.logger.Info("Prescription generated successfully", "user_id", caller.UserID, "prescription_id", rx.ID)
	return res, nil
}

// afterCommit runs the best-effort side effects of a recorded generation.
func (g *Generator) afterCommit(ctx context.Context, caller Caller, res Result) {
	if g.recorder != nil {
		g.recorder.PrescriptionGenerated(res.Plan)
	}
	if g.cache != nil {
		if err := g.cache.InvalidateDashboard(ctx, caller.UserID); err != nil {
			g.logger.Warn("Failed to invalidate dashboard cache", "user_id", caller.UserID, "error", err)
		}
	}
	if g.publisher != nil {
		err := g.publisher.Publish(ctx, models.Event{
			Type:       models.EventPrescriptionGenerated,
			UserID:     caller.UserID,
			Email:      caller.Email,
			Plan:       res.Plan,
			Remaining:  res.Remaining,
			OccurredAt: g.now(),
		})
		if err != nil {
			g.logger.Warn("Failed to publish prescription event", "user_id", caller.UserID, "error", err)
		}
	}
}

func (g *Generator) fail(reason string) {
	if g.recorder != nil {
		g.recorder.PrescriptionFailed(reason)
	}
}
