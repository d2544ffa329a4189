package pipeline

import (
	"fmt"

	"git.home.luguber.info/inful/contentmigrator/internal/config"
	"git.home.luguber.info/inful/contentmigrator/internal/content"
	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
	"git.home.luguber.info/inful/contentmigrator/internal/hooks"
	"git.home.luguber.info/inful/contentmigrator/internal/manifest"
	"git.home.luguber.info/inful/contentmigrator/internal/migration"
	"git.home.luguber.info/inful/contentmigrator/internal/retry"
)

// Plan is the immutable description of a migration: which content types run
// in which order, the frozen hook registry and the run knobs.
type Plan struct {
	types         []content.Type
	registry      *hooks.Registry
	source        migration.Source
	destination   migration.Destination
	failurePolicy config.FailurePolicy
	batchSize     int
	parallelism   int
	pageSize      int
	resume        manifest.ResumePolicy
	fatalSeverity merrors.ErrorSeverity
	retry         retry.Policy
}

// ContentTypes returns the action order.
func (p *Plan) ContentTypes() []content.Type { return append([]content.Type(nil), p.types...) }

// Registry returns the frozen hook registry.
func (p *Plan) Registry() *hooks.Registry { return p.registry }

// FailurePolicy returns whether a failed action halts the run.
func (p *Plan) FailurePolicy() config.FailurePolicy { return p.failurePolicy }

// Resume returns the policy applied to entries from earlier runs.
func (p *Plan) Resume() manifest.ResumePolicy { return p.resume }

// RetryPolicy returns the enumeration and publish retry policy.
func (p *Plan) RetryPolicy() retry.Policy { return p.retry }

// actionConfig derives the per-action configuration for ct.
func (p *Plan) actionConfig(ct content.Type) migration.ActionConfig {
	return migration.ActionConfig{
		Type:          ct,
		BatchSize:     p.batchSize,
		Parallelism:   p.parallelism,
		PageSize:      p.pageSize,
		Resume:        p.resume,
		FatalSeverity: p.fatalSeverity,
	}
}

// PlanBuilder constructs a Plan. Build validates the plan and freezes the
// registry; the builder must not be reused afterwards.
type PlanBuilder struct {
	plan Plan
}

// NewPlanBuilder creates a builder with default knobs and an empty registry.
func NewPlanBuilder() *PlanBuilder {
	return &PlanBuilder{plan: Plan{
		types:         content.DefaultOrder(),
		registry:      hooks.NewRegistry(),
		failurePolicy: config.FailurePolicyHalt,
		batchSize:     50,
		parallelism:   4,
		pageSize:      100,
		resume:        manifest.ResumePolicy{RetryCancelled: true},
		fatalSeverity: merrors.SeverityFatal,
		retry:         retry.DefaultPolicy(),
	}}
}

// FromConfig resolves the builder's knobs from a validated configuration.
func (b *PlanBuilder) FromConfig(cfg *config.Config) *PlanBuilder {
	mc := cfg.Migration
	if types, err := mc.Types(); err == nil && len(types) > 0 {
		b.plan.types = types
	}
	b.plan.failurePolicy = mc.FailurePolicy
	b.plan.batchSize = mc.BatchSize
	b.plan.parallelism = mc.Parallelism
	b.plan.pageSize = cfg.Source.PageSize
	b.plan.fatalSeverity = merrors.ParseSeverity(mc.FatalSeverity)
	b.plan.resume = manifest.ResumePolicy{
		ForceRemigrate: mc.ForceRemigrate,
		RetryCancelled: mc.RetryCancelled == nil || *mc.RetryCancelled,
	}
	b.plan.retry = retry.FromConfig(cfg.Retry)
	return b
}

// WithContentTypes sets the action order.
func (b *PlanBuilder) WithContentTypes(types ...content.Type) *PlanBuilder {
	b.plan.types = append([]content.Type(nil), types...)
	return b
}

// WithRegistry replaces the hook registry.
func (b *PlanBuilder) WithRegistry(r *hooks.Registry) *PlanBuilder {
	b.plan.registry = r
	return b
}

// WithEndpoints sets the source and destination.
func (b *PlanBuilder) WithEndpoints(src migration.Source, dst migration.Destination) *PlanBuilder {
	b.plan.source = src
	b.plan.destination = dst
	return b
}

// WithFailurePolicy sets whether a failed action halts the run.
func (b *PlanBuilder) WithFailurePolicy(p config.FailurePolicy) *PlanBuilder {
	b.plan.failurePolicy = p
	return b
}

// WithBatching sets the batch size and per-batch parallelism.
func (b *PlanBuilder) WithBatching(batchSize, parallelism int) *PlanBuilder {
	b.plan.batchSize = batchSize
	b.plan.parallelism = parallelism
	return b
}

// WithPageSize sets the enumeration page size.
func (b *PlanBuilder) WithPageSize(n int) *PlanBuilder {
	b.plan.pageSize = n
	return b
}

// WithResume sets the resume policy.
func (b *PlanBuilder) WithResume(p manifest.ResumePolicy) *PlanBuilder {
	b.plan.resume = p
	return b
}

// WithFatalSeverity sets the item error severity that fails an action.
func (b *PlanBuilder) WithFatalSeverity(s merrors.ErrorSeverity) *PlanBuilder {
	b.plan.fatalSeverity = s
	return b
}

// WithRetryPolicy sets the enumeration and publish retry policy.
func (b *PlanBuilder) WithRetryPolicy(p retry.Policy) *PlanBuilder {
	b.plan.retry = p
	return b
}

// Registry exposes the registry so hooks can be registered before Build.
func (b *PlanBuilder) Registry() *hooks.Registry { return b.plan.registry }

// Build validates the plan, freezes the registry and returns the plan.
func (b *PlanBuilder) Build() (*Plan, error) {
	p := b.plan
	if err := content.ValidateOrder(p.types); err != nil {
		return nil, merrors.ValidationFailed("migration.content_types", err.Error())
	}
	if p.source == nil || p.destination == nil {
		return nil, merrors.ValidationFailed("endpoints", "source and destination are required")
	}
	if p.batchSize <= 0 {
		return nil, merrors.ValidationFailed("migration.batch_size", fmt.Sprintf("must be positive, got %d", p.batchSize))
	}
	if p.parallelism <= 0 {
		return nil, merrors.ValidationFailed("migration.parallelism", fmt.Sprintf("must be positive, got %d", p.parallelism))
	}
	switch p.failurePolicy {
	case config.FailurePolicyHalt, config.FailurePolicyContinue:
	default:
		return nil, merrors.ValidationFailed("migration.failure_policy", fmt.Sprintf("unknown policy %q", p.failurePolicy))
	}
	if err := p.retry.Validate(); err != nil {
		return nil, merrors.ValidationFailed("retry", err.Error())
	}
	if p.registry == nil {
		p.registry = hooks.NewRegistry()
	}
	p.types = append([]content.Type(nil), p.types...)
	p.registry.Freeze()
	return &p, nil
}
