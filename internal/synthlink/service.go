package synthlink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/core/engine"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/synthlink/driver"
)

// Service routes synthesis jobs to configured provider instances. It is the
// orchestrator's view of the provider world: submit a class-tagged payload,
// poll a ref, best-effort cancel.
//
// Refs returned by Submit are namespaced as "<instance-id>/<provider-ref>" so
// that Status and CancelJob can find the owning instance without extra state.
type Service struct {
	cfg      Config
	registry *Registry
}

// New builds a service from provider configuration.
func New(cfg Config) *Service {
	return &Service{
		cfg:      cfg,
		registry: NewRegistry(cfg),
	}
}

// Registry exposes instance resolution for diagnostics tooling.
func (s *Service) Registry() *Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

// Submit routes the payload to the provider instance serving the class and
// starts a job there. Synchronous providers finish within the call and the
// returned submission carries the result directly.
func (s *Service) Submit(ctx context.Context, class string, payload json.RawMessage) (*engine.Submission, error) {
	if s == nil {
		return nil, core.NewConfigError("synthlink service not configured")
	}

	resolved, err := s.registry.Resolve(class, "")
	if err != nil {
		return nil, core.NewConfigError("route class %q: %v", class, err)
	}

	if err := pace(ctx, resolved.Pacer); err != nil {
		return nil, err
	}

	req := &driver.Request{
		Model: resolved.Model,
		Class: class,
		Input: payload,
	}

	job, err := resolved.Driver.Submit(ctx, req)
	if err != nil {
		return nil, mapProviderError(resolved.ProviderID, err)
	}
	if job == nil {
		return nil, core.NewPermanent(resolved.ProviderID, "provider returned an empty submission")
	}

	switch job.State {
	case driver.StateSucceeded:
		return &engine.Submission{
			Provider: resolved.ProviderID,
			Result:   s.finishResult(job),
		}, nil
	case driver.StateFailed, driver.StateCanceled:
		return nil, core.NewPermanent(resolved.ProviderID, failDetail(job))
	default:
		if strings.TrimSpace(job.Ref) == "" {
			return nil, core.NewPermanent(resolved.ProviderID, "provider accepted the job but returned no reference")
		}
		return &engine.Submission{
			Provider: resolved.ProviderID,
			Ref:      composeRef(resolved.ProviderID, job.Ref),
		}, nil
	}
}

// Status polls the provider owning the ref.
func (s *Service) Status(ctx context.Context, ref string) (*engine.Probe, error) {
	if s == nil {
		return nil, core.NewConfigError("synthlink service not configured")
	}

	providerID, providerRef, err := splitRef(ref)
	if err != nil {
		return nil, err
	}

	resolved, err := s.registry.ResolveByID(providerID)
	if err != nil {
		return nil, core.NewConfigError("resolve provider %q: %v", providerID, err)
	}

	if err := pace(ctx, resolved.Pacer); err != nil {
		return nil, err
	}

	job, err := resolved.Driver.Status(ctx, providerRef)
	if err != nil {
		return nil, mapProviderError(providerID, err)
	}
	if job == nil {
		return nil, core.NewPermanent(providerID, "provider returned an empty job status")
	}

	switch job.State {
	case driver.StateSucceeded:
		return &engine.Probe{
			State:  engine.ProbeSucceeded,
			Result: s.finishResult(job),
		}, nil
	case driver.StateFailed, driver.StateCanceled:
		return &engine.Probe{
			State:   engine.ProbeFailed,
			Message: failDetail(job),
		}, nil
	default:
		return &engine.Probe{State: engine.ProbeRunning}, nil
	}
}

// CancelJob asks the owning provider to stop the job. Providers without
// cancellation support report an error; callers treat the whole operation as
// advisory.
func (s *Service) CancelJob(ctx context.Context, ref string) error {
	if s == nil {
		return core.NewConfigError("synthlink service not configured")
	}

	providerID, providerRef, err := splitRef(ref)
	if err != nil {
		return err
	}

	resolved, err := s.registry.ResolveByID(providerID)
	if err != nil {
		return core.NewConfigError("resolve provider %q: %v", providerID, err)
	}

	canceler, ok := resolved.Driver.(driver.Canceler)
	if !ok {
		return fmt.Errorf("provider %q does not support cancellation", providerID)
	}

	if err := canceler.Cancel(ctx, providerRef); err != nil {
		return mapProviderError(providerID, err)
	}
	return nil
}

// finishResult returns the provider output, optionally wrapped with the raw
// response body when debug capture is on.
func (s *Service) finishResult(job *driver.Job) json.RawMessage {
	output := job.Output
	if len(output) == 0 {
		output = json.RawMessage(`null`)
	}

	raw, ok := captureRaw(s.cfg, job.Raw)
	if !ok {
		return output
	}

	wrapped, err := json.Marshal(struct {
		Output     json.RawMessage `json:"output"`
		RawCapture json.RawMessage `json:"raw_capture"`
	}{Output: output, RawCapture: raw})
	if err != nil {
		return output
	}
	return wrapped
}

func failDetail(job *driver.Job) string {
	detail := safeOneLine(job.Message)
	if detail == "" {
		detail = "provider reported failure without detail"
	}
	if job.State == driver.StateCanceled {
		detail = "canceled on provider: " + detail
	}
	return detail
}

func pace(ctx context.Context, pacer *rate.Limiter) error {
	if pacer == nil {
		return nil
	}
	return pacer.Wait(ctx)
}

func composeRef(providerID, ref string) string {
	return providerID + "/" + ref
}

func splitRef(ref string) (providerID, providerRef string, err error) {
	providerID, providerRef, found := strings.Cut(ref, "/")
	if !found || strings.TrimSpace(providerID) == "" || strings.TrimSpace(providerRef) == "" {
		return "", "", fmt.Errorf("malformed job ref %q", ref)
	}
	return providerID, providerRef, nil
}
