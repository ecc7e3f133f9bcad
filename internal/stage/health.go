package stage

import "context"

// Health summarizes the readiness of one model backend.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// HealthChecker is implemented by adapters that can report backend readiness.
// Adapters without it are assumed ready.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}

// CheckAll probes every adapter that supports health checks.
func CheckAll(ctx context.Context, adapters Adapters) []Health {
	probes := []struct {
		name string
		impl any
	}{
		{NameIngest, adapters.Ingester},
		{NameOCR, adapters.OCR},
		{NameLingua, adapters.Lingua},
		{NamePII, adapters.PII},
	}
	var results []Health
	for _, probe := range probes {
		checker, ok := probe.impl.(HealthChecker)
		if !ok {
			results = append(results, Healthy(probe.name))
			continue
		}
		results = append(results, checker.HealthCheck(ctx))
	}
	return results
}
