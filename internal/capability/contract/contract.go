// Package contract holds reusable checks that any capability.Provider
// adapter must pass.
package contract

import (
	"context"
	"testing"
	"time"

	"kycgate/internal/capability"
)

// ContractTest is one successful-analysis case.
type ContractTest struct {
	Name         string
	Request      capability.Request
	ValidateFunc func(resp *capability.Response) error
}

// ContractSuite runs contract cases against one provider.
type ContractSuite struct {
	Provider        capability.Provider
	ExpectedID      string
	ExpectedVariant capability.Variant
	Tests           []ContractTest
}

// Run executes all contract tests in the suite.
func (s *ContractSuite) Run(t *testing.T) {
	t.Helper()
	if got := s.Provider.ID(); got != s.ExpectedID {
		t.Errorf("expected provider ID %s, got %s", s.ExpectedID, got)
	}
	if got := s.Provider.Variant(); got != s.ExpectedVariant {
		t.Errorf("expected variant %s, got %s", s.ExpectedVariant, got)
	}
	for _, test := range s.Tests {
		t.Run(test.Name, func(t *testing.T) {
			resp, err := capability.Invoke(context.Background(), s.Provider, test.Request, time.Second)
			if err != nil {
				t.Fatalf("analysis failed: %v", err)
			}
			if err := resp.Validate(); err != nil {
				t.Fatalf("response violates contract: %v", err)
			}
			seen := map[string]bool{}
			for _, a := range resp.Artifacts {
				if seen[a] {
					t.Errorf("artifact %q repeated", a)
				}
				seen[a] = true
			}
			if test.ValidateFunc != nil {
				if err := test.ValidateFunc(resp); err != nil {
					t.Errorf("custom validation failed: %v", err)
				}
			}
		})
	}
}

// ErrorContractTest validates that provider failures follow the taxonomy.
type ErrorContractTest struct {
	Name          string
	Provider      capability.Provider
	Request       capability.Request
	Timeout       time.Duration
	ExpectedError capability.ErrorCategory
	ExpectedRetry bool
}

// Run executes an error contract test.
func (ect *ErrorContractTest) Run(t *testing.T) {
	t.Helper()
	t.Run(ect.Name, func(t *testing.T) {
		_, err := capability.Invoke(context.Background(), ect.Provider, ect.Request, ect.Timeout)
		if err == nil {
			t.Fatal("expected error but got none")
		}
		if got := capability.GetCategory(err); got != ect.ExpectedError {
			t.Errorf("expected error category %s, got %s", ect.ExpectedError, got)
		}
		if got := capability.IsRetryable(err); got != ect.ExpectedRetry {
			t.Errorf("expected retryable=%v, got %v", ect.ExpectedRetry, got)
		}
	})
}
