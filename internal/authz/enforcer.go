// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package authz implements the navigator engine's policy_violation signal
// (§4.5) as a Casbin ABAC deny-list: unlike the teacher's RBAC enforcer,
// a policy match here IS the violation — there is no allow side to check.
// Deny rows are expected to be appended at runtime by the external auditor
// when it flags a device, not maintained as a static allow/deny table.
package authz

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// EnforcerConfig configures the deny-list enforcer.
type EnforcerConfig struct {
	// PolicyPath, if set, is loaded instead of the embedded (empty) policy
	// (an empty file is created there if none exists) and is the file the
	// policy is saved to, so rows added via Deny survive a restart once the
	// policy has been saved.
	PolicyPath string
}

// DefaultEnforcerConfig returns the zero-value config: embedded model, no
// persisted policy rows (a fresh deploy starts with nothing deny-listed).
func DefaultEnforcerConfig() EnforcerConfig {
	return EnforcerConfig{}
}

// Enforcer is a Casbin-backed deny list. It satisfies navigator.PolicyEnforcer.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads the ABAC model and policy and constructs an Enforcer.
func NewEnforcer(config EnforcerConfig) (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("authz: load model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if config.PolicyPath != "" {
		if !fileExists(config.PolicyPath) {
			if werr := os.WriteFile(config.PolicyPath, nil, 0o600); werr != nil {
				return nil, fmt.Errorf("authz: create policy file: %w", werr)
			}
		}
		adapter := fileadapter.NewAdapter(config.PolicyPath)
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("authz: create enforcer: %w", err)
	}

	return &Enforcer{enforcer: enforcer}, nil
}

func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) < 4 || parts[0] != "p" {
			continue
		}
		if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
			return fmt.Errorf("authz: add embedded policy %v: %w", parts[1:], err)
		}
	}
	return nil
}

// Violates reports whether (deviceID, endpoint, method) matches a
// deny-listed rule. It implements navigator.PolicyEnforcer. A Casbin/model
// error is treated as "no violation" — a broken policy store should fail
// open on this signal rather than block every request.
func (e *Enforcer) Violates(deviceID, endpoint, method string) bool {
	matched, err := e.enforcer.Enforce(deviceID, endpoint, method)
	if err != nil {
		return false
	}
	return matched
}

// Deny adds a deny-listed (deviceID, endpoint, method) combination, e.g. in
// response to the external auditor flagging a device.
func (e *Enforcer) Deny(deviceID, endpoint, method string) error {
	_, err := e.enforcer.AddPolicy(deviceID, endpoint, method)
	if err != nil {
		return fmt.Errorf("authz: add deny rule: %w", err)
	}
	return nil
}

// ClearDeny removes a previously deny-listed combination.
func (e *Enforcer) ClearDeny(deviceID, endpoint, method string) error {
	_, err := e.enforcer.RemovePolicy(deviceID, endpoint, method)
	if err != nil {
		return fmt.Errorf("authz: remove deny rule: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
