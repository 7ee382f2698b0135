package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// OnboardingPolicy is the data-driven part of the invitation workflow:
// which roles an initiator may assign, how long invitations stay valid,
// and the password rules enforced at account creation.
type OnboardingPolicy struct {
	// AssignableRoles maps an initiator role to the set of roles it may
	// hand out. Roles absent from the map cannot initiate at all.
	AssignableRoles map[string][]string `mapstructure:"assignableRoles"`

	InviteTTLHours int `mapstructure:"inviteTtlHours"`

	PasswordMinLength int `mapstructure:"passwordMinLength"`
}

func DefaultOnboardingPolicy() OnboardingPolicy {
	return OnboardingPolicy{
		AssignableRoles: map[string][]string{
			"HR_Admin":   {"HR_Manager", "manager", "employee"},
			"HR_Manager": {"manager", "employee"},
		},
		InviteTTLHours:    168,
		PasswordMinLength: 8,
	}
}

// InviteTTL returns the configured invitation lifetime.
func (p OnboardingPolicy) InviteTTL() time.Duration {
	hours := p.InviteTTLHours
	if hours <= 0 {
		hours = DefaultOnboardingPolicy().InviteTTLHours
	}
	return time.Duration(hours) * time.Hour
}

// CanAssign reports whether initiatorRole may hand out target.
func (p OnboardingPolicy) CanAssign(initiatorRole, target string) bool {
	allowed, ok := p.AssignableRoles[initiatorRole]
	if !ok {
		return false
	}
	for _, role := range allowed {
		if role == target {
			return true
		}
	}
	return false
}

type OnboardingPolicyHolder struct {
	current atomic.Value // holds OnboardingPolicy
}

// NewOnboardingPolicyHolder loads onboarding.yml and keeps it hot-reloaded.
// Missing file falls back to embedded defaults.
func NewOnboardingPolicyHolder() (*OnboardingPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("onboarding")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/humanline/config")
	v.AddConfigPath("/etc/humanline")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HUMANLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultOnboardingPolicy()
		v.SetDefault("onboarding.assignableRoles", defaults.AssignableRoles)
		v.SetDefault("onboarding.inviteTtlHours", defaults.InviteTTLHours)
		v.SetDefault("onboarding.passwordMinLength", defaults.PasswordMinLength)
	}

	var policy OnboardingPolicy
	if err := v.UnmarshalKey("onboarding", &policy); err != nil {
		return nil, err
	}
	if err := validateOnboardingPolicy(policy); err != nil {
		return nil, err
	}

	holder := &OnboardingPolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated OnboardingPolicy
		if err := v.UnmarshalKey("onboarding", &updated); err != nil {
			log.Printf("[onboarding-config] reload failed: %v", err)
			return
		}
		if err := validateOnboardingPolicy(updated); err != nil {
			log.Printf("[onboarding-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[onboarding-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *OnboardingPolicyHolder) Get() OnboardingPolicy {
	return h.current.Load().(OnboardingPolicy)
}

// NewStaticPolicyHolder wraps a fixed policy, for tests.
func NewStaticPolicyHolder(policy OnboardingPolicy) *OnboardingPolicyHolder {
	holder := &OnboardingPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func validateOnboardingPolicy(policy OnboardingPolicy) error {
	if len(policy.AssignableRoles) == 0 {
		return errors.New("onboarding.assignableRoles cannot be empty")
	}
	if policy.InviteTTLHours <= 0 {
		return errors.New("onboarding.inviteTtlHours must be positive")
	}
	return nil
}
