package model

import (
	"strings"
)

// CategoryPreference is the per-category enablement toggle.
type CategoryPreference struct {
	IsEnabled bool
}

// QuietHours is a per-user local-time deferral window (§4.4).
type QuietHours struct {
	Enabled  bool
	Start    string // "HH:MM"
	End      string // "HH:MM"
	Timezone string // IANA zone name
}

// BlockLists hold case-insensitive keyword/source/sender blocks (§3).
type BlockLists struct {
	Keywords []string
	Sources  []string
	Senders  []string
}

// UserPreferences governs whether and how a user receives notifications.
type UserPreferences struct {
	UserID            string
	NotificationTypes map[Category]CategoryPreference
	QuietHours        QuietHours
	CategoryOverrides map[Category]bool
	PlatformOverrides map[Platform]bool
	Blocked           BlockLists
	MaxDailyNotifications int
}

// DefaultUserPreferences returns the preferences document created on first
// access, per the §6 "creates defaults if missing" contract. Every category
// enumerated in §9's open-question key set defaults to enabled; `social` is
// included as well.
func DefaultUserPreferences(userID string) *UserPreferences {
	return &UserPreferences{
		UserID: userID,
		NotificationTypes: map[Category]CategoryPreference{
			CategoryFollow:  {IsEnabled: true},
			CategoryLike:    {IsEnabled: true},
			CategoryComment: {IsEnabled: true},
			CategoryMention: {IsEnabled: true},
			CategoryMessage: {IsEnabled: true},
			CategorySocial:  {IsEnabled: true},
		},
		QuietHours: QuietHours{Enabled: false},
	}
}

// DeliveryDecision is the result of shouldDeliver (§3).
type DeliveryDecision struct {
	Deliver bool
	Reason  string
}

// ShouldDeliver implements the UserPreferences contract from §3: category
// gating and source/keyword blocking. Blocked.Senders and priority are not
// consulted here. Quiet-hours is evaluated
// separately by the quiethours package since it depends on the current
// instant, not just static preferences.
func (p *UserPreferences) ShouldDeliver(category Category, priority Priority, source string, title, body string) DeliveryDecision {
	if pref, ok := p.NotificationTypes[category]; ok && !pref.IsEnabled {
		return DeliveryDecision{Deliver: false, Reason: "category-disabled"}
	}
	for _, blockedSource := range p.Blocked.Sources {
		if strings.EqualFold(blockedSource, source) {
			return DeliveryDecision{Deliver: false, Reason: "blocked-source"}
		}
	}
	haystack := strings.ToLower(title + " " + body)
	for _, keyword := range p.Blocked.Keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(keyword)) {
			return DeliveryDecision{Deliver: false, Reason: "blocked-keyword"}
		}
	}
	return DeliveryDecision{Deliver: true}
}

// IsUrgent reports whether a notification bypasses quiet hours (§4.4).
func IsUrgent(category Category, priority Priority, urgent bool) bool {
	if urgent {
		return true
	}
	if priority == PriorityHigh || priority == PriorityCritical {
		return true
	}
	switch category {
	case CategoryMention, CategoryMessage:
		return true
	}
	return false
}
