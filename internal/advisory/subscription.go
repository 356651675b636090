package advisory

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
)

// SubscriptionStatusActive is the only status a new subscription has.
const SubscriptionStatusActive = "active"

// SubscribeRequest registers a contact for advisory notifications.
type SubscribeRequest struct {
	ContactMethod string         `json:"contact_method"`
	ContactValue  string         `json:"contact_value"`
	Preferences   map[string]any `json:"preferences"`
}

// Validate checks that all three fields are present.
func (r SubscribeRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.ContactMethod) == "":
		return &domain.ValidationError{Field: "contact_method", Reason: "is required"}
	case strings.TrimSpace(r.ContactValue) == "":
		return &domain.ValidationError{Field: "contact_value", Reason: "is required"}
	case r.Preferences == nil:
		return &domain.ValidationError{Field: "preferences", Reason: "is required"}
	}
	return nil
}

// Subscription is a stored notification registration.
type Subscription struct {
	ID            string         `json:"subscription_id"`
	ContactMethod string         `json:"contact_method"`
	ContactValue  string         `json:"contact_value"`
	Preferences   map[string]any `json:"preferences"`
	Status        string         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	Message       string         `json:"message"`
}

// Subscribe stores a subscription and returns it with a fresh id.
func (s *Service) Subscribe(req SubscribeRequest) (Subscription, error) {
	if err := req.Validate(); err != nil {
		return Subscription{}, err
	}
	sub := Subscription{
		ID:            uuid.NewString(),
		ContactMethod: req.ContactMethod,
		ContactValue:  req.ContactValue,
		Preferences:   req.Preferences,
		Status:        SubscriptionStatusActive,
		CreatedAt:     s.clock.Now().UTC(),
		Message:       "Successfully subscribed to advisory notifications",
	}

	s.mu.Lock()
	s.subscriptions[sub.ID] = sub
	total := len(s.subscriptions)
	s.mu.Unlock()

	s.logger.Info("advisory subscription created", "id", sub.ID, "contact_method", sub.ContactMethod, "subscriptions", total)
	return sub, nil
}

func itoa(n int) string { return strconv.Itoa(n) }
