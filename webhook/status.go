package webhook

import (
	"fmt"
	"strings"
)

/* Status enums are persisted as their upper-case names
 * Every type starts at iota + 1 so the zero value is never a valid state
 */

// parseEnum returns the 1-based position of s in names, or 0
func parseEnum(names []string, s string) int {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range names {
		if name == s {
			return i + 1
		}
	}
	return 0
}

func enumName(names []string, v int) string {
	if v < 1 || v > len(names) {
		return "unknown"
	}
	return names[v-1]
}

// EventStatus represents where an inbound event is in the pipeline
// Follows the lifecycle: Received -> Processing -> Processed/Ignored/Invalid/Error
type EventStatus int

const (
	EventReceived EventStatus = iota + 1
	EventProcessing
	EventProcessed
	EventIgnored
	EventInvalid
	EventError
)

var eventStatusNames = []string{"RECEIVED", "PROCESSING", "PROCESSED", "IGNORED", "INVALID", "ERROR"}

// String returns the string representation of the status
func (s EventStatus) String() string {
	return enumName(eventStatusNames, int(s))
}

// NewEventStatus creates an EventStatus from a string
func NewEventStatus(str string) EventStatus {
	return EventStatus(parseEnum(eventStatusNames, str))
}

// Validate checks if the status is valid
func (s EventStatus) Validate() error {
	if s < EventReceived || s > EventError {
		return fmt.Errorf("invalid event status: %d", s)
	}
	return nil
}

// IsFinal returns true if the status is a terminal state
func (s EventStatus) IsFinal() bool {
	return s >= EventProcessed && s <= EventError
}

// CanTransitionTo reports whether moving to next keeps the status moving forward
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	switch s {
	case EventReceived:
		return next == EventProcessing || next.IsFinal()
	case EventProcessing:
		return next.IsFinal()
	default:
		return false
	}
}

// DeliveryStatus represents the externally visible state of a delivery
// Follows the lifecycle: Pending/Scheduled -> InProgress -> Successful/Failed/Cancelled/OnHold
type DeliveryStatus int

const (
	DeliveryPending DeliveryStatus = iota + 1
	DeliveryScheduled
	DeliveryInProgress
	DeliverySuccessful
	DeliveryFailed
	DeliveryCancelled
	DeliveryOnHold
)

var deliveryStatusNames = []string{"PENDING", "SCHEDULED", "IN_PROGRESS", "SUCCESSFUL", "FAILED", "CANCELLED", "ON_HOLD"}

// String returns the string representation of the status
func (s DeliveryStatus) String() string {
	return enumName(deliveryStatusNames, int(s))
}

// NewDeliveryStatus creates a DeliveryStatus from a string
func NewDeliveryStatus(str string) DeliveryStatus {
	return DeliveryStatus(parseEnum(deliveryStatusNames, str))
}

// Validate checks if the status is valid
func (s DeliveryStatus) Validate() error {
	if s < DeliveryPending || s > DeliveryOnHold {
		return fmt.Errorf("invalid delivery status: %d", s)
	}
	return nil
}

// IsFinal returns true if the status is a terminal state
func (s DeliveryStatus) IsFinal() bool {
	return s == DeliverySuccessful || s == DeliveryCancelled
}

// AttemptStatus represents the outcome of one delivery try
type AttemptStatus int

const (
	AttemptPending AttemptStatus = iota + 1
	AttemptInProgress
	AttemptSuccessful
	AttemptFailed
	AttemptTimeout
	AttemptCancelled
)

var attemptStatusNames = []string{"PENDING", "IN_PROGRESS", "SUCCESSFUL", "FAILED", "TIMEOUT", "CANCELLED"}

// String returns the string representation of the status
func (s AttemptStatus) String() string {
	return enumName(attemptStatusNames, int(s))
}

// NewAttemptStatus creates an AttemptStatus from a string
func NewAttemptStatus(str string) AttemptStatus {
	return AttemptStatus(parseEnum(attemptStatusNames, str))
}

// Validate checks if the status is valid
func (s AttemptStatus) Validate() error {
	if s < AttemptPending || s > AttemptCancelled {
		return fmt.Errorf("invalid attempt status: %d", s)
	}
	return nil
}

// IsFinal returns true once the attempt can no longer change
func (s AttemptStatus) IsFinal() bool {
	return s >= AttemptSuccessful && s <= AttemptCancelled
}

// DeliveryStatus maps the latest attempt status to the delivery status it implies
func (s AttemptStatus) DeliveryStatus() DeliveryStatus {
	switch s {
	case AttemptInProgress:
		return DeliveryInProgress
	case AttemptSuccessful:
		return DeliverySuccessful
	case AttemptFailed, AttemptTimeout:
		return DeliveryFailed
	case AttemptCancelled:
		return DeliveryCancelled
	default:
		return DeliveryPending
	}
}

// AttemptTrigger records why an attempt was made
type AttemptTrigger int

const (
	TriggerInitial AttemptTrigger = iota + 1
	TriggerAutomaticRetry
	TriggerManualRetry
	TriggerBulkRetry
	TriggerUnpause
)

var attemptTriggerNames = []string{"INITIAL", "AUTOMATIC_RETRY", "MANUAL_RETRY", "BULK_RETRY", "UNPAUSE"}

// String returns the string representation of the trigger
func (t AttemptTrigger) String() string {
	return enumName(attemptTriggerNames, int(t))
}

// NewAttemptTrigger creates an AttemptTrigger from a string
func NewAttemptTrigger(str string) AttemptTrigger {
	return AttemptTrigger(parseEnum(attemptTriggerNames, str))
}

// Validate checks if the trigger is valid
func (t AttemptTrigger) Validate() error {
	if t < TriggerInitial || t > TriggerUnpause {
		return fmt.Errorf("invalid attempt trigger: %d", t)
	}
	return nil
}

// EntityStatus is the tenant controlled state of endpoints, routes and channels
type EntityStatus int

const (
	Active EntityStatus = iota + 1
	Paused
	Disabled
)

var entityStatusNames = []string{"ACTIVE", "PAUSED", "DISABLED"}

// String returns the string representation of the status
func (s EntityStatus) String() string {
	return enumName(entityStatusNames, int(s))
}

// NewEntityStatus creates an EntityStatus from a string; unknown values are Disabled
func NewEntityStatus(str string) EntityStatus {
	if s := EntityStatus(parseEnum(entityStatusNames, str)); s != 0 {
		return s
	}
	return Disabled
}

// Validate checks if the status is valid
func (s EntityStatus) Validate() error {
	if s < Active || s > Disabled {
		return fmt.Errorf("invalid status: %d", s)
	}
	return nil
}

// RetryStrategy is how a route wants failed deliveries re-attempted
type RetryStrategy int

const (
	RetryNone RetryStrategy = iota + 1
	RetryLinear
	RetryExponential
)

var retryStrategyNames = []string{"NONE", "LINEAR", "EXPONENTIAL"}

// String returns the string representation of the strategy
func (r RetryStrategy) String() string {
	return enumName(retryStrategyNames, int(r))
}

// NewRetryStrategy creates a RetryStrategy from a string; unknown values are RetryNone
func NewRetryStrategy(str string) RetryStrategy {
	if r := RetryStrategy(parseEnum(retryStrategyNames, str)); r != 0 {
		return r
	}
	return RetryNone
}

// Validate checks if the strategy is valid
func (r RetryStrategy) Validate() error {
	if r < RetryNone || r > RetryExponential {
		return fmt.Errorf("invalid retry strategy: %d", r)
	}
	return nil
}
