package enums

// PlanChangeTrigger names the external signal that moved a user between plans.
type PlanChangeTrigger string

const (
	PlanChangeTriggerSignup       PlanChangeTrigger = "signup"
	PlanChangeTriggerPurchase     PlanChangeTrigger = "purchase"
	PlanChangeTriggerCancellation PlanChangeTrigger = "cancellation"
	PlanChangeTriggerTagSync      PlanChangeTrigger = "tag_sync"
	PlanChangeTriggerAdmin        PlanChangeTrigger = "admin"
)

// String implements fmt.Stringer.
func (t PlanChangeTrigger) String() string {
	return string(t)
}

// IsValid reports whether the value is known.
func (t PlanChangeTrigger) IsValid() bool {
	switch t {
	case PlanChangeTriggerSignup,
		PlanChangeTriggerPurchase,
		PlanChangeTriggerCancellation,
		PlanChangeTriggerTagSync,
		PlanChangeTriggerAdmin:
		return true
	}
	return false
}
