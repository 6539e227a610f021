package sizing

// FirstDefined resolves the priority cascade used for entry, stop and target
// values: user override > last-captured suggestion > live suggestion > 0.
// It returns the first non-nil value, or 0 when none is set. Every field that
// follows this precedence resolves through this combinator; the order is never
// re-derived ad hoc per field.
func FirstDefined(values ...*float64) float64 {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}

// ValueSource holds the three cascade slots for one price field
type ValueSource struct {
	Override *float64 `json:"override,omitempty"`
	Captured *float64 `json:"captured,omitempty"`
	Live     *float64 `json:"live,omitempty"`
}

// Resolve applies the cascade.
func (v ValueSource) Resolve() float64 {
	return FirstDefined(v.Override, v.Captured, v.Live)
}

// TargetSource holds the cascade slots for the target list
type TargetSource struct {
	Override []float64 `json:"override,omitempty"`
	Captured []float64 `json:"captured,omitempty"`
	Live     []float64 `json:"live,omitempty"`
}

// Resolve returns the highest-priority non-empty target list.
func (t TargetSource) Resolve() []float64 {
	switch {
	case len(t.Override) > 0:
		return t.Override
	case len(t.Captured) > 0:
		return t.Captured
	default:
		return t.Live
	}
}
