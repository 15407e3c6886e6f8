package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"funnel_backend/internals/features/funnel/steps/model"
)

// ErrNoTransition is returned when an event is not allowed from the current step.
var ErrNoTransition = errors.New("steps: transition not allowed")

/* ===================== Transition table ===================== */

type Transition struct {
	From  model.Step
	Event model.Event
	To    model.Step
}

// Transitions is the complete forward table. Nothing else moves the cursor forward.
var Transitions = []Transition{
	{model.StepImpact, model.EventNext, model.StepName},
	{model.StepName, model.EventNext, model.StepPhone},
	{model.StepPhone, model.EventCodeSent, model.StepSMS},
	{model.StepSMS, model.EventVerified, model.StepPayment},
	{model.StepSMS, model.EventAlreadyDonor, model.StepWelcome},
	{model.StepPayment, model.EventPaid, model.StepSuccess},
	{model.StepPayment, model.EventDeclined, model.StepFailure},
	{model.StepFailure, model.EventRetry, model.StepPayment},
	{model.StepSuccess, model.EventNext, model.StepWelcome},
	{model.StepWelcome, model.EventNext, model.StepCause},
	{model.StepCause, model.EventNext, model.StepEmail},
	{model.StepEmail, model.EventNext, model.StepEmail},
}

var table = func() map[model.Step]map[model.Event]model.Step {
	m := make(map[model.Step]map[model.Event]model.Step, len(model.Order))
	for _, t := range Transitions {
		if m[t.From] == nil {
			m[t.From] = map[model.Event]model.Step{}
		}
		m[t.From][t.Event] = t.To
	}
	return m
}()

// Next looks up the forward table.
func Next(from model.Step, ev model.Event) (model.Step, error) {
	if to, ok := table[from][ev]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s --%s-->", ErrNoTransition, from, ev)
}

// Progress is what the back table needs to know about the session.
type Progress struct {
	// Paid: a payment went through in this session.
	Paid bool
	// Verified: the SMS code was accepted, so the donation already exists.
	Verified bool
	// ActiveDonor: the donor holds an active subscription.
	ActiveDonor bool
}

// Back is the retreat table. Steps whose side effects cannot be repeated
// (sending the code after verification, charging after payment) are never
// re-entered: the cursor stays put instead.
func Back(from model.Step, p Progress) model.Step {
	switch from {
	case model.StepImpact:
		return model.StepImpact
	case model.StepFailure:
		return model.StepPayment
	case model.StepPayment:
		if p.Verified {
			return model.StepPayment
		}
	case model.StepSuccess:
		return model.StepSuccess
	case model.StepWelcome:
		if p.Paid {
			return model.StepSuccess
		}
		return model.StepWelcome
	case model.StepEmail:
		switch {
		case p.Paid:
			return model.StepSuccess
		case p.ActiveDonor:
			return model.StepCause
		}
		return model.StepPayment
	}
	if i := from.Index(); i > 0 {
		return model.Order[i-1]
	}
	return model.StepImpact
}

// Resolve maps a step name or a numeric index to a step. Anything unknown or
// out of range resolves to the first step and reports recovered=true.
func Resolve(raw string) (step model.Step, recovered bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return model.StepImpact, false
	}
	if n, err := strconv.Atoi(raw); err == nil {
		if n >= 0 && n < len(model.Order) {
			return model.Order[n], false
		}
		return model.StepImpact, true
	}
	if s := model.Step(raw); s.Valid() {
		return s, false
	}
	return model.StepImpact, true
}

/* ===================== Sequencer ===================== */

// Sequencer holds the active step and gates advancement on its validator.
type Sequencer struct {
	current   model.Step
	recovered bool
}

// NewSequencer starts at step; an invalid step is clamped to the first one.
func NewSequencer(step model.Step) *Sequencer {
	if !step.Valid() {
		return &Sequencer{current: model.StepImpact, recovered: true}
	}
	return &Sequencer{current: step}
}

func (s *Sequencer) Current() model.Step { return s.current }

// Recovered reports whether construction had to clamp an invalid step.
func (s *Sequencer) Recovered() bool { return s.recovered }

func (s *Sequencer) Descriptor() model.Descriptor { return model.DescriptorOf(s.current) }

// Validate runs the active step's validator on value.
func (s *Sequencer) Validate(value string) error {
	return ValidateField(s.Descriptor().Field, value)
}

// Advance validates value and fires EventNext. Invalid input leaves the cursor untouched.
func (s *Sequencer) Advance(value string) (model.Step, error) {
	if err := s.Validate(value); err != nil {
		return s.current, err
	}
	return s.Fire(model.EventNext)
}

// Fire applies ev from the transition table.
func (s *Sequencer) Fire(ev model.Event) (model.Step, error) {
	to, err := Next(s.current, ev)
	if err != nil {
		return s.current, err
	}
	s.current = to
	return to, nil
}

// Retreat applies the back table.
func (s *Sequencer) Retreat(p Progress) model.Step {
	s.current = Back(s.current, p)
	return s.current
}
