package record

import (
	"errors"
	"fmt"
)

// ErrNotApplicable is returned when an assessment patch targets a sub-object
// the record kind does not have.
var ErrNotApplicable = errors.New("assessment does not apply to this record kind")

// RiskPatch changes parts of a risk assessment. Nil fields are left alone.
type RiskPatch struct {
	Level *RiskLevel        `json:"level"`
	Flags map[RiskFlag]bool `json:"flags"`
	Notes *string           `json:"notes"`
}

func (p *RiskPatch) apply(r Risk) (Risk, error) {
	if p == nil {
		return r, nil
	}
	var err error
	if p.Level != nil {
		if r, err = r.WithLevel(*p.Level); err != nil {
			return r, err
		}
	}
	for flag, on := range p.Flags {
		if r, err = r.WithFlag(flag, on); err != nil {
			return r, err
		}
	}
	if p.Notes != nil {
		r = r.WithNotes(*p.Notes)
	}
	return r, nil
}

// ParticipationPatch changes parts of a participation record.
type ParticipationPatch struct {
	Level      *ParticipationLevel `json:"level"`
	Engagement *string             `json:"engagement"`
	Notes      *string             `json:"notes"`
}

func (p *ParticipationPatch) apply(v Participation) (Participation, error) {
	if p == nil {
		return v, nil
	}
	var err error
	if p.Level != nil {
		if v, err = v.WithLevel(*p.Level); err != nil {
			return v, err
		}
	}
	if p.Engagement != nil {
		v = v.WithEngagement(*p.Engagement)
	}
	if p.Notes != nil {
		v = v.WithNotes(*p.Notes)
	}
	return v, nil
}

// AssessmentPatch updates the needs, risk and participation sub-objects
// through their typed updaters.
type AssessmentPatch struct {
	Needs         map[Need]bool       `json:"needs"`
	Risk          *RiskPatch          `json:"risk"`
	Participation *ParticipationPatch `json:"participation"`
}

// Apply returns a copy of b with the patch applied.
func (p AssessmentPatch) Apply(b Body) (Body, error) {
	switch body := b.(type) {
	case DischargeSummary:
		if p.Participation != nil {
			return nil, fmt.Errorf("%w: participation on %s", ErrNotApplicable, body.Kind())
		}
		needs := body.Needs
		for need, on := range p.Needs {
			var err error
			if needs, err = needs.With(need, on); err != nil {
				return nil, err
			}
		}
		risk, err := p.Risk.apply(body.Risk)
		if err != nil {
			return nil, err
		}
		return body.WithNeeds(needs).WithRisk(risk), nil

	case ProgressNote:
		if len(p.Needs) > 0 {
			return nil, fmt.Errorf("%w: needs on %s", ErrNotApplicable, body.Kind())
		}
		risk, err := p.Risk.apply(body.Risk)
		if err != nil {
			return nil, err
		}
		part, err := p.Participation.apply(body.Participation)
		if err != nil {
			return nil, err
		}
		return body.WithRisk(risk).WithParticipation(part), nil

	case ClientProfile, ConsentForm:
		return nil, fmt.Errorf("%w: %s", ErrNotApplicable, b.Kind())

	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidKind, b)
	}
}
