package record

import (
	"fmt"
	"strconv"

	"github.com/ehr/records/internal/platform/pdf"
	"github.com/ehr/records/internal/platform/validation"
)

// Body is the typed content of a record. Implementations are value types;
// updates return modified copies.
type Body interface {
	Kind() Kind
	// Sections lists the labeled fields in print order.
	Sections() []pdf.Section
}

// Fields flattens a body's sections into its ordered (label, value) list.
func Fields(b Body) []pdf.Field {
	var out []pdf.Field
	for _, s := range b.Sections() {
		out = append(out, s.Fields...)
	}
	return out
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func number(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// EmergencyContact is the person to call about a client.
type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
}

// ClientProfile is the intake record for a client.
type ClientProfile struct {
	FirstName         string           `json:"first_name" validate:"notblank"`
	LastName          string           `json:"last_name" validate:"notblank"`
	DateOfBirth       string           `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Gender            string           `json:"gender"`
	Phone             string           `json:"phone"`
	Email             string           `json:"email" validate:"omitempty,email"`
	Address           string           `json:"address"`
	EmergencyContact  EmergencyContact `json:"emergency_contact"`
	InsuranceProvider string           `json:"insurance_provider"`
	InsuranceID       string           `json:"insurance_id"`
	PrimaryDiagnosis  string           `json:"primary_diagnosis"`
	ReferralSource    string           `json:"referral_source"`
	IntakeDate        string           `json:"intake_date" validate:"omitempty,datetime=2006-01-02"`
	Notes             string           `json:"notes"`
}

func (ClientProfile) Kind() Kind { return KindClientProfile }

func (p ClientProfile) Sections() []pdf.Section {
	return []pdf.Section{
		{Heading: "Client", Fields: []pdf.Field{
			{Label: "First name", Value: p.FirstName},
			{Label: "Last name", Value: p.LastName},
			{Label: "Date of birth", Value: p.DateOfBirth},
			{Label: "Gender", Value: p.Gender},
			{Label: "Phone", Value: p.Phone},
			{Label: "Email", Value: p.Email},
			{Label: "Address", Value: p.Address},
		}},
		{Heading: "Emergency contact", Fields: []pdf.Field{
			{Label: "Name", Value: p.EmergencyContact.Name},
			{Label: "Phone", Value: p.EmergencyContact.Phone},
			{Label: "Relationship", Value: p.EmergencyContact.Relationship},
		}},
		{Heading: "Insurance and referral", Fields: []pdf.Field{
			{Label: "Insurance provider", Value: p.InsuranceProvider},
			{Label: "Insurance ID", Value: p.InsuranceID},
			{Label: "Primary diagnosis", Value: p.PrimaryDiagnosis},
			{Label: "Referral source", Value: p.ReferralSource},
			{Label: "Intake date", Value: p.IntakeDate},
		}},
		{Heading: "Notes", Fields: []pdf.Field{{Label: "Notes", Value: p.Notes}}},
	}
}

// FullName is "First Last".
func (p ClientProfile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// ConsentForm records a client's (or guardian's) consent.
type ConsentForm struct {
	ConsentType      string `json:"consent_type" validate:"notblank"`
	Description      string `json:"description"`
	ClientName       string `json:"client_name" validate:"notblank"`
	EffectiveDate    string `json:"effective_date" validate:"omitempty,datetime=2006-01-02"`
	ExpirationDate   string `json:"expiration_date" validate:"omitempty,datetime=2006-01-02"`
	RequiresGuardian bool   `json:"requires_guardian"`
	Terms            string `json:"terms"`
}

func (ConsentForm) Kind() Kind { return KindConsentForm }

func (c ConsentForm) Sections() []pdf.Section {
	return []pdf.Section{
		{Heading: "Consent", Fields: []pdf.Field{
			{Label: "Consent type", Value: c.ConsentType},
			{Label: "Client name", Value: c.ClientName},
			{Label: "Effective date", Value: c.EffectiveDate},
			{Label: "Expiration date", Value: c.ExpirationDate},
			{Label: "Guardian signature required", Value: yesNo(c.RequiresGuardian)},
		}},
		{Heading: "Description", Fields: []pdf.Field{{Label: "Description", Value: c.Description}}},
		{Heading: "Terms", Fields: []pdf.Field{{Label: "Terms", Value: c.Terms}}},
	}
}

// Need is one area of discharge need.
type Need string

const (
	NeedHousing        Need = "housing"
	NeedEmployment     Need = "employment"
	NeedTransportation Need = "transportation"
	NeedMedical        Need = "medical"
	NeedMentalHealth   Need = "mental_health"
	NeedSubstanceUse   Need = "substance_use"
	NeedLegal          Need = "legal"
	NeedFinancial      Need = "financial"
)

var needLabels = []struct {
	need  Need
	label string
}{
	{NeedHousing, "Housing"},
	{NeedEmployment, "Employment"},
	{NeedTransportation, "Transportation"},
	{NeedMedical, "Medical"},
	{NeedMentalHealth, "Mental health"},
	{NeedSubstanceUse, "Substance use"},
	{NeedLegal, "Legal"},
	{NeedFinancial, "Financial"},
}

// Needs flags the areas a discharged client needs support in.
type Needs struct {
	Housing        bool `json:"housing"`
	Employment     bool `json:"employment"`
	Transportation bool `json:"transportation"`
	Medical        bool `json:"medical"`
	MentalHealth   bool `json:"mental_health"`
	SubstanceUse   bool `json:"substance_use"`
	Legal          bool `json:"legal"`
	Financial      bool `json:"financial"`
}

func (n *Needs) field(need Need) *bool {
	switch need {
	case NeedHousing:
		return &n.Housing
	case NeedEmployment:
		return &n.Employment
	case NeedTransportation:
		return &n.Transportation
	case NeedMedical:
		return &n.Medical
	case NeedMentalHealth:
		return &n.MentalHealth
	case NeedSubstanceUse:
		return &n.SubstanceUse
	case NeedLegal:
		return &n.Legal
	case NeedFinancial:
		return &n.Financial
	}
	return nil
}

// With returns a copy of n with need set to on.
func (n Needs) With(need Need, on bool) (Needs, error) {
	f := n.field(need)
	if f == nil {
		return n, validation.NewFieldError("needs."+string(need), "unknown need")
	}
	*f = on
	return n, nil
}

// Has reports whether need is flagged.
func (n Needs) Has(need Need) bool {
	f := n.field(need)
	return f != nil && *f
}

func (n Needs) fields() []pdf.Field {
	out := make([]pdf.Field, 0, len(needLabels))
	for _, l := range needLabels {
		out = append(out, pdf.Field{Label: l.label, Value: yesNo(n.Has(l.need))})
	}
	return out
}

// RiskLevel grades overall risk.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// RiskFlag is one risk indicator.
type RiskFlag string

const (
	FlagSuicidalIdeation  RiskFlag = "suicidal_ideation"
	FlagSelfHarm          RiskFlag = "self_harm"
	FlagHomicidalIdeation RiskFlag = "homicidal_ideation"
	FlagSubstanceUse      RiskFlag = "substance_use"
)

// Risk is a risk assessment shared by discharge summaries and progress notes.
type Risk struct {
	Level             RiskLevel `json:"level" validate:"omitempty,oneof=low moderate high"`
	SuicidalIdeation  bool      `json:"suicidal_ideation"`
	SelfHarm          bool      `json:"self_harm"`
	HomicidalIdeation bool      `json:"homicidal_ideation"`
	SubstanceUse      bool      `json:"substance_use"`
	Notes             string    `json:"notes"`
}

// WithLevel returns a copy of r at level l.
func (r Risk) WithLevel(l RiskLevel) (Risk, error) {
	switch l {
	case "", RiskLow, RiskModerate, RiskHigh:
		r.Level = l
		return r, nil
	}
	return r, validation.NewFieldError("risk.level", fmt.Sprintf("unknown risk level %q", l))
}

// WithFlag returns a copy of r with flag set to on.
func (r Risk) WithFlag(flag RiskFlag, on bool) (Risk, error) {
	switch flag {
	case FlagSuicidalIdeation:
		r.SuicidalIdeation = on
	case FlagSelfHarm:
		r.SelfHarm = on
	case FlagHomicidalIdeation:
		r.HomicidalIdeation = on
	case FlagSubstanceUse:
		r.SubstanceUse = on
	default:
		return r, validation.NewFieldError("risk.flags."+string(flag), "unknown risk flag")
	}
	return r, nil
}

// WithNotes returns a copy of r with notes replaced.
func (r Risk) WithNotes(notes string) Risk {
	r.Notes = notes
	return r
}

func (r Risk) section() pdf.Section {
	return pdf.Section{Heading: "Risk assessment", Fields: []pdf.Field{
		{Label: "Risk level", Value: string(r.Level)},
		{Label: "Suicidal ideation", Value: yesNo(r.SuicidalIdeation)},
		{Label: "Self-harm", Value: yesNo(r.SelfHarm)},
		{Label: "Homicidal ideation", Value: yesNo(r.HomicidalIdeation)},
		{Label: "Substance use", Value: yesNo(r.SubstanceUse)},
		{Label: "Risk notes", Value: r.Notes},
	}}
}

// DischargeSummary closes out a client's episode of care.
type DischargeSummary struct {
	ClientName         string `json:"client_name" validate:"notblank"`
	AdmissionDate      string `json:"admission_date" validate:"omitempty,datetime=2006-01-02"`
	DischargeDate      string `json:"discharge_date" validate:"omitempty,datetime=2006-01-02"`
	DischargeReason    string `json:"discharge_reason"`
	Summary            string `json:"summary"`
	Medications        string `json:"medications"`
	FollowUp           string `json:"follow_up"`
	Needs              Needs  `json:"needs"`
	Risk               Risk   `json:"risk"`
	AftercareReferrals string `json:"aftercare_referrals"`
}

func (DischargeSummary) Kind() Kind { return KindDischargeSummary }

// WithNeeds returns a copy of d with needs replaced.
func (d DischargeSummary) WithNeeds(n Needs) DischargeSummary {
	d.Needs = n
	return d
}

// WithRisk returns a copy of d with the risk assessment replaced.
func (d DischargeSummary) WithRisk(r Risk) DischargeSummary {
	d.Risk = r
	return d
}

func (d DischargeSummary) Sections() []pdf.Section {
	return []pdf.Section{
		{Heading: "Discharge", Fields: []pdf.Field{
			{Label: "Client name", Value: d.ClientName},
			{Label: "Admission date", Value: d.AdmissionDate},
			{Label: "Discharge date", Value: d.DischargeDate},
			{Label: "Discharge reason", Value: d.DischargeReason},
		}},
		{Heading: "Summary", Fields: []pdf.Field{
			{Label: "Summary", Value: d.Summary},
			{Label: "Medications", Value: d.Medications},
			{Label: "Follow-up", Value: d.FollowUp},
		}},
		{Heading: "Needs", Fields: d.Needs.fields()},
		d.Risk.section(),
		{Heading: "Aftercare", Fields: []pdf.Field{{Label: "Aftercare referrals", Value: d.AftercareReferrals}}},
	}
}

// ParticipationLevel grades session participation.
type ParticipationLevel string

const (
	ParticipationMinimal  ParticipationLevel = "minimal"
	ParticipationModerate ParticipationLevel = "moderate"
	ParticipationActive   ParticipationLevel = "active"
)

// Participation describes how the client took part in a session.
type Participation struct {
	Level      ParticipationLevel `json:"level" validate:"omitempty,oneof=minimal moderate active"`
	Engagement string             `json:"engagement"`
	Notes      string             `json:"notes"`
}

// WithLevel returns a copy of p at level l.
func (p Participation) WithLevel(l ParticipationLevel) (Participation, error) {
	switch l {
	case "", ParticipationMinimal, ParticipationModerate, ParticipationActive:
		p.Level = l
		return p, nil
	}
	return p, validation.NewFieldError("participation.level", fmt.Sprintf("unknown participation level %q", l))
}

// WithEngagement returns a copy of p with engagement replaced.
func (p Participation) WithEngagement(e string) Participation {
	p.Engagement = e
	return p
}

// WithNotes returns a copy of p with notes replaced.
func (p Participation) WithNotes(notes string) Participation {
	p.Notes = notes
	return p
}

// ProgressNote documents one session.
type ProgressNote struct {
	SessionDate     string        `json:"session_date" validate:"notblank,datetime=2006-01-02"`
	SessionType     string        `json:"session_type"`
	DurationMinutes int           `json:"duration_minutes" validate:"gte=0,lte=1440"`
	Goals           string        `json:"goals"`
	Interventions   string        `json:"interventions"`
	Progress        string        `json:"progress"`
	Plan            string        `json:"plan"`
	Participation   Participation `json:"participation"`
	Risk            Risk          `json:"risk"`
}

func (ProgressNote) Kind() Kind { return KindProgressNote }

// WithParticipation returns a copy of n with participation replaced.
func (n ProgressNote) WithParticipation(p Participation) ProgressNote {
	n.Participation = p
	return n
}

// WithRisk returns a copy of n with the risk assessment replaced.
func (n ProgressNote) WithRisk(r Risk) ProgressNote {
	n.Risk = r
	return n
}

func (n ProgressNote) Sections() []pdf.Section {
	return []pdf.Section{
		{Heading: "Session", Fields: []pdf.Field{
			{Label: "Session date", Value: n.SessionDate},
			{Label: "Session type", Value: n.SessionType},
			{Label: "Duration (minutes)", Value: number(n.DurationMinutes)},
		}},
		{Heading: "Clinical", Fields: []pdf.Field{
			{Label: "Goals", Value: n.Goals},
			{Label: "Interventions", Value: n.Interventions},
			{Label: "Progress", Value: n.Progress},
			{Label: "Plan", Value: n.Plan},
		}},
		{Heading: "Participation", Fields: []pdf.Field{
			{Label: "Participation level", Value: string(n.Participation.Level)},
			{Label: "Engagement", Value: n.Participation.Engagement},
			{Label: "Participation notes", Value: n.Participation.Notes},
		}},
		n.Risk.section(),
	}
}
