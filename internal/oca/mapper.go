package oca

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/oca-cli/internal/extract"
)

// Mapper turns case record nodes into row-sets.
type Mapper struct {
	x extract.Extractor
}

// NewMapper returns a Mapper reading fields in the given namespace.
func NewMapper(namespace string) *Mapper {
	return &Mapper{x: extract.New(namespace)}
}

// CaseID returns the record's IndexNumberId.
func (m *Mapper) CaseID(n *extract.Node) (string, error) {
	v := m.x.Text(n, "IndexNumberId")
	if !v.Present() {
		return "", eris.New("oca: case record without IndexNumberId")
	}
	return v.Text, nil
}

// IsDelete reports whether the record carries a Delete marker.
func (m *Mapper) IsDelete(n *extract.Node) bool {
	_, ok := m.x.Group(n, "Delete")
	return ok
}

// Map flattens a case record into its row-set.
func (m *Mapper) Map(n *extract.Node) (*RowSet, error) {
	id, err := m.CaseID(n)
	if err != nil {
		return nil, err
	}

	x := m.x
	rs := &RowSet{
		Index: IndexRow{
			IndexNumberID:             id,
			Court:                     x.Text(n, "Court"),
			FiledDate:                 x.Text(n, "FiledDate"),
			PropertyType:              x.Text(n, "PropertyType"),
			Classification:            x.Text(n, "Classification"),
			SpecialtyDesignationTypes: x.Array(n, "SpecialtyDesignations", "SpecialtyDesignationType"),
			Status:                    x.Text(n, "Status"),
			DisposedDate:              x.Text(n, "DisposedDate"),
			DisposedReason:            x.Text(n, "DisposedReasonNoPersonallyIdentifyingInfo"),
			FirstPaper:                x.Text(n, "FirstPaper"),
			PrimaryClaimTotal:         x.Text(n, "PrimaryClaimTotal"),
			DateOfJuryDemand:          x.Text(n, "DateOfJuryDemand"),
		},
	}

	rs.Causes = eachItem(x, n, "PrimaryClaimCauseOfActions", "PrimaryClaimCauseOfAction", func(c *extract.Node) CauseRow {
		return CauseRow{
			IndexNumberID:     id,
			CauseOfActionType: x.Text(c, "CauseOfActionType"),
			InterestFromDate:  x.Text(c, "InterestFromDate"),
			Amount:            x.Text(c, "Amount"),
		}
	})

	rs.Addresses = eachItem(x, n, "PropertyAddresses", "PropertyAddress", func(a *extract.Node) AddressRow {
		return AddressRow{
			IndexNumberID: id,
			Street1:       x.Text(a, "Street1"),
			Street2:       x.Text(a, "Street2"),
			City:          x.Text(a, "City"),
			State:         x.Text(a, "State"),
			PostalCode:    x.Text(a, "PostalCode"),
		}
	})

	rs.Parties = eachItem(x, n, "Parties", "Party", func(p *extract.Node) PartyRow {
		return PartyRow{
			IndexNumberID:      id,
			Role:               x.Text(p, "Role"),
			PartyType:          x.Text(p, "PartyType"),
			RepresentationType: x.Text(p, "RepresentationType"),
			Undertenant:        x.Text(p, "Undertenant"),
		}
	})

	rs.Events = eachItem(x, n, "Events", "Event", func(e *extract.Node) EventRow {
		return EventRow{
			IndexNumberID:      id,
			EventName:          x.Text(e, "EventName"),
			FiledDate:          x.Text(e, "FiledDate"),
			FeeType:            x.Text(e, "FeeType"),
			FilingPartiesRoles: x.NestedArray(e, "FilingParties", "FilingParty", "Role"),
			AnswerType:         x.Text(e, "AnswerType"),
		}
	})

	rs.Appearances = eachItem(x, n, "Appearances", "Appearance", func(a *extract.Node) AppearanceRow {
		return AppearanceRow{
			IndexNumberID:      id,
			AppearanceDateTime: x.Text(a, "AppearanceDateTime"),
			AppearancePurpose:  x.Text(a, "AppearancePurpose"),
			AppearanceReason:   x.Text(a, "AppearanceReason"),
			AppearancePart:     x.Text(a, "AppearancePart"),
			MotionSequence:     x.Text(a, "MotionSequence"),
			Outcomes:           m.outcomes(a),
		}
	})

	rs.Motions = eachItem(x, n, "Motions", "Motion", func(mo *extract.Node) MotionRow {
		return MotionRow{
			IndexNumberID:      id,
			Sequence:           x.Text(mo, "Sequence"),
			MotionType:         x.Text(mo, "MotionType"),
			PrimaryRelief:      x.Text(mo, "PrimaryRelief"),
			FiledDate:          x.Text(mo, "FiledDate"),
			FilingPartiesRoles: x.NestedArray(mo, "FilingParties", "FilingParty", "Role"),
			MotionDecision:     x.Text(mo, "MotionDecision"),
			MotionDecisionDate: x.Text(mo, "MotionDecisionDate"),
		}
	})

	rs.Decisions = eachItem(x, n, "Decisions", "Decision", func(d *extract.Node) DecisionRow {
		return DecisionRow{
			IndexNumberID: id,
			Sequence:      x.Text(d, "Sequence"),
			ResultOf:      x.Text(d, "ResultOf"),
			Highlight:     x.Text(d, "HighlightNoPersonallyIdentifyingInfo"),
		}
	})

	rs.Judgments = eachItem(x, n, "Judgments", "Judgment", func(j *extract.Node) JudgmentRow {
		return JudgmentRow{
			IndexNumberID:               id,
			Sequence:                    x.Text(j, "Sequence"),
			AmendedFromJudgmentSequence: x.Text(j, "AmendedFromJudgmentSequence"),
			JudgmentType:                x.Text(j, "JudgmentType"),
			FiledDate:                   x.Text(j, "FiledDate"),
			EnteredDateTime:             x.Text(j, "EnteredDateTime"),
			WithPossession:              x.Text(j, "WithPossession"),
			LatestJudgmentStatus:        x.Text(j, "LatestJudgmentStatus"),
			LatestJudgmentStatusDate:    x.Text(j, "LatestJudgmentStatusDate"),
			TotalJudgmentAmount:         x.Text(j, "TotalJudgmentAmount"),
			CreditorsRoles:              x.NestedArray(j, "Creditors", "Creditor", "Role"),
			DebtorsRoles:                x.NestedArray(j, "Debtors", "Debtor", "Role"),
		}
	})

	rs.Warrants = m.warrants(id, n)

	return rs, nil
}

// warrants walks every judgment. A judgment without a Warrants group
// contributes nothing; later judgments are still visited.
func (m *Mapper) warrants(id string, n *extract.Node) []WarrantRow {
	x := m.x
	judgments, ok := x.Group(n, "Judgments")
	if !ok {
		return nil
	}

	var out []WarrantRow
	for _, j := range x.Items(judgments, "Judgment") {
		seq := x.Text(j, "Sequence")
		ws, ok := x.Group(j, "Warrants")
		if !ok {
			continue
		}
		for _, w := range x.Items(ws, "Warrant") {
			out = append(out, WarrantRow{
				IndexNumberID:                  id,
				JudgmentSequence:               seq,
				Sequence:                       x.Text(w, "Sequence"),
				CreatedReason:                  x.Text(w, "CreatedReason"),
				OrderedDate:                    x.Text(w, "OrderedDate"),
				IssuanceType:                   x.Text(w, "IssuanceType"),
				IssuanceStayedDate:             x.Text(w, "IssuanceStayedDate"),
				IssuanceStayedDays:             x.Text(w, "IssuanceStayedDays"),
				IssuedDate:                     x.Text(w, "IssuedDate"),
				ExecutionType:                  x.Text(w, "ExecutionType"),
				ExecutionStayedDate:            x.Text(w, "ExecutionStayedDate"),
				ExecutionStayedDays:            x.Text(w, "ExecutionStayedDays"),
				MarshalRequestDate:             x.Text(w, "MarshalRequestDate"),
				MarshalRequestReviewedDate:     x.Text(w, "MarshalRequestReviewedDate"),
				EnforcementAgency:              x.Text(w, "EnforcementAgency"),
				EnforcementOfficerDocketNumber: x.Text(w, "EnforcementOfficerDocketNumber"),
				PropertiesOnWarrantCities:      x.NestedArray(w, "PropertiesOnWarrant", "PropertyOnWarrant", "City"),
				PropertiesOnWarrantStates:      x.NestedArray(w, "PropertiesOnWarrant", "PropertyOnWarrant", "State"),
				PropertiesOnWarrantPostalCodes: x.NestedArray(w, "PropertiesOnWarrant", "PropertyOnWarrant", "PostalCode"),
				AmendedDate:                    x.Text(w, "AmendedDate"),
				VacatedDate:                    x.Text(w, "VacatedDate"),
				AdultProtectiveServicesNumber:  x.Text(w, "AdultProtectiveServicesNumber"),
				ReturnedDate:                   x.Text(w, "ReturnedDate"),
				ReturnedReason:                 x.Text(w, "ReturnedReason"),
				ExecutionDate:                  x.Text(w, "ExecutionDate"),
			})
		}
	}
	return out
}

func (m *Mapper) outcomes(a *extract.Node) []AppearanceOutcome {
	g, ok := m.x.Group(a, "AppearanceOutcomes")
	if !ok {
		return nil
	}
	items := m.x.Items(g, "AppearanceOutcome")
	out := make([]AppearanceOutcome, 0, len(items))
	for _, it := range items {
		o := AppearanceOutcome{AppearanceOutcomeType: m.x.Text(it, "AppearanceOutcomeType").Text}
		if v := m.x.Text(it, "OutcomeBasedOnType"); v.Found {
			s := v.Text
			o.OutcomeBasedOnType = &s
		}
		out = append(out, o)
	}
	return out
}

// eachItem maps every item under the first group child of n. It returns nil
// when the group is missing and an empty, non-nil slice when it has no items.
func eachItem[R any](x extract.Extractor, n *extract.Node, group, item string, fn func(*extract.Node) R) []R {
	g, ok := x.Group(n, group)
	if !ok {
		return nil
	}
	items := x.Items(g, item)
	out := make([]R, 0, len(items))
	for _, it := range items {
		out = append(out, fn(it))
	}
	return out
}

func outcomesJSON(outcomes []AppearanceOutcome) string {
	if len(outcomes) == 0 {
		return "[]"
	}
	b, err := json.Marshal(outcomes)
	if err != nil {
		return "[]"
	}
	return string(b)
}
