package oca

import "github.com/sells-group/oca-cli/internal/extract"

// IndexRow is the single case-level row of a record.
type IndexRow struct {
	IndexNumberID             string
	Court                     extract.Value
	FiledDate                 extract.Value
	PropertyType              extract.Value
	Classification            extract.Value
	SpecialtyDesignationTypes extract.Array
	Status                    extract.Value
	DisposedDate              extract.Value
	DisposedReason            extract.Value
	FirstPaper                extract.Value
	PrimaryClaimTotal         extract.Value
	DateOfJuryDemand          extract.Value
}

// Values returns the insert arguments in IndexTable column order.
func (r IndexRow) Values() []any {
	return []any{
		r.IndexNumberID, r.Court.SQL(), r.FiledDate.SQL(), r.PropertyType.SQL(),
		r.Classification.SQL(), r.SpecialtyDesignationTypes.SQL(), r.Status.SQL(),
		r.DisposedDate.SQL(), r.DisposedReason.SQL(), r.FirstPaper.SQL(),
		r.PrimaryClaimTotal.SQL(), r.DateOfJuryDemand.SQL(),
	}
}

// CauseRow is one primary-claim cause of action.
type CauseRow struct {
	IndexNumberID     string
	CauseOfActionType extract.Value
	InterestFromDate  extract.Value
	Amount            extract.Value
}

func (r CauseRow) Values() []any {
	return []any{r.IndexNumberID, r.CauseOfActionType.SQL(), r.InterestFromDate.SQL(), r.Amount.SQL()}
}

// AddressRow is one property address.
type AddressRow struct {
	IndexNumberID string
	Street1       extract.Value
	Street2       extract.Value
	City          extract.Value
	State         extract.Value
	PostalCode    extract.Value
}

func (r AddressRow) Values() []any {
	return []any{
		r.IndexNumberID, r.Street1.SQL(), r.Street2.SQL(), r.City.SQL(), r.State.SQL(), r.PostalCode.SQL(),
	}
}

// PartyRow is one party to the case.
type PartyRow struct {
	IndexNumberID      string
	Role               extract.Value
	PartyType          extract.Value
	RepresentationType extract.Value
	Undertenant        extract.Value
}

func (r PartyRow) Values() []any {
	return []any{r.IndexNumberID, r.Role.SQL(), r.PartyType.SQL(), r.RepresentationType.SQL(), r.Undertenant.SQL()}
}

// EventRow is one docket event.
type EventRow struct {
	IndexNumberID      string
	EventName          extract.Value
	FiledDate          extract.Value
	FeeType            extract.Value
	FilingPartiesRoles extract.Array
	AnswerType         extract.Value
}

func (r EventRow) Values() []any {
	return []any{
		r.IndexNumberID, r.EventName.SQL(), r.FiledDate.SQL(), r.FeeType.SQL(),
		r.FilingPartiesRoles.SQL(), r.AnswerType.SQL(),
	}
}

// AppearanceOutcome is one outcome nested under an appearance.
type AppearanceOutcome struct {
	AppearanceOutcomeType string  `json:"appearanceoutcometype"`
	OutcomeBasedOnType    *string `json:"outcomebasedontype"`
}

// AppearanceRow is one court appearance. Outcomes are stored as a JSON array.
type AppearanceRow struct {
	IndexNumberID      string
	AppearanceDateTime extract.Value
	AppearancePurpose  extract.Value
	AppearanceReason   extract.Value
	AppearancePart     extract.Value
	MotionSequence     extract.Value
	Outcomes           []AppearanceOutcome
}

func (r AppearanceRow) Values() []any {
	return []any{
		r.IndexNumberID, r.AppearanceDateTime.SQL(), r.AppearancePurpose.SQL(),
		r.AppearanceReason.SQL(), r.AppearancePart.SQL(), r.MotionSequence.SQL(),
		outcomesJSON(r.Outcomes),
	}
}

// MotionRow is one motion.
type MotionRow struct {
	IndexNumberID      string
	Sequence           extract.Value
	MotionType         extract.Value
	PrimaryRelief      extract.Value
	FiledDate          extract.Value
	FilingPartiesRoles extract.Array
	MotionDecision     extract.Value
	MotionDecisionDate extract.Value
}

func (r MotionRow) Values() []any {
	return []any{
		r.IndexNumberID, r.Sequence.SQL(), r.MotionType.SQL(), r.PrimaryRelief.SQL(),
		r.FiledDate.SQL(), r.FilingPartiesRoles.SQL(), r.MotionDecision.SQL(),
		r.MotionDecisionDate.SQL(),
	}
}

// DecisionRow is one decision.
type DecisionRow struct {
	IndexNumberID string
	Sequence      extract.Value
	ResultOf      extract.Value
	Highlight     extract.Value
}

func (r DecisionRow) Values() []any {
	return []any{r.IndexNumberID, r.Sequence.SQL(), r.ResultOf.SQL(), r.Highlight.SQL()}
}

// JudgmentRow is one judgment.
type JudgmentRow struct {
	IndexNumberID               string
	Sequence                    extract.Value
	AmendedFromJudgmentSequence extract.Value
	JudgmentType                extract.Value
	FiledDate                   extract.Value
	EnteredDateTime             extract.Value
	WithPossession              extract.Value
	LatestJudgmentStatus        extract.Value
	LatestJudgmentStatusDate    extract.Value
	TotalJudgmentAmount         extract.Value
	CreditorsRoles              extract.Array
	DebtorsRoles                extract.Array
}

func (r JudgmentRow) Values() []any {
	return []any{
		r.IndexNumberID, r.Sequence.SQL(), r.AmendedFromJudgmentSequence.SQL(),
		r.JudgmentType.SQL(), r.FiledDate.SQL(), r.EnteredDateTime.SQL(),
		r.WithPossession.SQL(), r.LatestJudgmentStatus.SQL(),
		r.LatestJudgmentStatusDate.SQL(), r.TotalJudgmentAmount.SQL(),
		r.CreditorsRoles.SQL(), r.DebtorsRoles.SQL(),
	}
}

// WarrantRow is one warrant, correlated to its judgment by JudgmentSequence.
type WarrantRow struct {
	IndexNumberID                  string
	JudgmentSequence               extract.Value
	Sequence                       extract.Value
	CreatedReason                  extract.Value
	OrderedDate                    extract.Value
	IssuanceType                   extract.Value
	IssuanceStayedDate             extract.Value
	IssuanceStayedDays             extract.Value
	IssuedDate                     extract.Value
	ExecutionType                  extract.Value
	ExecutionStayedDate            extract.Value
	ExecutionStayedDays            extract.Value
	MarshalRequestDate             extract.Value
	MarshalRequestReviewedDate     extract.Value
	EnforcementAgency              extract.Value
	EnforcementOfficerDocketNumber extract.Value
	PropertiesOnWarrantCities      extract.Array
	PropertiesOnWarrantStates      extract.Array
	PropertiesOnWarrantPostalCodes extract.Array
	AmendedDate                    extract.Value
	VacatedDate                    extract.Value
	AdultProtectiveServicesNumber  extract.Value
	ReturnedDate                   extract.Value
	ReturnedReason                 extract.Value
	ExecutionDate                  extract.Value
}

func (r WarrantRow) Values() []any {
	return []any{
		r.IndexNumberID, r.JudgmentSequence.SQL(), r.Sequence.SQL(), r.CreatedReason.SQL(),
		r.OrderedDate.SQL(), r.IssuanceType.SQL(), r.IssuanceStayedDate.SQL(),
		r.IssuanceStayedDays.SQL(), r.IssuedDate.SQL(), r.ExecutionType.SQL(),
		r.ExecutionStayedDate.SQL(), r.ExecutionStayedDays.SQL(), r.MarshalRequestDate.SQL(),
		r.MarshalRequestReviewedDate.SQL(), r.EnforcementAgency.SQL(),
		r.EnforcementOfficerDocketNumber.SQL(), r.PropertiesOnWarrantCities.SQL(),
		r.PropertiesOnWarrantStates.SQL(), r.PropertiesOnWarrantPostalCodes.SQL(),
		r.AmendedDate.SQL(), r.VacatedDate.SQL(), r.AdultProtectiveServicesNumber.SQL(),
		r.ReturnedDate.SQL(), r.ReturnedReason.SQL(), r.ExecutionDate.SQL(),
	}
}

// RowSet is the flattened form of one case record. A nil child slice means
// the record had no grouping node for that table.
type RowSet struct {
	Index       IndexRow
	Causes      []CauseRow
	Addresses   []AddressRow
	Parties     []PartyRow
	Events      []EventRow
	Appearances []AppearanceRow
	Motions     []MotionRow
	Decisions   []DecisionRow
	Judgments   []JudgmentRow
	Warrants    []WarrantRow
}

// Batch is the rows destined for one table.
type Batch struct {
	Table Table
	Rows  [][]any
}

type valuer interface {
	Values() []any
}

func batch[R valuer](t Table, rows []R) (Batch, bool) {
	if len(rows) == 0 {
		return Batch{}, false
	}
	out := Batch{Table: t, Rows: make([][]any, 0, len(rows))}
	for _, r := range rows {
		out.Rows = append(out.Rows, r.Values())
	}
	return out, true
}

// Batches returns one batch per table with rows, case-level table first.
// Tables without rows are left out.
func (rs *RowSet) Batches() []Batch {
	out := []Batch{{Table: IndexTable, Rows: [][]any{rs.Index.Values()}}}
	add := func(b Batch, ok bool) {
		if ok {
			out = append(out, b)
		}
	}
	add(batch(CausesTable, rs.Causes))
	add(batch(AddressesTable, rs.Addresses))
	add(batch(PartiesTable, rs.Parties))
	add(batch(EventsTable, rs.Events))
	add(batch(AppearancesTable, rs.Appearances))
	add(batch(MotionsTable, rs.Motions))
	add(batch(DecisionsTable, rs.Decisions))
	add(batch(JudgmentsTable, rs.Judgments))
	add(batch(WarrantsTable, rs.Warrants))
	return out
}

// RowCount returns the total number of rows across all tables.
func (rs *RowSet) RowCount() int {
	return 1 + len(rs.Causes) + len(rs.Addresses) + len(rs.Parties) + len(rs.Events) +
		len(rs.Appearances) + len(rs.Motions) + len(rs.Decisions) + len(rs.Judgments) + len(rs.Warrants)
}
