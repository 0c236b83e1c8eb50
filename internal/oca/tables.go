// Package oca maps landlord-tenant case records onto the ten oca_* tables.
package oca

// Table describes one relational target: its name and insert column order.
type Table struct {
	Name    string
	Columns []string
}

// Staging returns the name of the per-file staging counterpart.
func (t Table) Staging() string {
	return t.Name + "_staging"
}

// CaseIDColumn is the foreign key every table carries.
const CaseIDColumn = "indexnumberid"

var (
	IndexTable = Table{Name: "oca_index", Columns: []string{
		"indexnumberid", "court", "fileddate", "propertytype", "classification",
		"specialtydesignationtypes", "status", "disposeddate", "disposedreason",
		"firstpaper", "primaryclaimtotal", "dateofjurydemand",
	}}
	CausesTable = Table{Name: "oca_causes", Columns: []string{
		"indexnumberid", "causeofactiontype", "interestfromdate", "amount",
	}}
	AddressesTable = Table{Name: "oca_addresses", Columns: []string{
		"indexnumberid", "street1", "street2", "city", "state", "postalcode",
	}}
	PartiesTable = Table{Name: "oca_parties", Columns: []string{
		"indexnumberid", "role", "partytype", "representationtype", "undertenant",
	}}
	EventsTable = Table{Name: "oca_events", Columns: []string{
		"indexnumberid", "eventname", "fileddate", "feetype", "filingpartiesroles", "answertype",
	}}
	AppearancesTable = Table{Name: "oca_appearances", Columns: []string{
		"indexnumberid", "appearancedatetime", "appearancepurpose", "appearancereason",
		"appearancepart", "motionsequence", "appearanceoutcomes",
	}}
	MotionsTable = Table{Name: "oca_motions", Columns: []string{
		"indexnumberid", "sequence", "motiontype", "primaryrelief", "fileddate",
		"filingpartiesroles", "motiondecision", "motiondecisiondate",
	}}
	DecisionsTable = Table{Name: "oca_decisions", Columns: []string{
		"indexnumberid", "sequence", "resultof", "highlight",
	}}
	JudgmentsTable = Table{Name: "oca_judgments", Columns: []string{
		"indexnumberid", "sequence", "amendedfromjudgmentsequence", "judgmenttype",
		"fileddate", "entereddatetime", "withpossession", "latestjudgmentstatus",
		"latestjudgmentstatusdate", "totaljudgmentamount", "creditorsroles", "debtorsroles",
	}}
	WarrantsTable = Table{Name: "oca_warrants", Columns: []string{
		"indexnumberid", "judgmentsequence", "sequence", "createdreason", "ordereddate",
		"issuancetype", "issuancestayeddate", "issuancestayeddays", "issueddate",
		"executiontype", "executionstayeddate", "executionstayeddays", "marshalrequestdate",
		"marshalrequestrevieweddate", "enforcementagency", "enforcementofficerdocketnumber",
		"propertiesonwarrantcities", "propertiesonwarrantstates", "propertiesonwarrantpostalcodes",
		"amendeddate", "vacateddate", "adultprotectiveservicesnumber", "returneddate",
		"returnedreason", "executiondate",
	}}

	// AppearanceOutcomesTable is derived from oca_appearances after ingestion.
	AppearanceOutcomesTable = Table{Name: "oca_appearance_outcomes", Columns: []string{
		"indexnumberid", "appearancedatetime", "appearanceoutcometype", "outcomebasedontype",
	}}
)

// Tables lists the ten base tables, case-level table first.
var Tables = []Table{
	IndexTable,
	CausesTable,
	AddressesTable,
	PartiesTable,
	EventsTable,
	AppearancesTable,
	MotionsTable,
	DecisionsTable,
	JudgmentsTable,
	WarrantsTable,
}

// ExportTables lists every table written to CSV and snapshots.
func ExportTables() []Table {
	out := make([]Table, 0, len(Tables)+1)
	out = append(out, Tables...)
	return append(out, AppearanceOutcomesTable)
}

// PurgeListTable holds the case ids seen while replaying a staged file.
const PurgeListTable = "oca_purged_staging"
