// Package types defines the shared domain types for the nfeflow document pipeline.
package types

// Stage is one fixed step of the per-document pipeline.
type Stage string

// Stage values in execution order.
const (
	StageImport  Stage = "IMPORT"
	StageLink    Stage = "LINK"
	StageEntry   Stage = "ENTRY"
	StageInvoice Stage = "INVOICE"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{StageImport, StageLink, StageEntry, StageInvoice}

// Outcome is the per-document result of a stage.
type Outcome string

// Outcome values recorded by the stage executors.
const (
	OutcomeOK          Outcome = "OK"
	OutcomeAlreadyDone Outcome = "ALREADY_DONE"
	OutcomeError       Outcome = "ERROR"
)

// Succeeded reports whether the outcome counts as success for sequencing.
func (o Outcome) Succeeded() bool {
	return o == OutcomeOK || o == OutcomeAlreadyDone
}

// Column is a positional ledger column. The external store is addressed by
// index, so the order here is fixed.
type Column int

// Ledger columns, zero-based.
const (
	ColIdentifier Column = iota
	ColIssueDate
	ColFetched
	ColImported
	ColLinked
	ColEntrySaved
	ColInvoiceSaved
	ColEntryLink
)

// RowWidth is the full width of a ledger row (A..J). The two trailing cells
// are reserved; J1 carries the selftest heartbeat.
const RowWidth = 10

// HeartbeatColumn is the header cell updated by the selftest.
const HeartbeatColumn Column = 9

// String returns the header label used by the business sheet.
func (c Column) String() string {
	switch c {
	case ColIdentifier:
		return "NUMERO NF"
	case ColIssueDate:
		return "DATA EMISSÃO NF"
	case ColFetched:
		return "XML DRIVE"
	case ColImported:
		return "XML IMPORTADA SGI"
	case ColLinked:
		return "XML VINCULADA SGI"
	case ColEntrySaved:
		return "XML ENTRADA SALVA SGI"
	case ColInvoiceSaved:
		return "XML BOLETO SALVO SGI"
	case ColEntryLink:
		return "LINK LANÇAMENTO SGI"
	default:
		return ""
	}
}

// AlertType defines the notifier sink type.
type AlertType string

// AlertType values enumerate the supported notifier sinks.
const (
	AlertConsole AlertType = "console"
	AlertWebhook AlertType = "webhook"
	AlertFile    AlertType = "file"
	AlertSQS     AlertType = "sqs"
)

// FailureCategory classifies why a remote action failed.
type FailureCategory string

const (
	FailureTransient FailureCategory = "TRANSIENT"
	FailurePermanent FailureCategory = "PERMANENT"
	FailureTimeout   FailureCategory = "TIMEOUT"
)
