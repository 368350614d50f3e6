package types

import "time"

// Document is a single invoice tracked end-to-end through the pipeline.
type Document struct {
	ID        string `json:"id"`
	IssueDate string `json:"issueDate,omitempty"` // dd/mm/yyyy, empty until discovered
	Path      string `json:"path,omitempty"`      // cached XML on local disk
}

// Result is the outcome of one stage for one document.
type Result struct {
	ID      string  `json:"id"`
	Outcome Outcome `json:"outcome"`
	Detail  string  `json:"detail,omitempty"` // posting reference or failure reason
}

// Payable is the accounts-payable title registered by the Invoice stage.
type Payable struct {
	Number       string        `json:"number"`
	IssueDate    string        `json:"issueDate"` // dd/mm/yyyy
	Discounted   bool          `json:"discounted,omitempty"`
	Installments []Installment `json:"installments"`
}

// Installment is one boleto of a payable. Amount uses a decimal comma.
type Installment struct {
	Number string `json:"number"`
	Amount string `json:"amount"`
	Due    string `json:"due"` // dd/mm/yyyy
}

// LineItem is one product line of an imported document awaiting a link to
// the local catalog.
type LineItem struct {
	Ref     string `json:"ref"`     // supplier's product reference
	Product string `json:"product"` // suggested catalog product, with code in parentheses
	Linked  bool   `json:"linked"`
}

// StageResults collects the executor outputs of a single run.
type StageResults struct {
	Import  []Result
	Link    []Result
	Entry   []Result
	Invoice []Result
}

// Succeeded returns the identifiers whose outcome counts as success, in order.
func Succeeded(results []Result) []string {
	var ids []string
	for _, r := range results {
		if r.Outcome.Succeeded() {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// WithOutcome returns the identifiers that have exactly the given outcome.
func WithOutcome(results []Result, o Outcome) []string {
	var ids []string
	for _, r := range results {
		if r.Outcome == o {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// RetryPolicy configures bounded retries at the remote boundary.
type RetryPolicy struct {
	MaxAttempts       int               `yaml:"maxAttempts" json:"maxAttempts"`
	Backoff           time.Duration     `yaml:"backoff" json:"backoff"`
	BackoffMultiplier float64           `yaml:"backoffMultiplier,omitempty" json:"backoffMultiplier,omitempty"`
	RetryableFailures []FailureCategory `yaml:"retryableFailures,omitempty" json:"retryableFailures,omitempty"`
}

// AlertConfig configures a notifier sink.
type AlertConfig struct {
	Type     AlertType `yaml:"type" json:"type"`
	URL      string    `yaml:"url,omitempty" json:"url,omitempty"`
	Path     string    `yaml:"path,omitempty" json:"path,omitempty"`
	QueueURL string    `yaml:"queueUrl,omitempty" json:"queueUrl,omitempty"`
}

// Message is the payload delivered to notifier sinks.
type Message struct {
	RunID     string    `json:"runId"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
