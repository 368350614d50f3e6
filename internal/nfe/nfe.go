// Package nfe reads the fields of an NF-e XML document that the pipeline
// needs: invoice number, issue date, item discounts and installments.
package nfe

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dwsmith1983/nfeflow/pkg/types"
)

// ErrNoInvoice is returned when the document carries no infNFe element.
var ErrNoInvoice = errors.New("no infNFe element")

// DisplayDateLayout is the date format used in the ledger and the remote system.
const DisplayDateLayout = "02/01/2006"

// Installment amounts are multiplied by this factor when any item carries a
// discount, matching how the supplier splits discounted invoices.
const discountFactor = 3

// Invoice holds the parsed fields.
type Invoice struct {
	Number       string
	IssueDate    string // dd/mm/yyyy
	Discounted   bool
	Installments []types.Installment
}

type infNFe struct {
	Ide struct {
		NNF   string `xml:"nNF"`
		DhEmi string `xml:"dhEmi"`
		DEmi  string `xml:"dEmi"`
	} `xml:"ide"`
	Det []struct {
		Prod struct {
			VDesc string `xml:"vDesc"`
		} `xml:"prod"`
		VDesc string `xml:"vDesc"`
	} `xml:"det"`
	Cobr struct {
		Dup []struct {
			NDup  string `xml:"nDup"`
			VDup  string `xml:"vDup"`
			DVenc string `xml:"dVenc"`
		} `xml:"dup"`
	} `xml:"cobr"`
}

// ParseFile parses the NF-e at path.
func ParseFile(path string) (*Invoice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	inv, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return inv, nil
}

// Identify returns the invoice number and issue date of the document at
// path. Documents are keyed by nNF whatever their file is called, so an
// access-key-named file and a number-named one land on the same ledger row.
// When the XML cannot be read, fallback is returned with an empty date and
// the read error.
func Identify(path, fallback string) (id, issueDate string, err error) {
	inv, err := ParseFile(path)
	if err != nil {
		return fallback, "", err
	}
	return inv.Number, inv.IssueDate, nil
}

// Parse reads an NF-e from r. Both bare NFe and nfeProc envelopes are accepted.
func Parse(r io.Reader) (*Invoice, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil, ErrNoInvoice
		}
		if err != nil {
			return nil, fmt.Errorf("reading xml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "infNFe" {
			continue
		}
		var raw infNFe
		if err := dec.DecodeElement(&raw, &start); err != nil {
			return nil, fmt.Errorf("decoding infNFe: %w", err)
		}
		return build(&raw)
	}
}

func build(raw *infNFe) (*Invoice, error) {
	inv := &Invoice{Number: strings.TrimSpace(raw.Ide.NNF)}
	if inv.Number == "" {
		return nil, fmt.Errorf("missing ide/nNF")
	}

	issued := raw.Ide.DhEmi
	if strings.TrimSpace(issued) == "" {
		issued = raw.Ide.DEmi
	}
	if strings.TrimSpace(issued) != "" {
		date, err := DisplayDate(issued)
		if err != nil {
			return nil, fmt.Errorf("issue date: %w", err)
		}
		inv.IssueDate = date
	}

	for _, det := range raw.Det {
		for _, v := range []string{det.Prod.VDesc, det.VDesc} {
			if amount, err := parseAmount(v); err == nil && amount > 0 {
				inv.Discounted = true
			}
		}
	}

	factor := 1.0
	if inv.Discounted {
		factor = discountFactor
	}
	for _, d := range raw.Cobr.Dup {
		amount, err := parseAmount(d.VDup)
		if err != nil {
			return nil, fmt.Errorf("installment %s amount: %w", d.NDup, err)
		}
		due, err := DisplayDate(d.DVenc)
		if err != nil {
			return nil, fmt.Errorf("installment %s due date: %w", d.NDup, err)
		}
		inv.Installments = append(inv.Installments, types.Installment{
			Number: strings.TrimSpace(d.NDup),
			Amount: FormatAmount(amount * factor),
			Due:    due,
		})
	}
	return inv, nil
}

// Payable converts the invoice into the title registered by the Invoice stage.
func (inv *Invoice) Payable() types.Payable {
	return types.Payable{
		Number:       inv.Number,
		IssueDate:    inv.IssueDate,
		Discounted:   inv.Discounted,
		Installments: append([]types.Installment(nil), inv.Installments...),
	}
}

// DisplayDate converts an ISO date or timestamp to dd/mm/yyyy.
func DisplayDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 10 {
		return "", fmt.Errorf("invalid date %q", s)
	}
	t, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t.Format(DisplayDateLayout), nil
}

// FormatAmount renders a value with two decimals and a decimal comma.
func FormatAmount(v float64) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', 2, 64), ".", ",", 1)
}

func parseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	return strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
}
