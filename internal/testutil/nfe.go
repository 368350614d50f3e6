package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// InvoiceXML builds a minimal NF-e envelope with one installment per amount.
func InvoiceXML(number, issued string, amounts ...string) []byte {
	var dups strings.Builder
	for i, a := range amounts {
		fmt.Fprintf(&dups, "<dup><nDup>%03d</nDup><dVenc>%s</dVenc><vDup>%s</vDup></dup>", i+1, issued, a)
	}
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>`+
		`<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe"><NFe><infNFe versao="4.00">`+
		`<ide><nNF>%s</nNF><dhEmi>%sT10:00:00-03:00</dhEmi></ide>`+
		`<det nItem="1"><prod><cProd>1</cProd><vProd>10.00</vProd></prod></det>`+
		`<cobr>%s</cobr></infNFe></NFe></nfeProc>`, number, issued, dups.String()))
}

// WriteInvoice writes an NF-e for number into dir under name.
func WriteInvoice(t *testing.T, dir, name, number, issued string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, InvoiceXML(number, issued, "100.00"), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}
