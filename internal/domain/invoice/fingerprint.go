package invoice

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Fingerprint returns a stable content hash identifying a submission.
//
// It covers the header identifiers, the declared net total and the ordered
// item lines (position, description, quantity, net amount). Correction lines
// are excluded so that reconciling a header does not change its identity.
// Amounts are hashed in canonical form, so "8.5" and "8.50" hash equally.
func Fingerprint(h *Header) string {
	var b strings.Builder
	field := func(s string) {
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
		b.WriteByte('|')
	}

	field(strings.TrimSpace(h.SupplierID))
	field(strings.TrimSpace(h.InvoiceNumber))
	field(h.Currency)
	field(h.DeclaredNet.String())
	for _, line := range h.Lines {
		if line.IsCorrection() {
			continue
		}
		field(strconv.Itoa(line.Position))
		field(strings.TrimSpace(line.Description))
		field(line.Quantity.String())
		field(line.NetAmount.String())
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
