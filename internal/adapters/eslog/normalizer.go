// Package eslog turns eSLOG 2.0 (EDIFACT INVOIC in XML) documents into the
// normalized invoice model.
//
// Elements are matched by local name, so documents with and without the
// urn:eslog:2.00 namespace parse the same way. Entity expansion is never
// performed.
package eslog

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/invoice-ledger/internal/domain/invoice"
	"github.com/eshaffer321/invoice-ledger/internal/domain/units"
)

// DefaultMaxDocumentBytes bounds the size of a single document.
const DefaultMaxDocumentBytes = 16 << 20

// MOA qualifiers (EDIFACT 5025).
const (
	moaLineNet        = "203"
	moaAllowance      = "204"
	moaTotalAllowance = "260"
	moaHeaderAllow    = "8"
)

var (
	netQualifiers   = []string{"389", "125", "79"}
	grossQualifiers = []string{"9", "388"}
	vatQualifiers   = []string{"176"}
)

// Options configures a Normalizer.
type Options struct {
	MaxDocumentBytes int
}

// Normalizer parses eSLOG documents. It holds no mutable state and is safe
// for concurrent use.
type Normalizer struct {
	units   *units.Normalizer
	maxSize int
}

// NewNormalizer creates a normalizer. A nil unit normalizer means no weight
// overrides.
func NewNormalizer(unitNormalizer *units.Normalizer, opts Options) *Normalizer {
	if unitNormalizer == nil {
		unitNormalizer = units.NewNormalizer(nil)
	}
	if opts.MaxDocumentBytes <= 0 {
		opts.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	return &Normalizer{units: unitNormalizer, maxSize: opts.MaxDocumentBytes}
}

// Normalize parses raw into an invoice header. It fails with an error
// wrapping invoice.ErrMalformedDocument when required totals or line
// structure are missing, and invoice.ErrUnsafeDocument when the payload
// declares entities or external identifiers.
func (n *Normalizer) Normalize(raw []byte) (*invoice.Header, error) {
	if len(raw) > n.maxSize {
		return nil, invoice.Malformed("", "document is %d bytes, limit is %d", len(raw), n.maxSize)
	}

	doc, err := parseTree(raw)
	if err != nil {
		return nil, err
	}

	msg := doc.first("M_INVOIC")
	if msg == nil {
		return nil, invoice.Malformed("M_INVOIC", "no invoice message found")
	}

	h := &invoice.Header{
		InvoiceNumber: msg.value("S_BGM", "C_C106", "D_1004"),
		Currency:      invoice.DefaultCurrency,
	}
	if cur := currency(msg); cur != "" {
		h.Currency = cur
	}
	h.SupplierID, h.SupplierName = supplier(msg)
	h.InvoiceDate, h.ServiceDate = dates(msg)

	if err := n.totals(msg, h); err != nil {
		return nil, err
	}
	if err := n.lines(msg, h); err != nil {
		return nil, err
	}
	return h, nil
}

// headerMOAs returns all MOA segments outside line groups.
func headerMOAs(msg *node) []*node {
	return msg.all("S_MOA", "G_SG26")
}

func moa(seg *node) (qualifier, amount string) {
	return seg.value("C_C516", "D_5025"), seg.value("C_C516", "D_5004")
}

// pickMOA returns the amount of the first segment whose qualifier appears
// earliest in qualifiers.
func pickMOA(segs []*node, qualifiers []string) (decimal.Decimal, string, bool, error) {
	for _, q := range qualifiers {
		for _, seg := range segs {
			qual, raw := moa(seg)
			if qual != q {
				continue
			}
			amount, err := invoice.ParseAmount(raw)
			if err != nil {
				return decimal.Zero, q, false, invoice.Malformed("MOA "+q, "bad amount %q: %v", raw, err)
			}
			return amount, q, true, nil
		}
	}
	return decimal.Zero, "", false, nil
}

func (n *Normalizer) totals(msg *node, h *invoice.Header) error {
	// Summary groups take precedence over amounts elsewhere in the message.
	var summary []*node
	for _, grp := range msg.all("G_SG50", "G_SG26") {
		summary = append(summary, grp.all("S_MOA")...)
	}
	summary = append(summary, msg.all("S_MOA", "G_SG26", "G_SG16", "G_SG20", "G_SG50")...)

	net, _, ok, err := pickMOA(summary, netQualifiers)
	if err != nil {
		return err
	}
	if !ok {
		return invoice.Malformed("MOA 389", "declared net total is missing")
	}
	h.DeclaredNet = net

	if gross, _, ok, err := pickMOA(summary, grossQualifiers); err != nil {
		return err
	} else if ok {
		h.DeclaredGross = decimal.NewNullDecimal(gross)
	}

	vat, err := declaredVAT(msg, summary)
	if err != nil {
		return err
	}
	h.DeclaredVAT = vat

	headerSegs := headerMOAs(msg)
	if total, _, ok, err := pickMOA(headerSegs, []string{moaTotalAllowance}); err != nil {
		return err
	} else if ok {
		h.HasTotalAllowance = true
		h.TotalAllowance = decimal.NewNullDecimal(total.Abs())
	}

	allowances, err := documentAllowances(msg)
	if err != nil {
		return err
	}
	if len(allowances) == 0 && h.TotalAllowance.Valid && h.TotalAllowance.Decimal.IsPositive() {
		allowances = []invoice.AllowanceCharge{{
			Kind:      invoice.Allowance,
			Amount:    h.TotalAllowance.Decimal,
			Reason:    "total allowance",
			LineIndex: invoice.NoLine,
		}}
	}
	h.DocumentAllowances = allowances
	return nil
}

// declaredVAT prefers the MOA 176 total and otherwise sums the per-rate
// MOA 124 amounts of the tax groups.
func declaredVAT(msg *node, summary []*node) (decimal.NullDecimal, error) {
	total, _, ok, err := pickMOA(summary, vatQualifiers)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	if ok {
		return decimal.NewNullDecimal(total), nil
	}

	sum := decimal.Zero
	found := false
	for _, seg := range headerMOAs(msg) {
		qual, raw := moa(seg)
		if qual != "124" {
			continue
		}
		amount, err := invoice.ParseAmount(raw)
		if err != nil {
			return decimal.NullDecimal{}, invoice.Malformed("MOA 124", "bad amount %q: %v", raw, err)
		}
		sum = sum.Add(amount)
		found = true
	}
	if !found {
		return decimal.NullDecimal{}, nil
	}
	return decimal.NewNullDecimal(sum), nil
}

func allowanceKind(alc *node) invoice.AllowanceKind {
	if alc != nil && strings.EqualFold(alc.value("D_5463"), "C") {
		return invoice.Charge
	}
	return invoice.Allowance
}

func allowanceReason(alc *node) string {
	if alc == nil {
		return ""
	}
	if r := alc.value("C_C214", "D_7160"); r != "" {
		return r
	}
	return alc.value("C_C552", "D_5189")
}

func percent(group *node) (decimal.NullDecimal, error) {
	pcd := group.first("S_PCD")
	if pcd == nil {
		return decimal.NullDecimal{}, nil
	}
	raw := pcd.value("C_C501", "D_5482")
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	p, err := invoice.ParseAmount(raw)
	if err != nil {
		return decimal.NullDecimal{}, invoice.Malformed("PCD", "bad percentage %q: %v", raw, err)
	}
	return decimal.NewNullDecimal(p), nil
}

// documentAllowances reads header allowance/charge groups (G_SG16 with its
// G_SG20 amounts, or free-standing G_SG20 groups).
func documentAllowances(msg *node) ([]invoice.AllowanceCharge, error) {
	var out []invoice.AllowanceCharge
	groups := msg.all("G_SG16", "G_SG26")
	for _, g := range msg.all("G_SG20", "G_SG26") {
		if !g.hasAncestor("G_SG16", msg) {
			groups = append(groups, g)
		}
	}

	for _, g := range groups {
		amount, _, ok, err := pickMOA(g.all("S_MOA"), []string{moaAllowance, moaTotalAllowance, moaHeaderAllow})
		if err != nil {
			return nil, err
		}
		if !ok || amount.IsZero() {
			continue
		}
		pct, err := percent(g)
		if err != nil {
			return nil, err
		}
		alc := g.first("S_ALC")
		out = append(out, invoice.AllowanceCharge{
			Kind:      allowanceKind(alc),
			Amount:    amount.Abs(),
			Percent:   pct,
			Reason:    allowanceReason(alc),
			LineIndex: invoice.NoLine,
		})
	}
	return out, nil
}

func (n *Normalizer) lines(msg *node, h *invoice.Header) error {
	groups := msg.all("G_SG26")
	if len(groups) == 0 {
		return invoice.Malformed("G_SG26", "invoice has no lines")
	}

	h.Lines = make([]invoice.Line, 0, len(groups))
	for i, g := range groups {
		line, err := n.line(g, i)
		if err != nil {
			return err
		}
		h.Lines = append(h.Lines, line)
	}
	return nil
}

func (n *Normalizer) line(g *node, index int) (invoice.Line, error) {
	pos := index + 1
	line := invoice.Line{
		Position:    pos,
		Description: description(g),
		ArticleCode: articleCode(g),
		Kind:        invoice.LineItem,
	}

	qty := quantity(g)
	if qty == nil {
		return line, invoice.Malformed("QTY", "line %d has no quantity", pos)
	}
	rawQty := qty.value("C_C186", "D_6060")
	q, err := invoice.ParseAmount(rawQty)
	if err != nil {
		return line, invoice.Malformed("QTY", "line %d: bad quantity %q: %v", pos, rawQty, err)
	}
	line.Quantity = q
	line.UnitCode = qty.value("C_C186", "D_6411")

	// Allowance groups are read separately; their MOA 204 must not be
	// counted twice.
	ownMOAs := g.all("S_MOA", "G_SG39")
	net, _, ok, err := pickMOA(ownMOAs, []string{moaLineNet})
	if err != nil {
		return line, err
	}
	if !ok {
		return line, invoice.Malformed("MOA 203", "line %d has no net amount", pos)
	}
	line.NetAmount = net

	if err := prices(g, &line); err != nil {
		return line, err
	}
	if rate := g.first("S_TAX"); rate != nil {
		if raw := rate.value("C_C243", "D_5278"); raw != "" {
			r, err := invoice.ParseAmount(raw)
			if err != nil {
				return line, invoice.Malformed("TAX", "line %d: bad rate %q: %v", pos, raw, err)
			}
			line.VATRate = decimal.NewNullDecimal(r)
		}
	}

	acs, err := lineAllowances(g, ownMOAs, index)
	if err != nil {
		return line, err
	}
	line.AllowanceCharges = acs

	return n.units.Normalize(line), nil
}

// quantity prefers the invoiced quantity (6063 = 47).
func quantity(g *node) *node {
	segs := g.all("S_QTY", "G_SG39")
	for _, s := range segs {
		if s.value("C_C186", "D_6063") == "47" {
			return s
		}
	}
	if len(segs) > 0 {
		return segs[0]
	}
	return nil
}

func description(g *node) string {
	var parts []string
	for _, imd := range g.all("S_IMD", "G_SG39") {
		for _, c := range imd.path("C_C273").childrenNamed("D_7008") {
			if text := strings.TrimSpace(c.text); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, " ")
}

// articleCode prefers the supplier's article number (PIA SA) and falls back
// to a numeric LIN item number.
func articleCode(g *node) string {
	for _, pia := range g.all("S_PIA", "G_SG39") {
		for _, c := range pia.childrenNamed("C_C212") {
			if c.value("D_7143") == "SA" {
				if code := c.value("D_7140"); code != "" {
					return code
				}
			}
		}
	}
	if lin := g.child("S_LIN"); lin != nil {
		code := lin.value("C_C212", "D_7140")
		if code != "" && isDigits(code) {
			return code
		}
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func prices(g *node, line *invoice.Line) error {
	found := false
	for _, pri := range g.all("S_PRI", "G_SG39") {
		qual := pri.value("C_C509", "D_5125")
		raw := pri.value("C_C509", "D_5118")
		if raw == "" {
			continue
		}
		p, err := invoice.ParseAmount(raw)
		if err != nil {
			return invoice.Malformed("PRI "+qual, "line %d: bad price %q: %v", line.Position, raw, err)
		}
		switch qual {
		case "AAA":
			line.UnitPrice = p
			found = true
		case "AAB":
			line.GrossUnitPrice = decimal.NewNullDecimal(p)
		}
	}
	if !found && !line.Quantity.IsZero() {
		line.UnitPrice = line.NetAmount.DivRound(line.Quantity, 4)
	}
	return nil
}

// lineAllowances collects G_SG39 groups and bare MOA 204 segments found
// directly in the line.
func lineAllowances(g *node, ownMOAs []*node, index int) ([]invoice.AllowanceCharge, error) {
	var out []invoice.AllowanceCharge
	for _, grp := range g.all("G_SG39") {
		alc := grp.first("S_ALC")
		amount, _, ok, err := pickMOA(grp.all("S_MOA"), []string{moaAllowance, moaHeaderAllow})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		pct, err := percent(grp)
		if err != nil {
			return nil, err
		}
		out = append(out, invoice.AllowanceCharge{
			Kind:      allowanceKind(alc),
			Amount:    amount.Abs(),
			Percent:   pct,
			Reason:    allowanceReason(alc),
			LineIndex: index,
		})
	}

	for _, seg := range ownMOAs {
		qual, raw := moa(seg)
		if qual != moaAllowance {
			continue
		}
		amount, err := invoice.ParseAmount(raw)
		if err != nil {
			return nil, invoice.Malformed("MOA 204", "bad amount %q: %v", raw, err)
		}
		if amount.IsZero() {
			continue
		}
		out = append(out, invoice.AllowanceCharge{
			Kind:      invoice.Allowance,
			Amount:    amount.Abs(),
			LineIndex: index,
		})
	}
	return out, nil
}

// supplier returns the seller's tax id and name (NAD SU, else SE).
func supplier(msg *node) (id, name string) {
	var party *node
	for _, q := range []string{"SU", "SE"} {
		for _, nad := range msg.all("S_NAD", "G_SG26") {
			if nad.value("D_3035") == q {
				party = nad
				break
			}
		}
		if party != nil {
			break
		}
	}
	if party == nil {
		return "", ""
	}

	var names []string
	for _, c := range party.path("C_C080").childrenNamed("D_3036") {
		if text := strings.TrimSpace(c.text); text != "" {
			names = append(names, text)
		}
	}
	name = strings.Join(names, " ")

	// The VAT reference lives in the party's reference group, a sibling of
	// the NAD segment.
	if grp := party.parent; grp != nil {
		for _, rff := range grp.all("S_RFF") {
			switch rff.value("C_C506", "D_1153") {
			case "VA", "AHP":
				if v := rff.value("C_C506", "D_1154"); v != "" {
					return v, name
				}
			}
		}
	}
	return party.value("C_C082", "D_3039"), name
}

func currency(msg *node) string {
	for _, cux := range msg.all("S_CUX", "G_SG26") {
		if c := cux.value("C_C504", "D_6345"); c != "" {
			return strings.ToUpper(c)
		}
	}
	return ""
}

var dateLayouts = []string{"2006-01-02", "20060102", "2006-01-02T15:04:05", "2006-01-02T15:04:05Z07:00"}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// dates returns the invoice date (DTM 137) and service date (DTM 35,
// defaulting to the invoice date). Unparseable dates are left zero.
func dates(msg *node) (issued, service time.Time) {
	for _, dtm := range msg.all("S_DTM", "G_SG26") {
		t, err := parseDate(dtm.value("C_C507", "D_2380"))
		if err != nil {
			continue
		}
		switch dtm.value("C_C507", "D_2005") {
		case "137":
			if issued.IsZero() {
				issued = t
			}
		case "35":
			if service.IsZero() {
				service = t
			}
		}
	}
	if service.IsZero() {
		service = issued
	}
	return issued, service
}
