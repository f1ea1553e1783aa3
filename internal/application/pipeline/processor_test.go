package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/invoice-ledger/internal/adapters/eslog"
	"github.com/eshaffer321/invoice-ledger/internal/application/ledger"
	"github.com/eshaffer321/invoice-ledger/internal/domain/discounts"
	"github.com/eshaffer321/invoice-ledger/internal/domain/invoice"
	"github.com/eshaffer321/invoice-ledger/internal/domain/matcher"
	"github.com/eshaffer321/invoice-ledger/internal/domain/pricewatch"
	"github.com/eshaffer321/invoice-ledger/internal/domain/units"
	"github.com/eshaffer321/invoice-ledger/internal/domain/validator"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/locking"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/storage"
)

const headerXML = `<?xml version="1.0" encoding="UTF-8"?>
<Invoice xmlns="urn:eslog:2.00">
<M_INVOIC>
  <S_BGM><C_C106><D_1004>%s</D_1004></C_C106></S_BGM>
  <S_DTM><C_C507><D_2005>137</D_2005><D_2380>2025-03-14</D_2380></C_C507></S_DTM>
  <G_SG2>
    <S_NAD><D_3035>SU</D_3035><C_C080><D_3036>Dobavitelj d.o.o.</D_3036></C_C080></S_NAD>
    <G_SG3><S_RFF><C_C506><D_1153>VA</D_1153><D_1154>SI12345678</D_1154></C_C506></S_RFF></G_SG3>
  </G_SG2>`

func lineXML(qty, desc, net string) string {
	return fmt.Sprintf(`
  <G_SG26>
    <S_IMD><C_C273><D_7008>%s</D_7008></C_C273></S_IMD>
    <S_QTY><C_C186><D_6063>47</D_6063><D_6060>%s</D_6060><D_6411>H87</D_6411></C_C186></S_QTY>
    <G_SG27><S_MOA><C_C516><D_5025>203</D_5025><D_5004>%s</D_5004></C_C516></S_MOA></G_SG27>
  </G_SG26>`, desc, qty, net)
}

func invoiceXML(number, declaredNet string, lines ...string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, headerXML, number)
	for _, l := range lines {
		b.WriteString(l)
	}
	fmt.Fprintf(&b, `
  <G_SG50><S_MOA><C_C516><D_5025>389</D_5025><D_5004>%s</D_5004></C_C516></S_MOA></G_SG50>
</M_INVOIC>
</Invoice>`, declaredNet)
	return []byte(b.String())
}

type fixture struct {
	repo      *storage.MockRepository
	processor *Processor
}

func newFixture(t *testing.T, policy validator.Policy) *fixture {
	t.Helper()
	repo := storage.NewMockRepository()
	cfg := matcher.DefaultConfig()
	m := matcher.NewMatcher(matcher.NewIndex(cfg), cfg)
	l := ledger.NewLedger(repo, locking.NewLocalLocker(), pricewatch.DefaultRule(), nil)
	p := NewProcessor(eslog.NewNormalizer(units.NewNormalizer(nil), eslog.Options{}), m, l, repo, Config{Policy: policy}, nil)

	require.NoError(t, p.LoadLinks(context.Background(), matcher.Link{Description: "Mleko 1L", Code: "MLEKO"}))
	return &fixture{repo: repo, processor: p}
}

func TestProcess_CodesLinesAndRecords(t *testing.T) {
	// Arrange
	f := newFixture(t, validator.DefaultPolicy())
	raw := invoiceXML("INV-1", "10.00",
		lineXML("2", "Mleko 1L", "8.00"),
		lineXML("1", "Neznano blago", "2.00"),
	)

	// Act
	report, err := f.processor.Process(context.Background(), "a.xml", raw)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, validator.WithinTolerance, report.Reconciliation.Decision)
	require.Len(t, report.Lines, 2)

	coded := report.Lines[0]
	assert.Equal(t, StatusCoded, coded.Status)
	assert.Equal(t, "MLEKO", coded.Code)
	assert.Equal(t, matcher.SourceLink, coded.MatchSource)
	assert.True(t, coded.UnitPrice.Decimal.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, invoice.Litre(), coded.BaseUnit)
	assert.True(t, coded.BaseUnitPrice.Decimal.Equal(decimal.NewFromInt(4)))

	assert.Equal(t, StatusNoMatch, report.Lines[1].Status)

	require.NotNil(t, report.Receipt)
	assert.False(t, report.Receipt.Duplicate)
	require.Len(t, report.Receipt.Outcomes, 1, "only coded lines are observed")
	assert.Equal(t, "L", report.Receipt.Outcomes[0].PriceUnit)
	assert.Equal(t, DocumentRecorded, report.Status())
	assert.NotEmpty(t, report.Fingerprint)
}

func TestProcess_DuplicateSubmission(t *testing.T) {
	f := newFixture(t, validator.DefaultPolicy())
	raw := invoiceXML("INV-1", "8.00", lineXML("2", "Mleko 1L", "8.00"))

	first, err := f.processor.Process(context.Background(), "a.xml", raw)
	require.NoError(t, err)
	second, err := f.processor.Process(context.Background(), "a-copy.xml", raw)
	require.NoError(t, err)

	assert.Equal(t, DocumentRecorded, first.Status())
	assert.Equal(t, DocumentDuplicate, second.Status())
	assert.Equal(t, ledger.Duplicate, second.Receipt.Outcomes[0].Kind)

	history, err := f.repo.PriceHistory(context.Background(), "MLEKO", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestProcess_PriceAlertAcrossInvoices(t *testing.T) {
	f := newFixture(t, validator.DefaultPolicy())
	ctx := context.Background()
	_, err := f.processor.Process(ctx, "a.xml", invoiceXML("INV-1", "8.00", lineXML("2", "Mleko 1L", "8.00")))
	require.NoError(t, err)

	report, err := f.processor.Process(ctx, "b.xml", invoiceXML("INV-2", "10.00", lineXML("2", "Mleko 1L", "10.00")))

	require.NoError(t, err)
	assert.Equal(t, 1, report.Alerts())
	out := report.Receipt.Outcomes[0]
	assert.Equal(t, ledger.PriceAlert, out.Kind)
	assert.True(t, out.DeltaPct.Decimal.Equal(decimal.NewFromInt(25)))
}

func TestProcess_ScaledUnitKeepsDeclaredScale(t *testing.T) {
	f := newFixture(t, validator.DefaultPolicy())
	ctx := context.Background()
	require.NoError(t, f.processor.LoadLinks(ctx,
		matcher.Link{Description: "Mleko 1L", Code: "MLEKO"},
		matcher.Link{Description: "Kava zrna", Code: "KAVA"},
	))
	grams := strings.Replace(lineXML("500", "Kava zrna", "5.00"), "<D_6411>H87</D_6411>", "<D_6411>GRM</D_6411>", 1)

	report, err := f.processor.Process(ctx, "a.xml", invoiceXML("INV-1", "5.00", grams))

	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	l := report.Lines[0]
	assert.Equal(t, StatusCoded, l.Status)
	assert.Equal(t, invoice.Other("g"), l.Unit)
	assert.True(t, l.UnitPrice.Decimal.Equal(decimal.RequireFromString("0.01")), "unit price %s", l.UnitPrice.Decimal)
	assert.Equal(t, invoice.Kilogram(), l.BaseUnit)
	assert.True(t, l.BaseUnitPrice.Decimal.Equal(decimal.NewFromInt(10)), "base price %s", l.BaseUnitPrice.Decimal)

	require.Len(t, report.Receipt.Outcomes, 1)
	assert.Equal(t, "kg", report.Receipt.Outcomes[0].PriceUnit)
	assert.True(t, report.Receipt.Outcomes[0].Price.Equal(decimal.NewFromInt(10)))
}

func TestProcess_FailedReconciliationSkipsLedger(t *testing.T) {
	f := newFixture(t, validator.DefaultPolicy())

	report, err := f.processor.Process(context.Background(), "a.xml", invoiceXML("INV-1", "9.00", lineXML("2", "Mleko 1L", "8.00")))

	require.NoError(t, err)
	assert.Equal(t, validator.Failed, report.Reconciliation.Decision)
	assert.Nil(t, report.Receipt)
	assert.NotEmpty(t, report.LedgerSkipped)
	assert.Equal(t, DocumentUnbalanced, report.Status())
	assert.Zero(t, f.repo.RecordSubmissionCalls)
	assert.Equal(t, StatusCoded, report.Lines[0].Status, "lines are still classified")
}

func TestProcess_CorrectionLineIsSkipped(t *testing.T) {
	policy := validator.DefaultPolicy()
	policy.RoundingCorrection = true
	f := newFixture(t, policy)

	report, err := f.processor.Process(context.Background(), "a.xml", invoiceXML("INV-1", "8.10", lineXML("2", "Mleko 1L", "8.00")))

	require.NoError(t, err)
	assert.Equal(t, validator.Corrected, report.Reconciliation.Decision)
	require.Len(t, report.Lines, 2)
	last := report.Lines[1]
	assert.Equal(t, StatusSkipped, last.Status)
	assert.Equal(t, SkipCorrection, last.SkipReason)
	assert.True(t, last.Amount.Equal(decimal.RequireFromString("0.10")))
	require.NotNil(t, report.Receipt)
	assert.Len(t, report.Receipt.Outcomes, 1)
}

func TestProcess_SkipsZeroQuantityAndGratisLines(t *testing.T) {
	f := newFixture(t, validator.DefaultPolicy())
	raw := invoiceXML("INV-1", "8.00",
		lineXML("2", "Mleko 1L", "8.00"),
		lineXML("0", "Mleko 1L", "0.00"),
		lineXML("1", "Mleko 1L", "0.00"),
	)

	report, err := f.processor.Process(context.Background(), "a.xml", raw)

	require.NoError(t, err)
	require.Len(t, report.Lines, 3)
	assert.Equal(t, SkipZeroQuantity, report.Lines[1].SkipReason)
	assert.Equal(t, SkipGratis, report.Lines[2].SkipReason)
	assert.Equal(t, 1, report.Count(StatusCoded))
	assert.Equal(t, 2, report.Count(StatusSkipped))
	assert.Len(t, report.Receipt.Outcomes, 1)
}

func TestProcess_IgnoredDiscountsUseRawAmounts(t *testing.T) {
	f := newFixture(t, validator.DefaultPolicy())
	allowance := strings.Replace(lineXML("2", "Mleko 1L", "8.00"), "</G_SG26>", `<G_SG39>
      <S_ALC><D_5463>A</D_5463></S_ALC>
      <G_SG42><S_MOA><C_C516><D_5025>204</D_5025><D_5004>2.00</D_5004></C_C516></S_MOA></G_SG42>
    </G_SG39>
  </G_SG26>`, 1)

	report, err := f.processor.Process(context.Background(), "a.xml", invoiceXML("INV-1", "8.00", allowance))

	require.NoError(t, err)
	assert.Equal(t, discounts.Ignored, report.DiscountMode)
	assert.True(t, report.DiscountTotal.IsZero())
	assert.True(t, report.Lines[0].Amount.Equal(decimal.NewFromInt(8)))
}

func TestProcess_RejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"malformed", []byte("<Invoice><M_INVOIC></M_INVOIC></Invoice>"), invoice.ErrMalformedDocument},
		{"unsafe", []byte(`<?xml version="1.0"?><!DOCTYPE x [<!ENTITY e SYSTEM "file:///etc/passwd">]><Invoice>&e;</Invoice>`), invoice.ErrUnsafeDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, validator.DefaultPolicy())

			report, err := f.processor.Process(context.Background(), "bad.xml", tt.raw)

			assert.Nil(t, report)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, f.repo.RecordSubmissionCalls)
		})
	}
}

func TestProcess_LedgerStoreFailure(t *testing.T) {
	f := newFixture(t, validator.DefaultPolicy())
	f.repo.RecordSubmissionErr = assert.AnError

	_, err := f.processor.Process(context.Background(), "a.xml", invoiceXML("INV-1", "8.00", lineXML("2", "Mleko 1L", "8.00")))

	assert.ErrorIs(t, err, assert.AnError)
}

func TestConfirmLinks_PersistsAndMatches(t *testing.T) {
	// Arrange
	f := newFixture(t, validator.DefaultPolicy())
	ctx := context.Background()

	// Act
	err := f.processor.ConfirmLinks(ctx, "api", matcher.Link{SupplierID: "SI12345678", Description: "Neznano blago", Code: "BLAGO"})
	require.NoError(t, err)
	report, err := f.processor.Process(ctx, "a.xml", invoiceXML("INV-1", "2.00", lineXML("1", "Neznano blago", "2.00")))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "BLAGO", report.Lines[0].Code)
	links, err := f.repo.ListLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "api", links[0].Source)
	assert.False(t, links[0].ConfirmedAt.IsZero())
}

func TestLoadLinks_StoreError(t *testing.T) {
	f := newFixture(t, validator.DefaultPolicy())
	f.repo.ListLinksErr = assert.AnError

	assert.ErrorIs(t, f.processor.LoadLinks(context.Background()), assert.AnError)
}
