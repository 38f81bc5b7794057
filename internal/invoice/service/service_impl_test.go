package service_test

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	feedomain "github.com/smallbiznis/bursar/internal/fee/domain"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"github.com/smallbiznis/bursar/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const school = snowflake.ID(7001)

func TestGenerateInvoicesPostsDebitPerStudent(t *testing.T) {
	h := testsupport.New(t)
	ctx := h.Ctx(school)

	day := h.SeedStudent(t, school, "P7", studentdomain.BoardingStatusDay)
	boarder := h.SeedStudent(t, school, "P7", studentdomain.BoardingStatusBoarding)
	h.SeedFeeStructure(t, school, "P7", "tuition", 500000, 2025, nil, nil)
	h.SeedFeeStructure(t, school, "P7", "boarding", 200000, 2025, nil, testsupport.StringPtr("boarding"))

	result, err := h.Invoices.GenerateInvoices(ctx, invoicedomain.GenerateInvoicesRequest{Term: 1, Year: 2025})
	require.NoError(t, err)
	assert.Equal(t, 2, result.GeneratedCount)
	assert.Equal(t, 0, result.SkippedCount)
	require.Len(t, result.InvoiceIDs, 2)

	list, err := h.Invoices.ListInvoices(ctx, invoicedomain.ListInvoicesRequest{Term: 1, Year: 2025, StudentID: boarder.ID.String()})
	require.NoError(t, err)
	require.Len(t, list.Invoices, 1)
	inv := list.Invoices[0]
	assert.Equal(t, int64(700000), inv.TotalAmount)
	assert.Equal(t, int64(0), inv.AmountPaid)
	assert.Equal(t, int64(700000), inv.Balance)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, inv.Status)
	assert.Equal(t, testsupport.Epoch.AddDate(0, 0, 30), inv.DueDate.UTC())

	full, err := h.Invoices.GetInvoice(ctx, inv.ID.String())
	require.NoError(t, err)
	require.Len(t, full.Items, 2)
	assert.Equal(t, "boarding", full.Items[0].FeeType)
	assert.Equal(t, "tuition", full.Items[1].FeeType)

	assert.Equal(t, int64(700000), h.LedgerBalance(t, school, boarder.ID, 1, 2025))
	assert.Equal(t, int64(500000), h.LedgerBalance(t, school, day.ID, 1, 2025))
}

func TestGenerateInvoicesIsIdempotent(t *testing.T) {
	h := testsupport.New(t)
	ctx := h.Ctx(school)

	student := h.SeedStudent(t, school, "S1", studentdomain.BoardingStatusDay)
	h.SeedFeeStructure(t, school, "S1", "tuition", 300000, 2025, nil, nil)

	first, err := h.Invoices.GenerateInvoices(ctx, invoicedomain.GenerateInvoicesRequest{Term: 2, Year: 2025})
	require.NoError(t, err)
	assert.Equal(t, 1, first.GeneratedCount)

	second, err := h.Invoices.GenerateInvoices(ctx, invoicedomain.GenerateInvoicesRequest{Term: 2, Year: 2025})
	require.NoError(t, err)
	assert.Equal(t, 0, second.GeneratedCount)
	assert.Equal(t, 1, second.SkippedCount)

	list, err := h.Invoices.ListInvoices(ctx, invoicedomain.ListInvoicesRequest{Term: 2, Year: 2025})
	require.NoError(t, err)
	assert.Len(t, list.Invoices, 1)
	assert.Equal(t, int64(300000), h.LedgerBalance(t, school, student.ID, 2, 2025))
}

func TestGenerateInvoicesFiltersByClassLevel(t *testing.T) {
	h := testsupport.New(t)
	ctx := h.Ctx(school)

	h.SeedStudent(t, school, "P6", studentdomain.BoardingStatusDay)
	h.SeedStudent(t, school, "P7", studentdomain.BoardingStatusDay)
	h.SeedFeeStructure(t, school, "P6", "tuition", 100000, 2025, nil, nil)
	h.SeedFeeStructure(t, school, "P7", "tuition", 100000, 2025, nil, nil)

	result, err := h.Invoices.GenerateInvoices(ctx, invoicedomain.GenerateInvoicesRequest{Term: 1, Year: 2025, ClassLevel: "P6"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.GeneratedCount)
}

func TestGenerateInvoicesAppliesOverride(t *testing.T) {
	h := testsupport.New(t)
	ctx := h.Ctx(school)

	student := h.SeedStudent(t, school, "P7", studentdomain.BoardingStatusDay)
	h.SeedFeeStructure(t, school, "P7", "tuition", 500000, 2025, nil, nil)
	_, err := h.Fees.UpsertFeeOverride(ctx, feedomain.UpsertFeeOverrideRequest{
		StudentID:    student.ID.String(),
		FeeType:      "tuition",
		CustomAmount: 350000,
		Year:         2025,
		Reason:       "bursary",
	})
	require.NoError(t, err)

	_, err = h.Invoices.GenerateInvoices(ctx, invoicedomain.GenerateInvoicesRequest{Term: 1, Year: 2025})
	require.NoError(t, err)

	list, err := h.Invoices.ListInvoices(ctx, invoicedomain.ListInvoicesRequest{StudentID: student.ID.String()})
	require.NoError(t, err)
	require.Len(t, list.Invoices, 1)
	assert.Equal(t, int64(350000), list.Invoices[0].TotalAmount)
	assert.Equal(t, int64(350000), h.LedgerBalance(t, school, student.ID, 1, 2025))
}

func TestGenerateInvoicesWithoutFeesCreatesPaidInvoice(t *testing.T) {
	h := testsupport.New(t)
	ctx := h.Ctx(school)

	student := h.SeedStudent(t, school, "P1", studentdomain.BoardingStatusDay)

	result, err := h.Invoices.GenerateInvoices(ctx, invoicedomain.GenerateInvoicesRequest{Term: 1, Year: 2025})
	require.NoError(t, err)
	require.Equal(t, 1, result.GeneratedCount)

	inv, err := h.Invoices.GetInvoice(ctx, result.InvoiceIDs[0])
	require.NoError(t, err)
	assert.Equal(t, int64(0), inv.TotalAmount)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, inv.Status)
	assert.Empty(t, inv.Items)
	assert.Equal(t, int64(0), h.LedgerBalance(t, school, student.ID, 1, 2025))
}

func TestCreateInvoiceRejectsDuplicate(t *testing.T) {
	h := testsupport.New(t)
	ctx := h.Ctx(school)

	student := h.SeedStudent(t, school, "P7", studentdomain.BoardingStatusDay)
	h.SeedFeeStructure(t, school, "P7", "tuition", 500000, 2025, nil, nil)
	due := time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC)

	inv, err := h.Invoices.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{
		StudentID: student.ID.String(),
		Term:      1,
		Year:      2025,
		DueDate:   &due,
	})
	require.NoError(t, err)
	assert.Equal(t, due, inv.DueDate)
	assert.Equal(t, "INV-2025-000001", inv.InvoiceNumber)

	_, err = h.Invoices.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{
		StudentID: student.ID.String(),
		Term:      1,
		Year:      2025,
	})
	assert.ErrorIs(t, err, invoicedomain.ErrDuplicateInvoice)
	assert.Equal(t, int64(500000), h.LedgerBalance(t, school, student.ID, 1, 2025))
}

func TestCreateInvoiceValidation(t *testing.T) {
	h := testsupport.New(t)
	ctx := h.Ctx(school)
	student := h.SeedStudent(t, school, "P7", studentdomain.BoardingStatusDay)

	cases := []struct {
		name string
		req  invoicedomain.CreateInvoiceRequest
		want error
	}{
		{name: "bad term", req: invoicedomain.CreateInvoiceRequest{StudentID: student.ID.String(), Term: 4, Year: 2025}, want: invoicedomain.ErrInvalidTerm},
		{name: "bad year", req: invoicedomain.CreateInvoiceRequest{StudentID: student.ID.String(), Term: 1, Year: 1990}, want: invoicedomain.ErrInvalidYear},
		{name: "bad student", req: invoicedomain.CreateInvoiceRequest{StudentID: "abc", Term: 1, Year: 2025}, want: invoicedomain.ErrInvalidStudent},
		{name: "unknown student", req: invoicedomain.CreateInvoiceRequest{StudentID: "424242", Term: 1, Year: 2025}, want: studentdomain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.Invoices.CreateInvoice(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestInvoiceNumbersAreSequentialPerYear(t *testing.T) {
	h := testsupport.New(t)
	ctx := h.Ctx(school)

	a := h.SeedStudent(t, school, "P7", studentdomain.BoardingStatusDay)
	b := h.SeedStudent(t, school, "P7", studentdomain.BoardingStatusDay)

	first, err := h.Invoices.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{StudentID: a.ID.String(), Term: 1, Year: 2025})
	require.NoError(t, err)
	second, err := h.Invoices.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{StudentID: b.ID.String(), Term: 1, Year: 2025})
	require.NoError(t, err)
	nextYear, err := h.Invoices.CreateInvoice(ctx, invoicedomain.CreateInvoiceRequest{StudentID: a.ID.String(), Term: 1, Year: 2026})
	require.NoError(t, err)

	assert.Equal(t, "INV-2025-000001", first.InvoiceNumber)
	assert.Equal(t, "INV-2025-000002", second.InvoiceNumber)
	assert.Equal(t, "INV-2026-000001", nextYear.InvoiceNumber)
}

func TestGetInvoiceIsScopedToSchool(t *testing.T) {
	h := testsupport.New(t)

	student := h.SeedStudent(t, school, "P7", studentdomain.BoardingStatusDay)
	inv, err := h.Invoices.CreateInvoice(h.Ctx(school), invoicedomain.CreateInvoiceRequest{StudentID: student.ID.String(), Term: 1, Year: 2025})
	require.NoError(t, err)

	_, err = h.Invoices.GetInvoice(h.Ctx(snowflake.ID(9999)), inv.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)

	_, err = h.Invoices.GetInvoice(h.Ctx(school), "not-an-id")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidID)
}

func TestListInvoicesPaginates(t *testing.T) {
	h := testsupport.New(t)
	ctx := h.Ctx(school)

	for i := 0; i < 3; i++ {
		h.SeedStudent(t, school, "P7", studentdomain.BoardingStatusDay)
	}
	h.SeedFeeStructure(t, school, "P7", "tuition", 1000, 2025, nil, nil)
	_, err := h.Invoices.GenerateInvoices(ctx, invoicedomain.GenerateInvoicesRequest{Term: 1, Year: 2025})
	require.NoError(t, err)

	req := invoicedomain.ListInvoicesRequest{Term: 1, Year: 2025}
	req.PageSize = 2
	page, err := h.Invoices.ListInvoices(ctx, req)
	require.NoError(t, err)
	assert.Len(t, page.Invoices, 2)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextPageToken)

	req.PageToken = page.NextPageToken
	rest, err := h.Invoices.ListInvoices(ctx, req)
	require.NoError(t, err)
	assert.Len(t, rest.Invoices, 1)
	assert.False(t, rest.HasMore)
}

func TestMarkOverdue(t *testing.T) {
	h := testsupport.New(t)
	ctx := h.Ctx(school)

	h.SeedStudent(t, school, "P7", studentdomain.BoardingStatusDay)
	h.SeedFeeStructure(t, school, "P7", "tuition", 1000, 2025, nil, nil)
	result, err := h.Invoices.GenerateInvoices(ctx, invoicedomain.GenerateInvoicesRequest{Term: 1, Year: 2025})
	require.NoError(t, err)

	updated, err := h.Invoices.MarkOverdue(ctx, testsupport.Epoch.AddDate(0, 0, 10), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)

	updated, err = h.Invoices.MarkOverdue(ctx, testsupport.Epoch.AddDate(0, 0, 31), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	inv, err := h.Invoices.GetInvoice(ctx, result.InvoiceIDs[0])
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, inv.Status)

	updated, err = h.Invoices.MarkOverdue(ctx, testsupport.Epoch.AddDate(0, 0, 31), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
}

func TestMarkOverdueHonoursBatchLimit(t *testing.T) {
	h := testsupport.New(t)
	ctx := h.Ctx(school)

	h.SeedStudent(t, school, "P7", studentdomain.BoardingStatusDay)
	h.SeedStudent(t, school, "P7", studentdomain.BoardingStatusDay)
	h.SeedFeeStructure(t, school, "P7", "tuition", 1000, 2025, nil, nil)
	_, err := h.Invoices.GenerateInvoices(ctx, invoicedomain.GenerateInvoicesRequest{Term: 1, Year: 2025})
	require.NoError(t, err)

	late := testsupport.Epoch.AddDate(0, 0, 31)
	updated, err := h.Invoices.MarkOverdue(ctx, late, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	updated, err = h.Invoices.MarkOverdue(ctx, late, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	updated, err = h.Invoices.MarkOverdue(ctx, late, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
}

func TestInvoiceServiceRequiresSchool(t *testing.T) {
	h := testsupport.New(t)
	_, err := h.Invoices.GenerateInvoices(t.Context(), invoicedomain.GenerateInvoicesRequest{Term: 1, Year: 2025})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidSchool)
}
