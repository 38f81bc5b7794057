package service_test

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	feedomain "github.com/smallbiznis/bursar/internal/fee/domain"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"github.com/smallbiznis/bursar/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const school = snowflake.ID(6001)

func byFeeType(items []feedomain.LineItem) map[string]feedomain.LineItem {
	out := make(map[string]feedomain.LineItem, len(items))
	for _, item := range items {
		out[item.FeeType] = item
	}
	return out
}

func TestUpsertFeeOverrideReplacesScope(t *testing.T) {
	h := testsupport.New(t)
	ctx := h.Ctx(school)
	student := h.SeedStudent(t, school, "S2", studentdomain.BoardingStatusBoarding)
	h.SeedFeeStructure(t, school, "S2", "tuition", 500000, 2025, nil, nil)
	h.SeedFeeStructure(t, school, "S2", "boarding", 200000, 2025, nil, testsupport.StringPtr("boarding"))

	first, err := h.Fees.UpsertFeeOverride(ctx, feedomain.UpsertFeeOverrideRequest{
		StudentID:    student.ID.String(),
		FeeType:      " Tuition ",
		CustomAmount: 350000,
		Year:         2025,
		Reason:       "staff child",
	})
	require.NoError(t, err)
	assert.Equal(t, "tuition", first.FeeType)
	assert.True(t, first.IsActive)

	second, err := h.Fees.UpsertFeeOverride(ctx, feedomain.UpsertFeeOverrideRequest{
		StudentID:    student.ID.String(),
		FeeType:      "tuition",
		CustomAmount: 300000,
		Year:         2025,
		Reason:       "bursary",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(300000), second.CustomAmount)
	assert.Equal(t, "bursary", second.Reason)

	items, err := h.Fees.GetStudentFeeBreakdown(ctx, feedomain.FeeBreakdownRequest{
		StudentID: student.ID.String(),
		Term:      1,
		Year:      2025,
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	lines := byFeeType(items)
	assert.Equal(t, int64(200000), lines["boarding"].EffectiveAmount)
	assert.Nil(t, lines["boarding"].CustomAmount)
	assert.Equal(t, int64(500000), lines["tuition"].StandardAmount)
	require.NotNil(t, lines["tuition"].CustomAmount)
	assert.Equal(t, int64(300000), lines["tuition"].EffectiveAmount)
	assert.Equal(t, int64(500000), feedomain.TotalOf(items))
}

func TestOverrideTimestampsFollowClock(t *testing.T) {
	h := testsupport.New(t)
	ctx := h.Ctx(school)
	student := h.SeedStudent(t, school, "S2", studentdomain.BoardingStatusDay)
	req := feedomain.UpsertFeeOverrideRequest{
		StudentID:    student.ID.String(),
		FeeType:      "tuition",
		CustomAmount: 1000,
		Year:         2025,
	}

	first, err := h.Fees.UpsertFeeOverride(ctx, req)
	require.NoError(t, err)
	assert.WithinDuration(t, testsupport.Epoch, first.CreatedAt, time.Second)
	assert.WithinDuration(t, testsupport.Epoch, first.UpdatedAt, time.Second)

	h.Clock.Advance(48 * time.Hour)
	req.CustomAmount = 2000
	second, err := h.Fees.UpsertFeeOverride(ctx, req)
	require.NoError(t, err)
	assert.WithinDuration(t, testsupport.Epoch, second.CreatedAt, time.Second)
	assert.WithinDuration(t, testsupport.Epoch.Add(48*time.Hour), second.UpdatedAt, time.Second)

	h.Clock.Advance(time.Hour)
	require.NoError(t, h.Fees.DeactivateFeeOverride(ctx, first.ID.String()))
	var stored feedomain.FeeOverride
	require.NoError(t, h.DB.Where("id = ?", first.ID).First(&stored).Error)
	assert.False(t, stored.IsActive)
	assert.WithinDuration(t, testsupport.Epoch.Add(49*time.Hour), stored.UpdatedAt, time.Second)
}

func TestTermOverrideOnlyAffectsItsTerm(t *testing.T) {
	h := testsupport.New(t)
	ctx := h.Ctx(school)
	student := h.SeedStudent(t, school, "S2", studentdomain.BoardingStatusDay)
	h.SeedFeeStructure(t, school, "S2", "tuition", 500000, 2025, nil, nil)

	_, err := h.Fees.UpsertFeeOverride(ctx, feedomain.UpsertFeeOverrideRequest{
		StudentID:    student.ID.String(),
		FeeType:      "tuition",
		CustomAmount: 100000,
		Term:         testsupport.IntPtr(2),
		Year:         2025,
	})
	require.NoError(t, err)

	termOne, err := h.Fees.GetStudentFeeBreakdown(ctx, feedomain.FeeBreakdownRequest{StudentID: student.ID.String(), Term: 1, Year: 2025})
	require.NoError(t, err)
	assert.Equal(t, int64(500000), feedomain.TotalOf(termOne))

	termTwo, err := h.Fees.GetStudentFeeBreakdown(ctx, feedomain.FeeBreakdownRequest{StudentID: student.ID.String(), Term: 2, Year: 2025})
	require.NoError(t, err)
	assert.Equal(t, int64(100000), feedomain.TotalOf(termTwo))
}

func TestDeactivateFeeOverrideRestoresStandardAmount(t *testing.T) {
	h := testsupport.New(t)
	ctx := h.Ctx(school)
	student := h.SeedStudent(t, school, "S2", studentdomain.BoardingStatusDay)
	h.SeedFeeStructure(t, school, "S2", "tuition", 500000, 2025, nil, nil)

	override, err := h.Fees.UpsertFeeOverride(ctx, feedomain.UpsertFeeOverrideRequest{
		StudentID:    student.ID.String(),
		FeeType:      "tuition",
		CustomAmount: 1,
		Year:         2025,
	})
	require.NoError(t, err)

	require.NoError(t, h.Fees.DeactivateFeeOverride(ctx, override.ID.String()))

	items, err := h.Fees.GetStudentFeeBreakdown(ctx, feedomain.FeeBreakdownRequest{StudentID: student.ID.String(), Term: 1, Year: 2025})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].CustomAmount)
	assert.Equal(t, int64(500000), items[0].EffectiveAmount)

	err = h.Fees.DeactivateFeeOverride(h.Ctx(school+1), override.ID.String())
	assert.ErrorIs(t, err, feedomain.ErrOverrideNotFound)
	assert.ErrorIs(t, h.Fees.DeactivateFeeOverride(ctx, "nope"), feedomain.ErrInvalidOverrideID)
}

func TestUpsertFeeOverrideValidation(t *testing.T) {
	h := testsupport.New(t)
	ctx := h.Ctx(school)
	student := h.SeedStudent(t, school, "S2", studentdomain.BoardingStatusDay)

	cases := []struct {
		name string
		req  feedomain.UpsertFeeOverrideRequest
		want error
	}{
		{name: "zero amount", req: feedomain.UpsertFeeOverrideRequest{StudentID: student.ID.String(), FeeType: "tuition", CustomAmount: 0, Year: 2025}, want: feedomain.ErrInvalidAmount},
		{name: "missing fee type", req: feedomain.UpsertFeeOverrideRequest{StudentID: student.ID.String(), FeeType: "  ", CustomAmount: 10, Year: 2025}, want: feedomain.ErrInvalidFeeType},
		{name: "term out of range", req: feedomain.UpsertFeeOverrideRequest{StudentID: student.ID.String(), FeeType: "tuition", CustomAmount: 10, Term: testsupport.IntPtr(4), Year: 2025}, want: feedomain.ErrInvalidTerm},
		{name: "missing year", req: feedomain.UpsertFeeOverrideRequest{StudentID: student.ID.String(), FeeType: "tuition", CustomAmount: 10}, want: feedomain.ErrInvalidYear},
		{name: "bad student id", req: feedomain.UpsertFeeOverrideRequest{StudentID: "x", FeeType: "tuition", CustomAmount: 10, Year: 2025}, want: feedomain.ErrInvalidStudent},
		{name: "unknown student", req: feedomain.UpsertFeeOverrideRequest{StudentID: "4242", FeeType: "tuition", CustomAmount: 10, Year: 2025}, want: studentdomain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.Fees.UpsertFeeOverride(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestGetStudentFeeBreakdownErrors(t *testing.T) {
	h := testsupport.New(t)
	ctx := h.Ctx(school)
	student := h.SeedStudent(t, school, "S2", studentdomain.BoardingStatusDay)

	_, err := h.Fees.GetStudentFeeBreakdown(ctx, feedomain.FeeBreakdownRequest{StudentID: student.ID.String(), Term: 0, Year: 2025})
	assert.ErrorIs(t, err, feedomain.ErrInvalidTerm)

	_, err = h.Fees.GetStudentFeeBreakdown(h.Ctx(school+1), feedomain.FeeBreakdownRequest{StudentID: student.ID.String(), Term: 1, Year: 2025})
	assert.ErrorIs(t, err, studentdomain.ErrNotFound)

	items, err := h.Fees.GetStudentFeeBreakdown(ctx, feedomain.FeeBreakdownRequest{StudentID: student.ID.String(), Term: 1, Year: 2025})
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestCreateFeeStructureAndList(t *testing.T) {
	h := testsupport.New(t)
	ctx := h.Ctx(school)

	fs, err := h.Fees.CreateFeeStructure(ctx, feedomain.CreateFeeStructureRequest{
		ClassLevel: "P1",
		FeeType:    "Uniform",
		Amount:     45000,
		Year:       2025,
	})
	require.NoError(t, err)
	assert.True(t, fs.IsActive)

	_, err = h.Fees.CreateFeeStructure(ctx, feedomain.CreateFeeStructureRequest{
		ClassLevel:     "P1",
		FeeType:        "boarding",
		Amount:         10,
		Year:           2025,
		BoardingStatus: testsupport.StringPtr("weekly"),
	})
	assert.ErrorIs(t, err, feedomain.ErrInvalidBoarding)

	list, err := h.Fees.ListFeeStructures(ctx, feedomain.ListFeeStructuresRequest{ClassLevel: "P1", Year: 2025})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, fs.ID, list[0].ID)
}
