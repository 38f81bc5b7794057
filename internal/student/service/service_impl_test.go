package service_test

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/student/domain"
	"github.com/smallbiznis/bursar/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const school = snowflake.ID(7001)

func TestCreateStudentDefaultsToDay(t *testing.T) {
	h := testsupport.New(t)

	student, err := h.Students.Create(h.Ctx(school), domain.CreateStudentRequest{
		AdmissionNumber: " ADM-100 ",
		FirstName:       "Ruth",
		LastName:        "Namusoke",
		ClassLevel:      "P3",
	})
	require.NoError(t, err)
	assert.Equal(t, "ADM-100", student.AdmissionNumber)
	assert.Equal(t, domain.BoardingStatusDay, student.BoardingStatus)
	assert.Equal(t, domain.StatusActive, student.Status)
	assert.WithinDuration(t, testsupport.Epoch, student.CreatedAt, time.Second)

	got, err := h.Students.Get(h.Ctx(school), student.ID.String())
	require.NoError(t, err)
	assert.Equal(t, student.ID, got.ID)
}

func TestCreateStudentRejectsDuplicateAdmission(t *testing.T) {
	h := testsupport.New(t)
	req := domain.CreateStudentRequest{AdmissionNumber: "ADM-7", FirstName: "Ivan", ClassLevel: "S1"}

	_, err := h.Students.Create(h.Ctx(school), req)
	require.NoError(t, err)

	_, err = h.Students.Create(h.Ctx(school), req)
	assert.ErrorIs(t, err, domain.ErrDuplicateAdmission)

	// admission numbers are unique per school only
	_, err = h.Students.Create(h.Ctx(school+1), req)
	assert.NoError(t, err)
}

func TestGetStudentIsSchoolScoped(t *testing.T) {
	h := testsupport.New(t)
	student := h.SeedStudent(t, school, "P1", domain.BoardingStatusDay)

	_, err := h.Students.Get(h.Ctx(school+1), student.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.Students.Get(h.Ctx(school), "not-an-id")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestListActiveFiltersByClass(t *testing.T) {
	h := testsupport.New(t)
	h.SeedStudent(t, school, "P1", domain.BoardingStatusDay)
	h.SeedStudent(t, school, "P1", domain.BoardingStatusBoarding)
	h.SeedStudent(t, school, "P2", domain.BoardingStatusDay)
	h.SeedStudent(t, school+1, "P1", domain.BoardingStatusDay)

	p1, err := h.Students.ListActive(h.Ctx(school), "P1")
	require.NoError(t, err)
	assert.Len(t, p1, 2)

	all, err := h.Students.ListActive(h.Ctx(school), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
