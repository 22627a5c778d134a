package library

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/library"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/infrastructure/config"
	"github.com/municipal/backoffice/internal/infrastructure/persistence"
	"github.com/municipal/backoffice/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var clerk = uuid.New()

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestService(t *testing.T) (*Service, *clock) {
	t.Helper()
	db := testutil.NewSQLiteDB(t,
		&library.Book{}, &library.Copy{}, &library.Member{}, &library.Loan{},
		&library.LoanHistory{}, &library.Reservation{}, &library.Fine{})
	loans := persistence.NewGormLoanRepository(db)
	svc := NewService(Repositories{
		Books:        persistence.NewGormBookRepository(db),
		Copies:       persistence.NewGormBookCopyRepository(db),
		Members:      persistence.NewGormMemberRepository(db),
		Loans:        loans,
		Reservations: persistence.NewGormReservationRepository(db),
		Fines:        persistence.NewGormFineRepository(db),
		Circulation:  loans,
		Statistics:   persistence.NewGormLibraryStatisticsRepository(db),
	}, library.DefaultRules(), nil, zap.NewNop())
	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	svc.now = c.now
	return svc, c
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var de *shared.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, code, de.Code)
}

func addBook(t *testing.T, svc *Service, isbn string, copies int) *library.Book {
	t.Helper()
	ctx := context.Background()
	b, err := svc.CreateBook(ctx, library.BookDetails{ISBN: isbn, Title: "Saatleri Ayarlama Enstitüsü", Author: "Ahmet Hamdi Tanpınar"})
	require.NoError(t, err)
	for i := 0; i < copies; i++ {
		_, err := svc.AddCopy(ctx, b.ID, "good", nil)
		require.NoError(t, err)
	}
	return b
}

func addMember(t *testing.T, svc *Service, email, tcNo string) *library.Member {
	t.Helper()
	m, err := svc.RegisterMember(context.Background(), library.MemberDetails{
		FirstName: "Ayşe", LastName: "Demir", Email: email, TCNo: tcNo, MemberType: library.MemberPublic,
	})
	require.NoError(t, err)
	return m
}

func TestRulesFromConfig(t *testing.T) {
	rules, err := RulesFromConfig(config.LibraryConfig{LoanPeriodDays: 21, FinePerDay: "0.75"})
	require.NoError(t, err)
	assert.Equal(t, 21, rules.LoanPeriodDays)
	assert.Equal(t, "0.75", rules.FinePerDay.String())
	assert.Equal(t, 3, rules.ReservationExpiryDays)
	assert.Equal(t, 5, rules.MaxLoansPerMember)

	_, err = RulesFromConfig(config.LibraryConfig{FinePerDay: "one lira"})
	assert.Error(t, err)
}

func TestCatalogue(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	b := addBook(t, svc, "978-975-08-0197-2", 2)
	_, err := svc.CreateBook(ctx, library.BookDetails{ISBN: "9789750801972", Title: "Dup", Author: "X"})
	assertCode(t, err, "ALREADY_EXISTS")

	view, err := svc.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.TotalCopies)
	assert.Equal(t, 2, view.AvailableCopies)
	assert.Equal(t, "9789750801972-002", view.Copies[1].CopyNumber)

	c, err := svc.SetCopyStatus(ctx, view.Copies[0].ID, library.CopyMaintenance, "rebinding")
	require.NoError(t, err)
	assert.Equal(t, library.CopyMaintenance, c.Status)
	view, err = svc.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.AvailableCopies)

	page, err := svc.ListBooks(ctx, library.BookFilter{Filter: shared.Filter{Search: "tanpınar"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	_, err = svc.GetBook(ctx, uuid.New())
	assertCode(t, err, "NOT_FOUND")
}

func TestMembers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first := addMember(t, svc, "ayse@example.org", "10000000146")
	second := addMember(t, svc, "mehmet@example.org", "20000000146")
	assert.Equal(t, "P202500001", first.MemberNumber)
	assert.Equal(t, "P202500002", second.MemberNumber)

	_, err := svc.RegisterMember(ctx, library.MemberDetails{
		FirstName: "X", LastName: "Y", Email: "AYSE@example.org", TCNo: "30000000146", MemberType: library.MemberPublic,
	})
	assertCode(t, err, "ALREADY_EXISTS")

	e, err := svc.Eligibility(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, e.CanBorrow)

	updated, err := svc.UpdateMember(ctx, first.ID, library.MemberDetails{
		FirstName: "Ayşe", LastName: "Demir", Email: first.Email, TCNo: first.TCNo, Status: library.MemberSuspended,
	})
	require.NoError(t, err)
	assert.Equal(t, library.MemberSuspended, updated.Status)
	e, err = svc.Eligibility(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, e.CanBorrow)

	require.NoError(t, svc.DeleteMember(ctx, second.ID))
	_, err = svc.GetMember(ctx, second.ID)
	assertCode(t, err, "NOT_FOUND")
}

func TestRegisterMember_AfterDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first := addMember(t, svc, "ayse@example.org", "10000000146")
	addMember(t, svc, "mehmet@example.org", "20000000146")
	require.NoError(t, svc.DeleteMember(ctx, first.ID))

	third := addMember(t, svc, "zeynep@example.org", "30000000146")
	assert.Equal(t, "P202500003", third.MemberNumber)

	_, err := svc.RegisterMember(ctx, library.MemberDetails{
		FirstName: "Can", LastName: "Kaya", Email: "can@example.org", TCNo: "40000000146", MemberType: library.MemberStudent,
	})
	require.NoError(t, err)
	fourth := addMember(t, svc, "deniz@example.org", "50000000146")
	assert.Equal(t, "P202500004", fourth.MemberNumber)
}

func TestCirculation(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	b := addBook(t, svc, "9789750801972", 1)
	m := addMember(t, svc, "ayse@example.org", "10000000146")
	copies, err := svc.ListCopies(ctx, b.ID)
	require.NoError(t, err)
	item := copies[0]

	loan, err := svc.Borrow(ctx, clerk, m.ID, item.ID, "front desk")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), loan.DueDate)

	_, err = svc.Borrow(ctx, clerk, m.ID, item.ID, "")
	assertCode(t, err, "INVALID_STATE")
	assertCode(t, svc.DeleteBook(ctx, b.ID), "BUSINESS_RULE")
	assertCode(t, svc.DeleteMember(ctx, m.ID), "BUSINESS_RULE")

	clk.t = clk.t.Add(time.Minute)
	renewed, err := svc.Renew(ctx, clerk, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 29, 0, 0, 0, 0, time.UTC), renewed.DueDate.UTC())

	clk.t = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	page, err := svc.Overdue(ctx, clerk, shared.Filter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, library.LoanOverdue, page.Items[0].Status)
	assert.True(t, decimal.NewFromInt(4).Equal(page.Items[0].FineAmount))

	_, err = svc.Renew(ctx, clerk, loan.ID)
	assertCode(t, err, "INVALID_STATE")

	clk.t = time.Date(2025, 4, 3, 9, 0, 0, 0, time.UTC)
	returned, err := svc.Return(ctx, clerk, loan.ID, "")
	require.NoError(t, err)
	assert.Equal(t, library.LoanReturned, returned.Status)
	actions := make([]string, 0, len(returned.History))
	for _, h := range returned.History {
		actions = append(actions, h.Action)
	}
	assert.Equal(t, []string{"BORROWED", "RENEWED", "OVERDUE", "RETURNED"}, actions)

	unpaid := false
	fines, err := svc.ListFines(ctx, library.FineFilter{MemberID: &m.ID, IsPaid: &unpaid})
	require.NoError(t, err)
	require.Len(t, fines, 1)
	assert.True(t, decimal.NewFromInt(5).Equal(fines[0].Amount))

	stats, err := svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.UnpaidFines)
	assert.True(t, decimal.NewFromInt(5).Equal(stats.UnpaidFinesTotal))
	assert.Equal(t, int64(0), stats.ActiveLoans)
	assert.Equal(t, int64(1), stats.CopiesByStatus[library.CopyAvailable])

	paid, err := svc.PayFine(ctx, fines[0].ID)
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)
	view, err := svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, view.FinePaid)
	_, err = svc.PayFine(ctx, fines[0].ID)
	assertCode(t, err, "INVALID_STATE")
}

func TestLoanLimit(t *testing.T) {
	svc, _ := newTestService(t)
	svc.rules.MaxLoansPerMember = 1
	ctx := context.Background()

	b := addBook(t, svc, "9789750801972", 2)
	m := addMember(t, svc, "ayse@example.org", "10000000146")
	copies, err := svc.ListCopies(ctx, b.ID)
	require.NoError(t, err)

	_, err = svc.Borrow(ctx, clerk, m.ID, copies[0].ID, "")
	require.NoError(t, err)
	_, err = svc.Borrow(ctx, clerk, m.ID, copies[1].ID, "")
	assertCode(t, err, "BUSINESS_RULE")
}

func TestReservations(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	b := addBook(t, svc, "9789750801972", 1)
	holder := addMember(t, svc, "ayse@example.org", "10000000146")
	first := addMember(t, svc, "mehmet@example.org", "20000000146")
	second := addMember(t, svc, "zeynep@example.org", "30000000146")

	_, err := svc.Reserve(ctx, first.ID, b.ID)
	assertCode(t, err, "BUSINESS_RULE")

	copies, err := svc.ListCopies(ctx, b.ID)
	require.NoError(t, err)
	loan, err := svc.Borrow(ctx, clerk, holder.ID, copies[0].ID, "")
	require.NoError(t, err)

	r1, err := svc.Reserve(ctx, first.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, r1.Position)
	clk.t = clk.t.Add(time.Hour)
	r2, err := svc.Reserve(ctx, second.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, r2.Position)
	_, err = svc.Reserve(ctx, second.ID, b.ID)
	assertCode(t, err, "ALREADY_EXISTS")

	_, err = svc.Renew(ctx, clerk, loan.ID)
	assertCode(t, err, "BUSINESS_RULE")
	_, err = svc.FulfillReservation(ctx, clerk, r1.ID)
	assertCode(t, err, "BUSINESS_RULE")

	_, err = svc.Return(ctx, clerk, loan.ID, "")
	require.NoError(t, err)
	fulfilled, err := svc.FulfillReservation(ctx, clerk, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, fulfilled.MemberID)

	queue, err := svc.ListReservations(ctx, library.ReservationFilter{BookID: &b.ID, Status: library.ReservationActive})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, second.ID, queue[0].MemberID)
	assert.Equal(t, 1, queue[0].Position)

	cancelled, err := svc.CancelReservation(ctx, r2.ID)
	require.NoError(t, err)
	assert.Equal(t, library.ReservationCancelled, cancelled.Status)
	_, err = svc.CancelReservation(ctx, r1.ID)
	assertCode(t, err, "INVALID_STATE")
}

func TestExpireReservations(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	b := addBook(t, svc, "9789750801972", 0)
	m := addMember(t, svc, "ayse@example.org", "10000000146")
	_, err := svc.Reserve(ctx, m.ID, b.ID)
	require.NoError(t, err)

	n, err := svc.ExpireReservations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.t = clk.t.AddDate(0, 0, 4)
	n, err = svc.ExpireReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateFine(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	m := addMember(t, svc, "ayse@example.org", "10000000146")

	f, err := svc.CreateFine(ctx, FineInput{MemberID: m.ID, Type: library.FineDamage, Amount: decimal.RequireFromString("40"), Reason: "water damage"})
	require.NoError(t, err)
	assert.False(t, f.IsPaid)

	_, err = svc.CreateFine(ctx, FineInput{MemberID: uuid.New(), Type: library.FineDamage, Amount: decimal.NewFromInt(1)})
	assertCode(t, err, "NOT_FOUND")
	_, err = svc.CreateFine(ctx, FineInput{MemberID: m.ID, Type: library.FineLost, Amount: decimal.Zero})
	assertCode(t, err, "INVALID_INPUT")

	paid, err := svc.PayFine(ctx, f.ID)
	require.NoError(t, err)
	assert.NotNil(t, paid.PaidDate)
}
