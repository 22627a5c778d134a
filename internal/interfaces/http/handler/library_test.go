package handler

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	libraryapp "github.com/municipal/backoffice/internal/application/library"
	"github.com/municipal/backoffice/internal/domain/library"
	"github.com/municipal/backoffice/internal/infrastructure/auth"
	"github.com/municipal/backoffice/internal/infrastructure/config"
	"github.com/municipal/backoffice/internal/infrastructure/persistence"
	"github.com/municipal/backoffice/internal/interfaces/http/dto"
	"github.com/municipal/backoffice/internal/interfaces/http/middleware"
	"github.com/municipal/backoffice/internal/interfaces/http/router"
	"github.com/municipal/backoffice/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type libraryEnv struct {
	engine *gin.Engine
	admin  map[string]string
	clerk  map[string]string
}

func newLibraryEnv(t *testing.T) *libraryEnv {
	t.Helper()
	db := testutil.NewSQLiteDB(t,
		&library.Book{}, &library.Copy{}, &library.Member{}, &library.Loan{},
		&library.LoanHistory{}, &library.Reservation{}, &library.Fine{})
	loans := persistence.NewGormLoanRepository(db)
	svc := libraryapp.NewService(libraryapp.Repositories{
		Books:        persistence.NewGormBookRepository(db),
		Copies:       persistence.NewGormBookCopyRepository(db),
		Members:      persistence.NewGormMemberRepository(db),
		Loans:        loans,
		Reservations: persistence.NewGormReservationRepository(db),
		Fines:        persistence.NewGormFineRepository(db),
		Circulation:  loans,
		Statistics:   persistence.NewGormLibraryStatisticsRepository(db),
	}, library.DefaultRules(), nil, zap.NewNop())

	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:                "library-handler-test-secret",
		AccessTokenExpiration: 30 * time.Minute,
		Issuer:                "iam",
	})
	engine := gin.New()
	r := router.NewRouter(engine)
	r.Register(NewLibraryHandler(svc).Routes(middleware.JWTAuthMiddleware(jwtService)))
	r.Setup()

	return &libraryEnv{
		engine: engine,
		admin:  bearer(t, jwtService, uuid.New(), "admin"),
		clerk:  bearer(t, jwtService, uuid.New(), "librarian"),
	}
}

func (e *libraryEnv) createBook(t *testing.T, isbn string, copies int) library.Book {
	t.Helper()
	w := testutil.DoJSON(t, e.engine, http.MethodPost, "/api/v1/library/books", map[string]any{
		"isbn": isbn, "title": "İnce Memed", "author": "Yaşar Kemal", "category": "Roman",
	}, e.clerk)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	b := testutil.DecodeData[library.Book](t, w)
	for i := 0; i < copies; i++ {
		w = testutil.DoJSON(t, e.engine, http.MethodPost, "/api/v1/library/books/"+b.ID.String()+"/copies",
			map[string]any{"condition": "new", "acquired_date": "2024-09-01"}, e.clerk)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	return b
}

func (e *libraryEnv) createMember(t *testing.T, email, tcNo string) library.Member {
	t.Helper()
	w := testutil.DoJSON(t, e.engine, http.MethodPost, "/api/v1/library/members", map[string]any{
		"first_name": "Deniz", "last_name": "Aslan", "email": email, "tc_no": tcNo, "member_type": "TEACHER",
	}, e.clerk)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return testutil.DecodeData[library.Member](t, w)
}

func TestLibraryHandler_Catalogue(t *testing.T) {
	env := newLibraryEnv(t)

	w := testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/library/books", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/library/books", map[string]any{
		"isbn": "978-0", "title": "X", "author": "Y",
	}, env.clerk)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeValidation, testutil.ErrorCode(t, w))

	b := env.createBook(t, "9789750807147", 2)
	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/library/books", map[string]any{
		"isbn": "9789750807147", "title": "Dup", "author": "Dup",
	}, env.clerk)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/library/books?search=kemal", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]library.Book](t, w), 1)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/library/books/"+b.ID.String(), nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	view := testutil.DecodeData[libraryapp.BookView](t, w)
	assert.Equal(t, 2, view.AvailableCopies)
	require.Len(t, view.Copies, 2)
	assert.Equal(t, "9789750807147-001", view.Copies[0].CopyNumber)

	w = testutil.DoJSON(t, env.engine, http.MethodPut, "/api/v1/library/copies/"+view.Copies[1].ID.String()+"/status",
		map[string]any{"status": "BORROWED"}, env.clerk)
	assert.Equal(t, http.StatusBadRequest, w.Code, "loans own the borrowed status")

	w = testutil.DoJSON(t, env.engine, http.MethodPut, "/api/v1/library/copies/"+view.Copies[1].ID.String()+"/status",
		map[string]any{"status": "DAMAGED", "condition": "spine cracked"}, env.clerk)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, library.CopyDamaged, testutil.DecodeData[library.Copy](t, w).Status)

	w = testutil.DoJSON(t, env.engine, http.MethodPut, "/api/v1/library/books/"+b.ID.String(), map[string]any{
		"isbn": "9789750807147", "title": "İnce Memed 1", "author": "Yaşar Kemal", "language": "tr",
	}, env.clerk)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "TR", testutil.DecodeData[library.Book](t, w).Language)

	w = testutil.DoJSON(t, env.engine, http.MethodDelete, "/api/v1/library/books/"+b.ID.String(), nil, env.clerk)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = testutil.DoJSON(t, env.engine, http.MethodDelete, "/api/v1/library/books/"+b.ID.String(), nil, env.admin)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/library/books/"+b.ID.String(), nil, env.clerk)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLibraryHandler_Members(t *testing.T) {
	env := newLibraryEnv(t)

	w := testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/library/members", map[string]any{
		"first_name": "Deniz", "last_name": "Aslan", "email": "deniz@example.org", "tc_no": "123",
		"member_type": "TEACHER",
	}, env.clerk)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	m := env.createMember(t, "deniz@example.org", "12345678901")
	assert.True(t, strings.HasPrefix(m.MemberNumber, "T"), m.MemberNumber)
	assert.Len(t, m.MemberNumber, 10)
	assert.Equal(t, library.MemberActive, m.Status)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/library/members/"+m.ID.String()+"/eligibility", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	e := testutil.DecodeData[library.Eligibility](t, w)
	assert.True(t, e.CanBorrow)
	assert.Equal(t, 5, e.MaxLoans)

	w = testutil.DoJSON(t, env.engine, http.MethodPut, "/api/v1/library/members/"+m.ID.String(), map[string]any{
		"first_name": "Deniz", "last_name": "Aslan", "email": "deniz@example.org", "tc_no": "12345678901",
		"status": "BLOCKED",
	}, env.clerk)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/library/members/"+m.ID.String()+"/eligibility", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	e = testutil.DecodeData[library.Eligibility](t, w)
	assert.False(t, e.CanBorrow)
	assert.Equal(t, "Membership is BLOCKED", e.Reason)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/library/members?status=BLOCKED", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]library.Member](t, w), 1)

	w = testutil.DoJSON(t, env.engine, http.MethodDelete, "/api/v1/library/members/"+m.ID.String(), nil, env.admin)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestLibraryHandler_Circulation(t *testing.T) {
	env := newLibraryEnv(t)
	b := env.createBook(t, "9789750807147", 1)
	holder := env.createMember(t, "deniz@example.org", "12345678901")
	waiting := env.createMember(t, "cem@example.org", "12345678902")

	w := testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/library/books/"+b.ID.String()+"/copies", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	copies := testutil.DecodeData[[]library.Copy](t, w)
	require.Len(t, copies, 1)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/library/reservations",
		map[string]any{"member_id": waiting.ID, "book_id": b.ID}, env.clerk)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "a copy is on the shelf")

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/library/loans",
		map[string]any{"member_id": holder.ID, "copy_id": copies[0].ID, "notes": "summer reading"}, env.clerk)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	loan := testutil.DecodeData[library.Loan](t, w)
	assert.Equal(t, library.LoanBorrowed, loan.Status)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/library/loans",
		map[string]any{"member_id": waiting.ID, "copy_id": copies[0].ID}, env.clerk)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/library/reservations",
		map[string]any{"member_id": waiting.ID, "book_id": b.ID}, env.clerk)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	r := testutil.DecodeData[library.Reservation](t, w)
	assert.Equal(t, 1, r.Position)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/library/loans/"+loan.ID.String()+"/renew", nil, env.clerk)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "someone is waiting")

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/library/loans?member_id="+holder.ID.String(), nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]library.Loan](t, w), 1)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/library/loans/overdue", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, testutil.DecodeData[[]library.Loan](t, w))

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/library/loans/"+loan.ID.String()+"/return",
		map[string]any{"notes": "good condition"}, env.clerk)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	returned := testutil.DecodeData[libraryapp.LoanView](t, w)
	assert.Equal(t, library.LoanReturned, returned.Status)
	assert.Len(t, returned.History, 2)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/library/loans/"+loan.ID.String()+"/return", nil, env.clerk)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/library/reservations?book_id="+b.ID.String()+"&status=ACTIVE", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	queue := testutil.DecodeData[[]library.Reservation](t, w)
	require.Len(t, queue, 1)
	assert.Equal(t, 1, queue[0].Position)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/library/reservations/"+r.ID.String()+"/fulfill", nil, env.clerk)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, waiting.ID, testutil.DecodeData[library.Loan](t, w).MemberID)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/library/reservations/"+r.ID.String()+"/cancel", nil, env.clerk)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/library/statistics", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	stats := testutil.DecodeData[library.Statistics](t, w)
	assert.Equal(t, int64(1), stats.Books)
	assert.Equal(t, int64(1), stats.ActiveLoans)
	assert.Equal(t, int64(2), stats.MembersByType[library.MemberTeacher])
	assert.Equal(t, int64(1), stats.CopiesByStatus[library.CopyBorrowed])
}

func TestLibraryHandler_Fines(t *testing.T) {
	env := newLibraryEnv(t)
	m := env.createMember(t, "deniz@example.org", "12345678901")

	w := testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/library/fines", map[string]any{
		"member_id": m.ID, "fine_type": "PARKING", "amount": "10",
	}, env.clerk)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/library/fines", map[string]any{
		"member_id": m.ID, "fine_type": "LOST", "amount": "120.50", "reason": "lost on a bus",
	}, env.clerk)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	f := testutil.DecodeData[library.Fine](t, w)
	assert.True(t, testutil.Dec("120.5").Equal(f.Amount))

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/library/fines?is_paid=false&member_id="+m.ID.String(), nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]library.Fine](t, w), 1)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/library/fines/"+f.ID.String()+"/pay", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, testutil.DecodeData[library.Fine](t, w).IsPaid)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/library/fines/"+f.ID.String()+"/pay", nil, env.clerk)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/library/fines?is_paid=false", nil, env.clerk)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, testutil.DecodeData[[]library.Fine](t, w))
}
