package document

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFile(name, hashChar string) File {
	return File{Name: name, Size: 128, MimeType: "application/pdf", Hash: strings.Repeat(hashChar, 64)}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var de *shared.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, code, de.Code)
}

func TestNewDocument(t *testing.T) {
	owner := uuid.New()
	doc, v, err := NewDocument(Details{
		Title: "  Zoning plan ", Tags: []string{"Plan", "plan", " ", "zoning"},
	}, testFile(`C:\scans\plan.pdf`, "a"), owner)
	require.NoError(t, err)

	assert.Equal(t, "Zoning plan", doc.Title)
	assert.Equal(t, []string{"plan", "zoning"}, doc.Tags)
	assert.Equal(t, StatusDraft, doc.Status)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, "plan.pdf", doc.FileName)
	assert.Equal(t, "documents/"+doc.ID.String()+"/v1/plan.pdf", doc.StorageKey)
	assert.NotNil(t, doc.Metadata)

	assert.Equal(t, doc.ID, v.DocumentID)
	assert.Equal(t, 1, v.VersionNumber)
	assert.Equal(t, doc.StorageKey, v.StorageKey)
	assert.Equal(t, owner, v.CreatedBy)
}

func TestNewDocument_Validation(t *testing.T) {
	_, _, err := NewDocument(Details{Title: " "}, testFile("a.pdf", "a"), uuid.New())
	assertCode(t, err, "INVALID_INPUT")

	f := testFile("a.pdf", "a")
	f.Size = 0
	_, _, err = NewDocument(Details{Title: "x"}, f, uuid.New())
	assertCode(t, err, "INVALID_INPUT")

	f.Size = MaxFileSize + 1
	_, _, err = NewDocument(Details{Title: "x"}, f, uuid.New())
	assertCode(t, err, "INVALID_INPUT")
}

func TestDocument_Lifecycle(t *testing.T) {
	doc, _, err := NewDocument(Details{Title: "Budget"}, testFile("budget.pdf", "a"), uuid.New())
	require.NoError(t, err)

	_, err = doc.AddVersion(testFile("budget.pdf", "a"), "", uuid.New())
	assertCode(t, err, "INVALID_INPUT")

	v, err := doc.AddVersion(testFile("budget-final.pdf", "b"), " final ", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Version)
	assert.Equal(t, 2, v.VersionNumber)
	assert.Equal(t, "final", v.ChangeNote)
	assert.Equal(t, "documents/"+doc.ID.String()+"/v2/budget-final.pdf", doc.StorageKey)
	assert.Equal(t, strings.Repeat("b", 64), doc.FileHash)

	require.NoError(t, doc.Archive())
	assertCode(t, doc.Archive(), "INVALID_STATE")

	require.NoError(t, doc.Delete())
	assertCode(t, doc.Update(Details{Title: "x"}), "INVALID_STATE")
	assertCode(t, doc.Activate(), "INVALID_STATE")
}

func TestDocument_IsMarkdown(t *testing.T) {
	assert.True(t, (&Document{FileName: "README.MD"}).IsMarkdown())
	assert.True(t, (&Document{FileName: "notes", MimeType: "text/markdown; charset=utf-8"}).IsMarkdown())
	assert.False(t, (&Document{FileName: "a.pdf", MimeType: "application/pdf"}).IsMarkdown())
}

func TestNewAccess(t *testing.T) {
	now := time.Now()
	user := uuid.New()
	past := now.Add(-time.Hour)

	_, err := NewAccess(uuid.New(), Grant{Level: AccessView}, uuid.New(), now)
	assertCode(t, err, "INVALID_INPUT")

	_, err = NewAccess(uuid.New(), Grant{UserID: &user, Department: "IT", Level: AccessView}, uuid.New(), now)
	assertCode(t, err, "INVALID_INPUT")

	_, err = NewAccess(uuid.New(), Grant{UserID: &user, Level: "owner"}, uuid.New(), now)
	assertCode(t, err, "INVALID_INPUT")

	_, err = NewAccess(uuid.New(), Grant{UserID: &user, Level: AccessView, ExpiresAt: &past}, uuid.New(), now)
	assertCode(t, err, "INVALID_INPUT")

	a, err := NewAccess(uuid.New(), Grant{Department: " Imar ", Level: AccessEdit}, uuid.New(), now)
	require.NoError(t, err)
	assert.Equal(t, "Imar", a.Department)
}

func TestCanAccess(t *testing.T) {
	now := time.Now()
	owner, reader, other := uuid.New(), uuid.New(), uuid.New()
	doc, _, err := NewDocument(Details{Title: "Tender"}, testFile("t.pdf", "c"), owner)
	require.NoError(t, err)

	expired := now.Add(-time.Minute)
	grants := []Access{
		{DocumentID: doc.ID, UserID: &reader, Level: AccessEdit},
		{DocumentID: doc.ID, Department: "Finance", Level: AccessView},
		{DocumentID: doc.ID, UserID: &other, Level: AccessShare, ExpiresAt: &expired},
	}

	tests := []struct {
		name   string
		viewer Viewer
		level  AccessLevel
		want   bool
	}{
		{"owner", Viewer{UserID: owner}, AccessShare, true},
		{"admin", Viewer{UserID: other, Role: "admin"}, AccessDelete, true},
		{"user grant covers lower level", Viewer{UserID: reader}, AccessView, true},
		{"user grant stops at its level", Viewer{UserID: reader}, AccessDelete, false},
		{"department grant", Viewer{UserID: other, Department: "finance"}, AccessView, true},
		{"department grant is view only", Viewer{UserID: other, Department: "Finance"}, AccessEdit, false},
		{"expired grant", Viewer{UserID: other}, AccessView, false},
		{"stranger", Viewer{UserID: uuid.New()}, AccessView, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAccess(tt.viewer, doc, grants, tt.level, now))
		})
	}

	doc.IsPublic = true
	assert.True(t, CanAccess(Viewer{UserID: uuid.New()}, doc, nil, AccessView, now))
	assert.False(t, CanAccess(Viewer{UserID: uuid.New()}, doc, nil, AccessEdit, now))

	require.NoError(t, doc.Delete())
	assert.False(t, CanAccess(Viewer{UserID: reader}, doc, grants, AccessView, now))
	assert.True(t, CanAccess(Viewer{UserID: owner}, doc, grants, AccessView, now))
}
