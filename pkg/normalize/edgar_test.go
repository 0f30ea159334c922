package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaintel/helix/pkg/sources"
)

func TestFiling(t *testing.T) {
	tracked := map[string]string{
		"78003": "Pfizer Inc",
	}

	entry := sources.FilingEntry{
		Title:    "10-K - PFIZER INC (0000078003) (Filer)",
		Link:     "https://www.sec.gov/Archives/edgar/data/78003/000007800324000015-index.htm",
		PubDate:  "Thu, 22 Feb 2024 16:31:22 -0500",
		CIK:      "0000078003",
		FormType: "10-K",
	}

	t.Run("should convert a tracked filing", func(t *testing.T) {
		rec, reason := Filing(entry, tracked)
		require.Empty(t, reason)
		require.NotNil(t, rec)
		require.Equal(t, KindFiling, rec.Kind)

		filing := rec.Filing
		assert.Equal(t, "78003", filing.CIK)
		assert.Equal(t, "Pfizer Inc", filing.CompanyName)
		assert.Equal(t, "10-K", filing.FormType)
		assert.Equal(t, "2024-02-22", filing.FilingDate.Format("2006-01-02"))
		assert.Equal(t, entry.Title, filing.Title)
		assert.Equal(t, entry.Link, filing.URL)
	})

	t.Run("should count amended forms as their base form", func(t *testing.T) {
		amended := entry
		amended.FormType = "10-K/A"
		rec, reason := Filing(amended, tracked)
		require.Empty(t, reason)
		assert.Equal(t, "10-K", rec.Filing.FormType)
	})

	t.Run("should skip untracked registrants", func(t *testing.T) {
		other := entry
		other.CIK = "0000320193"
		rec, reason := Filing(other, tracked)
		assert.Nil(t, rec)
		assert.Equal(t, SkipIrrelevantForm, reason)
	})

	t.Run("should skip irrelevant form types", func(t *testing.T) {
		other := entry
		other.FormType = "4"
		rec, reason := Filing(other, tracked)
		assert.Nil(t, rec)
		assert.Equal(t, SkipIrrelevantForm, reason)
	})

	t.Run("should skip entries without a cik", func(t *testing.T) {
		other := entry
		other.CIK = ""
		rec, reason := Filing(other, tracked)
		assert.Nil(t, rec)
		assert.Equal(t, SkipMissingID, reason)
	})

	t.Run("should skip entries without a link", func(t *testing.T) {
		other := entry
		other.Link = ""
		rec, reason := Filing(other, tracked)
		assert.Nil(t, rec)
		assert.Equal(t, SkipNoDocument, reason)
	})

	t.Run("should skip entries with an unparseable date", func(t *testing.T) {
		other := entry
		other.PubDate = "yesterday"
		rec, reason := Filing(other, tracked)
		assert.Nil(t, rec)
		assert.Equal(t, SkipBadDate, reason)
	})
}
