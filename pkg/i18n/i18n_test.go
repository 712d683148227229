package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	tr, err := New(DefaultLanguage)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"en", "af"}, tr.Languages())

	data := map[string]interface{}{"ServiceType": "ambulance", "ID": "abc"}
	assert.Equal(t, "Your ambulance request has been received and help is being arranged. Reference abc.",
		tr.T("en", "confirmation.body", data))
	assert.Equal(t, "Jou ambulance-versoek is ontvang en hulp word gereël. Verwysing abc.",
		tr.T("af", "confirmation.body", data))
}

func TestTranslateFallback(t *testing.T) {
	tr := Default()
	assert.Equal(t, "Emergency request received", tr.T("", "confirmation.title", nil))
	assert.Equal(t, "Emergency request received", tr.T("fr-FR", "confirmation.title", nil))
	assert.Equal(t, "no.such.key", tr.T("en", "no.such.key", nil))
}

func TestNewRejectsBadTag(t *testing.T) {
	_, err := New("not a tag!")
	assert.Error(t, err)
}

func TestMatch(t *testing.T) {
	tr := Default()
	cases := []struct {
		prefs []string
		want  string
	}{
		{nil, "en"},
		{[]string{"af"}, "af"},
		{[]string{"af-ZA"}, "af"},
		{[]string{"de-DE,af;q=0.8,en;q=0.5"}, "af"},
		{[]string{"", "en-GB"}, "en"},
		{[]string{"zu"}, "en"},
		{[]string{"!!"}, "en"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tr.Match(tc.prefs...), "%v", tc.prefs)
	}
}
