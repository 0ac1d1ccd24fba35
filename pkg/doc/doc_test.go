package doc

import (
	"testing"

	"github.com/go-go-golems/glazed/pkg/help"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDocToHelpSystemLoadsTopics(t *testing.T) {
	hs := help.NewHelpSystem()
	require.NoError(t, AddDocToHelpSystem(hs))

	for _, slug := range []string{"workflow-modes", "results-files"} {
		section, err := hs.GetSectionWithSlug(slug)
		require.NoError(t, err, slug)
		require.NotNil(t, section, slug)
		assert.NotEmpty(t, section.Title, slug)
	}

	section, err := hs.GetSectionWithSlug("workflow-modes")
	require.NoError(t, err)
	assert.Contains(t, section.Content, "--final-report-only")
}
