package templates

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAll(t *testing.T) {
	all, err := LoadAll()
	require.NoError(t, err)
	require.NotEmpty(t, all)

	for _, template := range all {
		require.NotEmpty(t, template.Name)
		require.NotEmpty(t, template.DisplayName)
		require.NotEmpty(t, template.Dashboard.Name)
		require.NotEmpty(t, template.Dashboard.Pages)
		for _, page := range template.Dashboard.Pages {
			require.NotEmpty(t, page.Widgets)
			for _, widget := range page.Widgets {
				require.NotEmpty(t, widget.Title)
				require.NotEmpty(t, widget.Visualization.ID)
			}
		}
	}
}

func TestGetKnownTemplates(t *testing.T) {
	for _, name := range []string{"kafka-queue-monitoring", "kafka-broker-monitoring", "apm-golden-signals"} {
		template, err := Get(name)
		require.NoError(t, err)
		require.Equal(t, name, template.Name)
	}

	_, err := Get("nope")
	require.Error(t, err)
}

func TestInstantiateBindsAccount(t *testing.T) {
	template, err := Get("kafka-queue-monitoring")
	require.NoError(t, err)

	dashboard := template.Instantiate(12345)
	for _, page := range dashboard.Pages {
		for _, widget := range page.Widgets {
			for _, query := range widget.RawConfiguration.NRQLQueries {
				require.Equal(t, 12345, query.AccountID)
			}
		}
	}

	// Instantiation must not mutate the catalog copy.
	for _, page := range template.Dashboard.Pages {
		for _, widget := range page.Widgets {
			for _, query := range widget.RawConfiguration.NRQLQueries {
				require.Zero(t, query.AccountID)
			}
		}
	}
}

func TestNamesSorted(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.Contains(t, names, "apm-golden-signals")
	require.True(t, sort.StringsAreSorted(names))
}
