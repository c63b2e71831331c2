package humastar

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	p := Page(items, 2, 2)
	assert.Equal(t, PageBody[int]{Total: 5, Offset: 2, Limit: 2, Data: []int{3, 4}}, p)

	p = Page(items, 10, 2)
	assert.Empty(t, p.Data)
	assert.NotNil(t, p.Data)

	p = Page(items, 0, 0)
	assert.Equal(t, items, p.Data)
}

func TestPaginationLinks(t *testing.T) {
	u, err := url.Parse("/api/v1/deals?year=2010&offset=2&limit=2")
	require.NoError(t, err)

	links := Page([]int{1, 2, 3, 4, 5}, 2, 2).PaginationLinks(*u)
	assert.Equal(t, []string{
		`</api/v1/deals?limit=2&offset=0&year=2010>; rel="first"`,
		`</api/v1/deals?limit=2&offset=0&year=2010>; rel="prev"`,
		`</api/v1/deals?limit=2&offset=4&year=2010>; rel="next"`,
		`</api/v1/deals?limit=2&offset=4&year=2010>; rel="last"`,
	}, links)
}

func TestSignalsOptionalInt(t *testing.T) {
	s, err := ParseSignals([]byte(`{"a":2012,"b":"2013","c":"","d":null,"e":1.5,"f":"x"}`))
	require.NoError(t, err)

	v, err := s.OptionalInt("a")
	require.NoError(t, err)
	assert.Equal(t, 2012, *v)

	v, err = s.OptionalInt("b")
	require.NoError(t, err)
	assert.Equal(t, 2013, *v)

	for _, k := range []string{"c", "d", "missing"} {
		v, err = s.OptionalInt(k)
		require.NoError(t, err)
		assert.Nil(t, v, k)
	}

	_, err = s.OptionalInt("e")
	assert.Error(t, err)
	_, err = s.OptionalInt("f")
	assert.Error(t, err)
}

func TestActionsFor(t *testing.T) {
	actions := ActionsFor("osm", []ActionDef{
		{Rel: "delete", Pattern: "/api/v1/layers/%s", Method: "DELETE", Title: "Delete layer"},
	})
	require.Len(t, actions, 1)
	assert.Equal(t, `</api/v1/layers/osm>; rel="delete"; method="DELETE"; title="Delete layer"`, actions[0].LinkHeader())
}

func TestParseLinkHeader(t *testing.T) {
	rel, href := parseLinkHeader(`</api/v1/layers>; rel="collection"`)
	assert.Equal(t, "collection", rel)
	assert.Equal(t, "/api/v1/layers", href)
}
