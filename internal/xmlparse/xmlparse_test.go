package xmlparse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `<?xml version="1.0"?>
<root xmlns="http://example.com/default" xmlns:a="http://example.com/a">
  <a:child a:attr="v1" plain="v2">hello</a:child>
  <inner xmlns:b="http://example.com/b">
    <b:leaf>deep</b:leaf>
  </inner>
</root>`

func TestParseTree(t *testing.T) {
	doc, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.NotNil(t, doc.Root)
	assert.Equal(t, "root", doc.Root.Name.Local)
	assert.Equal(t, "http://example.com/default", doc.Root.Name.Space)
	assert.Len(t, doc.Root.Children, 2)
}

func TestAttrLookupByNamespace(t *testing.T) {
	doc, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	child := doc.Root.Find("http://example.com/a", "child")
	require.NotNil(t, child)
	assert.Equal(t, "v1", child.Attr("http://example.com/a", "attr"))
	assert.Equal(t, "v2", child.Attr("", "plain"))
	assert.Equal(t, "", child.Attr("", "missing"))
	assert.Equal(t, "hello", child.Text())
}

func TestNamespaceMapScoping(t *testing.T) {
	doc, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	leaf := doc.Root.Descendants("http://example.com/b", "leaf")
	require.Len(t, leaf, 1)

	ns, ok := leaf[0].Namespace("b")
	require.True(t, ok)
	assert.Equal(t, "http://example.com/b", ns)

	// The b prefix is declared on <inner>, not at the root.
	_, ok = doc.Root.Namespace("b")
	assert.False(t, ok)

	m := leaf[0].NamespaceMap()
	assert.Equal(t, "http://example.com/a", m["a"])
	assert.Equal(t, "http://example.com/default", m[""])
}

func TestDescendants(t *testing.T) {
	doc, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Len(t, doc.Root.Descendants("http://example.com/b", "leaf"), 1)
	assert.Nil(t, doc.Root.Find("http://example.com/b", "leaf"))
}

func TestEmptyDocument(t *testing.T) {
	_, err := Parse(strings.NewReader("  "))
	assert.Error(t, err)
}

func TestDeepText(t *testing.T) {
	doc, err := Parse(strings.NewReader(`<v>1,23<b>4,5</b>67</v>`))
	require.NoError(t, err)
	assert.Equal(t, "1,234,567", doc.Root.DeepText())
	assert.Equal(t, "1,23", doc.Root.Text())
}
