package uri

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveAbsoluteRefUnchanged(t *testing.T) {
	got := Resolve("http://example.com/a/b.xsd", "https://other.org/c.xml")
	assert.Equal(t, "https://other.org/c.xml", got)
}

func TestResolveRelativeToFile(t *testing.T) {
	got := Resolve("http://example.com/a/b/schema.xsd", "linkbase_lab.xml")
	assert.Equal(t, "http://example.com/a/b/linkbase_lab.xml", got)
}

func TestResolveRelativeToDirectory(t *testing.T) {
	// No extension in the last segment: base is a directory.
	got := Resolve("http://example.com/a/b", "file.xml")
	assert.Equal(t, "http://example.com/a/b/file.xml", got)
}

func TestResolveParentTraversal(t *testing.T) {
	got := Resolve("http://example.com/a/b/c/d/e/f/g", "../../file.xml")
	assert.Equal(t, "http://example.com/a/b/c/d/e/file.xml", got)
}

func TestResolveLeadingSlashAndDot(t *testing.T) {
	assert.Equal(t, "http://abc.org/a/lab.xml", Resolve("http://abc.org/a/b.xsd", "/lab.xml"))
	assert.Equal(t, "http://abc.org/a/lab.xml", Resolve("http://abc.org/a/b.xsd", "./lab.xml"))
}

func TestResolveLocalPath(t *testing.T) {
	got := Resolve("/cache/xbrl.sec.gov/dei/2021/dei-2021.xsd", "../elts/dei-lab.xml")
	assert.Equal(t, "/cache/xbrl.sec.gov/dei/elts/dei-lab.xml", got)
}

func TestResolveChained(t *testing.T) {
	// Re-resolution through a chain equals direct computation.
	step := Resolve("http://example.com/a/b/c/d/e/f/g", "../sub/x.xsd")
	got := Resolve(step, "../../file.xml")
	assert.Equal(t, "http://example.com/a/b/c/d/e/file.xml", got)
}

func TestEqualProtocolTolerance(t *testing.T) {
	assert.True(t, Equal("http://abc.de", "https://abc.de"))
}

func TestEqualSeparatorStyle(t *testing.T) {
	assert.True(t, Equal("./abc.de/2020", `abc.de\2020`))
	assert.False(t, Equal("/abc.de/2020", "/abc/2020"))
}

func TestEqualSymmetry(t *testing.T) {
	pairs := [][2]string{
		{"http://abc.de/x", "https://abc.de/x"},
		{"http://abc.de/x", "http://abc.de/y"},
		{"/a/b/c.xsd", "a\\b\\c.xsd"},
	}
	for _, p := range pairs {
		assert.Equal(t, Equal(p[0], p[1]), Equal(p[1], p[0]))
	}
}

func TestClassify(t *testing.T) {
	assert.True(t, Classify("https://xbrl.sec.gov/dei/2021/dei-2021.xsd").IsRemote())
	assert.False(t, Classify("/tmp/cache/dei-2021.xsd").IsRemote())
	assert.False(t, Classify("aapl-20200926.xsd").IsRemote())
}
