package taxonomy

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/xbrl-cli/internal/uri"
)

// wellKnown maps taxonomy namespaces to their canonical schema URLs. Filings
// regularly use these namespaces without importing the schema, so the parser
// falls back to this table when a namespace is not reachable through the
// explicit import graph. Extend per year as taxonomy bodies publish releases.
var wellKnown = map[string]string{
	"http://fasb.org/srt/2018-01-31": "http://xbrl.fasb.org/srt/2018/elts/srt-2018-01-31.xsd",
	"http://fasb.org/srt/2019-01-31": "http://xbrl.fasb.org/srt/2019/elts/srt-2019-01-31.xsd",
	"http://fasb.org/srt/2020-01-31": "http://xbrl.fasb.org/srt/2020/elts/srt-2020-01-31.xsd",
	"http://fasb.org/srt/2021-01-31": "http://xbrl.fasb.org/srt/2021/elts/srt-2021-01-31.xsd",

	"http://xbrl.sec.gov/stpr/2018-01-31": "https://xbrl.sec.gov/stpr/2018/stpr-2018-01-31.xsd",

	"http://xbrl.sec.gov/country/2017-01-31": "https://xbrl.sec.gov/country/2017/country-2017-01-31.xsd",
	"http://xbrl.sec.gov/country/2020-01-31": "https://xbrl.sec.gov/country/2020/country-2020-01-31.xsd",
	"http://xbrl.sec.gov/country/2021":       "https://xbrl.sec.gov/country/2021/country-2021.xsd",

	"http://xbrl.us/invest/2009-01-31":      "https://taxonomies.xbrl.us/us-gaap/2009/non-gaap/invest-2009-01-31.xsd",
	"http://xbrl.sec.gov/invest/2011-01-31": "https://xbrl.sec.gov/invest/2011/invest-2011-01-31.xsd",
	"http://xbrl.sec.gov/invest/2012-01-31": "https://xbrl.sec.gov/invest/2012/invest-2012-01-31.xsd",
	"http://xbrl.sec.gov/invest/2013-01-31": "https://xbrl.sec.gov/invest/2013/invest-2013-01-31.xsd",

	"http://xbrl.sec.gov/dei/2011-01-31": "https://xbrl.sec.gov/dei/2011/dei-2011-01-31.xsd",
	"http://xbrl.sec.gov/dei/2012-01-31": "https://xbrl.sec.gov/dei/2012/dei-2012-01-31.xsd",
	"http://xbrl.sec.gov/dei/2013-01-31": "https://xbrl.sec.gov/dei/2013/dei-2013-01-31.xsd",
	"http://xbrl.sec.gov/dei/2014-01-31": "https://xbrl.sec.gov/dei/2014/dei-2014-01-31.xsd",
	"http://xbrl.sec.gov/dei/2018-01-31": "https://xbrl.sec.gov/dei/2018/dei-2018-01-31.xsd",
	"http://xbrl.sec.gov/dei/2019-01-31": "https://xbrl.sec.gov/dei/2019/dei-2019-01-31.xsd",
	"http://xbrl.sec.gov/dei/2020-01-31": "https://xbrl.sec.gov/dei/2020/dei-2020-01-31.xsd",
	"http://xbrl.sec.gov/dei/2021":       "https://xbrl.sec.gov/dei/2021/dei-2021.xsd",

	"http://fasb.org/us-gaap/2011-01-31": "http://xbrl.fasb.org/us-gaap/2011/elts/us-gaap-2011-01-31.xsd",
	"http://fasb.org/us-gaap/2012-01-31": "http://xbrl.fasb.org/us-gaap/2012/elts/us-gaap-2012-01-31.xsd",
	"http://fasb.org/us-gaap/2013-01-31": "http://xbrl.fasb.org/us-gaap/2013/elts/us-gaap-2013-01-31.xsd",
	"http://fasb.org/us-gaap/2014-01-31": "http://xbrl.fasb.org/us-gaap/2014/elts/us-gaap-2014-01-31.xsd",
	"http://fasb.org/us-gaap/2015-01-31": "http://xbrl.fasb.org/us-gaap/2015/elts/us-gaap-2015-01-31.xsd",
	"http://fasb.org/us-gaap/2016-01-31": "http://xbrl.fasb.org/us-gaap/2016/elts/us-gaap-2016-01-31.xsd",
	"http://fasb.org/us-gaap/2017-01-31": "http://xbrl.fasb.org/us-gaap/2017/elts/us-gaap-2017-01-31.xsd",
	"http://fasb.org/us-gaap/2018-01-31": "http://xbrl.fasb.org/us-gaap/2018/elts/us-gaap-2018-01-31.xsd",
	"http://fasb.org/us-gaap/2019-01-31": "http://xbrl.fasb.org/us-gaap/2019/elts/us-gaap-2019-01-31.xsd",
	"http://fasb.org/us-gaap/2020-01-31": "http://xbrl.fasb.org/us-gaap/2020/elts/us-gaap-2020-01-31.xsd",
	"http://fasb.org/us-gaap/2021-01-31": "http://xbrl.fasb.org/us-gaap/2021/elts/us-gaap-2021-01-31.xsd",
}

// Registry maps well-known taxonomy namespaces to canonical schema URLs.
// Read-heavy and append-only; scope one Registry per resolution session
// unless it is never mutated after construction.
type Registry struct {
	byNamespace map[string]string
}

// DefaultRegistry returns a registry seeded with the built-in table.
func DefaultRegistry() *Registry {
	m := make(map[string]string, len(wellKnown))
	for ns, url := range wellKnown {
		m[ns] = url
	}
	return &Registry{byNamespace: m}
}

// Lookup returns the canonical schema URL for a namespace.
func (r *Registry) Lookup(namespace string) (string, bool) {
	url, ok := r.byNamespace[namespace]
	return url, ok
}

// Register adds or overrides a namespace mapping.
func (r *Registry) Register(namespace, schemaURL string) {
	r.byNamespace[namespace] = schemaURL
}

// Namespaces returns every registered namespace in sorted order.
func (r *Registry) Namespaces() []string {
	out := make([]string, 0, len(r.byNamespace))
	for ns := range r.byNamespace {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// KnownURL reports whether loc matches any canonical schema URL in the
// registry, using logical URI equality.
func (r *Registry) KnownURL(loc string) bool {
	for _, url := range r.byNamespace {
		if uri.Equal(url, loc) {
			return true
		}
	}
	return false
}

// LoadFile merges namespace -> schema-URL pairs from a YAML file, so newly
// published taxonomy years can be added without a rebuild.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "registry: read %s", path)
	}
	var entries map[string]string
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return eris.Wrapf(err, "registry: parse %s", path)
	}
	for ns, url := range entries {
		r.byNamespace[ns] = url
	}
	return nil
}
