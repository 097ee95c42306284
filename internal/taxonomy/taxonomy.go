// Package taxonomy loads XBRL taxonomy schemas: the concept declarations, the
// transitive import graph, and the linkbases each schema references. Imports
// form a DAG shared across filings (thousands of filings import the same
// us-gaap release), so parsing is memoized per resolution Session and shared
// by reference, never duplicated.
package taxonomy

import (
	"context"
	"errors"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/xbrl-cli/internal/cache"
	"github.com/sells-group/xbrl-cli/internal/linkbase"
	"github.com/sells-group/xbrl-cli/internal/uri"
	"github.com/sells-group/xbrl-cli/internal/xmlparse"
)

// Schema-side namespace URIs.
const (
	XsdNS   = "http://www.w3.org/2001/XMLSchema"
	XbrliNS = "http://www.xbrl.org/2003/instance"
)

// ErrNotFound indicates a schema file absent at its resolved location, or a
// namespace resolvable through neither the import graph nor the well-known
// registry. Never swallowed: a missing schema invalidates the concept graph
// built on it.
var ErrNotFound = errors.New("taxonomy not found")

// Concept is a reportable term declared by a schema element.
type Concept struct {
	ID             string
	SchemaLocation string
	Name           string

	SubstitutionGroup string
	Type              string
	Abstract          bool
	Nillable          bool
	PeriodType        string
	Balance           string

	// Labels is populated when a label linkbase of this or an importing
	// taxonomy is processed.
	Labels []linkbase.Label
}

// ExtendedLinkRole is a named grouping (e.g. "Consolidated Balance Sheet")
// tying together the presentation, calculation, and definition links that
// share its role URI across linkbase files.
type ExtendedLinkRole struct {
	ID         string
	URI        string
	Definition string

	DefinitionLink   *linkbase.ExtendedLink
	PresentationLink *linkbase.ExtendedLink
	CalculationLink  *linkbase.ExtendedLink
}

// Schema is one parsed taxonomy schema document plus everything it
// transitively imports.
type Schema struct {
	// Location is the remote URL when the schema had a remote origin,
	// otherwise its local path.
	Location  string
	Namespace string

	// Imports are shared by reference across the session; two root schemas
	// importing the same base taxonomy point at one Schema instance.
	Imports []*Schema

	LinkRoles []*ExtendedLinkRole

	LabelLinkbases        []*linkbase.Linkbase
	DefinitionLinkbases   []*linkbase.Linkbase
	CalculationLinkbases  []*linkbase.Linkbase
	PresentationLinkbases []*linkbase.Linkbase

	// Concepts indexes by element id (how linkbases reference concepts);
	// nameToID adds the name index (how instance facts reference them).
	Concepts map[string]*Concept
	nameToID map[string]string
}

// ConceptByName looks up a concept by local name in this schema only.
func (s *Schema) ConceptByName(name string) (*Concept, bool) {
	id, ok := s.nameToID[name]
	if !ok {
		return nil, false
	}
	c, ok := s.Concepts[id]
	return c, ok
}

// GetTaxonomy returns the schema matching the identifier (a namespace or a
// schema location), searching self first, then depth-first through imports.
// Returns nil when no reachable schema matches.
func (s *Schema) GetTaxonomy(identifier string) *Schema {
	if uri.Equal(s.Namespace, identifier) || uri.Equal(s.Location, identifier) {
		return s
	}
	for _, imp := range s.Imports {
		if found := imp.GetTaxonomy(identifier); found != nil {
			return found
		}
	}
	return nil
}

// SchemaLocations returns this schema's location plus the deduplicated
// locations of every transitive import: the manifest of all schema files
// that contributed to the graph.
func (s *Schema) SchemaLocations() []string {
	seen := map[string]bool{}
	var out []string
	var walk func(*Schema)
	walk = func(sc *Schema) {
		key := uri.Normalize(sc.Location)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, sc.Location)
		for _, imp := range sc.Imports {
			walk(imp)
		}
	}
	walk(s)
	return out
}

// SharedCache is a read-only, pre-warmed cross-session cache of fully
// resolved common taxonomies. Safe to share because entries are finalized
// (label propagation included) before insertion and never mutated after.
type SharedCache = lru.Cache[string, *Schema]

// NewSharedCache creates a shared taxonomy cache holding up to size entries.
func NewSharedCache(size int) (*SharedCache, error) {
	c, err := lru.New[string, *Schema](size)
	if err != nil {
		return nil, eris.Wrap(err, "taxonomy: shared cache")
	}
	return c, nil
}

// Session is one resolution session: a memoization map keyed by absolute
// schema location ensuring each schema is parsed exactly once and shared by
// reference. Sessions are single-threaded; run concurrent parses on
// independent sessions.
type Session struct {
	ID       string
	cache    *cache.FileCache
	registry *Registry
	schemas  map[string]*Schema
	shared   *SharedCache
}

// Option configures a Session.
type Option func(*Session)

// WithRegistry overrides the well-known namespace registry.
func WithRegistry(r *Registry) Option {
	return func(s *Session) { s.registry = r }
}

// WithSharedCache attaches a pre-warmed cross-session cache of finalized
// common taxonomies.
func WithSharedCache(c *SharedCache) Option {
	return func(s *Session) { s.shared = c }
}

// NewSession creates a resolution session downloading through c.
func NewSession(c *cache.FileCache, opts ...Option) *Session {
	s := &Session{
		ID:       uuid.New().String(),
		cache:    c,
		registry: DefaultRegistry(),
		schemas:  map[string]*Schema{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the session's namespace registry.
func (s *Session) Registry() *Registry { return s.registry }

// ParseURL parses a remote taxonomy schema, downloading through the cache.
func (s *Session) ParseURL(ctx context.Context, schemaURL string) (*Schema, error) {
	if !uri.HasScheme(schemaURL) {
		return nil, eris.Errorf("taxonomy: ParseURL wants a url, got path %s", schemaURL)
	}
	key := uri.Normalize(schemaURL)
	if sc, ok := s.schemas[key]; ok {
		return sc, nil
	}
	if s.shared != nil {
		if sc, ok := s.shared.Get(key); ok {
			s.schemas[key] = sc
			return sc, nil
		}
	}

	path, err := s.cache.CacheFile(ctx, schemaURL)
	if err != nil {
		return nil, eris.Wrapf(ErrNotFound, "fetch %s: %v", schemaURL, err)
	}
	sc, err := s.parse(ctx, path, schemaURL)
	if err != nil {
		return nil, err
	}
	if s.shared != nil && s.registry.KnownURL(schemaURL) {
		s.shared.Add(key, sc)
	}
	return sc, nil
}

// ParseFile parses a local taxonomy schema. Relative imports and linkbase
// references resolve against the path.
func (s *Session) ParseFile(ctx context.Context, path string) (*Schema, error) {
	if uri.HasScheme(path) {
		return nil, eris.Errorf("taxonomy: ParseFile wants a local path, got url %s", path)
	}
	key := uri.Normalize(path)
	if sc, ok := s.schemas[key]; ok {
		return sc, nil
	}
	return s.parse(ctx, path, "")
}

// ParseCommon resolves a namespace through the well-known registry and parses
// its canonical schema. Used when an instance document references a namespace
// its extension schema never imports.
func (s *Session) ParseCommon(ctx context.Context, namespace string) (*Schema, error) {
	schemaURL, ok := s.registry.Lookup(namespace)
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "no known schema for namespace %s", namespace)
	}
	return s.ParseURL(ctx, schemaURL)
}

// parse loads one schema document. remoteOrigin is the schema's URL when it
// was fetched remotely ("" for purely local parses); it decides whether
// relative imports and linkbase refs resolve to URLs or paths.
func (s *Session) parse(ctx context.Context, path, remoteOrigin string) (_ *Schema, retErr error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(ErrNotFound, "no schema at %s", path)
	}
	doc, err := xmlparse.ParseFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "taxonomy: parse %s", path)
	}
	root := doc.Root

	location := remoteOrigin
	if location == "" {
		location = path
	}
	sc := &Schema{
		Location:  location,
		Namespace: root.Attr("", "targetNamespace"),
		Concepts:  map[string]*Concept{},
		nameToID:  map[string]string{},
	}
	// Memoize before descending into imports so cyclic or repeated imports
	// resolve to this same instance instead of re-parsing. On failure the
	// entry must come back out, or a retry would get the half-built schema
	// with no error.
	key := uri.Normalize(location)
	s.schemas[key] = sc
	defer func() {
		if retErr != nil {
			delete(s.schemas, key)
		}
	}()

	log := zap.L().With(zap.String("session", s.ID), zap.String("schema", location))

	if err := s.parseImports(ctx, root, sc, path, remoteOrigin); err != nil {
		return nil, err
	}
	parseLinkRoles(root, sc)
	parseConcepts(root, sc, location)
	if err := s.parseLinkbaseRefs(ctx, root, sc, path, remoteOrigin, log); err != nil {
		return nil, err
	}
	linkELRs(sc)
	if err := s.propagateLabels(ctx, sc, log); err != nil {
		return nil, err
	}

	log.Debug("parsed taxonomy schema",
		zap.String("namespace", sc.Namespace),
		zap.Int("concepts", len(sc.Concepts)),
		zap.Int("imports", len(sc.Imports)),
	)
	return sc, nil
}

func (s *Session) parseImports(ctx context.Context, root *xmlparse.Node, sc *Schema, path, remoteOrigin string) error {
	seen := map[string]bool{}
	for _, imp := range root.FindAll(XsdNS, "import") {
		importRef := imp.Attr("", "schemaLocation")
		if importRef == "" || seen[uri.Normalize(importRef)] {
			continue
		}
		seen[uri.Normalize(importRef)] = true

		var imported *Schema
		var err error
		switch {
		case uri.HasScheme(importRef):
			imported, err = s.ParseURL(ctx, importRef)
		case remoteOrigin != "":
			imported, err = s.ParseURL(ctx, uri.Resolve(remoteOrigin, importRef))
		default:
			imported, err = s.ParseFile(ctx, uri.Resolve(path, importRef))
		}
		if err != nil {
			return eris.Wrapf(err, "import %s", importRef)
		}
		sc.Imports = append(sc.Imports, imported)
	}
	return nil
}

func parseLinkRoles(root *xmlparse.Node, sc *Schema) {
	for _, rt := range root.Descendants(linkbase.LinkNS, "roleType") {
		def := rt.Find(linkbase.LinkNS, "definition")
		if def == nil || def.Text() == "" {
			continue
		}
		sc.LinkRoles = append(sc.LinkRoles, &ExtendedLinkRole{
			ID:         rt.Attr("", "id"),
			URI:        rt.Attr("", "roleURI"),
			Definition: def.Text(),
		})
	}
}

func parseConcepts(root *xmlparse.Node, sc *Schema, location string) {
	for _, el := range root.FindAll(XsdNS, "element") {
		id, hasID := el.LookupAttr("", "id")
		name, hasName := el.LookupAttr("", "name")
		// An element without an id cannot be referenced by a linkbase;
		// ignore it.
		if !hasID || !hasName {
			continue
		}

		c := &Concept{
			ID:             id,
			SchemaLocation: location,
			Name:           name,
			Type:           el.Attr("", "type"),
			Nillable:       el.Attr("", "nillable") == "true",
			Abstract:       el.Attr("", "abstract") == "true",
			PeriodType:     el.Attr(XbrliNS, "periodType"),
			Balance:        el.Attr(XbrliNS, "balance"),
		}
		if sg, ok := el.LookupAttr("", "substitutionGroup"); ok {
			// Strip the prefix: xbrli:item -> item.
			parts := strings.Split(sg, ":")
			c.SubstitutionGroup = parts[len(parts)-1]
		}

		sc.Concepts[c.ID] = c
		sc.nameToID[c.Name] = c.ID
	}
}

func (s *Session) parseLinkbaseRefs(ctx context.Context, root *xmlparse.Node, sc *Schema, path, remoteOrigin string, log *zap.Logger) error {
	for _, ref := range root.Descendants(linkbase.LinkNS, "linkbaseRef") {
		href, ok := ref.LookupAttr(linkbase.XLinkNS, "href")
		if !ok {
			return eris.Wrap(linkbase.ErrMalformed, "linkbaseRef without xlink:href")
		}

		typ, known := linkbase.Type(0), false
		if role, hasRole := ref.LookupAttr(linkbase.XLinkNS, "role"); hasRole {
			typ, known = linkbase.TypeFromRole(role)
		}
		if !known {
			typ, known = linkbase.GuessTypeFromHref(href)
		}
		if !known {
			log.Warn("cannot determine linkbase type, skipping", zap.String("href", href))
			continue
		}

		var lb *linkbase.Linkbase
		var err error
		switch {
		case uri.HasScheme(href):
			lb, err = linkbase.ParseURL(ctx, href, typ, s.cache)
		case remoteOrigin != "":
			lb, err = linkbase.ParseURL(ctx, uri.Resolve(remoteOrigin, href), typ, s.cache)
		default:
			lb, err = linkbase.ParseFile(uri.Resolve(path, href), typ, "")
		}
		if err != nil {
			return eris.Wrapf(err, "linkbaseRef %s", href)
		}

		switch typ {
		case linkbase.TypeDefinition:
			sc.DefinitionLinkbases = append(sc.DefinitionLinkbases, lb)
		case linkbase.TypeCalculation:
			sc.CalculationLinkbases = append(sc.CalculationLinkbases, lb)
		case linkbase.TypePresentation:
			sc.PresentationLinkbases = append(sc.PresentationLinkbases, lb)
		case linkbase.TypeLabel:
			sc.LabelLinkbases = append(sc.LabelLinkbases, lb)
		}
	}
	return nil
}

// linkELRs attaches each declared link role to the first extended link whose
// ELR id fragment matches the role's id, per linkbase type.
func linkELRs(sc *Schema) {
	match := func(linkbases []*linkbase.Linkbase, roleID string) *linkbase.ExtendedLink {
		for _, lb := range linkbases {
			for _, link := range lb.ExtendedLinks {
				if fragment(link.ELRID) == roleID {
					return link
				}
			}
		}
		return nil
	}
	for _, elr := range sc.LinkRoles {
		elr.DefinitionLink = match(sc.DefinitionLinkbases, elr.ID)
		elr.PresentationLink = match(sc.PresentationLinkbases, elr.ID)
		elr.CalculationLink = match(sc.CalculationLinkbases, elr.ID)
	}
}

func fragment(href string) string {
	if i := strings.Index(href, "#"); i >= 0 {
		return href[i+1:]
	}
	return ""
}

// propagateLabels walks every label linkbase and copies the label resources
// reachable under each root locator onto the referenced concept. The concept
// may live in this schema, in an import, or in a well-known taxonomy that
// was never explicitly imported (parsed and appended on demand).
func (s *Session) propagateLabels(ctx context.Context, sc *Schema, log *zap.Logger) error {
	for _, lb := range sc.LabelLinkbases {
		for _, link := range lb.ExtendedLinks {
			for _, loc := range link.RootLocators {
				href := loc.Href
				if unescaped, err := url.PathUnescape(href); err == nil {
					href = unescaped
				}
				schemaLoc, conceptID, found := strings.Cut(href, "#")
				if !found {
					continue
				}

				owner := sc.GetTaxonomy(schemaLoc)
				if owner == nil {
					if !s.registry.KnownURL(schemaLoc) {
						continue
					}
					parsed, err := s.ParseURL(ctx, schemaLoc)
					if err != nil {
						return eris.Wrapf(err, "label locator schema %s", schemaLoc)
					}
					sc.Imports = append(sc.Imports, parsed)
					owner = parsed
				}

				concept, ok := owner.Concepts[conceptID]
				if !ok {
					log.Debug("label locator references unknown concept",
						zap.String("concept_id", conceptID))
					continue
				}

				// An extension taxonomy's labels override the base set.
				concept.Labels = nil
				for _, arc := range loc.Children {
					if arc.Kind != linkbase.TypeLabel {
						continue
					}
					concept.Labels = append(concept.Labels, arc.Labels...)
				}
			}
		}
	}
	return nil
}
