// Package linkbase parses XBRL linkbase files into forests of concept
// relationships. A linkbase holds extended links; each extended link holds
// locators (references to concepts in schema files) connected by typed arcs
// (definition, calculation, presentation) or fanning out to label resources.
package linkbase

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/xbrl-cli/internal/cache"
	"github.com/sells-group/xbrl-cli/internal/uri"
	"github.com/sells-group/xbrl-cli/internal/xmlparse"
)

// Namespace URIs used across linkbase documents.
const (
	LinkNS   = "http://www.xbrl.org/2003/linkbase"
	XLinkNS  = "http://www.w3.org/1999/xlink"
	XbrldtNS = "http://xbrl.org/2005/xbrldt"
	XMLNS    = "http://www.w3.org/XML/1998/namespace"
)

var (
	// ErrNotFound indicates the linkbase file is absent at its resolved location.
	ErrNotFound = errors.New("linkbase not found")
	// ErrMalformed indicates a structurally broken linkbase (missing required
	// xlink attributes). These are failed fast, not skipped.
	ErrMalformed = errors.New("malformed linkbase")
)

// Type identifies the kind of linkbase.
type Type int

const (
	TypeDefinition Type = iota + 1
	TypeCalculation
	TypePresentation
	TypeLabel
)

// String returns the short name for the linkbase type.
func (t Type) String() string {
	switch t {
	case TypeDefinition:
		return "definition"
	case TypeCalculation:
		return "calculation"
	case TypePresentation:
		return "presentation"
	case TypeLabel:
		return "label"
	}
	return "unknown"
}

// linkTag returns the extended-link element name for the type.
func (t Type) linkTag() string {
	switch t {
	case TypeDefinition:
		return "definitionLink"
	case TypeCalculation:
		return "calculationLink"
	case TypePresentation:
		return "presentationLink"
	default:
		return "labelLink"
	}
}

// arcTag returns the arc element name for the type.
func (t Type) arcTag() string {
	switch t {
	case TypeDefinition:
		return "definitionArc"
	case TypeCalculation:
		return "calculationArc"
	case TypePresentation:
		return "presentationArc"
	default:
		return "labelArc"
	}
}

// TypeFromRole maps a linkbaseRef xlink:role to a Type.
func TypeFromRole(role string) (Type, bool) {
	switch role {
	case "http://www.xbrl.org/2003/role/definitionLinkbaseRef":
		return TypeDefinition, true
	case "http://www.xbrl.org/2003/role/calculationLinkbaseRef":
		return TypeCalculation, true
	case "http://www.xbrl.org/2003/role/presentationLinkbaseRef":
		return TypePresentation, true
	case "http://www.xbrl.org/2003/role/labelLinkbaseRef":
		return TypeLabel, true
	}
	return 0, false
}

// GuessTypeFromHref guesses the linkbase type from conventional filename
// substrings. Last-resort fallback for linkbaseRefs without a role attribute.
func GuessTypeFromHref(href string) (Type, bool) {
	switch {
	case strings.Contains(href, "_def"):
		return TypeDefinition, true
	case strings.Contains(href, "_cal"):
		return TypeCalculation, true
	case strings.Contains(href, "_pre"):
		return TypePresentation, true
	case strings.Contains(href, "_lab"):
		return TypeLabel, true
	}
	return 0, false
}

// Label is one text resource attached to a concept: a role (standard, terse,
// documentation, ...), a language tag, and the text itself.
type Label struct {
	Name     string
	Role     string
	Language string
	Text     string
}

// Arc is a directed, ordered edge out of a locator. It is a closed tagged
// variant: Kind selects which of the type-specific fields are meaningful.
// Label arcs carry Labels and a nil Target; all other kinds carry a Target.
type Arc struct {
	Kind    Type
	Arcrole string
	// Order sequences siblings under one parent; nil when the document
	// omits the attribute.
	Order *float64

	Target *Locator

	// Calculation: signed roll-up weight.
	Weight float64

	// Presentation.
	Priority       int
	PreferredLabel string

	// Definition (dimensional semantics).
	Closed         *bool
	ContextElement string

	// Label fan-out.
	Labels []Label
}

// Locator references one concept by href fragment and owns its outgoing arcs.
type Locator struct {
	Href      string
	Name      string
	ConceptID string

	// Parents backtracks incoming arcs purely for root detection.
	Parents []*Locator
	// Children holds the outgoing arcs in document order.
	Children []*Arc
}

// ExtendedLink is one link block: a role URI, the ELR id it resolves to in
// the schema (empty for label links), and the root locators of its forest.
type ExtendedLink struct {
	Role         string
	ELRID        string
	RootLocators []*Locator
}

// Linkbase is the parsed result of one linkbase file.
type Linkbase struct {
	Type          Type
	ExtendedLinks []*ExtendedLink
}

// ParseURL downloads a remote linkbase through the cache and parses it.
// Relative locator hrefs resolve against the URL.
func ParseURL(ctx context.Context, url string, typ Type, c *cache.FileCache) (*Linkbase, error) {
	path, err := c.CacheFile(ctx, url)
	if err != nil {
		return nil, eris.Wrapf(ErrNotFound, "fetch %s: %v", url, err)
	}
	return ParseFile(path, typ, url)
}

// ParseFile parses a local linkbase file. base is the location used to
// resolve relative locator hrefs; pass the original URL when the file came
// out of the cache, or the path itself for purely local documents.
func ParseFile(path string, typ Type, base string) (*Linkbase, error) {
	if uri.HasScheme(path) {
		return nil, eris.Errorf("linkbase: ParseFile wants a local path, got url %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(ErrNotFound, "no linkbase at %s", path)
	}
	if base == "" {
		base = path
	}

	doc, err := xmlparse.ParseFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "linkbase: parse %s", path)
	}
	return parse(doc, typ, base)
}

func parse(doc *xmlparse.Document, typ Type, base string) (*Linkbase, error) {
	root := doc.Root

	// Role refs connect an extended link's role URI to the ELR declared in
	// the schema file.
	roleRefs := map[string]string{}
	for _, rr := range root.FindAll(LinkNS, "roleRef") {
		roleURI, ok := rr.LookupAttr("", "roleURI")
		if !ok {
			return nil, eris.Wrap(ErrMalformed, "roleRef without roleURI")
		}
		href, ok := rr.LookupAttr(XLinkNS, "href")
		if !ok {
			return nil, eris.Wrap(ErrMalformed, "roleRef without xlink:href")
		}
		roleRefs[roleURI] = href
	}

	var links []*ExtendedLink
	for _, linkEl := range root.FindAll(LinkNS, typ.linkTag()) {
		link, err := parseExtendedLink(linkEl, typ, base)
		if err != nil {
			return nil, err
		}

		// Retain only links whose role was declared; filers emit empty
		// placeholder links we are not interested in. Label linkbases
		// routinely omit role declarations, so they are exempt.
		if elrID, ok := roleRefs[link.Role]; ok {
			link.ELRID = elrID
			links = append(links, link)
		} else if typ == TypeLabel {
			links = append(links, link)
		}
	}

	return &Linkbase{Type: typ, ExtendedLinks: links}, nil
}

func parseExtendedLink(linkEl *xmlparse.Node, typ Type, base string) (*ExtendedLink, error) {
	role := linkEl.Attr(XLinkNS, "role")

	// Index locators by their xlink:label for O(1) arc wiring. Filers may
	// repeat a loc under one label; the first occurrence wins and later
	// ones collapse into it.
	locators := map[string]*Locator{}
	var locOrder []string
	for _, locEl := range linkEl.FindAll(LinkNS, "loc") {
		name, ok := locEl.LookupAttr(XLinkNS, "label")
		if !ok {
			return nil, eris.Wrap(ErrMalformed, "loc without xlink:label")
		}
		if _, dup := locators[name]; dup {
			continue
		}
		href, ok := locEl.LookupAttr(XLinkNS, "href")
		if !ok {
			return nil, eris.Wrapf(ErrMalformed, "loc %s without xlink:href", name)
		}
		if !uri.HasScheme(href) {
			href = uri.Resolve(base, href)
		}
		frag := strings.SplitN(href, "#", 2)
		if len(frag) != 2 || frag[1] == "" {
			return nil, eris.Wrapf(ErrMalformed, "loc %s href %q has no concept fragment", name, href)
		}
		locators[name] = &Locator{Href: href, Name: name, ConceptID: frag[1]}
		locOrder = append(locOrder, name)
	}

	// For label links, pre-index the label resources: one label name can
	// carry several Label objects (different roles and languages).
	labels := map[string][]Label{}
	if typ == TypeLabel {
		for _, labEl := range linkEl.FindAll(LinkNS, "label") {
			name, ok := labEl.LookupAttr(XLinkNS, "label")
			if !ok {
				return nil, eris.Wrap(ErrMalformed, "label without xlink:label")
			}
			labels[name] = append(labels[name], Label{
				Name:     name,
				Role:     labEl.Attr(XLinkNS, "role"),
				Language: labEl.Attr(XMLNS, "lang"),
				Text:     labEl.Text(),
			})
		}
	}

	for _, arcEl := range linkEl.FindAll(LinkNS, typ.arcTag()) {
		// Prohibited arcs implement override semantics: an importing
		// taxonomy cancels a base relationship. Never materialized.
		if arcEl.Attr("", "use") == "prohibited" {
			continue
		}

		from, ok := arcEl.LookupAttr(XLinkNS, "from")
		if !ok {
			return nil, eris.Wrap(ErrMalformed, "arc without xlink:from")
		}
		to, ok := arcEl.LookupAttr(XLinkNS, "to")
		if !ok {
			return nil, eris.Wrap(ErrMalformed, "arc without xlink:to")
		}
		source, ok := locators[from]
		if !ok {
			return nil, eris.Wrapf(ErrMalformed, "arc from unknown locator %q", from)
		}

		arc := &Arc{
			Kind:    typ,
			Arcrole: arcEl.Attr(XLinkNS, "arcrole"),
		}
		if v, ok := arcEl.LookupAttr("", "order"); ok {
			order, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, eris.Wrapf(ErrMalformed, "arc order %q is not numeric", v)
			}
			arc.Order = &order
		}

		switch typ {
		case TypeCalculation:
			if v, ok := arcEl.LookupAttr("", "weight"); ok {
				w, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
				if err != nil {
					return nil, eris.Wrapf(ErrMalformed, "arc weight %q is not numeric", v)
				}
				arc.Weight = w
			}
		case TypePresentation:
			if v, ok := arcEl.LookupAttr("", "priority"); ok {
				p, err := strconv.Atoi(strings.TrimSpace(v))
				if err != nil {
					return nil, eris.Wrapf(ErrMalformed, "arc priority %q is not numeric", v)
				}
				arc.Priority = p
			}
			arc.PreferredLabel = arcEl.Attr("", "preferredLabel")
		case TypeDefinition:
			if v, ok := arcEl.LookupAttr(XbrldtNS, "closed"); ok {
				closed := v == "true"
				arc.Closed = &closed
			}
			arc.ContextElement = arcEl.Attr(XbrldtNS, "contextElement")
		}

		if typ == TypeLabel {
			// Label arcs point at label resources, not at other locators.
			labelList, ok := labels[to]
			if !ok {
				return nil, eris.Wrapf(ErrMalformed, "labelArc to unknown label %q", to)
			}
			arc.Labels = labelList
		} else {
			target, ok := locators[to]
			if !ok {
				return nil, eris.Wrapf(ErrMalformed, "arc to unknown locator %q", to)
			}
			arc.Target = target
			target.Parents = append(target.Parents, source)
		}
		source.Children = append(source.Children, arc)
	}

	// Roots are the locators no arc points at, in document order.
	var roots []*Locator
	for _, name := range locOrder {
		if loc := locators[name]; len(loc.Parents) == 0 {
			roots = append(roots, loc)
		}
	}

	return &ExtendedLink{Role: role, RootLocators: roots}, nil
}
