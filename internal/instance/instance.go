// Package instance parses XBRL and inline XBRL (iXBRL) instance documents:
// the filed reports carrying the actual facts. Each document references an
// extension taxonomy schema via link:schemaRef; the taxonomy is resolved
// first and every fact is bound to its concept, context, and unit.
package instance

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/xbrl-cli/internal/cache"
	"github.com/sells-group/xbrl-cli/internal/linkbase"
	"github.com/sells-group/xbrl-cli/internal/taxonomy"
	"github.com/sells-group/xbrl-cli/internal/transform"
	"github.com/sells-group/xbrl-cli/internal/uri"
	"github.com/sells-group/xbrl-cli/internal/xmlparse"
)

// Namespace URIs specific to instance documents.
const (
	XbrldiNS = "http://xbrl.org/2006/xbrldi"
	XsiNS    = "http://www.w3.org/2001/XMLSchema-instance"
	IxNS2013 = "http://www.xbrl.org/2013/inlineXBRL"
	IxNS2008 = "http://www.xbrl.org/2008/inlineXBRL"
)

// ErrParse indicates a structurally unusable instance document (no
// schemaRef, no iXBRL resources block, malformed context dates).
var ErrParse = errors.New("instance parse failed")

// PeriodKind selects the variant of a context period.
type PeriodKind int

const (
	PeriodInstant PeriodKind = iota + 1
	PeriodDuration
	PeriodForever
)

// Period is the reporting period of a context. Kind selects which date
// fields are meaningful: Instant for PeriodInstant, Start and End for
// PeriodDuration, none for PeriodForever.
type Period struct {
	Kind    PeriodKind
	Instant time.Time
	Start   time.Time
	End     time.Time
}

// String renders the period the way xbrl-json expects: the instant date,
// start/end for a duration, empty for forever.
func (p Period) String() string {
	switch p.Kind {
	case PeriodInstant:
		return p.Instant.Format("2006-01-02")
	case PeriodDuration:
		return p.Start.Format("2006-01-02") + "/" + p.End.Format("2006-01-02")
	}
	return ""
}

// ExplicitMember is one dimensional qualifier on a context: a member
// concept on a dimension axis.
type ExplicitMember struct {
	Dimension *taxonomy.Concept
	Member    *taxonomy.Concept
}

// Context identifies who reported a fact and for which period, plus any
// dimensional breakdown.
type Context struct {
	ID       string
	Entity   string
	Period   Period
	Segments []ExplicitMember
}

// UnitKind selects the variant of a unit.
type UnitKind int

const (
	UnitSimple UnitKind = iota + 1
	UnitDivide
)

// Unit is the measurement unit of a numeric fact: a single measure or a
// ratio of two.
type Unit struct {
	ID          string
	Kind        UnitKind
	Measure     string
	Numerator   string
	Denominator string
}

func (u *Unit) String() string {
	if u.Kind == UnitDivide {
		return u.Numerator + "/" + u.Denominator
	}
	return u.Measure
}

// FactKind selects the variant of a fact.
type FactKind int

const (
	FactNumeric FactKind = iota + 1
	FactText
)

// Fact is one reported value bound to a concept and a context. Numeric
// facts additionally carry a unit, a precision, and a parsed value; a nil
// Value on a numeric fact means the filer tagged it as explicitly absent.
type Fact struct {
	Kind    FactKind
	Concept *taxonomy.Concept
	Context *Context
	ID      string

	Value    *float64
	Unit     *Unit
	Decimals *int

	Text string
}

// Instance is a fully parsed instance document.
type Instance struct {
	Location string
	Taxonomy *taxonomy.Schema
	Facts    []*Fact
	Contexts map[string]*Context
	Units    map[string]*Unit
}

// Parser parses instance documents. Each document gets its own taxonomy
// resolution session, so a Parser is safe for concurrent use as long as the
// attached registry is not mutated.
type Parser struct {
	cache       *cache.FileCache
	registry    *taxonomy.Registry
	shared      *taxonomy.SharedCache
	threshold   float64
	sessionOpts []taxonomy.Option
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithRoundingThreshold sets the absolute magnitude above which scaled
// iXBRL values are rounded to whole numbers to absorb floating point noise.
func WithRoundingThreshold(v float64) ParserOption {
	return func(p *Parser) { p.threshold = v }
}

// WithRegistry overrides the well-known namespace registry used when a fact
// references a taxonomy the extension schema never imported.
func WithRegistry(r *taxonomy.Registry) ParserOption {
	return func(p *Parser) { p.registry = r }
}

// WithSharedCache attaches a pre-warmed cross-session taxonomy cache.
func WithSharedCache(c *taxonomy.SharedCache) ParserOption {
	return func(p *Parser) { p.shared = c }
}

// NewParser creates an instance parser downloading through c.
func NewParser(c *cache.FileCache, opts ...ParserOption) *Parser {
	p := &Parser{
		cache:     c,
		registry:  taxonomy.DefaultRegistry(),
		threshold: 1e6,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.sessionOpts = []taxonomy.Option{taxonomy.WithRegistry(p.registry)}
	if p.shared != nil {
		p.sessionOpts = append(p.sessionOpts, taxonomy.WithSharedCache(p.shared))
	}
	return p
}

// ParseURL downloads and parses a remote instance document. The format is
// chosen by extension: .xml and .xbrl are plain XBRL, anything else is
// treated as inline XBRL.
func (p *Parser) ParseURL(ctx context.Context, instanceURL string) (*Instance, error) {
	if !uri.HasScheme(instanceURL) {
		return nil, eris.Errorf("instance: ParseURL wants a url, got path %s", instanceURL)
	}
	path, err := p.cache.CacheFile(ctx, instanceURL)
	if err != nil {
		return nil, eris.Wrapf(err, "instance: fetch %s", instanceURL)
	}
	if isPlainXBRL(instanceURL) {
		return p.parseXBRL(ctx, path, instanceURL)
	}
	return p.parseIXBRL(ctx, path, instanceURL)
}

// ParseFile parses a local instance document. Relative schema references
// resolve against the path.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Instance, error) {
	if uri.HasScheme(path) {
		return nil, eris.Errorf("instance: ParseFile wants a local path, got url %s", path)
	}
	if isPlainXBRL(path) {
		return p.parseXBRL(ctx, path, "")
	}
	return p.parseIXBRL(ctx, path, "")
}

func isPlainXBRL(loc string) bool {
	switch strings.ToLower(filepath.Ext(loc)) {
	case ".xml", ".xbrl":
		return true
	}
	return false
}

func (p *Parser) parseXBRL(ctx context.Context, path, instanceURL string) (*Instance, error) {
	doc, err := xmlparse.ParseFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "instance: parse %s", path)
	}
	root := doc.Root

	sess := taxonomy.NewSession(p.cache, p.sessionOpts...)
	schemaRef := root.Find(linkbase.LinkNS, "schemaRef")
	if schemaRef == nil {
		return nil, eris.Wrapf(ErrParse, "%s has no schemaRef", path)
	}
	tax, err := p.resolveTaxonomy(ctx, sess, schemaRef.Attr(linkbase.XLinkNS, "href"), path, instanceURL)
	if err != nil {
		return nil, err
	}

	log := logFor(path, instanceURL)
	contexts, err := p.parseContexts(ctx, sess, tax, root.FindAll(taxonomy.XbrliNS, "context"), log)
	if err != nil {
		return nil, err
	}
	units := parseUnits(root.FindAll(taxonomy.XbrliNS, "unit"))

	var facts []*Fact
	for _, el := range root.Children {
		switch el.Name.Local {
		case "context", "unit", "schemaRef":
			continue
		}
		ctxRef, ok := el.LookupAttr("", "contextRef")
		if !ok {
			continue
		}
		raw := el.DeepText()
		if raw == "" {
			continue
		}

		concept, ok := p.lookupConcept(ctx, sess, tax, el.Name.Space, el.Name.Local, log)
		if !ok {
			continue
		}
		factCtx, ok := contexts[strings.TrimSpace(ctxRef)]
		if !ok {
			log.Warn("fact references unknown context, skipping",
				zap.String("concept", concept.Name), zap.String("context_ref", ctxRef))
			continue
		}
		id := el.Attr("", "id")

		unitRef, numeric := el.LookupAttr("", "unitRef")
		if !numeric {
			facts = append(facts, &Fact{
				Kind: FactText, Concept: concept, Context: factCtx, ID: id, Text: raw,
			})
			continue
		}
		unit, ok := units[strings.TrimSpace(unitRef)]
		if !ok {
			log.Warn("fact references unknown unit, skipping",
				zap.String("concept", concept.Name), zap.String("unit_ref", unitRef))
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			log.Warn("numeric fact has non-numeric value, skipping",
				zap.String("concept", concept.Name), zap.String("value", raw))
			continue
		}
		facts = append(facts, &Fact{
			Kind:     FactNumeric,
			Concept:  concept,
			Context:  factCtx,
			ID:       id,
			Value:    &value,
			Unit:     unit,
			Decimals: parseDecimals(el.Attr("", "decimals")),
		})
	}

	location := instanceURL
	if location == "" {
		location = path
	}
	return &Instance{
		Location: location,
		Taxonomy: tax,
		Facts:    facts,
		Contexts: contexts,
		Units:    units,
	}, nil
}

// Embedded script blocks are stripped before XML parsing: EDGAR iXBRL
// documents carry javascript that is not well formed XML.
var scriptRe = regexp.MustCompile(`(?is)<\s*script.*?/\s*script\s*>`)

func (p *Parser) parseIXBRL(ctx context.Context, path, instanceURL string) (*Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "instance: read %s", path)
	}
	doc, err := xmlparse.ParseBytes(scriptRe.ReplaceAll(data, nil))
	if err != nil {
		return nil, eris.Wrapf(err, "instance: parse %s", path)
	}
	root := doc.Root

	sess := taxonomy.NewSession(p.cache, p.sessionOpts...)
	schemaRefs := root.Descendants(linkbase.LinkNS, "schemaRef")
	if len(schemaRefs) == 0 {
		return nil, eris.Wrapf(ErrParse, "%s has no schemaRef", path)
	}
	tax, err := p.resolveTaxonomy(ctx, sess, schemaRefs[0].Attr(linkbase.XLinkNS, "href"), path, instanceURL)
	if err != nil {
		return nil, err
	}

	resources := findIx(root, "resources")
	if resources == nil {
		return nil, eris.Wrapf(ErrParse, "%s has no ix:resources", path)
	}

	log := logFor(path, instanceURL)
	contexts, err := p.parseContexts(ctx, sess, tax, resources.FindAll(taxonomy.XbrliNS, "context"), log)
	if err != nil {
		return nil, err
	}
	units := parseUnits(resources.FindAll(taxonomy.XbrliNS, "unit"))

	var facts []*Fact
	factEls := append(descendantsIx(root, "nonFraction"), descendantsIx(root, "nonNumeric")...)
	for _, el := range factEls {
		name := el.Attr("", "name")
		prefix, local, found := strings.Cut(name, ":")
		if !found {
			prefix, local = "", name
		}
		ns, ok := el.Namespace(prefix)
		if !ok {
			log.Warn("fact name uses undeclared prefix, skipping", zap.String("name", name))
			continue
		}
		concept, ok := p.lookupConcept(ctx, sess, tax, ns, local, log)
		if !ok {
			continue
		}
		factCtx, ok := contexts[strings.TrimSpace(el.Attr("", "contextRef"))]
		if !ok {
			log.Warn("fact references unknown context, skipping",
				zap.String("concept", concept.Name),
				zap.String("context_ref", el.Attr("", "contextRef")))
			continue
		}
		id := el.Attr("", "id")

		if el.Name.Local == "nonNumeric" {
			facts = append(facts, &Fact{
				Kind:    FactText,
				Concept: concept,
				Context: factCtx,
				ID:      id,
				Text:    p.transformedText(el, log),
			})
			continue
		}

		unit, ok := units[strings.TrimSpace(el.Attr("", "unitRef"))]
		if !ok {
			log.Warn("fact references unknown unit, skipping",
				zap.String("concept", concept.Name),
				zap.String("unit_ref", el.Attr("", "unitRef")))
			continue
		}
		decimals := "0"
		if v, ok := el.LookupAttr("", "decimals"); ok {
			decimals = v
		}
		facts = append(facts, &Fact{
			Kind:     FactNumeric,
			Concept:  concept,
			Context:  factCtx,
			ID:       id,
			Value:    p.nonFractionValue(el, log),
			Unit:     unit,
			Decimals: parseDecimals(decimals),
		})
	}

	location := instanceURL
	if location == "" {
		location = path
	}
	return &Instance{
		Location: location,
		Taxonomy: tax,
		Facts:    facts,
		Contexts: contexts,
		Units:    units,
	}, nil
}

// transformedText extracts a nonNumeric value and applies its transformation
// rule when one is declared. Untransformable values are kept raw rather than
// dropped, matching how EDGAR consumers treat them.
func (p *Parser) transformedText(el *xmlparse.Node, log *zap.Logger) string {
	raw := el.DeepText()
	format, ok := el.LookupAttr("", "format")
	if !ok {
		return raw
	}
	out, err := p.applyFormat(el, format, raw, log)
	if err != nil {
		return raw
	}
	return out
}

// nonFractionValue extracts, transforms, scales, and sign-corrects a
// nonFraction value. A xsi:nil fact yields nil.
func (p *Parser) nonFractionValue(el *xmlparse.Node, log *zap.Logger) *float64 {
	if el.Attr(XsiNS, "nil") == "true" {
		return nil
	}
	raw := el.DeepText()
	if format, ok := el.LookupAttr("", "format"); ok {
		if out, err := p.applyFormat(el, format, raw, log); err == nil {
			raw = out
		}
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Warn("nonFraction value is not numeric after transformation",
			zap.String("value", raw))
		value = 0
	}
	if scaleAttr, ok := el.LookupAttr("", "scale"); ok {
		if scale, err := strconv.Atoi(strings.TrimSpace(scaleAttr)); err == nil {
			value *= math.Pow(10, float64(scale))
		}
	}
	// Scaling multiplies out binary representation error; values beyond the
	// threshold are reported in whole units anyway.
	if math.Abs(value) > p.threshold {
		value = math.Round(value)
	}
	if el.Attr("", "sign") == "-" {
		value = -value
	}
	return &value
}

func (p *Parser) applyFormat(el *xmlparse.Node, format, raw string, log *zap.Logger) (string, error) {
	prefix, code, found := strings.Cut(format, ":")
	if !found {
		prefix, code = "", format
	}
	ns, ok := el.Namespace(prefix)
	if !ok {
		log.Warn("format uses undeclared prefix", zap.String("format", format))
		return "", eris.Errorf("undeclared format prefix %q", prefix)
	}
	out, err := transform.Transform(ns, code, raw)
	if err != nil {
		if eris.Is(err, transform.ErrNotImplemented) {
			log.Info("transformation rule not implemented, keeping raw value",
				zap.String("format", format))
		} else {
			log.Warn("could not transform value",
				zap.String("format", format), zap.String("value", raw))
		}
		return "", err
	}
	return out, nil
}

func (p *Parser) resolveTaxonomy(ctx context.Context, sess *taxonomy.Session, href, path, instanceURL string) (*taxonomy.Schema, error) {
	if href == "" {
		return nil, eris.Wrap(ErrParse, "schemaRef without xlink:href")
	}
	switch {
	case uri.HasScheme(href):
		return sess.ParseURL(ctx, href)
	case instanceURL != "":
		return sess.ParseURL(ctx, uri.Resolve(instanceURL, href))
	default:
		return sess.ParseFile(ctx, uri.Resolve(path, href))
	}
}

// lookupConcept finds the concept for a namespace-qualified fact name,
// loading the well-known taxonomy on demand when the extension schema never
// imported it.
func (p *Parser) lookupConcept(ctx context.Context, sess *taxonomy.Session, tax *taxonomy.Schema, ns, name string, log *zap.Logger) (*taxonomy.Concept, bool) {
	owner := tax.GetTaxonomy(ns)
	if owner == nil {
		parsed, err := sess.ParseCommon(ctx, ns)
		if err != nil {
			log.Warn("fact references unresolvable taxonomy, skipping",
				zap.String("namespace", ns), zap.String("concept", name))
			return nil, false
		}
		tax.Imports = append(tax.Imports, parsed)
		owner = parsed
	}
	concept, ok := owner.ConceptByName(name)
	if !ok {
		log.Warn("fact references unknown concept, skipping",
			zap.String("namespace", ns), zap.String("concept", name))
		return nil, false
	}
	return concept, true
}

func (p *Parser) parseContexts(ctx context.Context, sess *taxonomy.Session, tax *taxonomy.Schema, els []*xmlparse.Node, log *zap.Logger) (map[string]*Context, error) {
	out := map[string]*Context{}
	for _, el := range els {
		c := &Context{ID: el.Attr("", "id")}

		entity := el.Find(taxonomy.XbrliNS, "entity")
		if entity == nil {
			return nil, eris.Wrapf(ErrParse, "context %s has no entity", c.ID)
		}
		if ident := entity.Find(taxonomy.XbrliNS, "identifier"); ident != nil {
			c.Entity = ident.Text()
		}

		period := el.Find(taxonomy.XbrliNS, "period")
		if period == nil {
			return nil, eris.Wrapf(ErrParse, "context %s has no period", c.ID)
		}
		var err error
		switch {
		case period.Find(taxonomy.XbrliNS, "instant") != nil:
			c.Period.Kind = PeriodInstant
			c.Period.Instant, err = parseDate(period.Find(taxonomy.XbrliNS, "instant").Text())
		case period.Find(taxonomy.XbrliNS, "forever") != nil:
			c.Period.Kind = PeriodForever
		default:
			c.Period.Kind = PeriodDuration
			start := period.Find(taxonomy.XbrliNS, "startDate")
			end := period.Find(taxonomy.XbrliNS, "endDate")
			if start == nil || end == nil {
				return nil, eris.Wrapf(ErrParse, "context %s period has no dates", c.ID)
			}
			c.Period.Start, err = parseDate(start.Text())
			if err == nil {
				c.Period.End, err = parseDate(end.Text())
			}
		}
		if err != nil {
			return nil, eris.Wrapf(ErrParse, "context %s: %v", c.ID, err)
		}

		if segment := entity.Find(taxonomy.XbrliNS, "segment"); segment != nil {
			for _, memberEl := range segment.FindAll(XbrldiNS, "explicitMember") {
				dim, ok1 := p.qualifiedConcept(ctx, sess, tax, memberEl, memberEl.Attr("", "dimension"), log)
				member, ok2 := p.qualifiedConcept(ctx, sess, tax, memberEl, memberEl.Text(), log)
				if !ok1 || !ok2 {
					continue
				}
				c.Segments = append(c.Segments, ExplicitMember{Dimension: dim, Member: member})
			}
		}

		out[c.ID] = c
	}
	return out, nil
}

// qualifiedConcept resolves a prefix:Name reference from a context element
// to a concept.
func (p *Parser) qualifiedConcept(ctx context.Context, sess *taxonomy.Session, tax *taxonomy.Schema, el *xmlparse.Node, ref string, log *zap.Logger) (*taxonomy.Concept, bool) {
	prefix, name, found := strings.Cut(strings.TrimSpace(ref), ":")
	if !found {
		prefix, name = "", strings.TrimSpace(ref)
	}
	ns, ok := el.Namespace(prefix)
	if !ok {
		log.Warn("dimension reference uses undeclared prefix, skipping",
			zap.String("ref", ref))
		return nil, false
	}
	return p.lookupConcept(ctx, sess, tax, ns, name, log)
}

func parseUnits(els []*xmlparse.Node) map[string]*Unit {
	out := map[string]*Unit{}
	for _, el := range els {
		u := &Unit{ID: el.Attr("", "id")}
		if measure := el.Find(taxonomy.XbrliNS, "measure"); measure != nil {
			u.Kind = UnitSimple
			u.Measure = measure.Text()
		} else if divide := el.Find(taxonomy.XbrliNS, "divide"); divide != nil {
			u.Kind = UnitDivide
			if num := divide.Find(taxonomy.XbrliNS, "unitNumerator"); num != nil {
				if m := num.Find(taxonomy.XbrliNS, "measure"); m != nil {
					u.Numerator = m.Text()
				}
			}
			if den := divide.Find(taxonomy.XbrliNS, "unitDenominator"); den != nil {
				if m := den.Find(taxonomy.XbrliNS, "measure"); m != nil {
					u.Denominator = m.Text()
				}
			}
		} else {
			continue
		}
		out[u.ID] = u
	}
	return out
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		s = s[:10]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "date %q", s)
	}
	return t, nil
}

func parseDecimals(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "inf") {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func findIx(root *xmlparse.Node, local string) *xmlparse.Node {
	for _, ns := range []string{IxNS2013, IxNS2008} {
		if els := root.Descendants(ns, local); len(els) > 0 {
			return els[0]
		}
	}
	return nil
}

func descendantsIx(root *xmlparse.Node, local string) []*xmlparse.Node {
	out := root.Descendants(IxNS2013, local)
	return append(out, root.Descendants(IxNS2008, local)...)
}

func logFor(path, instanceURL string) *zap.Logger {
	loc := instanceURL
	if loc == "" {
		loc = path
	}
	return zap.L().With(zap.String("instance", loc))
}

// xbrl-json serialization, following the OIM JSON representation.

type jsonDocument struct {
	Facts        map[string]jsonFact `json:"facts"`
	DocumentInfo jsonDocumentInfo    `json:"documentInfo"`
}

type jsonDocumentInfo struct {
	DocumentType string   `json:"documentType"`
	Taxonomy     []string `json:"taxonomy"`
	BaseURL      string   `json:"baseUrl"`
}

type jsonFact struct {
	Value      any               `json:"value"`
	Decimals   *int              `json:"decimals,omitempty"`
	Dimensions map[string]string `json:"dimensions"`
}

// JSON serializes the instance as xbrl-json. Fact keys are synthesized
// (f0, f1, ...) so documents without fact ids still produce stable output.
func (i *Instance) JSON() ([]byte, error) {
	doc := jsonDocument{
		Facts: make(map[string]jsonFact, len(i.Facts)),
		DocumentInfo: jsonDocumentInfo{
			DocumentType: "https://xbrl.org/2021/xbrl-json",
			Taxonomy:     i.Taxonomy.SchemaLocations(),
			BaseURL:      i.Location,
		},
	}
	for n, fact := range i.Facts {
		dims := map[string]string{
			"concept": fact.Concept.Name,
			"entity":  fact.Context.Entity,
			"period":  fact.Context.Period.String(),
		}
		for _, seg := range fact.Context.Segments {
			dims[seg.Dimension.Name] = seg.Member.Name
		}
		jf := jsonFact{Dimensions: dims}
		if fact.Kind == FactNumeric {
			dims["unit"] = fact.Unit.String()
			jf.Decimals = fact.Decimals
			if fact.Value != nil {
				jf.Value = *fact.Value
			}
		} else {
			jf.Value = fact.Text
		}
		doc.Facts["f"+strconv.Itoa(n)] = jf
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "instance: marshal json")
	}
	return data, nil
}
