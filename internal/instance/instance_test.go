package instance

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/xbrl-cli/internal/cache"
	"github.com/sells-group/xbrl-cli/internal/fetcher"
)

const instSchema = `<?xml version="1.0" encoding="UTF-8"?>
<xsd:schema xmlns:xsd="http://www.w3.org/2001/XMLSchema"
    xmlns:xbrli="http://www.xbrl.org/2003/instance"
    targetNamespace="http://test.example/inst">
  <xsd:element id="example_Assets" name="Assets" type="xbrli:monetaryItemType"
      substitutionGroup="xbrli:item" nillable="true"
      xbrli:periodType="instant" xbrli:balance="debit"/>
  <xsd:element id="example_Revenue" name="Revenue" type="xbrli:monetaryItemType"
      substitutionGroup="xbrli:item" nillable="true"
      xbrli:periodType="duration" xbrli:balance="credit"/>
  <xsd:element id="example_DocumentType" name="DocumentType" type="xbrli:stringItemType"
      substitutionGroup="xbrli:item" nillable="true" xbrli:periodType="duration"/>
  <xsd:element id="example_ReportDate" name="ReportDate" type="xbrli:dateItemType"
      substitutionGroup="xbrli:item" nillable="true" xbrli:periodType="duration"/>
  <xsd:element id="example_SegmentAxis" name="SegmentAxis" type="xbrli:stringItemType"
      substitutionGroup="xbrldt:dimensionItem" abstract="true" xbrli:periodType="duration"/>
  <xsd:element id="example_EuropeMember" name="EuropeMember" type="xbrli:stringItemType"
      substitutionGroup="xbrli:item" abstract="true" xbrli:periodType="duration"/>
</xsd:schema>`

const xbrlInstance = `<?xml version="1.0" encoding="UTF-8"?>
<xbrli:xbrl xmlns:xbrli="http://www.xbrl.org/2003/instance"
    xmlns:link="http://www.xbrl.org/2003/linkbase"
    xmlns:xlink="http://www.w3.org/1999/xlink"
    xmlns:xbrldi="http://xbrl.org/2006/xbrldi"
    xmlns:example="http://test.example/inst">
  <link:schemaRef xlink:type="simple" xlink:href="inst.xsd"/>
  <xbrli:context id="I2021">
    <xbrli:entity>
      <xbrli:identifier scheme="http://www.sec.gov/CIK">0000123456</xbrli:identifier>
      <xbrli:segment>
        <xbrldi:explicitMember dimension="example:SegmentAxis">example:EuropeMember</xbrldi:explicitMember>
      </xbrli:segment>
    </xbrli:entity>
    <xbrli:period><xbrli:instant>2021-12-31</xbrli:instant></xbrli:period>
  </xbrli:context>
  <xbrli:context id="D2021">
    <xbrli:entity>
      <xbrli:identifier scheme="http://www.sec.gov/CIK">0000123456</xbrli:identifier>
    </xbrli:entity>
    <xbrli:period>
      <xbrli:startDate>2021-01-01</xbrli:startDate>
      <xbrli:endDate>2021-12-31</xbrli:endDate>
    </xbrli:period>
  </xbrli:context>
  <xbrli:context id="Always">
    <xbrli:entity>
      <xbrli:identifier scheme="http://www.sec.gov/CIK">0000123456</xbrli:identifier>
    </xbrli:entity>
    <xbrli:period><xbrli:forever/></xbrli:period>
  </xbrli:context>
  <xbrli:unit id="usd"><xbrli:measure>iso4217:USD</xbrli:measure></xbrli:unit>
  <xbrli:unit id="usdPerShare">
    <xbrli:divide>
      <xbrli:unitNumerator><xbrli:measure>iso4217:USD</xbrli:measure></xbrli:unitNumerator>
      <xbrli:unitDenominator><xbrli:measure>xbrli:shares</xbrli:measure></xbrli:unitDenominator>
    </xbrli:divide>
  </xbrli:unit>
  <example:Assets contextRef="I2021" unitRef="usd" decimals="-3" id="fact-assets">377284000</example:Assets>
  <example:Revenue contextRef="D2021" unitRef="usd" decimals="INF">1000.5</example:Revenue>
  <example:DocumentType contextRef="D2021">10-K</example:DocumentType>
  <example:Bogus contextRef="D2021">5</example:Bogus>
  <example:Assets contextRef="Missing" unitRef="usd" decimals="0">1</example:Assets>
  <example:Assets contextRef="I2021" unitRef="usd" decimals="0"></example:Assets>
</xbrli:xbrl>`

func newTestParser(t *testing.T, opts ...ParserOption) *Parser {
	t.Helper()
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  "test-agent",
		Timeout:    5 * time.Second,
		MaxRetries: 1,
	})
	return NewParser(cache.New(t.TempDir(), f), opts...)
}

func writeFixture(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestParseXBRL(t *testing.T) {
	dir := writeFixture(t, map[string]string{
		"inst.xsd":     instSchema,
		"instance.xml": xbrlInstance,
	})
	parser := newTestParser(t)

	inst, err := parser.ParseFile(context.Background(), filepath.Join(dir, "instance.xml"))
	require.NoError(t, err)

	// The bogus concept, the missing context, and the empty fact are skipped.
	require.Len(t, inst.Facts, 3)
	assert.Len(t, inst.Contexts, 3)
	assert.Len(t, inst.Units, 2)

	assets := inst.Facts[0]
	assert.Equal(t, FactNumeric, assets.Kind)
	assert.Equal(t, "Assets", assets.Concept.Name)
	assert.Equal(t, "fact-assets", assets.ID)
	require.NotNil(t, assets.Value)
	assert.Equal(t, 377284000.0, *assets.Value)
	require.NotNil(t, assets.Decimals)
	assert.Equal(t, -3, *assets.Decimals)
	assert.Equal(t, "iso4217:USD", assets.Unit.String())
	assert.Equal(t, "0000123456", assets.Context.Entity)
	assert.Equal(t, PeriodInstant, assets.Context.Period.Kind)
	assert.Equal(t, "2021-12-31", assets.Context.Period.String())

	require.Len(t, assets.Context.Segments, 1)
	assert.Equal(t, "SegmentAxis", assets.Context.Segments[0].Dimension.Name)
	assert.Equal(t, "EuropeMember", assets.Context.Segments[0].Member.Name)

	revenue := inst.Facts[1]
	assert.Nil(t, revenue.Decimals, "INF decimals parse to nil")
	assert.Equal(t, PeriodDuration, revenue.Context.Period.Kind)
	assert.Equal(t, "2021-01-01/2021-12-31", revenue.Context.Period.String())

	docType := inst.Facts[2]
	assert.Equal(t, FactText, docType.Kind)
	assert.Equal(t, "10-K", docType.Text)

	assert.Equal(t, PeriodForever, inst.Contexts["Always"].Period.Kind)
	assert.Equal(t, "", inst.Contexts["Always"].Period.String())
	assert.Equal(t, "iso4217:USD/xbrli:shares", inst.Units["usdPerShare"].String())
}

const ixbrlInstance = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"
    xmlns:ix="http://www.xbrl.org/2013/inlineXBRL"
    xmlns:ixt="http://www.xbrl.org/inlineXBRL/transformation/2015-02-26"
    xmlns:link="http://www.xbrl.org/2003/linkbase"
    xmlns:xlink="http://www.w3.org/1999/xlink"
    xmlns:xbrli="http://www.xbrl.org/2003/instance"
    xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
    xmlns:example="http://test.example/inst">
<head>
<title>Annual Report</title>
<script type="text/javascript">if (1 < 2) { document.write("&"); }</script>
</head>
<body>
<div style="display:none">
  <ix:header>
    <ix:references>
      <link:schemaRef xlink:type="simple" xlink:href="inst.xsd"/>
    </ix:references>
    <ix:resources>
      <xbrli:context id="I2021">
        <xbrli:entity>
          <xbrli:identifier scheme="http://www.sec.gov/CIK">0000123456</xbrli:identifier>
        </xbrli:entity>
        <xbrli:period><xbrli:instant>2021-12-31</xbrli:instant></xbrli:period>
      </xbrli:context>
      <xbrli:context id="D2021">
        <xbrli:entity>
          <xbrli:identifier scheme="http://www.sec.gov/CIK">0000123456</xbrli:identifier>
        </xbrli:entity>
        <xbrli:period>
          <xbrli:startDate>2021-01-01</xbrli:startDate>
          <xbrli:endDate>2021-12-31</xbrli:endDate>
        </xbrli:period>
      </xbrli:context>
      <xbrli:unit id="usd"><xbrli:measure>iso4217:USD</xbrli:measure></xbrli:unit>
    </ix:resources>
  </ix:header>
</div>
<p>Total assets were $<ix:nonFraction name="example:Assets" contextRef="I2021"
  unitRef="usd" decimals="-6" scale="6" sign="-"
  format="ixt:numdotdecimal">1,2<b>3</b>4</ix:nonFraction> million.</p>
<p><ix:nonFraction name="example:Revenue" contextRef="D2021" unitRef="usd"
  xsi:nil="true"></ix:nonFraction></p>
<p>Filed on <ix:nonNumeric name="example:ReportDate" contextRef="D2021"
  format="ixt:datemonthdayyearen">January 17, 2022</ix:nonNumeric>.</p>
<p><ix:nonNumeric name="example:DocumentType" contextRef="D2021"
  format="ixt:dateerayearmonthdayjp">10-K</ix:nonNumeric></p>
</body>
</html>`

func TestParseIXBRL(t *testing.T) {
	dir := writeFixture(t, map[string]string{
		"inst.xsd":   instSchema,
		"report.htm": ixbrlInstance,
	})
	parser := newTestParser(t)

	inst, err := parser.ParseFile(context.Background(), filepath.Join(dir, "report.htm"))
	require.NoError(t, err)
	require.Len(t, inst.Facts, 4)

	assets := inst.Facts[0]
	assert.Equal(t, FactNumeric, assets.Kind)
	require.NotNil(t, assets.Value)
	// "1,234" transformed to 1234, scaled by 10^6, negated by sign.
	assert.Equal(t, -1234000000.0, *assets.Value)
	require.NotNil(t, assets.Decimals)
	assert.Equal(t, -6, *assets.Decimals)

	revenue := inst.Facts[1]
	assert.Equal(t, FactNumeric, revenue.Kind)
	assert.Nil(t, revenue.Value, "xsi:nil facts carry no value")

	reportDate := inst.Facts[2]
	assert.Equal(t, FactText, reportDate.Kind)
	assert.Equal(t, "2022-01-17", reportDate.Text)

	// An unimplemented transformation rule keeps the raw value.
	docType := inst.Facts[3]
	assert.Equal(t, "10-K", docType.Text)
}

func TestRoundingThresholdIsConfigurable(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"
    xmlns:ix="http://www.xbrl.org/2013/inlineXBRL"
    xmlns:link="http://www.xbrl.org/2003/linkbase"
    xmlns:xlink="http://www.w3.org/1999/xlink"
    xmlns:xbrli="http://www.xbrl.org/2003/instance"
    xmlns:example="http://test.example/inst">
<body>
<div style="display:none">
  <ix:header>
    <ix:references><link:schemaRef xlink:type="simple" xlink:href="inst.xsd"/></ix:references>
    <ix:resources>
      <xbrli:context id="D2021">
        <xbrli:entity>
          <xbrli:identifier scheme="http://www.sec.gov/CIK">0000123456</xbrli:identifier>
        </xbrli:entity>
        <xbrli:period>
          <xbrli:startDate>2021-01-01</xbrli:startDate>
          <xbrli:endDate>2021-12-31</xbrli:endDate>
        </xbrli:period>
      </xbrli:context>
      <xbrli:unit id="usd"><xbrli:measure>iso4217:USD</xbrli:measure></xbrli:unit>
    </ix:resources>
  </ix:header>
</div>
<p><ix:nonFraction name="example:Revenue" contextRef="D2021" unitRef="usd"
  decimals="0" scale="1">1.23</ix:nonFraction></p>
</body>
</html>`
	dir := writeFixture(t, map[string]string{"inst.xsd": instSchema, "report.htm": doc})

	strict := newTestParser(t, WithRoundingThreshold(10))
	inst, err := strict.ParseFile(context.Background(), filepath.Join(dir, "report.htm"))
	require.NoError(t, err)
	require.Len(t, inst.Facts, 1)
	assert.Equal(t, 12.0, *inst.Facts[0].Value)

	loose := newTestParser(t)
	inst, err = loose.ParseFile(context.Background(), filepath.Join(dir, "report.htm"))
	require.NoError(t, err)
	assert.InDelta(t, 12.3, *inst.Facts[0].Value, 1e-9)
}

func TestJSONExport(t *testing.T) {
	dir := writeFixture(t, map[string]string{
		"inst.xsd":     instSchema,
		"instance.xml": xbrlInstance,
	})
	parser := newTestParser(t)

	inst, err := parser.ParseFile(context.Background(), filepath.Join(dir, "instance.xml"))
	require.NoError(t, err)

	data, err := inst.JSON()
	require.NoError(t, err)

	var doc struct {
		Facts map[string]struct {
			Value      any               `json:"value"`
			Decimals   *int              `json:"decimals"`
			Dimensions map[string]string `json:"dimensions"`
		} `json:"facts"`
		DocumentInfo struct {
			DocumentType string   `json:"documentType"`
			Taxonomy     []string `json:"taxonomy"`
			BaseURL      string   `json:"baseUrl"`
		} `json:"documentInfo"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "https://xbrl.org/2021/xbrl-json", doc.DocumentInfo.DocumentType)
	assert.Equal(t, filepath.Join(dir, "instance.xml"), doc.DocumentInfo.BaseURL)
	assert.Equal(t, []string{filepath.Join(dir, "inst.xsd")}, doc.DocumentInfo.Taxonomy)
	require.Len(t, doc.Facts, 3)

	assets := doc.Facts["f0"]
	assert.Equal(t, 377284000.0, assets.Value)
	require.NotNil(t, assets.Decimals)
	assert.Equal(t, -3, *assets.Decimals)
	assert.Equal(t, "Assets", assets.Dimensions["concept"])
	assert.Equal(t, "0000123456", assets.Dimensions["entity"])
	assert.Equal(t, "2021-12-31", assets.Dimensions["period"])
	assert.Equal(t, "iso4217:USD", assets.Dimensions["unit"])
	assert.Equal(t, "EuropeMember", assets.Dimensions["SegmentAxis"])

	docType := doc.Facts["f2"]
	assert.Equal(t, "10-K", docType.Value)
	assert.NotContains(t, docType.Dimensions, "unit")
}

func TestMissingSchemaRef(t *testing.T) {
	dir := writeFixture(t, map[string]string{
		"broken.xml": `<?xml version="1.0"?><xbrli:xbrl xmlns:xbrli="http://www.xbrl.org/2003/instance"/>`,
	})
	parser := newTestParser(t)

	_, err := parser.ParseFile(context.Background(), filepath.Join(dir, "broken.xml"))
	assert.True(t, eris.Is(err, ErrParse))
}

func TestParseURLRejectsLocalPath(t *testing.T) {
	parser := newTestParser(t)
	_, err := parser.ParseURL(context.Background(), "/tmp/instance.xml")
	assert.Error(t, err)
	_, err = parser.ParseFile(context.Background(), "https://example.com/instance.xml")
	assert.Error(t, err)
}
