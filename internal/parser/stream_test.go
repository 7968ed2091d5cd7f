package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRecord = "Here you go.\n===FILE_START===\n" +
	"Path: `src/util.ts`\n" +
	"Language: typescript\n" +
	"Description: Add a helper\n" +
	"Dependencies: lodash, @types/lodash\n" +
	"Code:\n" +
	"export const a = 1;\nexport const b = 2;\n" +
	"===FILE_END===\ntrailing"

func TestStreamParser_SplitMidDelimiter(t *testing.T) {
	p := NewStreamParser(nil)

	assert.Nil(t, p.Parse("===FILE_S"))
	assert.Nil(t, p.Parse("TART===\nPath: a.ts\nCode:\nhi\n===FILE_E"))
	rec := p.Parse("ND===")

	require.NotNil(t, rec)
	assert.Equal(t, "a.ts", rec.Path)
	assert.Equal(t, "hi", rec.Code)
	assert.Equal(t, "+1,-0", rec.Diff)
	assert.True(t, p.Closed())
}

func TestStreamParser_EverySplitOffset(t *testing.T) {
	for i := 0; i <= len(sampleRecord); i++ {
		p := NewStreamParser(nil)

		var got []*Record
		for _, chunk := range []string{sampleRecord[:i], sampleRecord[i:]} {
			if rec := p.Parse(chunk); rec != nil {
				got = append(got, rec)
			}
		}

		require.Len(t, got, 1, "split at %d", i)
		assert.Equal(t, "src/util.ts", got[0].Path)
		assert.Equal(t, "export const a = 1;\nexport const b = 2;", got[0].Code)
	}
}

func TestStreamParser_CharByChar(t *testing.T) {
	p := NewStreamParser(nil)
	emitted := 0
	for _, r := range sampleRecord {
		if p.Parse(string(r)) != nil {
			emitted++
		}
	}
	assert.Equal(t, 1, emitted)
}

func TestStreamParser_NoDoubleEmission(t *testing.T) {
	p := NewStreamParser(nil)
	require.NotNil(t, p.Parse(sampleRecord))

	assert.Nil(t, p.Parse("===FILE_END==="))
	assert.Nil(t, p.Parse(sampleRecord))
}

func TestStreamParser_InProgressEmitsNothing(t *testing.T) {
	p := NewStreamParser(nil)
	assert.Nil(t, p.Parse("===FILE_START===\nPath: a.ts\nCode:\npartial"))
	assert.False(t, p.Closed())
	assert.Contains(t, p.Buffer(), "partial")
}

func TestStreamParser_Fields(t *testing.T) {
	p := NewStreamParser(func(path string) string {
		assert.Equal(t, "src/util.ts", path)
		return "export const a = 1;\n"
	})

	rec := p.Parse(sampleRecord)
	require.NotNil(t, rec)
	assert.Equal(t, "typescript", rec.Language)
	assert.Equal(t, "Add a helper", rec.Description)
	assert.Equal(t, []string{"lodash", "@types/lodash"}, rec.Dependencies)
	assert.Equal(t, "+1,-0", rec.Diff)
}

func TestStreamParser_EmptyCode(t *testing.T) {
	p := NewStreamParser(func(string) string {
		t.Fatal("baseline must not be read for empty code")
		return ""
	})

	rec := p.Parse("===FILE_START===\nPath: b.ts\nCode:\n\n===FILE_END===")
	require.NotNil(t, rec)
	assert.Equal(t, "b.ts", rec.Path)
	assert.Empty(t, rec.Code)
	assert.Empty(t, rec.Diff)
}

func TestParseRecord_MissingFields(t *testing.T) {
	rec := ParseRecord("Code:\nx := 1")
	assert.Empty(t, rec.Path)
	assert.Empty(t, rec.Language)
	assert.Empty(t, rec.Description)
	assert.Nil(t, rec.Dependencies)
	assert.Equal(t, "x := 1", rec.Code)
}

func TestParseRecord_StripsFence(t *testing.T) {
	rec := ParseRecord("Path: main.go\nDependencies: none\nCode:\n```go\npackage main\n```\n")
	assert.Equal(t, "package main", rec.Code)
	assert.Nil(t, rec.Dependencies)
}

func TestParseRecord_VersionedDependencies(t *testing.T) {
	rec := ParseRecord("Path: a.ts\nDependencies: lodash@4.17.21, `@types/node`@20.1.0, lodash ^4, none\nCode:\nx")
	assert.Equal(t, []string{"lodash", "@types/node"}, rec.Dependencies)
}
