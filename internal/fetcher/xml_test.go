package fetcher

import (
	"context"
	"encoding/xml"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCase struct {
	XMLName xml.Name `xml:"Index"`
	ID      string   `xml:"IndexNumberId"`
}

const testExtract = `<?xml version="1.0" encoding="UTF-8"?>
<LandlordTenantExtract xmlns="http://www.example.org/LandlordTenantExtractSchema">
	<Index><IndexNumberId>X1</IndexNumberId></Index>
	<Other><Index><IndexNumberId>nested</IndexNumberId></Index></Other>
	<Index><IndexNumberId>X2</IndexNumberId></Index>
</LandlordTenantExtract>`

func TestEachXML_DocumentOrder(t *testing.T) {
	var ids []string
	n, err := EachXML(context.Background(), strings.NewReader(testExtract), "Index", func(c testCase) error {
		ids = append(ids, c.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"X1", "nested", "X2"}, ids)
}

func TestEachXML_Latin1Charset(t *testing.T) {
	input := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><r><Index><IndexNumberId>caf\xe9</IndexNumberId></Index></r>"

	var ids []string
	_, err := EachXML(context.Background(), strings.NewReader(input), "Index", func(c testCase) error {
		ids = append(ids, c.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"café"}, ids)
}

func TestEachXML_UnsupportedCharset(t *testing.T) {
	input := `<?xml version="1.0" encoding="x-bogus"?><r><Index/></r>`
	_, err := EachXML(context.Background(), strings.NewReader(input), "Index", func(testCase) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported charset")
}

func TestEachXML_CallbackErrorStops(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	n, err := EachXML(context.Background(), strings.NewReader(testExtract), "Index", func(testCase) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, calls)
}

func TestEachXML_Malformed(t *testing.T) {
	_, err := EachXML(context.Background(), strings.NewReader(`<r><Index><IndexNumberId>X1</Index></r>`), "Index",
		func(testCase) error { return nil })
	require.Error(t, err)
}

func TestEachXML_EmptyInput(t *testing.T) {
	n, err := EachXML(context.Background(), strings.NewReader(""), "Index", func(testCase) error { return nil })
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEachXML_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := EachXML(ctx, strings.NewReader(testExtract), "Index", func(testCase) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context")
}
