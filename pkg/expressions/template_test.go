package expressions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplate_Render(t *testing.T) {
	tmpl := NewTemplate(nil)
	data := map[string]any{
		"shipment_number":      "SHP-1",
		"customer_price_cents": float64(2500000),
		"carrier":              map[string]any{"name": "Fast Freight"},
	}

	t.Run("should interpolate nested paths", func(t *testing.T) {
		out, err := tmpl.Render("{{ shipment_number }} booked with {{carrier.name}}", data)
		require.NoError(t, err)
		assert.Equal(t, "SHP-1 booked with Fast Freight", out)
	})

	t.Run("should render whole numbers without an exponent", func(t *testing.T) {
		out, err := tmpl.Render("price {{ customer_price_cents }}", data)
		require.NoError(t, err)
		assert.Equal(t, "price 2500000", out)
	})

	t.Run("should render missing values as empty", func(t *testing.T) {
		out, err := tmpl.Render("[{{ missing.path }}]", data)
		require.NoError(t, err)
		assert.Equal(t, "[]", out)
	})

	t.Run("should keep invalid placeholders and report them", func(t *testing.T) {
		out, err := tmpl.Render("bad {{ [[ }}", data)
		assert.Error(t, err)
		assert.Equal(t, "bad {{ [[ }}", out)
	})

	t.Run("should leave plain text untouched", func(t *testing.T) {
		out, err := tmpl.Render("no placeholders", data)
		require.NoError(t, err)
		assert.Equal(t, "no placeholders", out)
		assert.False(t, HasTemplates(out))
	})
}

func TestTemplate_Validate(t *testing.T) {
	tmpl := NewTemplate(nil)
	assert.NoError(t, tmpl.Validate("{{ a.b }} and {{ c }}"))
	assert.Error(t, tmpl.Validate("{{ a.[ }}"))
	assert.Equal(t, []string{"a.b", "c"}, ExtractExpressions("{{ a.b }} and {{c}}"))
}
