package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/wizprobe/internal/config"
	"golang.org/x/text/language"
)

func TestParseDecimal(t *testing.T) {
	d, err := ParseDecimal(" 1.70 ")
	require.NoError(t, err)
	assert.Equal(t, "1.70", d.Text)
	assert.InDelta(t, 1.7, d.Value, 1e-12)
	assert.Equal(t, 2, d.FractionDigits())

	d, err = ParseDecimal("0,30")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, d.Value, 1e-12)
	assert.Equal(t, 2, d.FractionDigits())

	d, err = ParseDecimal("2146")
	require.NoError(t, err)
	assert.Equal(t, 0, d.FractionDigits())

	_, err = ParseDecimal("abc")
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	in := Default()
	assert.Equal(t, "kepez", in.District)
	assert.Equal(t, "6960", in.Ada)
	assert.Equal(t, "4", in.Parsel)
	assert.Equal(t, "2146", in.ParcelArea.Text)
	assert.Equal(t, "0.30", in.TAKS.Text)
	assert.Equal(t, "0.60", in.KAKS.Text)
	assert.Equal(t, "1.70", in.Setback.Text)
	assert.Equal(t, language.Turkish, in.Locale)
}

func TestFromConfigErrors(t *testing.T) {
	cfg := config.NewDefaultConfig().Scenario()
	cfg.KAKS = "six tenths"
	_, err := FromConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario kaks")

	cfg = config.NewDefaultConfig().Scenario()
	cfg.Locale = "!!"
	_, err = FromConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario locale")
}

func TestRenderings(t *testing.T) {
	t.Run("integer area gets grouped forms", func(t *testing.T) {
		r := Renderings(Decimal{Text: "2146", Value: 2146}, language.Turkish)
		assert.Equal(t, []string{"2146", "2.146", "2,146"}, r)
	})

	t.Run("decimal gets both separators without duplicates", func(t *testing.T) {
		r := Renderings(Decimal{Text: "0.30", Value: 0.3}, language.Turkish)
		assert.Equal(t, []string{"0.30", "0,30"}, r)
	})

	t.Run("comma input", func(t *testing.T) {
		r := Renderings(Decimal{Text: "1,70", Value: 1.7}, language.English)
		assert.Equal(t, []string{"1,70", "1.70"}, r)
	})
}

func TestContinuityOrderAndMatching(t *testing.T) {
	in := Default()
	values := in.Continuity()
	require.Len(t, values, 3)
	assert.Equal(t, FieldParcelArea, values[0].Field)
	assert.Equal(t, FieldTAKS, values[1].Field)
	assert.Equal(t, FieldSetback, values[2].Field)
	assert.Equal(t, "Çıkma", values[2].Label)

	body := "Parsel Alanı 2.146 m² TAKS 0,30 Çıkma 1.70 m"
	for _, v := range values {
		assert.True(t, v.Matches(body), v.Field)
	}
	assert.False(t, values[1].Matches("TAKS 0.35"))
}

func TestDecimalsOrder(t *testing.T) {
	fields := []string{}
	for _, v := range Default().Decimals() {
		fields = append(fields, v.Field)
	}
	assert.Equal(t, []string{FieldSetback, FieldTAKS, FieldKAKS, FieldParcelArea}, fields)
}
