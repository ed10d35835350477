package watermark

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/marketfeed/internal/model"
)

func TestDefaultRules_Valid(t *testing.T) {
	for key, rule := range DefaultRules() {
		assert.NoError(t, rule.Validate(), key.String())
	}
}

func TestRuleTable_Resolve(t *testing.T) {
	rules := DefaultRules()

	r, err := rules.Resolve(model.ProviderFinnhub, model.StreamMacroNews)
	require.NoError(t, err)
	assert.Equal(t, CursorID, r.Cursor)
	assert.Equal(t, model.ScopeGlobal, r.Scope)

	_, err = rules.Resolve(model.ProviderReddit, model.StreamPrice)
	assert.ErrorIs(t, err, ErrNoRule)
}

func TestRuleTable_WithOverrides(t *testing.T) {
	overlap := 30 * time.Minute
	firstRun := 7 * 24 * time.Hour

	rules, err := DefaultRules().WithOverrides([]Override{
		{Provider: model.ProviderRSS, Stream: model.StreamMacroNews, Overlap: &overlap, FirstRun: &firstRun},
	})
	require.NoError(t, err)

	r, err := rules.Resolve(model.ProviderRSS, model.StreamMacroNews)
	require.NoError(t, err)
	assert.Equal(t, overlap, r.Overlap)
	assert.Equal(t, firstRun, r.FirstRun)

	orig, err := DefaultRules().Resolve(model.ProviderRSS, model.StreamMacroNews)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, orig.Overlap, "defaults untouched")
}

func TestRuleTable_OverrideErrors(t *testing.T) {
	_, err := DefaultRules().WithOverrides([]Override{
		{Provider: model.ProviderReddit, Stream: model.StreamMacroNews},
	})
	assert.ErrorIs(t, err, ErrNoRule)

	negative := -time.Minute
	_, err = DefaultRules().WithOverrides([]Override{
		{Provider: model.ProviderRSS, Stream: model.StreamMacroNews, Overlap: &negative},
	})
	assert.Error(t, err)
}

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{"snapshot", Rule{Cursor: CursorNone}, false},
		{"timestamp symbol", Rule{Cursor: CursorTimestamp, Scope: model.ScopeSymbol, FirstRun: time.Hour}, false},
		{"id symbol", Rule{Cursor: CursorID, Scope: model.ScopeSymbol, FirstRun: time.Hour}, true},
		{"missing first run", Rule{Cursor: CursorTimestamp, Scope: model.ScopeGlobal}, true},
		{"unknown kind", Rule{Cursor: "sequence"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
