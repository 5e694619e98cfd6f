package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPatterns(t *testing.T) {
	c := Default()
	cases := []struct {
		line   string
		kind   Kind
		player string
	}{
		{`[12:00:01] [Server thread/INFO]: Done (3.214s)! For help, type "help"`, Ready, ""},
		{`[12:00:05] [Server thread/INFO]: Steve joined the game`, PlayerJoined, "Steve"},
		{`[12:05:00] [Server thread/INFO]: Steve left the game`, PlayerLeft, "Steve"},
		{`[12:00:02] [Server thread/INFO]: Preparing spawn area: 85%`, None, ""},
		{`[12:00:06] [Server thread/INFO]: <Steve> joined the game is my catchphrase`, None, ""},
		{``, None, ""},
	}
	for _, tc := range cases {
		ev := c.Classify(tc.line)
		assert.Equal(t, tc.kind, ev.Kind, "line=%q", tc.line)
		assert.Equal(t, tc.player, ev.Player, "line=%q", tc.line)
	}
}

func TestCustomPatterns(t *testing.T) {
	c, err := New(`Server started`, `\+ (\w+) connected`, `- (\w+) disconnected`)
	require.NoError(t, err)

	assert.Equal(t, Ready, c.Classify("INFO Server started in 2s").Kind)
	ev := c.Classify("+ alex connected from 10.0.0.2")
	assert.Equal(t, PlayerJoined, ev.Kind)
	assert.Equal(t, "alex", ev.Player)
	ev = c.Classify("- alex disconnected")
	assert.Equal(t, PlayerLeft, ev.Kind)
	assert.Equal(t, "alex", ev.Player)
}

func TestEmptyPatternsDisableDetection(t *testing.T) {
	c, err := New("", "", "")
	require.NoError(t, err)
	assert.Equal(t, None, c.Classify("Done (1.0s)!").Kind)
	assert.Equal(t, None, c.Classify("x joined the game").Kind)
}

func TestZeroValueClassifier(t *testing.T) {
	var c Classifier
	assert.Equal(t, None, c.Classify("anything").Kind)
}

func TestInvalidPattern(t *testing.T) {
	_, err := New("(", "", "")
	require.Error(t, err)
	_, err = New("", "(", "")
	require.Error(t, err)
	_, err = New("", "", "(")
	require.Error(t, err)
}

func TestReadyTakesPrecedence(t *testing.T) {
	// A pathological line matching both patterns classifies as ready.
	c, err := New(`boot complete`, `(\w+) boot complete`, "")
	require.NoError(t, err)
	assert.Equal(t, Ready, c.Classify("node boot complete").Kind)
}
