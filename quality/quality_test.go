package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSufficient_BlockedStatus(t *testing.T) {
	long := strings.Repeat("x", 6000)
	assert.False(t, Sufficient(long, 403))
	assert.False(t, Sufficient(long, 429))
	assert.False(t, Sufficient(long, 503))
}

func TestSufficient_TooShort(t *testing.T) {
	assert.False(t, Sufficient(strings.Repeat("x", 499), 200))
}

func TestSufficient_EmptySPAShell(t *testing.T) {
	body := `<html><body><div id="root"></div></body></html>` + strings.Repeat(" ", 1800)
	assert.Less(t, len(body), 2000)
	assert.GreaterOrEqual(t, len(body), 500)
	assert.False(t, Sufficient(body, 200))
}

func TestSufficient_EmptySPAShellButLongEnough(t *testing.T) {
	body := `<html><body><div id="root"></div></body></html>` + strings.Repeat("a", 2200)
	assert.True(t, Sufficient(body, 200))
}

func TestSufficient_TextBearingElements(t *testing.T) {
	body := `<p>this paragraph has real text</p><li>another list item here</li><span>and a span too</span>`
	body += strings.Repeat(" ", 1000-len(body))
	assert.GreaterOrEqual(t, len(body), 1000)
	assert.True(t, Sufficient(body, 200))
}

func TestSufficient_LongBody(t *testing.T) {
	body := "<html><body>" + strings.Repeat("a", 6000) + "</body></html>"
	assert.True(t, Sufficient(body, 200))
}

func TestSufficient_StructuralElement(t *testing.T) {
	body := `<html><body><article>short</article></body></html>` + strings.Repeat(" ", 500)
	assert.True(t, Sufficient(body, 200))
}

func TestSufficient_PassesShellCheckByDefault(t *testing.T) {
	body := strings.Repeat("a", 800)
	assert.True(t, Sufficient(body, 200))
}

func TestReason(t *testing.T) {
	assert.Equal(t, "blocked status", Reason("anything", 403))
	assert.Equal(t, "too short", Reason("short", 200))
}
