package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeRichText(t *testing.T) {
	in := `<p>Welcome <b>coders</b></p><script>alert(1)</script><a href="javascript:alert(1)">x</a>`
	out := SanitizeRichText(in)

	assert.Contains(t, out, "<b>coders</b>")
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "javascript:")
}
