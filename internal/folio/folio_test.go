package folio

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateAt_FormatAndPrefix(t *testing.T) {
	march2026 := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

	code := generateAt("mantenimiento", march2026)
	assert.Regexp(t, regexp.MustCompile(`^MTO0326[0-9A-F]{4}$`), code)

	code = generateAt("instalacion", march2026)
	assert.True(t, strings.HasPrefix(code, "INS0326"))
}

func TestGenerateAt_UnknownTypeFallsBack(t *testing.T) {
	now := time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC)
	for _, serviceType := range []string{"", "desconocido", "  "} {
		code := generateAt(serviceType, now)
		assert.Regexp(t, regexp.MustCompile(`^SRV1226[0-9A-F]{4}$`), code, "service type %q", serviceType)
	}
}

func TestGenerateAt_LookupIsCaseInsensitive(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, strings.HasPrefix(generateAt("  Mantenimiento ", now), "MTO"))
	assert.True(t, strings.HasPrefix(generateAt("REPARACION", now), "REP"))
}

func TestGenerate_SuffixVaries(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		seen[Generate("limpieza")] = true
	}
	// 50 draws of a 4-hex-char suffix colliding down to one value would
	// mean the randomness is broken
	assert.Greater(t, len(seen), 1)
}
