// Package folio derives human-readable ticket codes from the service type
// and the current date.
package folio

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// servicePrefixes maps service types to their folio prefix. Unknown types
// fall back to the generic prefix.
var servicePrefixes = map[string]string{
	"mantenimiento": "MTO",
	"instalacion":   "INS",
	"reparacion":    "REP",
	"inspeccion":    "IVP",
	"limpieza":      "LIM",
	"fumigacion":    "FUM",
}

const fallbackPrefix = "SRV"

// Generate composes a folio as prefix + two-digit month + two-digit year +
// a 4-character hex suffix. No uniqueness guarantee; callers wanting one
// check against the store and retry.
func Generate(serviceType string) string {
	return generateAt(serviceType, time.Now())
}

func generateAt(serviceType string, now time.Time) string {
	prefix, ok := servicePrefixes[strings.ToLower(strings.TrimSpace(serviceType))]
	if !ok {
		prefix = fallbackPrefix
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return prefix + now.Format("0106") + suffix
}
