package assets

import (
	_ "embed"
)

//go:embed stealth.js
var StealthScript string
