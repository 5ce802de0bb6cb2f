package fixtures

import (
	_ "embed"
)

// ConfigTemplate is written to the suite home by `perfsuite init`.
//
//go:embed config/config.yaml.template
var ConfigTemplate []byte
